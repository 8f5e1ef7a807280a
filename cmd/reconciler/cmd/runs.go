package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-pv-reconciliation/cmd/reconciler/config"
	"golang-pv-reconciliation/internal/reporter"
	"golang-pv-reconciliation/internal/store"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

// runsCmd groups the run history commands
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse stored reconciliation runs",
	Long: `Runs reads the history database written by 'reconcile --persist' and by
the HTTP API. Every subcommand needs --db.

Examples:
  reconciler runs list --db runs.db --limit 5
  reconciler runs show 7c9e6679-7425-40de-944b-e07fc1f90ae7 --db runs.db
  reconciler runs delete 7c9e6679-7425-40de-944b-e07fc1f90ae7 --db runs.db`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withRunStore(cmd.Context(), func(runs *store.RunStore) error {
			return listRuns(cmd.Context(), runs, limit, asJSON, cmd.OutOrStdout())
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print the report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withRunStore(cmd.Context(), func(runs *store.RunStore) error {
			return showRun(cmd.Context(), runs, args[0], format, cmd.OutOrStdout())
		})
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunStore(cmd.Context(), func(runs *store.RunStore) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			if err := runs.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", id)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)

	runsListCmd.Flags().Int("limit", store.DefaultListLimit, "maximum number of runs to list")
	runsListCmd.Flags().Bool("json", false, "print the list as JSON")
	runsShowCmd.Flags().StringP("format", "f", "console", "output format: console, json, csv")
}

// withRunStore opens the database named by --db for the duration of fn
func withRunStore(ctx context.Context, fn func(*store.RunStore) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dsn := viper.GetString("db")
	if dsn == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "db", nil, nil).
			WithSuggestion("give the history database with --db runs.db")
	}

	runs, err := store.Open(ctx, dsn, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	defer runs.Close()

	return fn(runs)
}

func listRuns(ctx context.Context, runs *store.RunStore, limit int, asJSON bool, w io.Writer) error {
	infos, err := runs.List(ctx, limit)
	if err != nil {
		return err
	}

	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(infos); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "encode runs", err)
		}
		return nil
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No stored runs")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-20s  %-25s  %-12s  %7s  %9s  %9s\n",
		"ID", "CREATED", "DATASETS", "STRATEGY", "MATCHED", "UNM LEFT", "UNM RIGHT")
	for _, info := range infos {
		fmt.Fprintf(w, "%-36s  %-20s  %-25s  %-12s  %7d  %9d  %9d\n",
			info.ID,
			info.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(info.LeftName+" vs "+info.RightName, 25),
			info.Strategy,
			info.Matched,
			info.UnmatchedLeft,
			info.UnmatchedRight,
		)
	}
	return nil
}

// showRun renders a stored run with the same generator as reconcile
func showRun(ctx context.Context, runs *store.RunStore, rawID, format string, w io.Writer) error {
	id, err := parseRunID(rawID)
	if err != nil {
		return err
	}

	run, err := runs.Get(ctx, id)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(format, 0)
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	return generator.GenerateReportSafely(run.Result, w)
}

func parseRunID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.ValidationError(errors.CodeInvalidRequest, "run id", raw, err).
			WithSuggestion("copy the ID from 'reconciler runs list'")
	}
	return id, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
