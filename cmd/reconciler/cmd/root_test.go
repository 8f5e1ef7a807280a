package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-pv-reconciliation/pkg/logger"
)

func TestSetupLoggingWritesToCommandErrStream(t *testing.T) {
	previous := logger.GetGlobalLogger()
	defer logger.SetGlobalLogger(previous)

	viper.Reset()
	defer viper.Reset()
	viper.Set("log-level", "info")
	viper.Set("log-format", "json")

	var stderr bytes.Buffer
	command := &cobra.Command{Use: "test"}
	command.SetErr(&stderr)

	if err := setupLogging(command, nil); err != nil {
		t.Fatalf("setupLogging() error = %v", err)
	}
	logger.GetGlobalLogger().WithField("run", "check").Info("logging wired")

	var entry map[string]interface{}
	if err := json.Unmarshal(stderr.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, stderr.String())
	}
	if entry["run"] != "check" {
		t.Errorf("run field = %v, want check", entry["run"])
	}
	if entry["msg"] != "logging wired" {
		t.Errorf("msg = %v, want %q", entry["msg"], "logging wired")
	}
}

func TestSetupLoggingRejectsBadLevel(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("log-level", "loud")

	if err := setupLogging(&cobra.Command{Use: "test"}, nil); err == nil {
		t.Error("setupLogging() should reject an unknown log level")
	}
}
