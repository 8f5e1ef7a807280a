package api

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/internal/matcher"
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/reconciler"
	"golang-pv-reconciliation/internal/store"
	"golang-pv-reconciliation/pkg/errors"
)

// datasetPayload is one dataset of a JSON reconcile request
type datasetPayload struct {
	Name    string                  `json:"name"`
	Columns []string                `json:"columns"`
	Rows    [][]models.Cell         `json:"rows"`
	Hints   *detector.ColumnMapping `json:"hints,omitempty"`
}

type reconcileRequest struct {
	Left     datasetPayload `json:"left"`
	Right    datasetPayload `json:"right"`
	Strategy string         `json:"strategy,omitempty"`
	Persist  bool           `json:"persist,omitempty"`
}

type reconcileResponse struct {
	RunID     uuid.UUID              `json:"run_id"`
	Persisted bool                   `json:"persisted"`
	Report    *models.MatchReport    `json:"report"`
	Left      *reconciler.SideResult `json:"left"`
	Right     *reconciler.SideResult `json:"right"`
	Warnings  []string               `json:"warnings,omitempty"`
}

type errorResponse struct {
	Error            string           `json:"error"`
	Code             errors.ErrorCode `json:"code,omitempty"`
	Suggestion       string           `json:"suggestion,omitempty"`
	Dataset          string           `json:"dataset,omitempty"`
	AvailableColumns []string         `json:"available_columns,omitempty"`
	MissingFields    []string         `json:"missing_fields,omitempty"`
}

// --- helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeReconcilerError maps an error onto an HTTP status and a JSON body.
// Detection failures carry the dataset and its columns so a client can
// retry with hints.
func (s *Server) writeReconcilerError(w http.ResponseWriter, err error) {
	rerr := errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "internal error")

	body := errorResponse{
		Error:            rerr.Message,
		Code:             rerr.Code,
		Suggestion:       rerr.Suggestion,
		AvailableColumns: errors.AvailableColumns(rerr),
		MissingFields:    errors.MissingFields(rerr),
	}
	if dataset, ok := rerr.Context[errors.ContextDataset].(string); ok {
		body.Dataset = dataset
	}

	status := statusFor(rerr)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}
	s.writeJSON(w, status, body)
}

func statusFor(err *errors.ReconcilerError) int {
	switch err.Category {
	case errors.CategoryDetection:
		return http.StatusUnprocessableEntity
	case errors.CategoryFile:
		if err.Code == errors.CodeUnsupportedFormat {
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case errors.CategoryParse, errors.CategoryValidation, errors.CategoryConfiguration:
		return http.StatusBadRequest
	case errors.CategoryStorage:
		if err.Code == errors.CodeRunNotFound {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	case errors.CategoryReconciliation:
		if err.Code == errors.CodeCancelled {
			return http.StatusServiceUnavailable
		}
		if err.Code == errors.CodeProjectionFailed {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func parseStrategy(s string) (*matcher.Strategy, error) {
	if s == "" {
		return nil, nil
	}
	strategy, err := matcher.ParseStrategy(s)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidRequest, "strategy", s, err)
	}
	return &strategy, nil
}

// --- health ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"run_history": s.runs != nil,
	})
}

// --- reconcile ---

func (s *Server) reconcileRows(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	strategy, err := parseStrategy(req.Strategy)
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}

	left, err := req.Left.source("left")
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}
	right, err := req.Right.source("right")
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}

	s.reconcile(w, r, &reconciler.ReconciliationRequest{Left: left, Right: right, Strategy: strategy}, req.Persist)
}

func (p datasetPayload) source(side string) (reconciler.Source, error) {
	if len(p.Columns) == 0 {
		return reconciler.Source{}, errors.ValidationError(errors.CodeMissingField, side+".columns", nil, nil)
	}

	name := p.Name
	if name == "" {
		name = side
	}

	table := models.NewTable(name, p.Columns)
	for _, row := range p.Rows {
		table.AppendRow(row)
	}

	return reconciler.Source{Name: p.Name, Table: table, Hints: p.Hints}, nil
}

func (s *Server) reconcileUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := r.ParseMultipartForm(s.config.MaxBodyBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	strategy, err := parseStrategy(r.FormValue("strategy"))
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}

	left, err := s.uploadedSource(r, "left")
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}
	right, err := s.uploadedSource(r, "right")
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}

	persist, _ := strconv.ParseBool(r.FormValue("persist"))
	s.reconcile(w, r, &reconciler.ReconciliationRequest{Left: left, Right: right, Strategy: strategy}, persist)
}

// uploadedSource reads the file in form field side together with its
// optional <side>_name, <side>_sheet and <side>_columns fields
func (s *Server) uploadedSource(r *http.Request, side string) (reconciler.Source, error) {
	file, header, err := r.FormFile(side)
	if err != nil {
		return reconciler.Source{}, errors.ValidationError(errors.CodeMissingField, side, nil, err).
			WithSuggestion(fmt.Sprintf("attach the %s dataset as the %q form file", side, side))
	}
	defer file.Close()

	table, err := s.readUpload(file, header, r.FormValue(side+"_sheet"))
	if err != nil {
		return reconciler.Source{}, err
	}

	hints, err := detector.ParseColumnMapping(r.FormValue(side + "_columns"))
	if err != nil {
		return reconciler.Source{}, errors.ValidationError(errors.CodeInvalidRequest, side+"_columns", r.FormValue(side+"_columns"), err)
	}

	return reconciler.Source{Name: r.FormValue(side + "_name"), Table: table, Hints: hints}, nil
}

func (s *Server) readUpload(file multipart.File, header *multipart.FileHeader, sheet string) (*models.Table, error) {
	s.logger.WithField("file_name", header.Filename).WithField("size", header.Size).Debug("Reading upload")
	return s.reader.Read(file, header.Filename, sheet)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request, req *reconciler.ReconciliationRequest, persist bool) {
	if persist && s.runs == nil {
		s.writeError(w, http.StatusBadRequest, "run history is disabled on this server")
		return
	}

	result, err := s.service.ProcessReconciliation(r.Context(), req)
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}

	if persist {
		if err := s.runs.Save(r.Context(), result); err != nil {
			s.writeReconcilerError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, reconcileResponse{
		RunID:     result.RunID,
		Persisted: persist,
		Report:    result.Report,
		Left:      result.Left,
		Right:     result.Right,
		Warnings:  result.Warnings,
	})
}

// --- runs ---

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), store.DefaultListLimit)

	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"limit": limit,
	})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}

	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		s.writeReconcilerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}

	if err := s.runs.Delete(r.Context(), id); err != nil {
		s.writeReconcilerError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid run id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}
