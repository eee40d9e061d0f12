package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cleanslate/cleanslate/internal/pipeline"
	"github.com/cleanslate/cleanslate/internal/preview"
)

type processRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type undoRequest struct {
	SessionID string `json:"session_id"`
}

type commandResponse struct {
	Message   string        `json:"message"`
	Code      string        `json:"code,omitempty"`
	Mode      string        `json:"mode"`
	TotalRows int           `json:"total_rows"`
	Columns   []string      `json:"columns"`
	Preview   []preview.Row `json:"preview"`
}

func handleProcess(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PROCESS_NOT_CONFIGURED", "command pipeline is not configured", false, nil)
		return
	}

	var req processRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid process request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_ID_REQUIRED", "session_id is required", false, nil)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", "query is required", false, nil)
		return
	}

	result, err := deps.Pipeline.Process(r.Context(), req.SessionID, req.Query)
	if err != nil {
		writeCommandError(deps, w, r, err)
		return
	}
	writeCommand(deps, w, result)
}

func handleUndo(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PROCESS_NOT_CONFIGURED", "command pipeline is not configured", false, nil)
		return
	}

	var req undoRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid undo request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_ID_REQUIRED", "session_id is required", false, nil)
		return
	}

	result, err := deps.Pipeline.Undo(r.Context(), req.SessionID)
	if err != nil {
		writeCommandError(deps, w, r, err)
		return
	}
	writeCommand(deps, w, result)
}

func writeCommand(deps Dependencies, w http.ResponseWriter, result pipeline.CommandResult) {
	writeJSON(w, http.StatusOK, commandResponse{
		Message:   result.Message,
		Code:      result.Code,
		Mode:      result.Mode,
		TotalRows: result.Table.NumRows(),
		Columns:   result.Table.ColumnNames(),
		Preview:   preview.Format(result.Table, previewRows(deps)),
	})
}

// writeCommandError keeps failures inspectable: an execution failure carries
// the fragment that ran and its trace, never a bare 500.
func writeCommandError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	if isSessionNotFound(err) {
		writeSessionNotFound(r.Context(), w)
		return
	}

	var execErr *pipeline.ExecutionError
	if errors.As(err, &execErr) {
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "fragment execution failed", "code", execErr.Fragment, "trace", execErr.Trace)
		}
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "EXECUTION_FAILED", execErr.Error(), false, map[string]any{
			"failed_code": execErr.Fragment,
			"trace":       execErr.Trace,
		})
		return
	}

	var genErr *pipeline.GenerationError
	if errors.As(err, &genErr) {
		writeError(r.Context(), w, http.StatusBadGateway, "GENERATION_FAILED", genErr.Error(), true, nil)
		return
	}

	writeError(r.Context(), w, http.StatusInternalServerError, "COMMAND_FAILED", err.Error(), true, nil)
}
