package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cleanround/internal/lifecycle"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIDParam(r *http.Request) (int64, error) {
	return parsePathInt(r, "id")
}

func parsePathInt(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

type lifecycleErrorBody struct {
	Error   string  `json:"error"`
	Code    string  `json:"code"`
	ItemIDs []int64 `json:"item_ids,omitempty"`
	TaskIDs []int64 `json:"task_ids,omitempty"`
}

// statusForKind maps a lifecycle failure class to an HTTP status.
func statusForKind(k lifecycle.Kind) int {
	switch k {
	case lifecycle.KindValidation:
		return http.StatusBadRequest
	case lifecycle.KindInvalidTransition, lifecycle.KindConflict:
		return http.StatusConflict
	case lifecycle.KindAuthorization:
		return http.StatusForbidden
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeLifecycleError renders err from an engine call. Infrastructure
// failures are logged and reported without detail.
func writeLifecycleError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	le, ok := lifecycle.AsError(err)
	if !ok {
		logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, statusForKind(le.Kind), lifecycleErrorBody{
		Error:   le.Message,
		Code:    string(le.Code),
		ItemIDs: le.ItemIDs,
		TaskIDs: le.TaskIDs,
	})
}
