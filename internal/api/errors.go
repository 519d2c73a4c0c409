package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/refdata/internal/query"
	"github.com/hyperengineering/refdata/internal/record"
	"github.com/hyperengineering/refdata/internal/store"
	"github.com/hyperengineering/refdata/internal/syncer"
	"github.com/hyperengineering/refdata/internal/types"
	"github.com/hyperengineering/refdata/internal/validation"
)

// Error codes carried in the "code" field of an error envelope.
const (
	CodeInvalidTarget   = "invalid_target"
	CodeEmptyPayload    = "empty_payload"
	CodeSchemaMismatch  = "schema_mismatch"
	CodeMalformedInput  = "malformed_input"
	CodeStorageFailure  = "storage_failure"
	CodeNotFound        = "not_found"
	CodeMethod          = "method_not_allowed"
	CodePayloadTooLarge = "payload_too_large"
	CodeTimeout         = "timeout"
	CodeInternal        = "internal_error"
)

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeErrorResponse(w, status, types.ErrorResponse{Error: message, Code: code})
}

// WriteFieldErrors writes a 400 malformed_input envelope with field errors.
func WriteFieldErrors(w http.ResponseWriter, message string, errs []validation.ValidationError) {
	writeErrorResponse(w, http.StatusBadRequest, types.ErrorResponse{
		Error:  message,
		Code:   CodeMalformedInput,
		Errors: errs,
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp types.ErrorResponse) {
	resp.Success = false
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// MapError converts domain errors to error envelopes.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *record.FieldErrors
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &fe):
		WriteFieldErrors(w, "Request contains invalid fields", fe.Errors)
	case errors.Is(err, syncer.ErrInvalidTarget):
		WriteError(w, http.StatusBadRequest, CodeInvalidTarget, err.Error())
	case errors.Is(err, syncer.ErrEmptyPayload):
		WriteError(w, http.StatusBadRequest, CodeEmptyPayload, "No data provided")
	case errors.Is(err, record.ErrSchemaMismatch):
		WriteError(w, http.StatusBadRequest, CodeSchemaMismatch, err.Error())
	case errors.Is(err, record.ErrMalformedInput):
		WriteError(w, http.StatusBadRequest, CodeMalformedInput, err.Error())
	case errors.Is(err, query.ErrUnknownEntity):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.As(err, &tooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large")
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("request timed out", "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusGatewayTimeout, CodeTimeout, "Request timed out")
	case errors.Is(err, store.ErrStorageFailure):
		// Never expose storage details to client
		slog.Error("storage failure", "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeStorageFailure, "Storage failure")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "Internal Server Error")
	}
}
