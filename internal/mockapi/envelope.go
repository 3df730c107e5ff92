package mockapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"greenlabel.or.id/admin/internal/ids"
)

const headerRequestID = "X-Request-ID"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type envelope struct {
	Data    any        `json:"data"`
	Meta    any        `json:"meta,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	TraceID string     `json:"trace_id,omitempty"`
}

func traceID(r *http.Request) string {
	if rid := strings.TrimSpace(r.Header.Get(headerRequestID)); rid != "" {
		return rid
	}
	return ids.RequestID()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, r *http.Request, code int, data any) {
	writeJSON(w, code, envelope{Data: data, TraceID: traceID(r)})
}

func writeList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, envelope{
		Data:    items,
		Meta:    map[string]int{"total": len(items)},
		TraceID: traceID(r),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	writeJSON(w, code, envelope{
		Error:   &errorBody{Code: errCode, Message: msg},
		TraceID: traceID(r),
	})
}

// writeStateError maps state sentinels onto HTTP statuses.
func writeStateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errInvalid):
		writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, errConflict):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, errNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
}
