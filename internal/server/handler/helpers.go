package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/listing"
	"github.com/alanyoungcy/tradedvm/internal/trade"
	"github.com/alanyoungcy/tradedvm/internal/value"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(r *http.Request, w http.ResponseWriter, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps a service error to a status code. Client errors
// carry their message and code; anything else is logged and reported as a
// generic 500 naming op.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, status, "failed to "+op)
		return
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var ve *trade.ValidationError
	if errors.As(err, &ve) {
		body.Code = string(ve.Code)
		switch ve.Code {
		case trade.CodeListingEventNotFound:
			return http.StatusNotFound, body
		case trade.CodeListingEventFetchFailed:
			return http.StatusBadGateway, body
		}
		return http.StatusUnprocessableEntity, body
	}

	var pe *listing.ParseError
	if errors.As(err, &pe) {
		body.Field = pe.Field
		return http.StatusBadRequest, body
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, trade.ErrInvalidAddress),
		errors.Is(err, trade.ErrUnknownMessageType),
		errors.Is(err, trade.ErrKindMismatch),
		errors.Is(err, domain.ErrInvalidEnvelope),
		errors.Is(err, value.ErrCurrencyMismatch),
		errors.Is(err, value.ErrInvalidUnit),
		errors.Is(err, value.ErrInvalidCurrency):
		return http.StatusBadRequest, body
	}
	return http.StatusInternalServerError, body
}

// parseListOpts extracts pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, 500)
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
