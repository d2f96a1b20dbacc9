// Package transport is the HTTP surface of the review service: routing,
// the middleware chain, token verification and the JSON handlers.
package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/FallSteph/Syllabuksu/model"
)

const maxBodyBytes = 1 << 20

// errorStatus maps ErrorEnvelope codes to HTTP statuses. Unlisted codes
// answer 500.
var errorStatus = map[string]int{
	model.ErrBadRequest:       http.StatusBadRequest,
	model.ErrUnauthorized:     http.StatusUnauthorized,
	model.ErrForbidden:        http.StatusForbidden,
	model.ErrRoleMismatch:     http.StatusForbidden,
	model.ErrScopeMismatch:    http.StatusForbidden,
	model.ErrNotFound:         http.StatusNotFound,
	model.ErrConflict:         http.StatusConflict,
	model.ErrValidationError:  http.StatusUnprocessableEntity,
	model.ErrIllegalAction:    http.StatusUnprocessableEntity,
	model.ErrMissingComment:   http.StatusUnprocessableEntity,
	model.ErrMissingSignature: http.StatusUnprocessableEntity,
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	if ee, ok := model.AsEnvelope(err); ok {
		if status, known := errorStatus[ee.Code]; known {
			return status
		}
	}
	return http.StatusInternalServerError
}

// WriteJSON encodes body before touching the response, so an unencodable
// value turns into a clean 500 instead of a truncated 200.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			status = http.StatusInternalServerError
			buf.Reset()
			buf.WriteString(`{"error":{"code":"INTERNAL_ERROR","message":"An unexpected error occurred"}}` + "\n")
		}
	}
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteError answers with err's envelope. Errors that are not envelopes
// are reported as a generic 500 so internal detail never reaches clients.
func WriteError(w http.ResponseWriter, err error) {
	ee, ok := model.AsEnvelope(err)
	if !ok {
		ee = model.NewInternalError()
	}
	WriteJSON(w, StatusFor(ee), errorResponse{Error: ee})
}

func WriteForbidden(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewForbiddenError(msg))
}

func WriteValidationError(w http.ResponseWriter, details []model.FieldError) {
	WriteError(w, model.NewValidationError(details))
}

// decodeJSON reads exactly one JSON object into dst. Unknown fields and
// trailing data are rejected, and the message names what was wrong.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return model.NewBadRequestError("request body is empty")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return model.NewBadRequestError(fmt.Sprintf("field %q must be a %s", typeErr.Field, typeErr.Type))
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return model.NewBadRequestError("unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return model.NewBadRequestError("invalid JSON body")
	}

	if dec.More() {
		return model.NewBadRequestError("request body must contain a single JSON object")
	}
	return nil
}
