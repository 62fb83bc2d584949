// Package handlers implements the view API consumed by the presentation shell.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/turtacn/MolForge/pkg/errors"
)

// maxBodyBytes caps request bodies; the largest payload is a generation form.
const maxBodyBytes = 64 << 10

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a structured error response using the code of the first
// AppError in err's chain.
func writeError(w http.ResponseWriter, statusCode int, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeInternal
	}
	writeJSON(w, statusCode, ErrorResponse{Code: code.String(), Message: errors.Message(err)})
}

// writeAppError maps application errors to HTTP status codes. Errors without
// a code are masked.
func writeAppError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		writeError(w, http.StatusInternalServerError, errors.Internal("internal server error"))
		return
	}
	writeError(w, errors.HTTPStatusForCode(code), err)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body")
	}
	return nil
}
