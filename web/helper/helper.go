// Package helper writes the JSON envelopes shared by every handler.
package helper

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"dronegcs/apperror"
)

const maxBodySize = 64 << 10

// ReadJSON decodes the request body into v. Any failure is reported as
// apperror.InvalidRequest.
func ReadJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperror.InvalidRequest.Wrap(err)
	}
	return nil
}

// ReturnFailure maps err to its status. Errors that are not an Apperror are
// reported as internal errors without leaking their text.
func ReturnFailure(w http.ResponseWriter, err error) {
	var appErr apperror.Apperror
	if !errors.As(err, &appErr) {
		appErr = apperror.ServerError
	}
	code, msg := appErr.StatusAndMessage()
	writeJSON(w, code, map[string]string{"error": msg})
}

func ReturnSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	// read back by the request logging middleware
	w.Header().Set("status", strconv.Itoa(code))
	w.WriteHeader(code)

	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}
