package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/access"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/middleware"
)

const (
	codeBadRequest      = "bad_request"
	codeRequestTooLarge = "request_too_large"
	codeInternal        = "internal_error"
)

// errorBody is the JSON shape of every failed response
type errorBody struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Errors []access.FieldError `json:"errors,omitempty"`
}

var kindStatus = map[access.Kind]int{
	access.KindUnauthenticated:    http.StatusUnauthorized,
	access.KindInvalidCredentials: http.StatusUnauthorized,
	access.KindUnauthorized:       http.StatusForbidden,
	access.KindValidation:         http.StatusBadRequest,
	access.KindNotFound:           http.StatusNotFound,
	access.KindConflict:           http.StatusConflict,
}

// errBadRequest marks a body that could not be decoded
type errBadRequest struct {
	status int
	msg    string
}

func (e *errBadRequest) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to encode response")
	}
}

// writeError maps err onto an HTTP status and error code. Internal faults
// are logged and reported; their detail never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var bad *errBadRequest
	if errors.As(err, &bad) {
		code := codeBadRequest
		if bad.status == http.StatusRequestEntityTooLarge {
			code = codeRequestTooLarge
		}
		writeJSON(w, bad.status, errorBody{Error: bad.msg, Code: code})
		return
	}

	var domainErr *access.Error
	if errors.As(err, &domainErr) {
		if status, ok := kindStatus[domainErr.Kind]; ok {
			writeJSON(w, status, errorBody{
				Error:  domainErr.Message,
				Code:   string(domainErr.Kind),
				Errors: domainErr.Fields,
			})
			return
		}
	}

	logrus.WithFields(logrus.Fields{
		"operation": op,
		"method":    r.Method,
		"path":      r.URL.Path,
	}).WithError(err).Error("Request failed")
	middleware.CaptureError(r.Context(), err, map[string]string{"operation": op}, nil)

	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error", Code: codeInternal})
}

// decodeJSON reads a single JSON object from the request body into dst. An
// empty body decodes as an empty object so that missing fields surface as
// validation errors.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &errBadRequest{status: http.StatusRequestEntityTooLarge, msg: "Request body too large"}
		}
		return &errBadRequest{status: http.StatusBadRequest, msg: "Malformed JSON body"}
	}
	if dec.More() {
		return &errBadRequest{status: http.StatusBadRequest, msg: "Malformed JSON body"}
	}
	return nil
}
