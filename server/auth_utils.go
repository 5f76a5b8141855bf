package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-token-issuer/auth"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	maxBodyBytes    = 1 << 20

	// nginx's code for a client that closed the request before the response
	statusClientClosedRequest = 499
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

var statusByKind = map[auth.ErrorKind]int{
	auth.InvalidCredentials:   http.StatusUnauthorized,
	auth.Expired:              http.StatusUnauthorized,
	auth.Revoked:              http.StatusUnauthorized,
	auth.Unknown:              http.StatusUnauthorized,
	auth.CredentialRequired:   http.StatusUnauthorized,
	auth.UnsupportedTokenKind: http.StatusBadRequest,
	auth.InvalidRequest:       http.StatusBadRequest,
	auth.InsufficientScope:    http.StatusForbidden,
	auth.IdentityExists:       http.StatusConflict,
	auth.Timeout:              http.StatusGatewayTimeout,
	auth.InternalError:        http.StatusInternalServerError,
	auth.Canceled:             statusClientClosedRequest,
}

// tokenKinds are failures of a presented token, as opposed to a presented secret.
var tokenKinds = map[auth.ErrorKind]bool{
	auth.Expired:            true,
	auth.Revoked:            true,
	auth.Unknown:            true,
	auth.CredentialRequired: true,
}

func statusFor(kind auth.ErrorKind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err as an error response. Backend details are logged, never sent.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *auth.Error
	if !errors.As(err, &e) {
		e = &auth.Error{Kind: auth.InternalError, Err: err}
	}

	message := string(e.Kind)
	if e.Err != nil {
		message = e.Err.Error()
	}
	if e.Kind == auth.InternalError {
		log.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		message = "internal error"
	}

	status := statusFor(e.Kind)
	if tokenKinds[e.Kind] {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	writeJSON(w, status, errorResponse{
		Error:     string(e.Kind),
		Message:   message,
		Retryable: e.Retryable(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

// decodeJSON reads a JSON body into v. Malformed bodies are an InvalidRequest.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &auth.Error{Kind: auth.InvalidRequest, Err: errors.Wrap(err, "invalid JSON body")}
	}
	return nil
}
