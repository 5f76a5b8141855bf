package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-token-issuer/token"
)

type accountRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

type changeSecretRequest struct {
	Secret    string `json:"secret"`
	NewSecret string `json:"new_secret"`
}

type secretRequest struct {
	Secret string `json:"secret"`
}

type signInRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
	Kind     string `json:"kind"`
}

type tokenValueRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"` // seconds
}

type validateResponse struct {
	Identity  string    `json:"identity"`
	Kind      string    `json:"kind"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type labelResponse struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

type meResponse struct {
	Identity   string          `json:"identity"`
	Kind       string          `json:"kind"`
	LiveTokens int             `json:"live_tokens"`
	Session    sessionResponse `json:"session"`
}

type sessionResponse struct {
	State         string `json:"state"`
	LastOutcome   string `json:"last_outcome"`
	TrackedTokens int    `json:"tracked_tokens"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) newTokenResponse(t *token.Token) tokenResponse {
	expiresIn := int64(t.Remaining(s.nowFunc()) / time.Second)
	return tokenResponse{
		Token:     t.Value,
		TokenType: "bearer",
		Kind:      string(t.Kind),
		ExpiresAt: t.ExpiresAt.UTC(),
		ExpiresIn: expiresIn,
	}
}

func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: s.auth.SessionCount()})
	}
}

// Preflight answers CORS preflight requests; the headers are set by CorsMiddleware.
func (s *Server) Preflight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.auth.Register(r.Context(), req.Identity, req.Secret); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"identity": req.Identity})
	}
}

func (s *Server) ChangeSecret() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changeSecretRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.auth.ChangeSecret(r.Context(), r.PathValue("identity"), req.Secret, req.NewSecret); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) DeleteAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req secretRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.auth.DeleteAccount(r.Context(), r.PathValue("identity"), req.Secret); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) SignIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		t, err := s.auth.SignIn(r.Context(), req.Identity, req.Secret, token.Kind(req.Kind))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.newTokenResponse(t))
	}
}

func (s *Server) Refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenValueRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		t, err := s.auth.Refresh(r.Context(), req.Token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.newTokenResponse(t))
	}
}

func (s *Server) Validate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenValueRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		t, err := s.auth.Validate(r.Context(), req.Token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, validateResponse{
			Identity:  t.Identity,
			Kind:      string(t.Kind),
			IssuedAt:  t.IssuedAt.UTC(),
			ExpiresAt: t.ExpiresAt.UTC(),
		})
	}
}

// Revoke always answers 204 for well-formed requests, whether or not the token existed.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenValueRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.auth.Revoke(r.Context(), req.Token); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) TokenLabel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := r.PathValue("kind")
		label, err := s.auth.TokenLabel(kind)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, labelResponse{Kind: kind, Label: label})
	}
}

func (s *Server) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := tokenFromContext(r.Context())
		if !ok {
			http.Error(w, "missing token", http.StatusInternalServerError)
			return
		}
		live, err := s.auth.LiveTokens(r.Context(), t.Identity)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		session := s.auth.Session(t.Identity)
		writeJSON(w, http.StatusOK, meResponse{
			Identity:   t.Identity,
			Kind:       string(t.Kind),
			LiveTokens: len(live),
			Session: sessionResponse{
				State:         session.State.String(),
				LastOutcome:   session.LastOutcome.String(),
				TrackedTokens: len(session.Tracked),
			},
		})
	}
}

func (s *Server) SignOut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := tokenFromContext(r.Context())
		if !ok {
			http.Error(w, "missing token", http.StatusInternalServerError)
			return
		}
		if _, err := s.auth.SignOut(r.Context(), t.Identity); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
