// Package authapitest provides an in-memory auth service for tests, in the
// spirit of net/http/httptest. It speaks the same endpoints as the real
// service and issues short-lived JWT access tokens.
package authapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/tabchat/pkg/cryptox"
	"github.com/aussiebroadwan/tabchat/pkg/idx"
	"github.com/aussiebroadwan/tabchat/pkg/jwtx"
)

var signingKey = []byte("authapitest-signing-key")

type user struct {
	id        string
	password  string
	fcmToken  string
	publicKey string
	mfaSecret string
}

// Server is a fake auth service. All exported fields may be changed between
// requests.
type Server struct {
	*httptest.Server

	// Now is the clock used for token timestamps.
	Now func() time.Time
	// AccessTTL is the lifetime of issued access tokens.
	AccessTTL time.Duration
	// RotateRefresh makes the refresh grant issue a new refresh token and
	// invalidate the old one.
	RotateRefresh bool

	mu      sync.Mutex
	users   map[string]*user
	refresh map[string]string // refresh token -> username
	access  map[string]string // access token -> username
	mfa     map[string]string // mfa token -> username
	hits    map[string]int
}

// NewServer starts a fake server that is closed when the test ends.
func NewServer(tb testing.TB) *Server {
	tb.Helper()

	s := &Server{
		Now:       time.Now,
		AccessTTL: 15 * time.Minute,
		users:     make(map[string]*user),
		refresh:   make(map[string]string),
		access:    make(map[string]string),
		mfa:       make(map[string]string),
		hits:      make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", s.handleToken)
	mux.HandleFunc("POST /v1/oauth2/revoke", s.handleRevoke)
	mux.HandleFunc("POST /v1/users", s.handleSignUp)
	mux.HandleFunc("PATCH /v1/users/me", s.handleUpdate)
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": "test"})
	})

	s.Server = httptest.NewServer(s.count(mux))
	tb.Cleanup(s.Close)
	return s
}

// AddUser registers an account directly.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &user{id: idx.New().String(), password: password}
}

// EnableMFA requires a TOTP code from secret after the password grant.
func (s *Server) EnableMFA(username, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.mfaSecret = secret
	}
}

// RevokeAllRefreshTokens invalidates every outstanding refresh token.
func (s *Server) RevokeAllRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// RefreshTokenValid reports whether token is still accepted.
func (s *Server) RefreshTokenValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refresh[token]
	return ok
}

// Profile returns the device fields last stored for username.
func (s *Server) Profile(username string) (publicKey, fcmToken string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return "", "", false
	}
	return u.publicKey, u.fcmToken, true
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid form body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "password":
		u, ok := s.users[r.PostForm.Get("username")]
		if !ok || u.password != r.PostForm.Get("password") {
			writeError(w, http.StatusUnauthorized, "invalid_grant", "invalid credentials")
			return
		}
		username := r.PostForm.Get("username")
		if u.mfaSecret != "" {
			mfaToken := idx.New().String()
			s.mfa[mfaToken] = username
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":       "mfa_required",
				"mfa_token":   mfaToken,
				"mfa_methods": []string{"totp"},
			})
			return
		}
		s.issue(w, username, "")

	case "refresh_token":
		old := r.PostForm.Get("refresh_token")
		username, ok := s.refresh[old]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid or expired")
			return
		}
		if s.RotateRefresh {
			delete(s.refresh, old)
			s.issue(w, username, "")
			return
		}
		s.issue(w, username, old)

	case "mfa_otp":
		username, ok := s.mfa[r.PostForm.Get("mfa_token")]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_grant", "unknown mfa token")
			return
		}
		u := s.users[username]
		if !totp.Validate(r.PostForm.Get("otp_code"), u.mfaSecret) {
			writeError(w, http.StatusUnauthorized, "invalid_grant", "invalid otp code")
			return
		}
		delete(s.mfa, r.PostForm.Get("mfa_token"))
		s.issue(w, username, "")

	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "grant type not supported")
	}
}

// issue writes a token response. keepRefresh, when set, is returned instead of
// a new refresh token. Callers hold s.mu.
func (s *Server) issue(w http.ResponseWriter, username, keepRefresh string) {
	now := s.Now()
	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.users[username].id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.AccessTTL)),
			ID:        idx.New().String(),
		},
		Username: username,
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	s.access[access] = username

	refresh := keepRefresh
	if refresh == "" {
		refresh, err = cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		s.refresh[refresh] = username
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int(s.AccessTTL.Seconds()),
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid form body")
		return
	}

	s.mu.Lock()
	delete(s.refresh, r.PostForm.Get("token"))
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		FCMToken  string `json:"fcm_token"`
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if req.Username == "" || len(req.Password) < 8 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    "validation_error",
			"message": "username is required and password must be at least 8 characters",
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[req.Username]; exists {
		writeError(w, http.StatusConflict, "username_taken", "username already exists")
		return
	}

	u := &user{
		id:        idx.New().String(),
		password:  req.Password,
		fcmToken:  req.FCMToken,
		publicKey: req.PublicKey,
	}
	s.users[req.Username] = u

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": u.id, "username": req.Username})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()

	username, known := s.access[token]
	if !ok || !known || s.accessExpired(token) {
		writeError(w, http.StatusUnauthorized, "invalid_token", "the access token is missing, invalid, expired or revoked")
		return
	}

	var req struct {
		PublicKey string `json:"public_key"`
		FCMToken  string `json:"fcm_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}

	u := s.users[username]
	u.publicKey = req.PublicKey
	u.fcmToken = req.FCMToken

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) accessExpired(token string) bool {
	claims, err := jwtx.Inspect(token)
	if err != nil {
		return true
	}
	return claims.ValidateExpiryWithLeeway(s.Now(), 0) != nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, description string) {
	writeJSON(w, code, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}
