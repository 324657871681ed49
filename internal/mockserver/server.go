// Package mockserver is an in-memory stand-in for the chat API that
// chatload drives. It serves the same routes with the same status codes so
// profiles can be exercised locally and in tests.
package mockserver

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wesleyorama2/chatload/internal/logging"
)

// ErrInvalidToken is returned by ValidateToken for any unusable token.
var ErrInvalidToken = errors.New("invalid token")

// Options configures the mock server.
type Options struct {
	// Secret signs issued tokens. Defaults to "chatload-mock".
	Secret []byte

	// TokenTTL is the lifetime of issued tokens. Defaults to 24h.
	TokenTTL time.Duration

	Logger *zap.Logger
}

type account struct {
	id           int64
	email        string
	passwordHash [sha256.Size]byte
}

// Server serves the mock chat API.
type Server struct {
	router   *mux.Router
	secret   []byte
	ttl      time.Duration
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	accounts map[string]*account
	nextID   int64

	logMu    sync.Mutex
	requests []string
}

// New creates a mock server.
func New(opts Options) *Server {
	s := &Server{
		secret:   opts.Secret,
		ttl:      opts.TokenTTL,
		logger:   logging.OrNop(opts.Logger),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		accounts: make(map[string]*account),
	}
	if len(s.secret) == 0 {
		s.secret = []byte("chatload-mock")
	}
	if s.ttl == 0 {
		s.ttl = 24 * time.Hour
	}

	r := mux.NewRouter()
	r.Use(s.recordRequests)
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/messages", s.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logMu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.logMu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// Requests returns every routed request as "METHOD /path", in arrival order.
func (s *Server) Requests() []string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many requests matched "METHOD /path".
func (s *Server) Count(request string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == request {
			n++
		}
	}
	return n
}

// Accounts returns the number of registered accounts.
func (s *Server) Accounts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "missing", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Email]; exists {
		s.mu.Unlock()
		http.Error(w, "exists", http.StatusConflict)
		return
	}
	s.nextID++
	acct := &account{id: s.nextID, email: req.Email, passwordHash: sha256.Sum256([]byte(req.Password))}
	s.accounts[req.Email] = acct
	s.mu.Unlock()

	s.logger.Debug("registered", zap.String("email", req.Email), zap.Int64("id", acct.id))
	writeJSON(w, http.StatusCreated, userView{ID: acct.id, Email: acct.email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	acct, exists := s.accounts[req.Email]
	s.mu.Unlock()

	if !exists || acct.passwordHash != sha256.Sum256([]byte(req.Password)) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := s.IssueToken(acct.id, acct.email)
	if err != nil {
		http.Error(w, "token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  userView{ID: acct.id, Email: acct.email},
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ValidateToken(r.Header.Get("Authorization")); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, []interface{}{})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		return
	}
	defer conn.Close()

	for {
		var msg struct {
			Type  string `json:"type"`
			Token string `json:"token"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "auth" {
			continue
		}

		claims, err := s.ValidateToken(msg.Token)
		if err != nil {
			_ = conn.WriteJSON(map[string]string{"type": "auth_fail"})
			continue
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"type": "auth_ok",
			"user": userView{ID: claims.UserID, Email: claims.Email},
		})
	}
}

// Claims is the payload of issued tokens.
type Claims struct {
	UserID int64  `json:"sub"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for the account.
func (s *Server) IssueToken(id int64, email string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   id,
		"email": email,
		"exp":   time.Now().Add(s.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken checks a raw or "Bearer "-prefixed token.
func (s *Server) ValidateToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parsed := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, parsed, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}
	if sub, ok := parsed["sub"].(float64); ok {
		claims.UserID = int64(sub)
	}
	claims.Email, _ = parsed["email"].(string)
	if exp, err := parsed.GetExpirationTime(); err == nil {
		claims.ExpiresAt = exp
	}
	return claims, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves handler on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	logger = logging.OrNop(logger)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock chat API listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
