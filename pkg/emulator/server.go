// Package emulator serves a local imitation of the Björn Lundén accounting API
// for development and tests.
package emulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const contextKeyTenant contextKey = "tenant"

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokenTTL = ttl }
}

// WithoutExpiresIn makes /token omit expires_in, as some deployments do.
func WithoutExpiresIn() Option {
	return func(s *Server) { s.omitExpiresIn = true }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is the emulated API.
type Server struct {
	store         *Store
	fixtures      *Fixtures
	tokenTTL      time.Duration
	omitExpiresIn bool
	logger        *slog.Logger

	mu       sync.Mutex
	hits     map[string]int
	failures map[string]int
}

// New creates a Server backed by store and serving fixtures.
func New(store *Store, fixtures *Fixtures, opts ...Option) *Server {
	s := &Server{
		store:    store,
		fixtures: fixtures,
		tokenTTL: time.Hour,
		logger:   slog.Default(),
		hits:     make(map[string]int),
		failures: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler for the emulated API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.countAndFail)

	r.Post("/token", s.handleToken)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/common/client", s.handleCompanies)

		r.Group(func(r chi.Router) {
			r.Use(s.userKeyMiddleware)

			r.Get("/details", s.handleDetails)
			r.Get("/account", s.handleAccounts)
			r.Get("/journal/entry/batch", s.handleJournalBatch)
			r.Get("/document", s.handleDocuments)
			r.Get("/document/{id}/meta", s.handleDocumentMeta)
			r.Get("/document/asPdf/{id}", s.handleDocumentPDF)
		})
	})

	return r
}

// Hits returns how many requests reached path (method excluded, query ignored).
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests served.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// HitsWithPrefix sums hits over every path starting with prefix.
func (s *Server) HitsWithPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for path, n := range s.hits {
		if strings.HasPrefix(path, prefix) {
			total += n
		}
	}
	return total
}

// FailPath makes every request to path answer with status.
// A zero status clears the failure.
func (s *Server) FailPath(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = status
}

func (s *Server) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		status := s.failures[r.URL.Path]
		s.mu.Unlock()

		s.logger.Debug("emulator request", "method", r.Method, "path", r.URL.Path)

		if status != 0 {
			writeJSONError(w, status, "injected_failure", "Failure injected for "+r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format")
			return
		}

		valid, err := s.store.ValidateToken(parts[1])
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to validate token")
			return
		}
		if !valid {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) userKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("User-Key")
		if key == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Missing User-Key header")
			return
		}

		tenant, ok := s.fixtures.Tenants[key]
		if !ok {
			writeJSONError(w, http.StatusForbidden, "forbidden", "Unknown User-Key")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyTenant, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFrom(r *http.Request) Tenant {
	tenant, _ := r.Context().Value(contextKeyTenant).(Tenant)
	return tenant
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse form")
		return
	}

	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSONError(w, http.StatusBadRequest, "unsupported_grant_type", "Only client_credentials is supported")
		return
	}

	clientID, clientSecret := r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	if clientID != s.fixtures.ClientID || clientSecret != s.fixtures.ClientSecret {
		writeJSONError(w, http.StatusUnauthorized, "invalid_client", "Client authentication failed")
		return
	}

	token, err := s.store.IssueToken(s.tokenTTL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to generate access token")
		return
	}

	response := map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
	}
	if !s.omitExpiresIn {
		response["expires_in"] = int(s.tokenTTL / time.Second)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fixtures.Companies)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tenantFrom(r).Details)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := tenantFrom(r).Accounts
	if accounts == nil {
		accounts = []Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleJournalBatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := q.Get("startdate"), q.Get("enddate")
	if start == "" || end == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "startdate and enddate are required")
		return
	}

	rows := 1000
	if v := q.Get("rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid rows")
			return
		}
		rows = n
	}

	// Dates are YYYY-MM-DD, so string comparison orders them.
	entries := []JournalEntry{}
	for _, e := range tenantFrom(r).JournalEntries {
		if e.EntryDate < start || e.EntryDate > end {
			continue
		}
		if len(entries) == rows {
			break
		}
		entries = append(entries, e)
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	documents := tenantFrom(r).Documents
	if documents == nil {
		documents = []Document{}
	}
	writeJSON(w, http.StatusOK, documents)
}

func (s *Server) handleDocumentMeta(w http.ResponseWriter, r *http.Request) {
	doc, ok := tenantFrom(r).document(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not_found", "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDocumentPDF(w http.ResponseWriter, r *http.Request) {
	doc, ok := tenantFrom(r).document(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not_found", "Document not found")
		return
	}

	pdf := doc.PDF()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}
