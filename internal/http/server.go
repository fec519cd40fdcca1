package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"

	_ "github.com/alphabot-ai/tagblog/docs" // swagger docs
	"github.com/alphabot-ai/tagblog/internal/auth"
	"github.com/alphabot-ai/tagblog/internal/blog"
	"github.com/alphabot-ai/tagblog/internal/config"
	"github.com/alphabot-ai/tagblog/internal/model"
	"github.com/alphabot-ai/tagblog/internal/rate"
	"github.com/alphabot-ai/tagblog/internal/store"
	"github.com/alphabot-ai/tagblog/internal/validation"
)

const (
	msgNotFound         = "Not found."
	msgInternal         = "Internal server error."
	msgMissingToken     = "Authentication credentials were not provided."
	msgInvalidToken     = "Invalid token."
	msgInvalidCreds     = "Invalid credentials"
	msgThrottled        = "Request was throttled."
	msgMethodNotAllowed = "Method not allowed."
)

type Server struct {
	store   store.Store
	blog    *blog.Service
	auth    *auth.Service
	limiter rate.Limiter
	cfg     config.Config
	logger  zerolog.Logger
	router  chi.Router
}

func NewServer(st store.Store, authSvc *auth.Service, limiter rate.Limiter, cfg config.Config, logger zerolog.Logger) *Server {
	s := &Server{
		store:   st,
		blog:    blog.NewService(st),
		auth:    authSvc,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, msgNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/openapi.json", s.serveOpenAPIJSON)
		r.Get("/stats", s.handleGetStats)

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.handleListPosts)
			r.Post("/", s.handleCreatePost)
			r.Get("/{id}", s.handleGetPost)
			r.Put("/{id}", s.handleUpdatePost)
			r.Patch("/{id}", s.handleUpdatePost)
			r.Delete("/{id}", s.handleDeletePost)
		})
		r.Route("/comments", func(r chi.Router) {
			r.Get("/", s.handleListComments)
			r.Post("/", s.handleCreateComment)
			r.Get("/{id}", s.handleGetComment)
			r.Put("/{id}", s.handleUpdateComment)
			r.Patch("/{id}", s.handleUpdateComment)
			r.Delete("/{id}", s.handleDeleteComment)
		})
		r.Get("/hashtags", s.handleListHashtags)
		r.Get("/hashtags/{id}", s.handleGetHashtag)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/users/{id}", s.handleGetUser)
	})
	return r
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	ev := hlog.FromRequest(r).Info()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Warn()
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			hlog.FromRequest(r).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			writeDetail(w, http.StatusInternalServerError, msgInternal)
		}()
		next.ServeHTTP(w, r)
	})
}

// handleHealth godoc
//
//	@Summary	Health check
//	@Tags		Meta
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	503	{object}	map[string]string
//	@Router		/healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("store ping failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// allowRateLimit counts one hit for key under action and writes a 429 when
// the per-minute limit is spent.
func (s *Server) allowRateLimit(w http.ResponseWriter, action, key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	if ok, retry := s.limiter.Allow(rate.Key(action, key), limit, time.Minute); !ok {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	key, err := tokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		s.fail(w, r, err)
		return model.User{}, false
	}
	user, err := s.auth.Authenticate(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return model.User{}, false
	}
	return user, true
}

// tokenFromHeader accepts "Token <key>" and "Bearer <key>". Any other scheme
// counts as no credentials at all.
func tokenFromHeader(header string) (string, error) {
	scheme, key, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Token") && !strings.EqualFold(scheme, "Bearer") {
		return "", auth.ErrMissingToken
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", auth.ErrInvalidToken
	}
	return key, nil
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// fail maps err onto a status and body. Only unexpected errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var jerr *jsonError
	switch verr, isValidation := validation.As(err); {
	case isValidation:
		writeJSON(w, http.StatusBadRequest, verr.Fields)
	case errors.As(err, &jerr):
		writeDetail(w, http.StatusBadRequest, jerr.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeDetail(w, http.StatusUnauthorized, msgInvalidCreds)
	case errors.Is(err, auth.ErrMissingToken):
		w.Header().Set("WWW-Authenticate", "Token")
		writeDetail(w, http.StatusUnauthorized, msgMissingToken)
	case errors.Is(err, auth.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", "Token")
		writeDetail(w, http.StatusUnauthorized, msgInvalidToken)
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, msgNotFound)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeDetail(w, http.StatusInternalServerError, msgInternal)
	}
}

type jsonError struct {
	err error
}

func (e *jsonError) Error() string {
	return "JSON parse error - " + e.err.Error()
}

func (e *jsonError) Unwrap() error { return e.err }

// readJSON decodes the request body into dest. Unknown fields are ignored so
// read-only fields echoed back by clients are dropped. An empty body decodes
// as an empty object.
func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &jsonError{err: err}
	}
	return nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q: %w", chi.URLParam(r, "id"), store.ErrNotFound)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	secs := int((retry + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"detail":      msgThrottled,
		"retry_after": secs,
	})
}
