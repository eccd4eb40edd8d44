package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"studio/internal/analytics"
	"studio/internal/logging"
	"studio/internal/ratelimit"
	"studio/internal/services"
	"studio/internal/users"
)

const requestIDHeader = "X-Request-ID"

type requestInfoKey struct{}

// requestInfo is filled in as the request moves through the chain. The
// router sets the route template once a route matches. release returns the
// daily API allowance slot held by the request.
type requestInfo struct {
	route   string
	release func()
}

func infoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.status = http.StatusOK
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}

func recorderFor(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := services.WithRequestID(r.Context(), id)
		ctx = context.WithValue(ctx, requestInfoKey{}, &requestInfo{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorderFor(w)
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "handler panic", "handler_panic",
				logging.String("panic", fmt.Sprint(p)),
				logging.String("path", r.URL.Path),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "inspect the stack trace for the failing handler"),
			)
			if !rec.wrote {
				s.writeError(rec, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(s.cfg.Server.CORSOrigins))
	for _, origin := range s.cfg.Server.CORSOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			_, listed := allowed[origin]
			if allowAll || listed {
				h := w.Header()
				// Credentials are only granted to explicitly listed origins.
				if allowAll {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
				h.Set("Access-Control-Expose-Headers", requestIDHeader+", Retry-After")
				h.Set("Access-Control-Max-Age", "3600")
			}
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		done := s.metrics.RequestStarted()
		defer done()

		rec := recorderFor(w)
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := ""
		if info := infoFromContext(r.Context()); info != nil {
			route = info.route
		}
		s.metrics.ObserveRequest(r.Method, route, rec.status, elapsed)

		logger := logging.WithContext(r.Context(), s.logger)
		attrs := []any{
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("duration", elapsed),
		}
		if route != "" {
			attrs = append(attrs, logging.String("route", route))
		}
		if rec.status >= http.StatusInternalServerError {
			logger.Warn("request failed", attrs...)
			return
		}
		logger.Debug("request handled", attrs...)
	})
}

// captureRoute runs inside the router so the matched template is known.
func captureRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info := infoFromContext(r.Context()); info != nil {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					info.route = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the caller. A valid bearer token sets the user; an
// invalid one is rejected. Without a token the caller is the demo user
// unless authentication is mandatory for API routes.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			if s.cfg.Auth.RequireAuth && isAPIPath(r.URL.Path) && !isPublicAPIPath(r.URL.Path) && r.Method != http.MethodOptions {
				s.writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(services.WithUserID(r.Context(), users.DemoUserID)))
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			s.writeError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}
		claims, err := s.issuer.Verify(strings.TrimSpace(token))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(services.WithUserID(r.Context(), claims.Subject)))
	})
}

// trackAPICalls records every /api/ request once the response is known.
func (s *Server) trackAPICalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAPIPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		// The allowance slot is released only after the api_call event is stored.
		defer func() {
			if info := infoFromContext(r.Context()); info != nil && info.release != nil {
				info.release()
			}
		}()
		start := time.Now()
		rec := recorderFor(w)
		next.ServeHTTP(rec, r)

		userID := callerID(r)
		// The request context may already be canceled by a disconnecting client.
		ctx := context.WithoutCancel(r.Context())
		err := s.analytics.TrackAPICall(ctx, analytics.APICall{
			UserID:     userID,
			Endpoint:   r.URL.Path,
			Method:     r.Method,
			StatusCode: rec.status,
			Duration:   time.Since(start),
		})
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "api call not tracked", "api_track_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "analytics undercount"),
			)
		}
		if err := s.users.RecordUsage(ctx, userID, users.UsageDelta{APICalls: 1}); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "api usage not recorded", "usage_update_failed",
				logging.Error(err),
			)
		}
	})
}

// limitAPICalls applies the hourly api_call budget and the plan's daily
// allowance to /api/ requests.
func (s *Server) limitAPICalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAPIPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !s.allow(w, r, ratelimit.ClassAPICall) {
			return
		}
		release, err := s.users.ReserveAPICall(r.Context(), callerID(r))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if info := infoFromContext(r.Context()); info != nil {
			info.release = release
		} else {
			defer release()
		}
		next.ServeHTTP(w, r)
	})
}

// allow consumes a token for the caller in class, writing a 429 when the
// bucket is empty.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, class ratelimit.Class) bool {
	ok, retry := s.limiter.Allow(rateKey(r), class)
	if ok {
		return true
	}
	s.metrics.RateLimited(string(class))
	logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "rate limit exceeded", "rate_limited",
		logging.String("class", string(class)),
		logging.String("path", r.URL.Path),
		logging.Duration("retry_after", retry),
	)
	w.Header().Set("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(retry)))
	s.writeError(w, http.StatusTooManyRequests, fmt.Sprintf("rate limit exceeded for %s", class))
	return false
}

// rateKey buckets authenticated users by ID and anonymous callers by address.
func rateKey(r *http.Request) string {
	if id := callerID(r); id != users.DemoUserID {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func callerID(r *http.Request) string {
	if id, ok := services.UserIDFromContext(r.Context()); ok {
		return id
	}
	return users.DemoUserID
}

// requireUser returns the authenticated caller, writing a 401 for the demo user.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := callerID(r)
	if id == users.DemoUserID {
		s.writeError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return id, true
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

func isPublicAPIPath(path string) bool {
	switch path {
	case "/api/users/register", "/api/users/login":
		return true
	default:
		return false
	}
}
