package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"campusroomz/internal/auth"
	"campusroomz/internal/metrics"
	"campusroomz/internal/model"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

type profileKey struct{}

func withProfile(ctx context.Context, p *model.Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

// profileFrom returns the caller's profile. It is always set behind authenticate.
func profileFrom(ctx context.Context) *model.Profile {
	p, _ := ctx.Value(profileKey{}).(*model.Profile)
	return p
}

// authenticate verifies the bearer token, makes sure the caller has a
// profile and stores both in the request context.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.FromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "", err.Error())
			return
		}
		id, err := s.deps.Verifier.Verify(token)
		if err != nil {
			s.logger.Debug().Err(err).Msg("token rejected")
			writeError(w, http.StatusUnauthorized, "unauthorized", "", auth.ErrInvalidToken.Error())
			return
		}

		profile, err := s.ensureProfile(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		noteUser(r.Context(), profile.ID)
		ctx := auth.WithIdentity(r.Context(), id)
		ctx = withProfile(ctx, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) ensureProfile(ctx context.Context, id *auth.Identity) (*model.Profile, error) {
	role := s.deps.Access.RoleFor(id.Email)
	profile, err := s.deps.Profiles.EnsureProfile(ctx, &model.Profile{
		ID:         id.ID,
		Email:      id.Email,
		Name:       id.Name,
		Department: id.Department,
		Role:       role,
	})
	if err != nil {
		return nil, err
	}
	// The admins list is authoritative: e-mails added after first sign-in
	// are promoted and removed ones are demoted on their next request.
	if profile.Role != role {
		if err := s.deps.Profiles.SetRole(ctx, profile.ID, role); err != nil {
			return nil, err
		}
		s.logger.Info().Str("user_id", profile.ID).Str("from", string(profile.Role)).Str("to", string(role)).Msg("role changed")
		profile.Role = role
	}
	return profile, nil
}

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(perSecond) + 1
	}
	return &userLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *userLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		p := profileFrom(r.Context())
		if p != nil && !s.limiter.allow(p.ID) {
			s.logger.Warn().Str("user_id", p.ID).Msg("rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "", "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs every request and records it in Prometheus under its
// route template.
func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// authenticate runs later in the chain; the profile is read back
		// through this holder.
		holder := &requestUser{}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestUserKey{}, holder)))

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tmpl, err := cr.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(route, strconv.Itoa(rec.status), elapsed.Seconds())

		ev := s.logger.Info()
		if rec.status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Str("user_id", holder.id).
			Msg("http request")
	})
}

type requestUserKey struct{}

type requestUser struct {
	id string
}

func noteUser(ctx context.Context, id string) {
	if h, ok := ctx.Value(requestUserKey{}).(*requestUser); ok {
		h.id = id
	}
}
