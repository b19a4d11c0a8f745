// Package api serves tier lookups, on-demand recalculation, and admin
// operations over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sells-group/tier-cli/internal/events"
	"github.com/sells-group/tier-cli/internal/model"
	"github.com/sells-group/tier-cli/internal/override"
	"github.com/sells-group/tier-cli/internal/tier"
)

const maxUploadBytes = 10 << 20

// Reader is the store capability the read endpoints need.
type Reader interface {
	GetSummary(ctx context.Context, crn string) (*model.TierSummary, error)
	GetCalculation(ctx context.Context, crn string, id uuid.UUID) (*model.TierCalculation, error)
	ListCalculations(ctx context.Context, crn string, limit int) ([]model.TierCalculation, error)
	Ping(ctx context.Context) error
}

// Recalculator runs one recalculation synchronously.
type Recalculator interface {
	Recalculate(ctx context.Context, crn string, src model.RecalculationSource) (*tier.Outcome, error)
}

// Enqueuer publishes recalculation triggers.
type Enqueuer interface {
	PublishMany(ctx context.Context, triggers []events.Trigger) (int, error)
}

// Importer writes override files.
type Importer interface {
	Import(ctx context.Context, parsed *override.Parsed, batchID string) (*override.Result, error)
}

// Deps are the server's collaborators. Enqueuer and Importer may be nil,
// in which case their endpoints answer 503.
type Deps struct {
	Store        Reader
	Recalculator Recalculator
	Enqueuer     Enqueuer
	Importer     Importer
	Now          func() time.Time
}

// Options configure routing.
type Options struct {
	Token       string
	CORSOrigins []string
}

// Server holds the handlers.
type Server struct {
	deps Deps
}

// NewRouter builds the HTTP handler. Every route except /health requires
// the bearer token when one is configured.
func NewRouter(deps Deps, opts Options) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.health)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(opts.Token))

		r.Route("/crn/{crn}/tier", func(r chi.Router) {
			r.Get("/", s.getTier)
			r.Get("/history", s.getHistory)
			r.Post("/recalculate", s.recalculate)
			r.Get("/{calculationId}", s.getCalculation)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recalculations", s.enqueue)
			r.Post("/overrides", s.uploadOverrides)
		})
	})
	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
