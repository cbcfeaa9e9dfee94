package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/jekabolt/waitlist-manager/internal/cache"
	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/drip"
)

// Config is the configuration for the http server
type Config struct {
	Port           string   `mapstructure:"port"`
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the http server
type Server struct {
	hs      *http.Server
	c       *Config
	signup  dependency.Signup
	rep     dependency.Repository
	payment dependency.Payment
	drip    *drip.Worker
	db      Pinger
	count   *cache.CountCache
	done    chan struct{}
}

// New creates a new server
func New(c *Config, signup dependency.Signup, rep dependency.Repository, payment dependency.Payment, dripWorker *drip.Worker, db Pinger) *Server {
	return &Server{
		c:       c,
		signup:  signup,
		rep:     rep,
		payment: payment,
		drip:    dripWorker,
		db:      db,
		count:   cache.NewCountCache(5 * time.Second),
		done:    make(chan struct{}),
	}
}

// Done returns a channel that is closed when the http server exits
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.c.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "Stripe-Signature"},
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/waitlist", func(r chi.Router) {
			// Signup endpoints take unauthenticated traffic from the public
			// landing page, so they get the tighter rate limit.
			r.Group(func(r chi.Router) {
				r.Use(httprate.Limit(
					7,
					15*time.Second,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
					}),
				))
				r.Post("/checkout", s.handleCheckout)
				r.Post("/confirm", s.handleConfirm)
				r.Post("/join", s.handleJoin)
				r.Post("/unsubscribe", s.handleUnsubscribe)
			})
			// Link target embedded in campaign emails, so it has to be a GET.
			r.Get("/unsubscribe/{emailB64}", s.handleUnsubscribeLink)
			r.Get("/count", s.handleCount)
			r.Get("/entry", s.handleEntry)
			r.Put("/preferences", s.handlePreferences)
		})

		r.Post("/webhook/stripe", s.handleStripeWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuth)
			r.Post("/drip/run", s.handleDripRun)
		})
	})

	return r
}

// adminAuth gates admin endpoints behind a static api key carried in the
// Authorization header.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.c.AdminAPIKey == "" || r.Header.Get("Authorization") != "Bearer "+s.c.AdminAPIKey {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the server
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	hsDone := make(chan struct{})

	go func() {
		<-hsDone
		close(s.done)
	}()

	listenerAddr := fmt.Sprintf("%s:%s", s.c.Address, s.c.Port)
	s.hs = &http.Server{
		Addr:    listenerAddr,
		Handler: s.router(),
	}

	go func() {
		slog.Default().InfoContext(ctx, fmt.Sprintf("waitlist-manager new listener on: http://%v", listenerAddr))
		err := s.hs.ListenAndServe()
		if err == http.ErrServerClosed {
			slog.Default().InfoContext(ctx, "http server returned")
		} else {
			slog.Default().ErrorContext(ctx, "http server exited with an error",
				slog.String("err", err.Error()),
			)
		}
		cancel()
		close(hsDone)
	}()

	return nil
}

// Stop shuts the server down, draining in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.hs == nil {
		return nil
	}
	return s.hs.Shutdown(ctx)
}
