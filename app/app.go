package app

import (
	"context"

	"log/slog"

	"github.com/jekabolt/waitlist-manager/config"
	httpapi "github.com/jekabolt/waitlist-manager/internal/api/http"
	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/drip"
	"github.com/jekabolt/waitlist-manager/internal/mail"
	"github.com/jekabolt/waitlist-manager/internal/payment/stripe"
	"github.com/jekabolt/waitlist-manager/internal/signup"
	"github.com/jekabolt/waitlist-manager/internal/store"
)

// App is the main application
type App struct {
	hs     *httpapi.Server
	db     *store.MYSQLStore
	mailer dependency.Mailer
	drip   *drip.Worker
	c      *config.Config
	done   chan struct{}
}

// New returns a new instance of App
func New(c *config.Config) *App {
	return &App{
		c:    c,
		done: make(chan struct{}),
	}
}

// Start starts the app
func (a *App) Start(ctx context.Context) error {
	var err error
	slog.Default().InfoContext(ctx, "starting waitlist manager")

	a.db, err = store.New(ctx, a.c.DB)
	if err != nil {
		slog.Default().ErrorContext(ctx, "couldn't connect to mysql",
			slog.String("err", err.Error()),
		)
		return err
	}

	a.mailer, err = mail.New(&a.c.Mailer, a.db.Mail())
	if err != nil {
		slog.Default().ErrorContext(ctx, "failed to create mailer",
			slog.String("err", err.Error()),
		)
		return err
	}
	if err = a.mailer.Start(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "cannot start mailer worker",
			slog.String("err", err.Error()),
		)
		return err
	}

	stripeP, err := stripe.New(&a.c.StripePayment)
	if err != nil {
		slog.Default().ErrorContext(ctx, "failed to create stripe processor",
			slog.String("err", err.Error()),
		)
		return err
	}

	signupS := signup.New(a.db, a.mailer, stripeP)

	a.drip = drip.New(&a.c.Drip, a.db, a.mailer)
	if err = a.drip.Start(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "cannot start drip worker",
			slog.String("err", err.Error()),
		)
		return err
	}

	// start API server
	a.hs = httpapi.New(&a.c.HTTP, signupS, a.db, stripeP, a.drip, a.db)
	if err = a.hs.Start(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "cannot start http server",
			slog.String("err", err.Error()),
		)
		return err
	}

	go func() {
		<-a.hs.Done()
		close(a.done)
	}()

	return nil
}

// Stop stops the application and waits for all services to exit
func (a *App) Stop(ctx context.Context) {
	if a.hs != nil {
		if err := a.hs.Stop(ctx); err != nil {
			slog.Default().ErrorContext(ctx, "http server shutdown failed",
				slog.String("err", err.Error()),
			)
		}
	}
	if a.drip != nil {
		_ = a.drip.Stop()
	}
	if a.mailer != nil {
		_ = a.mailer.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Done returns a channel that is closed after the application has exited
func (a *App) Done() chan struct{} {
	return a.done
}
