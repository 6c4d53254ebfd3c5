package presenter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/logging"
	"github.com/omni/tally-relay/presenter/http/middleware"
	"github.com/omni/tally-relay/presenter/http/render"
	"github.com/omni/tally-relay/relay"
)

const shutdownTimeout = 5 * time.Second

type RelayView interface {
	Status() *relay.Status
	DeadLetters(ctx context.Context, limit uint64) ([]*entity.DeadLetter, error)
}

type Presenter struct {
	logger logging.Logger
	relay  RelayView
	root   chi.Router
}

func NewPresenter(logger logging.Logger, relayView RelayView, live http.Handler) *Presenter {
	p := &Presenter{
		logger: logger,
		relay:  relayView,
		root:   chi.NewMux(),
	}
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(p.logger))
	p.root.Use(middleware.Recoverer)
	p.root.Handle("/metrics", promhttp.Handler())
	p.root.Get("/live", live.ServeHTTP)
	p.root.Group(func(r chi.Router) {
		r.Use(chimiddleware.Throttle(5))
		r.Get("/status", p.GetStatus)
		r.With(middleware.GetLimitMiddleware).Get("/dead_letters", p.GetDeadLetters)
	})
	return p
}

func (p *Presenter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.root.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is cancelled.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	srv := &http.Server{
		Addr:              addr,
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("presenter server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("can't shutdown presenter server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	p.logger.Info("presenter service stopped")
	return nil
}

func (p *Presenter) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, p.relay.Status())
}

func (p *Presenter) GetDeadLetters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dls, err := p.relay.DeadLetters(ctx, middleware.GetLimit(ctx))
	if err != nil {
		render.Error(w, r, http.StatusInternalServerError, fmt.Errorf("can't find dead letters: %w", err))
		return
	}
	res := make([]*DeadLetterInfo, len(dls))
	for i, dl := range dls {
		res[i] = deadLetterToInfo(dl)
	}
	render.JSON(w, r, http.StatusOK, res)
}
