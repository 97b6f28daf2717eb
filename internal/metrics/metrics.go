// Package metrics exports solver progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/born-ml/svrg/internal/optim"
)

const namespace = "svrg"

// Observer is an optim.Observer that mirrors every trace record into
// Prometheus collectors labeled by solver name.
type Observer struct {
	epochs     *prometheus.CounterVec
	objective  *prometheus.GaugeVec
	gradSqNorm *prometheus.GaugeVec
	elapsed    *prometheus.GaugeVec
	step       *prometheus.GaugeVec
	extra      *prometheus.GaugeVec
}

var _ optim.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		epochs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_total",
			Help:      "Completed epochs.",
		}, []string{"solver"}),
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "objective",
			Help:      "Average training objective after the last epoch.",
		}, []string{"solver"}),
		gradSqNorm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gradient_squared_norm",
			Help:      "Squared norm of the average gradient after the last epoch.",
		}, []string{"solver"}),
		elapsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elapsed_seconds",
			Help:      "Cumulative training time.",
		}, []string{"solver"}),
		step: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_size",
			Help:      "Step size at the end of the last epoch.",
		}, []string{"solver"}),
		extra: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eval_metric",
			Help:      "Oracle evaluation metrics such as held-out error.",
		}, []string{"solver", "metric"}),
	}

	for _, c := range []prometheus.Collector{o.epochs, o.objective, o.gradSqNorm, o.elapsed, o.step, o.extra} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnEpoch implements optim.Observer.
func (o *Observer) OnEpoch(solver string, rec optim.Record) {
	o.epochs.WithLabelValues(solver).Inc()
	o.objective.WithLabelValues(solver).Set(rec.Objective)
	o.gradSqNorm.WithLabelValues(solver).Set(rec.GradSqNorm)
	o.elapsed.WithLabelValues(solver).Set(float64(rec.ElapsedMs) / 1000)
	o.step.WithLabelValues(solver).Set(rec.StepSize)
	for name, v := range rec.Metrics {
		o.extra.WithLabelValues(solver, name).Set(v)
	}
}

// Server serves a registry on /metrics until its context is canceled.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

// Listen binds addr and prepares a /metrics handler for g.
func Listen(addr string, g prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()
	s.logger.Info("metrics endpoint listening", zap.String("addr", s.Addr()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
