// Package probe periodically checks that the auth engine answers, and
// feeds the result into readiness reporting. The gateway stays up when
// the engine is down (public routes must keep working), so readiness is
// the place where operators see engine trouble.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"sessiongate/pkg/config"
	"sessiongate/pkg/engine"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/metrics"
)

// defaultCron probes once a minute.
const defaultCron = "* * * * *"

// Prober asks the engine for its provider list on a cron schedule and
// remembers whether the last attempt succeeded.
type Prober struct {
	eng     engine.Engine
	cfg     *config.AuthConfig
	healthy atomic.Bool
}

// New builds a prober against eng. The auth config supplies the base
// path the probe request is synthesized under.
func New(eng engine.Engine, cfg *config.AuthConfig) *Prober {
	return &Prober{eng: eng, cfg: cfg}
}

// Healthy reports the outcome of the most recent probe. It starts false
// and flips on the first successful probe.
func (p *Prober) Healthy() bool { return p.healthy.Load() }

// Start launches the scheduler when pc enables it and returns a cancel
// func. The first probe fires immediately so readiness does not wait a
// full cron period.
func (p *Prober) Start(ctx context.Context, pc config.ProbeConfig) (context.CancelFunc, error) {
	if !pc.Enabled {
		logger.Info("engine_probe_disabled")
		return func() {}, nil
	}

	cronExpr := pc.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("engine_probe_invalid_cron", "cron", pc.Cron)
		return nil, fmt.Errorf("invalid probe cron expression: %s", pc.Cron)
	}

	logger.Info("engine_probe_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go p.runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick with gronx and sleeps until it.
func (p *Prober) runScheduler(ctx context.Context, cronExpr string) {
	p.probe(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("engine_probe_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("engine_probe_nexttick_failed", "cron", cronExpr, "error", err)
			// fallback sleep then retry
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("engine_probe_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			p.probe(ctx)
			// small sleep to avoid a tight loop
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				logger.Info("engine_probe_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			p.probe(ctx)
		case <-ctx.Done():
			logger.Info("engine_probe_stopping")
			return
		}
	}
}

// probe performs one reachability check and records the result.
func (p *Prober) probe(ctx context.Context) {
	ok := p.RunOnce(ctx) == nil
	p.healthy.Store(ok)
	metrics.SetEngineReady(ok)
}

// RunOnce performs a single probe call and returns its error, if any.
// Exposed so admin triggers and tests can force a probe.
func (p *Prober) RunOnce(ctx context.Context) error {
	base := config.NormalizeBasePath(p.cfg.BasePath)
	u := "http://localhost" + base + "/providers"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.eng.Handle(req, p.cfg)
	if err != nil {
		metrics.ObserveEngineCall("error", time.Since(start))
		logger.Warn("engine_probe_failed", "url", u, "error", err)
		return err
	}
	metrics.ObserveEngineCall(metrics.OutcomeFor(resp.StatusCode), time.Since(start))
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("engine_probe_bad_status", "url", u, "status", resp.StatusCode)
		return fmt.Errorf("probe: engine answered %d", resp.StatusCode)
	}
	logger.Debug("engine_probe_ok", "url", u)
	return nil
}
