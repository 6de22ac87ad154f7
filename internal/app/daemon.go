package app

import (
	"context"
	"errors"
	"time"

	"logsweep/internal/config"
	"logsweep/internal/runtime/supervisor"
	"logsweep/internal/scheduler"
	logx "logsweep/pkg/logx"
	"logsweep/pkg/systemd"
)

const stopTimeout = 30 * time.Second

// RunDaemon sweeps on the configured schedule until ctx is done. It serves
// metrics when configured, hot-reloads the config file and talks to systemd
// when started as a notify service.
func (a *App) RunDaemon(ctx context.Context) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	cfg := a.cfgm.Get()

	sched := scheduler.New(a.log.With(logx.String("comp", "scheduler")), func(ctx context.Context) {
		a.sweeper.Sweep(ctx)
	})
	if err := sched.Start(sup.Context(), scheduleSpec(cfg), cfg.Location()); err != nil {
		sup.Cancel()
		return &config.Error{Key: "SCHEDULE", Reason: err.Error(), Err: err}
	}

	if addr := cfg.Metrics.Addr; addr != "" {
		sup.Go("metrics", func(ctx context.Context) error {
			a.log.Info("serving metrics", logx.String("addr", addr))
			return a.metrics.Serve(ctx, addr, cfg.Metrics.Pprof)
		})
	}

	sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	sub := a.cfgm.Subscribe(4)
	sup.Go("config.apply", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		applied := cfg
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.apply(applied, next, sched)
				applied = next
			}
		}
	})

	if systemd.WatchdogInterval() > 0 {
		sup.Go("systemd.watchdog", systemd.Watchdog)
	}
	sdNotify(a.log, "ready", systemd.Ready)

	<-sup.Context().Done()
	sdNotify(a.log, "stopping", systemd.Stopping)
	a.log.Info("daemon stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	sched.Stop(stopCtx)
	err := sup.Stop(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("daemon stop timed out", logx.Duration("timeout", stopTimeout))
	}
	return err
}

// apply hot-swaps what can change at runtime: logging, sweep settings and
// the schedule. Other sections are built once and need a restart.
func (a *App) apply(old, cfg *config.Config, sched *scheduler.Service) {
	a.logs.Apply(logConfig(cfg))
	a.sweeper.Apply(sweepSettings(cfg))
	if err := sched.Apply(scheduleSpec(cfg), cfg.Location()); err != nil {
		a.log.Warn("schedule not changed", logx.Err(err))
	}
	if sections := config.RequiresRestart(old, cfg); len(sections) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("sections", sections))
	}
}

func sdNotify(log logx.Logger, state string, notify func() (bool, error)) {
	sent, err := notify()
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}
