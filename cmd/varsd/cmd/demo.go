package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/go-drift/reactive/pkg/animation"
	"github.com/go-drift/reactive/pkg/config"
	"github.com/go-drift/reactive/pkg/engine"
	"github.com/go-drift/reactive/pkg/vars"
)

const (
	demoInterval  = time.Second
	demoAnimation = 600 * time.Millisecond
)

// originSlot names the code path that queued a dispatched callback.
var originSlot = vars.NewContextSlot("unknown")

// demoCounter returns the counter driven by the demo. With a database path
// the counter is persisted in bolt and survives restarts.
func demoCounter(dbPath string, logger *slog.Logger) (vars.Var[int], func(), error) {
	if dbPath == "" {
		return vars.New(0), func() {}, nil
	}
	src, err := config.OpenBolt(dbPath, "")
	if err != nil {
		return nil, nil, err
	}
	store, err := config.New(src, config.WithLogger(logger))
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	counter, err := config.Bind(store, "demo_counter", 0)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Info("demo counter restored", "db", dbPath, "value", counter.Get())
	return counter, func() { store.Close() }, nil
}

// runDemoLoop increments counter once per second and animates a level
// towards it with the configured easing curve.
func runDemoLoop(ctx context.Context, counter vars.Var[int], easing vars.Var[string], logger *slog.Logger) error {
	level := vars.New(float64(counter.Get()))
	label := vars.MapLocal(level, func(f float64) string { return fmt.Sprintf("%.2f", f) })

	labelHook := label.Hook(func(s string) bool {
		logger.Debug("demo level", "value", s)
		return true
	})
	defer labelHook.Unhook()

	counterHook := counter.Hook(func(n int) bool {
		curve, ok := animation.CurveByName(easing.Get())
		if !ok {
			logger.Warn("unknown easing, using linear", "easing", easing.Get())
			curve = animation.Linear
		}
		h, err := vars.AnimateTo(level, float64(n), demoAnimation, curve)
		if err != nil {
			logger.Warn("demo animation failed", "error", err)
			return true
		}
		h.OnStop(func(r vars.StopReason) {
			logger.Debug("demo animation stopped", "target", n, "reason", r)
		})
		return true
	})
	defer counterHook.Unhook()

	ticker := time.NewTicker(demoInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			runtime.KeepAlive(label)
			return nil
		case <-ticker.C:
			vars.WithContext(originSlot, "demo", func() {
				engine.Dispatch(func() {
					logger.Debug("demo increment", "origin", originSlot.Current())
					_ = counter.Modify(func(n int) int { return n + 1 })
				})
			})
		}
	}
}
