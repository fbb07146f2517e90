// Package agent drives the monitoring cycle: capture on every interface,
// rediscover devices, sleep, repeat until the context is cancelled.
package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rsclarke/netwatch/internal/logging"
	"go.uber.org/zap"
)

// State is the lifecycle state of an Agent.
type State int32

const (
	Starting State = iota
	Running
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Capturer runs one bounded capture on an interface.
type Capturer interface {
	Run(ctx context.Context, iface string) (int, error)
}

// Discoverer sweeps every interface for devices.
type Discoverer interface {
	DiscoverAll(ctx context.Context, ifaces []string) int
}

// Server is the query server managed alongside the cycle.
type Server interface {
	Start() error
	Addr() string
	Shutdown(ctx context.Context)
}

const DefaultShutdownTimeout = 10 * time.Second

type Agent struct {
	Interfaces      []string
	Capturer        Capturer
	Discoverer      Discoverer
	Server          Server
	Interval        time.Duration
	ShutdownTimeout time.Duration
	Logger          *zap.Logger

	state atomic.Int32
}

func (a *Agent) State() State {
	return State(a.state.Load())
}

func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
	a.Logger.Info("agent state changed", logging.State(s.String()))
}

// Run starts the server, performs the initial device sweep and then cycles
// until ctx is cancelled. Cancellation is a graceful stop and returns nil.
// Only a server start failure is returned as an error.
func (a *Agent) Run(ctx context.Context) error {
	a.setState(Starting)

	if err := a.Server.Start(); err != nil {
		a.setState(Stopped)
		return fmt.Errorf("start query server: %w", err)
	}
	a.Logger.Info("query server listening", logging.Addr(a.Server.Addr()))

	n := a.Discoverer.DiscoverAll(ctx, a.Interfaces)
	a.Logger.Info("initial discovery complete", logging.Count(n))

	if ctx.Err() == nil {
		a.setState(Running)
		a.loop(ctx)
	}

	a.shutdown()
	return nil
}

func (a *Agent) loop(ctx context.Context) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		a.cycle(ctx)
		if ctx.Err() != nil {
			return
		}

		timer.Reset(a.Interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (a *Agent) cycle(ctx context.Context) {
	start := time.Now()
	for _, iface := range a.Interfaces {
		if ctx.Err() != nil {
			return
		}
		if _, err := a.Capturer.Run(ctx, iface); err != nil && ctx.Err() == nil {
			a.Logger.Error("capture failed", logging.Interface(iface), zap.Error(err))
		}
	}
	if ctx.Err() != nil {
		return
	}

	n := a.Discoverer.DiscoverAll(ctx, a.Interfaces)
	a.Logger.Debug("cycle complete", logging.Count(n), logging.Elapsed(time.Since(start)))
}

func (a *Agent) shutdown() {
	a.setState(ShuttingDown)

	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.Server.Shutdown(ctx)

	a.setState(Stopped)
}
