// Package dev runs the development loop: an initial build, a static file and
// live-reload server, rebuilds on source changes and termination when the
// project config changes.
package dev

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/snowball-c3/c3-scripts/internal/bundle"
	"github.com/snowball-c3/c3-scripts/internal/logging"
	"github.com/snowball-c3/c3-scripts/internal/verify"
	"github.com/snowball-c3/c3-scripts/internal/watch"
)

// State is the lifecycle state of a Loop.
type State int

// Loop states, in lifecycle order.
const (
	StateStarting State = iota
	StateServing
	StateRebuilding
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateServing:
		return "serving"
	case StateRebuilding:
		return "rebuilding"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Builder runs one build at a time.
type Builder interface {
	Run(ctx context.Context, mode bundle.Mode, outDir string) (*bundle.Stats, error)
}

// Broadcaster delivers the reload signal to connected clients.
type Broadcaster interface {
	Broadcast() int
	CloseAll()
}

// Server serves the build output and the live-reload endpoint.
type Server interface {
	// Start begins serving in the background once the listener is bound.
	Start() error
	Shutdown(ctx context.Context) error
}

// DefaultShutdownTimeout bounds the HTTP server shutdown during termination.
const DefaultShutdownTimeout = 5 * time.Second

// Options configures a Loop. Builder, Sources, Config, Server and Clients are
// required.
type Options struct {
	Builder Builder
	Sources watch.Subscription
	Config  watch.Subscription
	Server  Server
	Clients Broadcaster

	OutDir string
	// Mode defaults to development.
	Mode bundle.Mode
	// URL is printed once the server is up.
	URL string

	ShutdownTimeout time.Duration

	// OnState is called on every state transition, from the loop goroutine.
	OnState func(State)

	Logger *slog.Logger
	// Out receives user-facing status lines.
	Out io.Writer
}

// TerminatedError is returned by Run when the loop stopped because a
// watched config file changed or a watcher failed.
type TerminatedError struct {
	Path string
	Op   watch.Op
	// Diff is the unified diff of the changed file, when known.
	Diff string
	// Err is set when a watcher failed.
	Err error
}

func (e *TerminatedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file watcher failed: %v. Build killed! Please rerun the build.", e.Err)
	}

	return fmt.Sprintf("The file at '%s' was %s, rendering the build obsolete. Build killed! Please rerun the build.", e.Path, e.Op)
}

func (e *TerminatedError) Unwrap() error { return e.Err }

// ConfigChanged reports whether the loop stopped because of a config file
// event rather than a watcher failure.
func (e *TerminatedError) ConfigChanged() bool { return e.Err == nil }

type buildOutcome struct {
	stats *bundle.Stats
	err   error
}

// Loop is one development session. A Loop runs once.
type Loop struct {
	opts   Options
	logger *slog.Logger
	out    io.Writer

	mu          sync.Mutex
	state       State
	sourceState watch.State
	configState watch.State
	broadcasts  int

	// Loop goroutine only.
	serverUp bool
	building bool
	pending  int
	done     chan buildOutcome
}

// New validates opts and creates a Loop.
func New(opts Options) (*Loop, error) {
	switch {
	case opts.Builder == nil:
		return nil, errors.New("dev: builder is required")
	case opts.Sources == nil || opts.Config == nil:
		return nil, errors.New("dev: source and config subscriptions are required")
	case opts.Server == nil:
		return nil, errors.New("dev: server is required")
	case opts.Clients == nil:
		return nil, errors.New("dev: client registry is required")
	}

	if opts.Mode == "" {
		opts.Mode = bundle.ModeDevelopment
	}

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	return &Loop{
		opts:   opts,
		logger: logging.OrDefault(opts.Logger),
		out:    out,
		done:   make(chan buildOutcome, 1),
	}, nil
}

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// WatcherStates returns the states of the source and config subscriptions.
func (l *Loop) WatcherStates() (source, config watch.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sourceState, l.configState
}

// Broadcasts returns how many reload signals have been sent.
func (l *Loop) Broadcasts() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.broadcasts
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()

	l.logger.Debug("dev loop state", slog.String("state", s.String()))

	if l.opts.OnState != nil {
		l.opts.OnState(s)
	}
}

// Run performs the first build, starts the server and processes watcher
// events until ctx is cancelled (nil is returned) or the loop terminates
// (a *TerminatedError is returned). A failed first build is returned as is
// and the server is never started. Config events terminate the loop in every
// state, including while the first build runs.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.sourceState = watch.StateWatching
	l.configState = watch.StateWatching
	l.mu.Unlock()

	l.setState(StateStarting)
	l.launchBuild(ctx)

	serving := false

	for {
		select {
		case <-ctx.Done():
			return l.terminate(ctx, nil, false)

		case ev := <-l.opts.Sources.Events():
			if cause, ok := l.configFired(); ok {
				return l.terminate(ctx, cause, true)
			}

			l.logger.Debug("source changed", slog.String("path", ev.Path), slog.String("op", ev.Op.String()))

			l.pending++
			if serving && !l.building {
				l.startBuild(ctx)
			}

		case out := <-l.done:
			l.building = false

			// A config event that is already queued wins over the
			// finished build: its result is discarded unannounced.
			if cause, ok := l.configFired(); ok {
				return l.terminate(ctx, cause, true)
			}

			if !serving {
				if err := l.startServing(out); err != nil {
					return err
				}

				serving = true
			} else {
				l.finishBuild(out)
			}

			if l.pending > 0 {
				l.startBuild(ctx)
			} else {
				l.mu.Lock()
				l.sourceState = watch.StateWatching
				l.mu.Unlock()

				l.setState(StateServing)
			}

		case ev := <-l.opts.Config.Events():
			return l.terminate(ctx, &TerminatedError{Path: ev.Path, Op: ev.Op, Diff: ev.Diff}, true)

		case err := <-l.opts.Config.Errors():
			return l.terminate(ctx, &TerminatedError{Err: err}, true)

		case err := <-l.opts.Sources.Errors():
			if cause, ok := l.configFired(); ok {
				return l.terminate(ctx, cause, true)
			}

			return l.terminate(ctx, &TerminatedError{Err: err}, false)
		}
	}
}

// configFired polls the config subscription without blocking.
func (l *Loop) configFired() (*TerminatedError, bool) {
	select {
	case ev := <-l.opts.Config.Events():
		return &TerminatedError{Path: ev.Path, Op: ev.Op, Diff: ev.Diff}, true
	case err := <-l.opts.Config.Errors():
		return &TerminatedError{Err: err}, true
	default:
		return nil, false
	}
}

// startServing handles the outcome of the first build: on success the
// server is started, otherwise the session is torn down.
func (l *Loop) startServing(out buildOutcome) error {
	if out.err != nil {
		l.abort()
		return fmt.Errorf("initial build: %w", out.err)
	}

	l.printBuilt("(initial)", out.stats)

	if err := l.opts.Server.Start(); err != nil {
		l.abort()
		return fmt.Errorf("starting dev server: %w", err)
	}

	l.serverUp = true

	if l.opts.URL != "" {
		fmt.Fprintf(l.out, "serving %s at %s\n", l.opts.OutDir, l.opts.URL)
	}

	return nil
}

// abort tears down a session whose server never came up.
func (l *Loop) abort() {
	l.mu.Lock()
	l.sourceState = watch.StateStopped
	l.configState = watch.StateStopped
	l.mu.Unlock()

	l.closeWatchers()
	l.opts.Clients.CloseAll()
	l.pending = 0
	l.setState(StateTerminated)
}

// startBuild consumes one pending trigger.
func (l *Loop) startBuild(ctx context.Context) {
	l.pending--

	l.mu.Lock()
	l.sourceState = watch.StateTriggered
	l.mu.Unlock()

	l.launchBuild(ctx)
	l.setState(StateRebuilding)
}

// launchBuild runs one build in a helper goroutine. The build does not
// observe cancellation of ctx; termination waits for it instead.
func (l *Loop) launchBuild(ctx context.Context) {
	l.building = true
	buildCtx := context.WithoutCancel(ctx)

	go func() {
		stats, err := l.opts.Builder.Run(buildCtx, l.opts.Mode, l.opts.OutDir)
		l.done <- buildOutcome{stats: stats, err: err}
	}()
}

func (l *Loop) finishBuild(out buildOutcome) {
	if out.err != nil {
		l.logger.Warn("rebuild failed", slog.String("error", out.err.Error()))
		fmt.Fprintf(l.out, "[%s] rebuild -> ERROR:\n%s\n", time.Now().Format("15:04:05"), verify.Format(out.err))

		return
	}

	l.printBuilt("rebuild", out.stats)

	n := l.opts.Clients.Broadcast()

	l.mu.Lock()
	l.broadcasts++
	l.mu.Unlock()

	l.logger.Debug("reload broadcast", slog.Int("clients", n))
}

func (l *Loop) printBuilt(trigger string, stats *bundle.Stats) {
	if stats == nil {
		fmt.Fprintf(l.out, "[%s] %s -> OK\n", time.Now().Format("15:04:05"), trigger)
		return
	}

	fmt.Fprintf(l.out, "[%s] %s -> OK (%d components, %s)\n",
		time.Now().Format("15:04:05"), trigger, stats.Entries, stats.Duration.Round(time.Millisecond))

	for _, w := range stats.Warnings {
		fmt.Fprintf(l.out, "  warning: %s\n", w)
	}
}

// terminate tears the session down exactly once: watchers, server, clients,
// then any in-flight build. cause is nil for a cancelled context; fromConfig
// marks the config subscription as triggered.
func (l *Loop) terminate(ctx context.Context, cause *TerminatedError, fromConfig bool) error {
	l.setState(StateTerminating)

	if cause != nil {
		l.logger.Error("terminating dev loop", slog.String("reason", cause.Error()))
		fmt.Fprintln(l.out, cause.Error())

		if strings.TrimSpace(cause.Diff) != "" {
			fmt.Fprint(l.out, cause.Diff)
		}
	} else {
		fmt.Fprintln(l.out, "\nshutting down dev server")
	}

	l.mu.Lock()
	if fromConfig {
		l.configState = watch.StateTriggered
	} else {
		l.configState = watch.StateStopped
	}
	l.sourceState = watch.StateStopped
	l.mu.Unlock()

	l.closeWatchers()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.ShutdownTimeout)
	defer cancel()

	if l.serverUp {
		if err := l.opts.Server.Shutdown(shutdownCtx); err != nil {
			l.logger.Warn("shutting down dev server", slog.String("error", err.Error()))
		}
	}

	l.opts.Clients.CloseAll()

	if l.building {
		fmt.Fprintln(l.out, "waiting for the running build to finish")

		out := <-l.done
		l.building = false

		if out.err != nil {
			l.logger.Debug("in-flight build failed during termination", slog.String("error", out.err.Error()))
		}
	}

	l.pending = 0
	l.setState(StateTerminated)

	if cause == nil {
		return nil
	}

	return cause
}

func (l *Loop) closeWatchers() {
	if err := l.opts.Sources.Close(); err != nil {
		l.logger.Debug("closing source watcher", slog.String("error", err.Error()))
	}

	if err := l.opts.Config.Close(); err != nil {
		l.logger.Debug("closing config watcher", slog.String("error", err.Error()))
	}
}
