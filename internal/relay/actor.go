package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/depositrelay/internal/domain/deposit"
)

const (
	defaultKeepAlive    = 20 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultFanoutLimit  = 64
	commandBuffer       = 64
)

// State is the lifecycle phase of an Actor.
type State int

const (
	// StateIdle means the actor has no subscribers and its keep-alive timer
	// is stopped.
	StateIdle State = iota
	// StateActive means at least one subscriber is attached and keep-alives
	// are running.
	StateActive
	// StateClosed means the actor has retired and ignores further operations.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Options tunes actor timing and fan-out. Zero values take defaults.
type Options struct {
	// KeepAlive is the interval between keep-alive frames.
	KeepAlive time.Duration
	// WriteTimeout bounds every individual subscriber write.
	WriteTimeout time.Duration
	// FanoutLimit caps concurrent subscriber writes per broadcast.
	FanoutLimit int
	// Clock drives keep-alive tickers and idle tracking. Defaults to the
	// real clock.
	Clock clockwork.Clock
	// Recorder receives lifecycle observations. Defaults to a no-op.
	Recorder Recorder
}

func (o Options) withDefaults() Options {
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.FanoutLimit <= 0 {
		o.FanoutLimit = defaultFanoutLimit
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

// Actor owns the subscribers of one deposit id. All fields below cmds are
// touched only by the run goroutine.
type Actor struct {
	id       string
	opts     Options
	cmds     chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	onRetire func(*Actor)

	subs      map[Sink]struct{}
	ticker    clockwork.Ticker
	state     State
	idleSince time.Time
}

// NewActor starts an actor for id. Most callers should go through a Registry,
// which guarantees a single live actor per id.
func NewActor(id string, opts Options) *Actor {
	return newActor(id, opts.withDefaults(), nil)
}

func newActor(id string, opts Options, onRetire func(*Actor)) *Actor {
	a := &Actor{
		id:        id,
		opts:      opts,
		cmds:      make(chan func(), commandBuffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		onRetire:  onRetire,
		subs:      make(map[Sink]struct{}),
		state:     StateIdle,
		idleSince: opts.Clock.Now(),
	}
	opts.Recorder.ActorStarted()
	go a.run()
	return a
}

// ID returns the deposit id served by the actor.
func (a *Actor) ID() string { return a.id }

// Attach adds sink to the subscriber set and starts the keep-alive timer if
// it is not running. It fails only with ErrActorClosed or a context error.
func (a *Actor) Attach(ctx context.Context, sink Sink) error {
	return a.do(ctx, func() {
		a.subs[sink] = struct{}{}
		a.state = StateActive
		a.startKeepAlive()
		a.opts.Recorder.SubscriberAttached()
		slog.Debug("subscriber attached", "deposit_id", a.id, "subscribers", len(a.subs))
	})
}

// Detach removes sink if present. It never blocks on a retired actor.
func (a *Actor) Detach(sink Sink) {
	select {
	case a.cmds <- func() { a.remove(sink, false) }:
	case <-a.done:
	}
}

// Broadcast delivers ev to every subscriber. Failed subscribers are dropped
// silently. A terminal event closes all subscribers and retires the actor
// before Broadcast returns.
func (a *Actor) Broadcast(ctx context.Context, ev deposit.StatusEvent) {
	_ = a.tryBroadcast(ctx, ev)
}

func (a *Actor) tryBroadcast(ctx context.Context, ev deposit.StatusEvent) error {
	return a.do(ctx, func() { a.broadcast(ev) })
}

// Len returns the current number of subscribers.
func (a *Actor) Len(ctx context.Context) (int, error) {
	var n int
	err := a.do(ctx, func() { n = len(a.subs) })
	return n, err
}

// State returns the current lifecycle state. A retired actor reports
// StateClosed.
func (a *Actor) State(ctx context.Context) State {
	s := StateClosed
	if err := a.do(ctx, func() { s = a.state }); err != nil {
		return StateClosed
	}
	return s
}

// Stop retires the actor, closing any remaining subscribers as a disconnect.
// It blocks until the actor goroutine has exited.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

// Done is closed once the actor has retired.
func (a *Actor) Done() <-chan struct{} { return a.done }

// retireIfIdle retires the actor when it has had no subscribers for at least
// maxIdle. It reports whether the actor was retired.
func (a *Actor) retireIfIdle(ctx context.Context, maxIdle time.Duration) bool {
	var retired bool
	err := a.do(ctx, func() {
		if a.state == StateIdle && a.opts.Clock.Since(a.idleSince) >= maxIdle {
			a.state = StateClosed
			retired = true
		}
	})
	return err == nil && retired
}

// do runs fn on the actor goroutine and waits for it to finish.
func (a *Actor) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case a.cmds <- func() { fn(); close(ran) }:
	case <-a.done:
		return ErrActorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-a.done:
		return ErrActorClosed
	}
}

func (a *Actor) run() {
	defer func() {
		a.stopKeepAlive()
		for s := range a.subs {
			_ = s.Close()
			delete(a.subs, s)
			a.opts.Recorder.SubscriberDetached(false)
		}
		a.state = StateClosed
		if a.onRetire != nil {
			a.onRetire(a)
		}
		a.opts.Recorder.ActorStopped()
		close(a.done)
		slog.Debug("actor retired", "deposit_id", a.id)
	}()

	for {
		select {
		case fn := <-a.cmds:
			fn()
			if a.state == StateClosed {
				return
			}
		case <-a.tick():
			a.keepAlive()
		case <-a.stop:
			return
		}
	}
}

func (a *Actor) broadcast(ev deposit.StatusEvent) {
	if a.state == StateClosed {
		return
	}
	payload := ev.Payload()
	a.fanout(func(ctx context.Context, s Sink) error {
		return s.Send(ctx, payload)
	})
	a.opts.Recorder.EventBroadcast(ev.Terminal(), len(a.subs))

	if !ev.Terminal() {
		return
	}
	for s := range a.subs {
		_ = s.Close()
		delete(a.subs, s)
		a.opts.Recorder.SubscriberDetached(false)
	}
	a.stopKeepAlive()
	a.state = StateClosed
	slog.Info("deposit channel closed", "deposit_id", a.id, "status", string(ev.Status))
}

func (a *Actor) keepAlive() {
	if len(a.subs) == 0 {
		a.stopKeepAlive()
		return
	}
	a.fanout(func(ctx context.Context, s Sink) error {
		return s.Ping(ctx)
	})
	a.opts.Recorder.KeepAliveSent(len(a.subs))
}

// fanout applies write to every subscriber concurrently and drops the ones
// that fail. It returns once all writes have resolved.
func (a *Actor) fanout(write func(ctx context.Context, s Sink) error) {
	if len(a.subs) == 0 {
		return
	}
	sinks := make([]Sink, 0, len(a.subs))
	for s := range a.subs {
		sinks = append(sinks, s)
	}
	errs := make([]error, len(sinks))

	var g errgroup.Group
	g.SetLimit(a.opts.FanoutLimit)
	for i, s := range sinks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), a.opts.WriteTimeout)
			defer cancel()
			errs[i] = write(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			slog.Debug("subscriber write failed", "deposit_id", a.id, "error", err)
			a.remove(sinks[i], true)
		}
	}
}

// remove drops s from the set, closing it when pruned after a failed write.
func (a *Actor) remove(s Sink, pruned bool) {
	if _, ok := a.subs[s]; !ok {
		return
	}
	delete(a.subs, s)
	if pruned {
		_ = s.Close()
	}
	a.opts.Recorder.SubscriberDetached(pruned)

	if len(a.subs) == 0 && a.state == StateActive {
		a.stopKeepAlive()
		a.state = StateIdle
		a.idleSince = a.opts.Clock.Now()
	}
}

func (a *Actor) startKeepAlive() {
	if a.ticker != nil {
		return
	}
	a.ticker = a.opts.Clock.NewTicker(a.opts.KeepAlive)
}

func (a *Actor) stopKeepAlive() {
	if a.ticker == nil {
		return
	}
	a.ticker.Stop()
	a.ticker = nil
}

// tick returns the keep-alive channel, or nil while the timer is stopped so
// the run loop never selects it.
func (a *Actor) tick() <-chan time.Time {
	if a.ticker == nil {
		return nil
	}
	return a.ticker.Chan()
}
