package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/depositrelay/internal/domain/deposit"
)

// maxResolveAttempts bounds retries when a resolved actor retires before the
// operation reaches it.
const maxResolveAttempts = 8

// Registry maps deposit ids to their live Actor, creating actors on first
// reference. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	actors map[string]*Actor
	opts   Options
	closed bool
}

// NewRegistry creates an empty registry. opts apply to every actor it creates.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		actors: make(map[string]*Actor),
		opts:   opts.withDefaults(),
	}
}

// Actor returns the live actor for id, creating one if none exists. After
// Close it returns an already retired actor.
func (r *Registry) Actor(id string) *Actor {
	a, err := r.resolve(id)
	if err != nil {
		a = newActor(id, r.opts, nil)
		a.Stop()
	}
	return a
}

func (r *Registry) resolve(id string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if a, ok := r.actors[id]; ok && !retired(a) {
		return a, nil
	}
	a := newActor(id, r.opts, r.forget)
	r.actors[id] = a
	return a, nil
}

// Lookup returns the live actor for id without creating one.
func (r *Registry) Lookup(id string) (*Actor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actors[id]
	if !ok || retired(a) {
		return nil, false
	}
	return a, true
}

// Len returns the number of live actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Subscription is a sink attached to one deposit's actor.
type Subscription struct {
	actor *Actor
	sink  Sink
	once  sync.Once
}

// DepositID returns the deposit id the subscription is scoped to.
func (s *Subscription) DepositID() string { return s.actor.ID() }

// Cancel detaches the sink. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.actor.Detach(s.sink) })
}

// Subscribe attaches sink to the actor for id. If the actor retires before
// the attach lands, a fresh actor is used. It fails with ErrRegistryClosed
// once Close has been called.
func (r *Registry) Subscribe(ctx context.Context, id string, sink Sink) (*Subscription, error) {
	for range maxResolveAttempts {
		a, err := r.resolve(id)
		if err != nil {
			return nil, err
		}
		err = a.Attach(ctx, sink)
		if errors.Is(err, ErrActorClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Subscription{actor: a, sink: sink}, nil
	}
	return nil, ErrActorClosed
}

// Publish broadcasts ev to the actor for id, creating it if needed.
// Subscriber failures are never reported; only a context error or
// ErrRegistryClosed is.
func (r *Registry) Publish(ctx context.Context, id string, ev deposit.StatusEvent) error {
	for range maxResolveAttempts {
		a, err := r.resolve(id)
		if err != nil {
			return err
		}
		err = a.tryBroadcast(ctx, ev)
		if errors.Is(err, ErrActorClosed) {
			continue
		}
		return err
	}
	slog.Warn("publish dropped, actor kept retiring", "deposit_id", id)
	return nil
}

// Deliver broadcasts ev only if an actor for id is already live. Used for
// events arriving from other instances, which must not create actors.
func (r *Registry) Deliver(ctx context.Context, id string, ev deposit.StatusEvent) error {
	a, ok := r.Lookup(id)
	if !ok {
		return nil
	}
	err := a.tryBroadcast(ctx, ev)
	if errors.Is(err, ErrActorClosed) {
		return nil
	}
	return err
}

// StartEviction retires actors that have been idle for at least maxIdle,
// checking every interval. The returned function stops the janitor.
func (r *Registry) StartEviction(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := r.opts.Clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.evictIdle(ctx, maxIdle)
			}
		}
	}()
	return cancel
}

func (r *Registry) evictIdle(ctx context.Context, maxIdle time.Duration) int {
	evicted := 0
	for _, a := range r.snapshot() {
		if a.retireIfIdle(ctx, maxIdle) {
			<-a.Done()
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("idle actors evicted", "count", evicted, "remaining", r.Len())
	}
	return evicted
}

// Close retires every actor, closing all subscriber streams. Later Subscribe
// and Publish calls fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for _, a := range r.snapshot() {
		a.Stop()
	}
}

func (r *Registry) snapshot() []*Actor {
	r.mu.Lock()
	defer r.mu.Unlock()

	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	return actors
}

// forget removes a retired actor, unless a newer actor already replaced it.
func (r *Registry) forget(a *Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.actors[a.id]; ok && cur == a {
		delete(r.actors, a.id)
	}
}

func retired(a *Actor) bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
