// Package mediator implements the single in-process command/notification
// bus every Snapdog component talks through: adapters never call the
// state manager directly, and the state manager never calls an adapter
// back — both sides only know the Mediator.
//
// Two disciplines, per spec:
//
//   - Request/response: each concrete command type has exactly one
//     registered handler. Send dispatches by the command's compile-time
//     name, not reflect.TypeOf, so the hot path is a single map lookup.
//   - Publish/subscribe: a notification type may have any number of
//     subscribers. Publish fans out synchronously but isolates each
//     subscriber behind a recover()+timeout so a panicking or slow
//     subscriber cannot block the producer or its siblings — the same
//     guarantee events.Bus gives its channel subscribers, reimplemented
//     for plain function callbacks instead of buffered channels.
package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/snapdog/snapdog/internal/result"
)

// Source identifies which control surface originated a command. Handlers
// use it to suppress echo loops: a volume change that arrived from KNX
// must not be republished back to KNX.
type Source string

const (
	SourceAPI      Source = "Api"
	SourceMQTT     Source = "Mqtt"
	SourceKNX      Source = "Knx"
	SourceSubsonic Source = "Subsonic"
	SourceInternal Source = "Internal"
)

// Command is implemented by every request/response message. CommandName
// must return a constant string unique to the concrete type — it is the
// dispatch key, fixed at compile time, so Send never reflects on the
// command's runtime type.
type Command interface {
	CommandName() string
}

// Notification is implemented by every publish/subscribe message.
type Notification interface {
	NotificationName() string
}

// EntityKind distinguishes the two lock-striping domains.
type EntityKind int

const (
	EntityZone EntityKind = iota
	EntityClient
)

func (k EntityKind) String() string {
	if k == EntityZone {
		return "zone"
	}
	return "client"
}

// entityKey identifies one lock-striping slot.
type entityKey struct {
	kind  EntityKind
	index int
}

// handlerFunc is the type-erased form every registered handler is
// stored as. The public RegisterHandler wraps a typed
// func(context.Context, C) result.Result[R] into this shape exactly
// once, at registration time — never per call.
type handlerFunc func(ctx context.Context, cmd Command) (any, *result.Error)

// subscriberFunc is the type-erased form every subscriber callback is
// stored as.
type subscriberFunc func(n Notification)

// DefaultSubscriberTimeout bounds how long Publish waits for a single
// subscriber before giving up on it and moving to the next.
const DefaultSubscriberTimeout = 5 * time.Second

// Mediator is the command/notification bus. Zero value is not usable;
// construct with New.
type Mediator struct {
	logger *slog.Logger

	handlers map[string]handlerFunc

	subMu sync.RWMutex
	subs  map[string][]subscriberFunc

	subscriberTimeout time.Duration

	lockMu sync.Mutex
	locks  map[entityKey]*sync.Mutex
}

// Option configures a Mediator at construction time.
type Option func(*Mediator)

// WithSubscriberTimeout overrides DefaultSubscriberTimeout.
func WithSubscriberTimeout(d time.Duration) Option {
	return func(m *Mediator) { m.subscriberTimeout = d }
}

// WithLogger sets the logger used for handler-missing and subscriber
// failure diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mediator) { m.logger = l }
}

// New builds an empty Mediator ready for handler registration.
func New(opts ...Option) *Mediator {
	m := &Mediator{
		logger:            slog.Default(),
		handlers:          make(map[string]handlerFunc),
		subs:              make(map[string][]subscriberFunc),
		subscriberTimeout: DefaultSubscriberTimeout,
		locks:             make(map[entityKey]*sync.Mutex),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RegisterHandler installs the single handler for command type C.
// Registering a second handler for the same CommandName panics — two
// handlers for one command type is a startup wiring bug, not a
// runtime condition to recover from.
func RegisterHandler[C Command, R any](m *Mediator, name string, fn func(ctx context.Context, cmd C) result.Result[R]) {
	if _, exists := m.handlers[name]; exists {
		panic(fmt.Sprintf("mediator: handler already registered for %q", name))
	}
	m.handlers[name] = func(ctx context.Context, cmd Command) (any, *result.Error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, result.New(result.Internal, "mediator: command %q type mismatch at dispatch", name)
		}
		r := fn(ctx, typed)
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Value, nil
	}
}

// Send dispatches cmd to its registered handler and returns a typed
// Result. Unknown command names fail with HandlerMissing — per spec,
// this is a fatal configuration bug for that operation, not a reason
// to crash the process.
func Send[R any](ctx context.Context, m *Mediator, cmd Command) result.Result[R] {
	name := cmd.CommandName()
	h, ok := m.handlers[name]
	if !ok {
		return result.Err[R](result.HandlerMissing, "no handler registered for command %q", name)
	}

	value, err := h(ctx, cmd)
	if err != nil {
		return result.ErrFrom[R](err)
	}

	typed, ok := value.(R)
	if !ok {
		return result.Err[R](result.Internal, "mediator: handler for %q returned wrong type", name)
	}
	return result.Ok(typed)
}

// Subscribe registers fn to be invoked for every Notification whose
// NotificationName matches name. Multiple subscribers may register for
// the same name; Publish invokes all of them concurrently, each in its
// own goroutine, so no order between them is guaranteed.
func Subscribe[N Notification](m *Mediator, name string, fn func(n N)) {
	wrapped := func(n Notification) {
		typed, ok := n.(N)
		if !ok {
			return
		}
		fn(typed)
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subs[name] = append(m.subs[name], wrapped)
}

// Publish fans n out to every subscriber registered for its
// NotificationName. Each subscriber runs in its own goroutine, wrapped
// in recover() and bounded by the mediator's subscriber timeout, so a
// panicking or hung subscriber cannot block the producer or any other
// subscriber. Publish itself blocks until every subscriber has either
// finished or timed out (subscribers run concurrently with each other,
// not with the caller's next statement) — callers that cannot tolerate
// this should fire Publish from their own goroutine.
func (m *Mediator) Publish(n Notification) {
	name := n.NotificationName()

	m.subMu.RLock()
	subs := append([]subscriberFunc(nil), m.subs[name]...)
	m.subMu.RUnlock()

	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(subs))
	for _, sub := range subs {
		sub := sub
		go func() {
			defer wg.Done()
			m.runSubscriber(name, sub, n)
		}()
	}
	wg.Wait()
}

func (m *Mediator) runSubscriber(name string, sub subscriberFunc, n Notification) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("mediator: subscriber panicked",
					"notification", name,
					"panic", r,
				)
			}
		}()
		sub(n)
	}()

	select {
	case <-done:
	case <-time.After(m.subscriberTimeout):
		m.logger.Warn("mediator: subscriber exceeded timeout, abandoning",
			"notification", name,
			"timeout", m.subscriberTimeout,
		)
	}
}

// EntityLock returns the striped mutex for the given entity, creating
// it on first use. Handlers acquire this before mutating zone/client
// state so that commands to the same entity serialize while commands
// to different entities run concurrently, per spec.md §4.1.
func (m *Mediator) EntityLock(kind EntityKind, index int) *sync.Mutex {
	key := entityKey{kind: kind, index: index}

	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// EntityRef names one zone or client for ordered multi-entity locking.
type EntityRef struct {
	Kind  EntityKind
	Index int
}

// LockEntitiesAscending acquires the locks for all given entities in a
// stable ascending order (zones before clients, then by index),
// regardless of the order refs was built in. Returns an unlock function
// that releases them in the reverse order. This is what the grouping
// reconciler uses to touch many zones and clients in one pass without
// risking deadlock against a concurrent Mutate on a single entity.
func (m *Mediator) LockEntitiesAscending(refs []EntityRef) (unlock func()) {
	sorted := append([]EntityRef(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].Index < sorted[j].Index
	})

	locks := make([]*sync.Mutex, len(sorted))
	for i, ref := range sorted {
		locks[i] = m.EntityLock(ref.Kind, ref.Index)
		locks[i].Lock()
	}

	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}
