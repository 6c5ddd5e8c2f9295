package event

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/go-log/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dalnet/ircore/internal/metrics"
)

const tracerName = "github.com/dalnet/ircore/internal/event"

type entry struct {
	reg    Registration
	holder HandlerSet
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	mu sync.RWMutex
	// handlers is replaced, never mutated, so readers can iterate a
	// snapshot without holding the lock.
	handlers map[reflect.Type][]entry
	sets     map[HandlerSet]struct{}

	interceptor PacketInterceptor
	pool        *Pool
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithInterceptor installs the component that gets first refusal on
// packet-carrying events.
func WithInterceptor(i PacketInterceptor) DispatcherOption {
	return func(d *Dispatcher) {
		d.interceptor = i
	}
}

// WithPool sets the pool used by Call. Without one, Call dispatches
// synchronously.
func WithPool(p *Pool) DispatcherOption {
	return func(d *Dispatcher) {
		d.pool = p
	}
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[reflect.Type][]entry),
		sets:     make(map[HandlerSet]struct{}),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds every registration of set. Application sets may not use
// PriorityInternal. Either all registrations are added or none.
func (d *Dispatcher) Register(set HandlerSet) error {
	return d.register(set, false)
}

// RegisterInternal is Register for the library's stock handlers.
func (d *Dispatcher) RegisterInternal(set HandlerSet) error {
	return d.register(set, true)
}

func (d *Dispatcher) register(set HandlerSet, internal bool) error {
	if set == nil || !reflect.TypeOf(set).Comparable() {
		return fmt.Errorf("%w: handler set must be comparable", ErrInvalidHandler)
	}
	regs := set.Handlers()
	if len(regs) == 0 {
		return ErrNoHandlersFound
	}
	for _, r := range regs {
		if !r.validate(internal) {
			return fmt.Errorf("%w: %q (priority %s)", ErrInvalidHandler, r.Name, r.Priority)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sets[set]; ok {
		return fmt.Errorf("%w: set already registered", ErrInvalidHandler)
	}

	next := make(map[reflect.Type][]entry, len(d.handlers)+len(regs))
	for typ, entries := range d.handlers {
		next[typ] = entries
	}
	touched := make(map[reflect.Type]bool)
	for _, r := range regs {
		if !touched[r.eventType] {
			next[r.eventType] = append([]entry(nil), next[r.eventType]...)
			touched[r.eventType] = true
		}
		next[r.eventType] = append(next[r.eventType], entry{reg: r, holder: set})
	}
	for typ := range touched {
		entries := next[typ]
		// stable: registration order survives within a tier
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].reg.Priority < entries[j].reg.Priority
		})
	}

	d.handlers = next
	d.sets[set] = struct{}{}
	return nil
}

// Unregister removes every registration of set.
func (d *Dispatcher) Unregister(set HandlerSet, ignoreIfAbsent bool) error {
	if set == nil || !reflect.TypeOf(set).Comparable() {
		return fmt.Errorf("%w: handler set must be comparable", ErrInvalidHandler)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sets[set]; !ok {
		if ignoreIfAbsent {
			return nil
		}
		return ErrNotRegistered
	}

	next := make(map[reflect.Type][]entry, len(d.handlers))
	for typ, entries := range d.handlers {
		kept := make([]entry, 0, len(entries))
		for _, e := range entries {
			if e.holder != set {
				kept = append(kept, e)
			}
		}
		if len(kept) > 0 {
			next[typ] = kept
		}
	}

	d.handlers = next
	delete(d.sets, set)
	return nil
}

// Dispatch runs the handlers for ev on the calling goroutine and returns the
// joined handler failures. Failures never stop later handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if ev == nil {
		return nil
	}
	typ := reflect.TypeOf(ev)
	name := eventName(typ)

	ctx, span := d.tracer.Start(ctx, "event."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("ircore.event", name)),
	)
	defer span.End()

	d.mu.RLock()
	entries := d.handlers[typ]
	d.mu.RUnlock()

	carrier, _ := ev.(PacketCarrier)

	var errs []error
	i := 0
	for _, p := range Priorities {
		if carrier != nil && d.interceptor != nil {
			if d.interceptor.Dispatch(p, carrier.Scope(), carrier.Packet()) {
				ev.Consume()
				span.AddEvent("callback matched", trace.WithAttributes(attribute.String("ircore.priority", p.String())))
			}
		}
		for ; i < len(entries) && entries[i].reg.Priority == p; i++ {
			e := entries[i]
			if e.reg.IgnoreConsumed && ev.Consumed() {
				continue
			}
			if err := d.invoke(ctx, e.reg, ev); err != nil {
				herr := &HandlerError{Handler: e.reg.Name, Event: name, Err: err}
				log.Logf("[event] %v", herr)
				if errors.Is(err, ErrHandlerPanic) {
					d.metrics.HandlerPanic(name)
				} else {
					d.metrics.HandlerError(name)
				}
				errs = append(errs, herr)
			}
		}
	}

	d.metrics.EventDispatched(name)
	span.SetAttributes(attribute.Bool("ircore.consumed", ev.Consumed()))
	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, r Registration, ev Event) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: string(debug.Stack())}
		}
	}()
	return r.invoke(ctx, ev)
}

// Call queues ev for dispatch. Events sharing a key are dispatched one at a
// time in the order they were queued.
func (d *Dispatcher) Call(ctx context.Context, key string, ev Event) error {
	if d.pool == nil {
		d.Dispatch(ctx, ev)
		return nil
	}
	return d.pool.Submit(key, func() {
		d.Dispatch(ctx, ev)
	})
}

func eventName(typ reflect.Type) string {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return typ.Name()
}
