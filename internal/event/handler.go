package event

import (
	"context"
	"reflect"
)

// Registration binds one function to one concrete event type.
type Registration struct {
	// Name identifies the handler in logs and errors.
	Name string

	Priority Priority

	// IgnoreConsumed skips the handler once the event is consumed.
	IgnoreConsumed bool

	eventType reflect.Type
	invoke    func(ctx context.Context, ev Event) error
}

// EventType returns the type the registration listens to.
func (r Registration) EventType() reflect.Type {
	return r.eventType
}

// Option tunes a Registration.
type Option func(*Registration)

// WithPriority sets the tier. The default is PriorityLow.
func WithPriority(p Priority) Option {
	return func(r *Registration) {
		r.Priority = p
	}
}

// Always makes the handler run even after the event was consumed.
func Always() Option {
	return func(r *Registration) {
		r.IgnoreConsumed = false
	}
}

// On builds a registration for events of type E, which must be a concrete
// type (usually a pointer to a struct embedding Base).
func On[E Event](name string, fn func(ctx context.Context, ev E) error, opts ...Option) Registration {
	r := Registration{
		Name:           name,
		Priority:       PriorityLow,
		IgnoreConsumed: true,
		eventType:      reflect.TypeOf((*E)(nil)).Elem(),
	}
	if fn != nil {
		r.invoke = func(ctx context.Context, ev Event) error {
			return fn(ctx, ev.(E))
		}
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (r Registration) validate(internal bool) bool {
	if r.invoke == nil || r.eventType == nil || r.eventType.Kind() == reflect.Interface {
		return false
	}
	if !r.Priority.Valid() {
		return false
	}
	return internal || r.Priority != PriorityInternal
}

// HandlerSet groups registrations so they can be added and removed
// together. Implementations must be comparable, typically a pointer.
type HandlerSet interface {
	Handlers() []Registration
}

// Set is a ready-made HandlerSet.
type Set struct {
	regs []Registration
}

// NewSet returns a set holding regs.
func NewSet(regs ...Registration) *Set {
	return &Set{regs: regs}
}

// Add appends a registration. It has no effect on a set that is already
// registered.
func (s *Set) Add(r Registration) *Set {
	s.regs = append(s.regs, r)
	return s
}

func (s *Set) Handlers() []Registration {
	return s.regs
}
