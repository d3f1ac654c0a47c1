package custody

import "context"

// NoopEventSink is a no-operation implementation of EventSink.
// Useful when no downstream integration is wired, and for testing.
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ObjectCreated does nothing and returns nil
func (n *NoopEventSink) ObjectCreated(ctx context.Context, object *TrackedObject, event *CustodyEvent) error {
	return nil
}

// EventsCommitted does nothing and returns nil
func (n *NoopEventSink) EventsCommitted(ctx context.Context, object *TrackedObject, events []*CustodyEvent) error {
	return nil
}

// AllowAllGate is an AccessGate that authorizes every mutation. Deployments
// plug a real policy engine in; tests and local development use this.
type AllowAllGate struct{}

// NewAllowAllGate creates a gate that authorizes everything
func NewAllowAllGate() AccessGate {
	return &AllowAllGate{}
}

// Authorize always allows
func (g *AllowAllGate) Authorize(ctx context.Context, actorID string, kind EventKind, objectCode string) (bool, error) {
	return true, nil
}

// StaticActorDirectory recognizes a fixed set of actor ids. An empty set
// recognizes every non-empty id.
type StaticActorDirectory struct {
	actors map[string]struct{}
}

// NewStaticActorDirectory creates a directory over the given actor ids
func NewStaticActorDirectory(actorIDs ...string) *StaticActorDirectory {
	d := &StaticActorDirectory{}
	if len(actorIDs) > 0 {
		d.actors = make(map[string]struct{}, len(actorIDs))
		for _, id := range actorIDs {
			d.actors[id] = struct{}{}
		}
	}
	return d
}

// Exists reports whether the actor id is recognized
func (d *StaticActorDirectory) Exists(ctx context.Context, actorID string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	if d.actors == nil {
		return true, nil
	}
	_, ok := d.actors[actorID]
	return ok, nil
}
