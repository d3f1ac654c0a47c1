package custody

import (
	"time"

	"github.com/google/uuid"
)

// replay folds an ordered chain of custody into the projection it implies.
// The chain must be oldest-first and start with a create event; callers get
// events in that shape from Repository.ListEvents.
func replay(objectCode string, events []*CustodyEvent, asOf time.Time) *Projection {
	p := &Projection{
		ObjectCode: objectCode,
		AsOf:       asOf,
	}

	for _, ev := range events {
		p.EventCount++
		switch ev.Kind {
		case EventKindCreate:
			p.Status = ev.ToStatus
			p.CurrentLocationID = ev.ToLocationID
			p.AssignedTo = ev.ToAssignee
			p.RFIDTag = ev.ToTag
		case EventKindMove:
			p.CurrentLocationID = ev.ToLocationID
		case EventKindAssign:
			p.AssignedTo = ev.ToAssignee
		case EventKindTag:
			p.RFIDTag = ev.ToTag
		case EventKindStatusChange, EventKindRetire:
			p.Status = ev.ToStatus
		}
	}

	return p
}

// matches reports whether a registry row agrees with a replayed projection
// on every projection field.
func matches(object *TrackedObject, p *Projection) bool {
	return object.Status == p.Status &&
		equalUUIDPtr(object.CurrentLocationID, p.CurrentLocationID) &&
		equalStrPtr(object.AssignedTo, p.AssignedTo) &&
		equalStrPtr(object.RFIDTag, p.RFIDTag)
}

func equalStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
