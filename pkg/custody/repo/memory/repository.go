package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/recordsdesk/custody/pkg/custody"
)

// Repository implements custody.Repository using in-memory storage. A single
// mutex makes each CreateObject/ApplyProjection call atomic, matching the
// transactional contract of the Postgres implementation.
type Repository struct {
	mu          sync.RWMutex
	objects     map[string]*custody.TrackedObject
	events      map[string][]*custody.CustodyEvent // object_code -> ordered chain
	locations   map[uuid.UUID]*custody.Location
	attachments map[uuid.UUID]*custody.Attachment
	attByObject map[string][]uuid.UUID // object_code -> []attachment_id
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		objects:     make(map[string]*custody.TrackedObject),
		events:      make(map[string][]*custody.CustodyEvent),
		locations:   make(map[uuid.UUID]*custody.Location),
		attachments: make(map[uuid.UUID]*custody.Attachment),
		attByObject: make(map[string][]uuid.UUID),
	}
}

// Object registry operations

func (r *Repository) CreateObject(ctx context.Context, object *custody.TrackedObject, draft custody.EventDraft) (*custody.TrackedObject, *custody.CustodyEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[object.Code]; exists {
		return nil, nil, custody.ErrDuplicateCode
	}
	if object.RFIDTag != nil {
		if holder := r.tagHolderLocked(*object.RFIDTag); holder != nil {
			return nil, nil, custody.ErrDuplicateTag
		}
	}

	objectCopy := copyObject(object)
	r.objects[object.Code] = objectCopy

	event := eventFromDraft(object.Code, 1, draft)
	r.events[object.Code] = []*custody.CustodyEvent{event}

	return copyObject(objectCopy), copyEvent(event), nil
}

func (r *Repository) GetObject(ctx context.Context, code string) (*custody.TrackedObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	object, exists := r.objects[code]
	if !exists {
		return nil, custody.ErrObjectNotFound
	}
	return copyObject(object), nil
}

func (r *Repository) GetObjectByTag(ctx context.Context, tag string) (*custody.TrackedObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if holder := r.tagHolderLocked(tag); holder != nil {
		return copyObject(holder), nil
	}
	return nil, custody.ErrObjectNotFound
}

func (r *Repository) ListObjectCodes(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.objects))
	for code := range r.objects {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (r *Repository) ApplyProjection(ctx context.Context, code string, delta custody.Delta, expectedVersion int64, drafts []custody.EventDraft) (*custody.TrackedObject, []*custody.CustodyEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	object, exists := r.objects[code]
	if !exists {
		return nil, nil, custody.ErrObjectNotFound
	}
	if object.Version != expectedVersion {
		return nil, nil, fmt.Errorf("%w: expected version %d, found %d", custody.ErrVersionConflict, expectedVersion, object.Version)
	}
	if len(drafts) == 0 {
		return nil, nil, fmt.Errorf("projection update requires at least one event draft")
	}
	// Same uniqueness rule the partial index enforces in postgres. The
	// coordinator pre-checks, but only this mutex serializes writers on
	// distinct objects racing for one tag.
	if delta.SetTag && delta.Tag != nil {
		if holder := r.tagHolderLocked(*delta.Tag); holder != nil && holder.Code != code {
			return nil, nil, custody.ErrDuplicateTag
		}
	}

	if delta.SetLocation {
		object.CurrentLocationID = copyUUIDPtr(delta.LocationID)
	}
	if delta.SetAssignee {
		object.AssignedTo = copyStrPtr(delta.Assignee)
	}
	if delta.SetTag {
		object.RFIDTag = copyStrPtr(delta.Tag)
	}
	if delta.SetStatus {
		object.Status = delta.Status
	}
	object.Version++
	object.UpdatedAt = drafts[len(drafts)-1].OccurredAt

	chain := r.events[code]
	appended := make([]*custody.CustodyEvent, 0, len(drafts))
	for i, draft := range drafts {
		event := eventFromDraft(code, int64(len(chain)+i+1), draft)
		appended = append(appended, event)
	}
	r.events[code] = append(chain, appended...)

	out := make([]*custody.CustodyEvent, len(appended))
	for i, ev := range appended {
		out[i] = copyEvent(ev)
	}
	return copyObject(object), out, nil
}

// Custody ledger operations

func (r *Repository) ListEvents(ctx context.Context, req custody.HistoryRequest) ([]*custody.CustodyEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.objects[req.ObjectCode]; !exists {
		return nil, custody.ErrObjectNotFound
	}

	var result []*custody.CustodyEvent
	for _, event := range r.events[req.ObjectCode] {
		if req.AsOf != nil && event.OccurredAt.After(*req.AsOf) {
			continue
		}
		result = append(result, copyEvent(event))
	}

	if req.Offset != nil && *req.Offset > 0 {
		if *req.Offset >= len(result) {
			return []*custody.CustodyEvent{}, nil
		}
		result = result[*req.Offset:]
	}
	if req.Limit != nil && *req.Limit > 0 && *req.Limit < len(result) {
		result = result[:*req.Limit]
	}

	return result, nil
}

// Location operations

func (r *Repository) CreateLocation(ctx context.Context, location *custody.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if location.ParentID != nil {
		if _, exists := r.locations[*location.ParentID]; !exists {
			return custody.ErrLocationNotFound
		}
	}
	locationCopy := *location
	r.locations[location.ID] = &locationCopy
	return nil
}

func (r *Repository) GetLocation(ctx context.Context, id uuid.UUID) (*custody.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	location, exists := r.locations[id]
	if !exists {
		return nil, custody.ErrLocationNotFound
	}
	locationCopy := *location
	return &locationCopy, nil
}

// Attachment metadata operations

func (r *Repository) CreateAttachment(ctx context.Context, attachment *custody.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[attachment.ObjectCode]; !exists {
		return custody.ErrObjectNotFound
	}
	attachmentCopy := *attachment
	r.attachments[attachment.ID] = &attachmentCopy
	r.attByObject[attachment.ObjectCode] = append(r.attByObject[attachment.ObjectCode], attachment.ID)
	return nil
}

func (r *Repository) GetAttachment(ctx context.Context, id uuid.UUID) (*custody.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attachment, exists := r.attachments[id]
	if !exists {
		return nil, custody.ErrAttachmentNotFound
	}
	attachmentCopy := *attachment
	return &attachmentCopy, nil
}

func (r *Repository) ListAttachments(ctx context.Context, objectCode string) ([]*custody.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.attByObject[objectCode]
	result := make([]*custody.Attachment, 0, len(ids))
	for _, id := range ids {
		if attachment, exists := r.attachments[id]; exists {
			attachmentCopy := *attachment
			result = append(result, &attachmentCopy)
		}
	}
	return result, nil
}

// Helpers

// tagHolderLocked returns the non-terminal object currently holding the tag.
func (r *Repository) tagHolderLocked(tag string) *custody.TrackedObject {
	for _, object := range r.objects {
		if object.RFIDTag != nil && *object.RFIDTag == tag && !custody.IsTerminalStatus(object.Status) {
			return object
		}
	}
	return nil
}

func eventFromDraft(code string, seq int64, draft custody.EventDraft) *custody.CustodyEvent {
	return &custody.CustodyEvent{
		ID:             draft.ID,
		ObjectCode:     code,
		Seq:            seq,
		Kind:           draft.Kind,
		ActorID:        draft.ActorID,
		FromLocationID: copyUUIDPtr(draft.FromLocationID),
		ToLocationID:   copyUUIDPtr(draft.ToLocationID),
		FromAssignee:   copyStrPtr(draft.FromAssignee),
		ToAssignee:     copyStrPtr(draft.ToAssignee),
		FromStatus:     draft.FromStatus,
		ToStatus:       draft.ToStatus,
		FromTag:        copyStrPtr(draft.FromTag),
		ToTag:          copyStrPtr(draft.ToTag),
		OccurredAt:     draft.OccurredAt,
		CorrelationID:  draft.CorrelationID,
	}
}

func copyObject(object *custody.TrackedObject) *custody.TrackedObject {
	objectCopy := *object
	objectCopy.CurrentLocationID = copyUUIDPtr(object.CurrentLocationID)
	objectCopy.AssignedTo = copyStrPtr(object.AssignedTo)
	objectCopy.RFIDTag = copyStrPtr(object.RFIDTag)
	if object.Metadata != nil {
		objectCopy.Metadata = make(map[string]interface{}, len(object.Metadata))
		for k, v := range object.Metadata {
			objectCopy.Metadata[k] = v
		}
	}
	return &objectCopy
}

func copyEvent(event *custody.CustodyEvent) *custody.CustodyEvent {
	eventCopy := *event
	eventCopy.FromLocationID = copyUUIDPtr(event.FromLocationID)
	eventCopy.ToLocationID = copyUUIDPtr(event.ToLocationID)
	eventCopy.FromAssignee = copyStrPtr(event.FromAssignee)
	eventCopy.ToAssignee = copyStrPtr(event.ToAssignee)
	eventCopy.FromTag = copyStrPtr(event.FromTag)
	eventCopy.ToTag = copyStrPtr(event.ToTag)
	return &eventCopy
}

func copyStrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyUUIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
