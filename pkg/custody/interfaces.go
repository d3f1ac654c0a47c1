package custody

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for tracked object, ledger, location and
// attachment persistence. Implementations must make CreateObject and
// ApplyProjection atomic: the registry write and its paired ledger append
// both become visible or neither does.
type Repository interface {
	// Object registry operations
	CreateObject(ctx context.Context, object *TrackedObject, draft EventDraft) (*TrackedObject, *CustodyEvent, error)
	GetObject(ctx context.Context, code string) (*TrackedObject, error)
	// GetObjectByTag returns the non-terminal object currently holding the
	// given rfid tag, or ErrObjectNotFound when the tag is unbound.
	GetObjectByTag(ctx context.Context, tag string) (*TrackedObject, error)
	ListObjectCodes(ctx context.Context) ([]string, error)
	// ApplyProjection stores the projection delta computed by the coordinator
	// and appends the paired custody events in one atomic unit. The stored
	// version must equal expectedVersion (ErrVersionConflict otherwise); on
	// success the version is incremented and per-object event sequence
	// numbers are assigned gaplessly in draft order.
	ApplyProjection(ctx context.Context, code string, delta Delta, expectedVersion int64, drafts []EventDraft) (*TrackedObject, []*CustodyEvent, error)

	// Custody ledger operations
	ListEvents(ctx context.Context, req HistoryRequest) ([]*CustodyEvent, error)

	// Location operations. Creation is administrative seeding; the core
	// treats the tree as read-only during a transaction.
	CreateLocation(ctx context.Context, location *Location) error
	GetLocation(ctx context.Context, id uuid.UUID) (*Location, error)

	// Attachment metadata operations
	CreateAttachment(ctx context.Context, attachment *Attachment) error
	GetAttachment(ctx context.Context, id uuid.UUID) (*Attachment, error)
	ListAttachments(ctx context.Context, objectCode string) ([]*Attachment, error)
}

// EventDraft is a custody event before the repository assigns its sequence
// number. The coordinator fills every field; drafts from one logical request
// carry the same CorrelationID.
type EventDraft struct {
	ID             uuid.UUID
	Kind           EventKind
	ActorID        string
	FromLocationID *uuid.UUID
	ToLocationID   *uuid.UUID
	FromAssignee   *string
	ToAssignee     *string
	FromStatus     ObjectStatus
	ToStatus       ObjectStatus
	FromTag        *string
	ToTag          *string
	OccurredAt     time.Time
	CorrelationID  uuid.UUID
}

// Delta is the projection change computed by the coordinator. Set* flags
// distinguish "clear this field" from "leave it alone"; the repository never
// decides state on its own, it only stores the delta durably.
type Delta struct {
	SetLocation bool
	LocationID  *uuid.UUID
	SetAssignee bool
	Assignee    *string
	SetTag      bool
	Tag         *string
	SetStatus   bool
	Status      ObjectStatus
}

// AccessGate supplies an authorization verdict per requested mutation. The
// core consults it before touching any lock or storage and only consumes the
// verdict; issuing credentials is outside the core.
type AccessGate interface {
	Authorize(ctx context.Context, actorID string, kind EventKind, objectCode string) (bool, error)
}

// ActorDirectory answers whether an actor id is a recognized identity.
// Assignment targets are validated against it.
type ActorDirectory interface {
	Exists(ctx context.Context, actorID string) (bool, error)
}

// EventSink defines the interface for post-commit notifications. Sink
// failures are logged and never fail the committed operation.
type EventSink interface {
	// ObjectCreated is fired after a tracked object is registered
	ObjectCreated(ctx context.Context, object *TrackedObject, event *CustodyEvent) error

	// EventsCommitted is fired after a mutation commits, with every custody
	// event the request produced, in sequence order
	EventsCommitted(ctx context.Context, object *TrackedObject, events []*CustodyEvent) error
}

// BlobStore defines the interface for attachment storage backends.
type BlobStore interface {
	// Upload stores the blob under the given key
	Upload(ctx context.Context, key string, reader io.Reader) (int64, error)

	// Download opens the blob for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob
	Delete(ctx context.Context, key string) error

	// GetDownloadURL returns a direct download URL, or "" when the store
	// cannot produce one
	GetDownloadURL(ctx context.Context, key string, downloadFilename string) (string, error)
}
