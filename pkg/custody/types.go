package custody

import (
	"time"

	"github.com/google/uuid"
)

// ObjectType is the domain type for the kind of physical item being tracked.
type ObjectType string

// Tracked object type constants (typed).
const (
	ObjectTypeDocket    ObjectType = "docket"
	ObjectTypeEvidence  ObjectType = "evidence"
	ObjectTypeEquipment ObjectType = "equipment"
	ObjectTypeFile      ObjectType = "file"
	ObjectTypeTool      ObjectType = "tool"
)

// ObjectStatus is the domain type for tracked object lifecycle states.
type ObjectStatus string

// Object status constants (typed). Disposed and retired are terminal.
const (
	ObjectStatusActive   ObjectStatus = "active"
	ObjectStatusInactive ObjectStatus = "inactive"
	ObjectStatusArchived ObjectStatus = "archived"
	ObjectStatusDisposed ObjectStatus = "disposed"
	ObjectStatusRetired  ObjectStatus = "retired"
)

// EventKind is the domain type for custody event kinds.
type EventKind string

// Custody event kind constants (typed).
const (
	EventKindCreate       EventKind = "create"
	EventKindMove         EventKind = "move"
	EventKindAssign       EventKind = "assign"
	EventKindTag          EventKind = "tag"
	EventKindStatusChange EventKind = "status_change"
	EventKindRetire       EventKind = "retire"
)

// MaxMetadataKeys bounds the opaque metadata map on a tracked object.
const MaxMetadataKeys = 64

// TrackedObject represents the materialized current state of one tracked
// item. The projection fields (Status, CurrentLocationID, AssignedTo,
// RFIDTag) always agree with the highest-sequence custody event of the
// relevant kind; they are only ever written through the transaction
// coordinator.
type TrackedObject struct {
	Code              string                 `json:"code"`
	Type              ObjectType             `json:"type"`
	Status            ObjectStatus           `json:"status"`
	CurrentLocationID *uuid.UUID             `json:"current_location_id,omitempty"`
	AssignedTo        *string                `json:"assigned_to,omitempty"`
	RFIDTag           *string                `json:"rfid_tag,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Version           int64                  `json:"version"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// Terminal reports whether the object is in a terminal status. Terminal
// objects accept no further mutations; their row and history persist for
// audit.
func (o *TrackedObject) Terminal() bool {
	return IsTerminalStatus(o.Status)
}

// CustodyEvent is one immutable record in an object's chain of custody.
// Events are append-only: corrections are new events, never edits. Seq is
// gapless and strictly increasing per object, starting at 1 with a create
// event. Events produced by one logical request share a CorrelationID.
type CustodyEvent struct {
	ID             uuid.UUID    `json:"id"`
	ObjectCode     string       `json:"object_code"`
	Seq            int64        `json:"seq"`
	Kind           EventKind    `json:"kind"`
	ActorID        string       `json:"actor_id"`
	FromLocationID *uuid.UUID   `json:"from_location_id,omitempty"`
	ToLocationID   *uuid.UUID   `json:"to_location_id,omitempty"`
	FromAssignee   *string      `json:"from_assignee,omitempty"`
	ToAssignee     *string      `json:"to_assignee,omitempty"`
	FromStatus     ObjectStatus `json:"from_status,omitempty"`
	ToStatus       ObjectStatus `json:"to_status,omitempty"`
	FromTag        *string      `json:"from_tag,omitempty"`
	ToTag          *string      `json:"to_tag,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
	CorrelationID  uuid.UUID    `json:"correlation_id"`
}

// Location is one node in the physical location tree (zone -> box).
// Read-mostly: structural changes are administrative operations outside the
// core; the core only refuses events referencing missing or retired nodes.
type Location struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	ParentID     *uuid.UUID `json:"parent_id,omitempty"`
	CapacityHint *int       `json:"capacity_hint,omitempty"`
	Retired      bool       `json:"retired"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Projection holds the replayable state of a tracked object as derived from
// its chain of custody. ReconstructAt returns one of these; VerifyConsistency
// compares it against the registry row.
type Projection struct {
	ObjectCode        string       `json:"object_code"`
	Status            ObjectStatus `json:"status"`
	CurrentLocationID *uuid.UUID   `json:"current_location_id,omitempty"`
	AssignedTo        *string      `json:"assigned_to,omitempty"`
	RFIDTag           *string      `json:"rfid_tag,omitempty"`
	EventCount        int64        `json:"event_count"`
	AsOf              time.Time    `json:"as_of"`
}

// Attachment is a supporting file bound to a tracked object (intake photo,
// signed transfer form). Attachments are side files, not custody events.
type Attachment struct {
	ID         uuid.UUID `json:"id"`
	ObjectCode string    `json:"object_code"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	StoreName  string    `json:"store_name"`
	BlobKey    string    `json:"blob_key"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}
