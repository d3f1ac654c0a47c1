package custody

import (
	"time"

	"github.com/google/uuid"
)

// Request/Response DTOs

// CreateObjectRequest contains parameters for registering a new tracked
// object. LocationID and AssignTo, when set, are recorded on the create
// event rather than as separate move/assign events.
type CreateObjectRequest struct {
	Code       string
	Type       ObjectType
	ActorID    string
	LocationID *uuid.UUID
	AssignTo   *string
	RFIDTag    *string
	Metadata   map[string]interface{}
}

// MoveObjectRequest contains parameters for recording a change of physical
// location. AssignTo optionally reassigns custody in the same request; both
// events then share a correlation id and commit atomically.
type MoveObjectRequest struct {
	ObjectCode   string
	ToLocationID uuid.UUID
	ActorID      string
	AssignTo     *string
}

// AssignObjectRequest contains parameters for handing an object to another
// actor. A nil ToActorID clears the assignment.
type AssignObjectRequest struct {
	ObjectCode string
	ToActorID  *string
	ActorID    string
}

// TagObjectRequest contains parameters for binding an rfid tag. A nil RFIDTag
// clears the binding.
type TagObjectRequest struct {
	ObjectCode string
	RFIDTag    *string
	ActorID    string
}

// ChangeStatusRequest contains parameters for a status transition. Moving to
// ObjectStatusRetired produces a retire event; all other targets produce a
// status_change event.
type ChangeStatusRequest struct {
	ObjectCode string
	NewStatus  ObjectStatus
	ActorID    string
}

// HistoryRequest contains parameters for reading a chain of custody. AsOf
// bounds the chain to events at or before the given instant; Limit/Offset
// page through long chains, oldest first.
type HistoryRequest struct {
	ObjectCode string
	AsOf       *time.Time
	Limit      *int
	Offset     *int
}

// AttachFileRequest contains parameters for storing a supporting file
// against a tracked object.
type AttachFileRequest struct {
	ObjectCode string
	FileName   string
	MimeType   string
	ActorID    string
	StoreName  string // empty selects the service default store
}
