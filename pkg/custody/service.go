package custody

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Service is the single entry point for every custody mutation and audit
// query. All writers go through it: no other component is permitted to write
// the registry or the ledger directly.
//
// Mutations run the same protocol: authorize against the access gate,
// acquire the per-object guard, load and validate current state, compute the
// projection delta, then append the custody event(s) and apply the delta as
// one atomic unit. No durable side effect survives a failure on any path.
type Service interface {
	// CreateObject registers a new tracked object and its create event.
	CreateObject(ctx context.Context, req CreateObjectRequest) (*TrackedObject, error)

	// MoveObject records a change of physical location, optionally handing
	// custody to a new assignee in the same atomic request.
	MoveObject(ctx context.Context, req MoveObjectRequest) (*TrackedObject, error)

	// AssignObject hands the object to another actor; a nil target clears
	// the assignment.
	AssignObject(ctx context.Context, req AssignObjectRequest) (*TrackedObject, error)

	// TagObject binds or clears the rfid tag. At most one non-terminal
	// object holds a given tag at any time.
	TagObject(ctx context.Context, req TagObjectRequest) (*TrackedObject, error)

	// ChangeStatus applies a status transition; retiring produces a retire
	// event and is terminal.
	ChangeStatus(ctx context.Context, req ChangeStatusRequest) (*TrackedObject, error)

	// GetObject returns the current registry state. Reads never block on the
	// guard; they observe committed state only.
	GetObject(ctx context.Context, code string) (*TrackedObject, error)

	// GetHistory returns the chain of custody oldest first, optionally
	// bounded by time and paged.
	GetHistory(ctx context.Context, req HistoryRequest) ([]*CustodyEvent, error)

	// ReconstructAt replays events up to and including asOf and returns the
	// projection the registry should have held at that instant.
	ReconstructAt(ctx context.Context, code string, asOf time.Time) (*Projection, error)

	// VerifyConsistency replays the full chain and compares it against the
	// registry row.
	VerifyConsistency(ctx context.Context, code string) (*ConsistencyReport, error)

	// ListObjectCodes returns every registered object code, for audit sweeps.
	ListObjectCodes(ctx context.Context) ([]string, error)

	// ResolveLocation returns a node of the location tree.
	ResolveLocation(ctx context.Context, id uuid.UUID) (*Location, error)

	// AttachFile stores a supporting file against a non-terminal object.
	AttachFile(ctx context.Context, req AttachFileRequest, reader io.Reader) (*Attachment, error)

	// ListAttachments returns attachment metadata for an object.
	ListAttachments(ctx context.Context, objectCode string) ([]*Attachment, error)

	// OpenAttachment opens an attachment blob for reading.
	OpenAttachment(ctx context.Context, id uuid.UUID) (*Attachment, io.ReadCloser, error)

	// GetAttachmentURL returns a direct download URL for the attachment, or
	// "" when its store serves blobs through OpenAttachment only.
	GetAttachmentURL(ctx context.Context, id uuid.UUID) (string, error)
}

// ConsistencyReport is the outcome of replaying one object's chain of
// custody against its registry row.
type ConsistencyReport struct {
	ObjectCode string         `json:"object_code"`
	Consistent bool           `json:"consistent"`
	Registry   *TrackedObject `json:"registry"`
	Replayed   *Projection    `json:"replayed"`
}
