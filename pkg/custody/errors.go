package custody

import (
	"errors"
	"fmt"
)

// Error taxonomy. NotFound and the conflict family are surfaced to the
// caller and not retried; ErrLockTimeout is transient backpressure and safe
// to retry with backoff; ErrStorageUnavailable rolls the whole operation
// back and may be retried as a fresh request.
var (
	// ErrObjectNotFound indicates the referenced tracked object does not exist
	ErrObjectNotFound = errors.New("tracked object not found")

	// ErrLocationNotFound indicates a location id does not resolve
	ErrLocationNotFound = errors.New("location not found")

	// ErrInvalidLocation indicates a move target that is missing or retired
	ErrInvalidLocation = errors.New("invalid location")

	// ErrDuplicateCode indicates the object code is already registered
	ErrDuplicateCode = errors.New("object code already exists")

	// ErrDuplicateTag indicates the rfid tag is bound to another active object
	ErrDuplicateTag = errors.New("rfid tag already bound to an active object")

	// ErrVersionConflict indicates the optimistic version check failed
	ErrVersionConflict = errors.New("version conflict")

	// ErrSequenceConflict indicates a concurrent ledger append raced past the
	// guard; this is an internal-invariant violation, not a user error
	ErrSequenceConflict = errors.New("custody event sequence conflict")

	// ErrInvalidTransition indicates a disallowed status transition or a
	// mutation against a terminal object
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidActor indicates the target assignee is not a recognized identity
	ErrInvalidActor = errors.New("unrecognized actor")

	// ErrLockTimeout indicates the per-object guard could not be acquired
	// within the configured wait
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrForbidden indicates the access gate denied the mutation
	ErrForbidden = errors.New("operation forbidden")

	// ErrStorageUnavailable indicates the underlying persistence failed
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAttachmentNotFound indicates an attachment does not exist
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrBlobStoreNotFound indicates an unregistered attachment store name
	ErrBlobStoreNotFound = errors.New("blob store not found")

	// ErrMetadataTooLarge indicates the metadata map exceeds MaxMetadataKeys
	ErrMetadataTooLarge = errors.New("metadata map too large")

	// ErrValidation indicates a malformed request rejected before any lock
	// or storage access
	ErrValidation = errors.New("invalid request")
)

// OperationError represents a failed custody operation against one object.
type OperationError struct {
	ObjectCode string
	Op         string
	Err        error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("custody operation %s failed for object %s: %v", e.Op, e.ObjectCode, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// StorageError represents a failed blob operation for an attachment.
type StorageError struct {
	Store string
	Key   string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("blob operation %s failed for key %s on store %s: %v", e.Op, e.Key, e.Store, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the error is transient contention that the
// caller may retry with backoff.
func Retriable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
