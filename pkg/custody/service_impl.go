package custody

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository Repository
	gate       AccessGate
	actors     ActorDirectory
	eventSink  EventSink
	guard      *Guard
	guardWait  time.Duration
	blobStores map[string]BlobStore
	blobName   string
	metrics    *Metrics
	logger     *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithAccessGate sets the authorization gate
func WithAccessGate(gate AccessGate) Option {
	return func(s *service) {
		s.gate = gate
	}
}

// WithActorDirectory sets the actor identity directory
func WithActorDirectory(actors ActorDirectory) Option {
	return func(s *service) {
		s.actors = actors
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithGuardWait bounds per-object lock acquisition
func WithGuardWait(wait time.Duration) Option {
	return func(s *service) {
		s.guardWait = wait
	}
}

// WithBlobStore adds an attachment storage backend. The first registered
// store becomes the default unless WithDefaultBlobStore overrides it.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
		if s.blobName == "" {
			s.blobName = name
		}
	}
}

// WithDefaultBlobStore selects the default attachment store by name
func WithDefaultBlobStore(name string) Option {
	return func(s *service) {
		s.blobName = name
	}
}

// WithMetrics sets the prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores: make(map[string]BlobStore),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.gate == nil {
		s.gate = NewAllowAllGate()
	}
	if s.actors == nil {
		s.actors = NewStaticActorDirectory()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.guard = NewGuard(s.guardWait)

	return s, nil
}

// Mutations

func (s *service) CreateObject(ctx context.Context, req CreateObjectRequest) (*TrackedObject, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, s.fail(req.Code, "create", err)
	}

	if err := s.authorize(ctx, req.ActorID, EventKindCreate, req.Code); err != nil {
		return nil, s.fail(req.Code, "create", err)
	}

	// Serialize duplicate creates for the same code behind the guard.
	release, err := s.acquire(ctx, req.Code)
	if err != nil {
		return nil, s.fail(req.Code, "create", err)
	}
	defer release()

	if req.LocationID != nil {
		if err := s.resolveActiveLocation(ctx, *req.LocationID); err != nil {
			return nil, s.fail(req.Code, "create", err)
		}
	}
	if req.AssignTo != nil {
		if err := s.recognizedActor(ctx, *req.AssignTo); err != nil {
			return nil, s.fail(req.Code, "create", err)
		}
	}
	if req.RFIDTag != nil {
		if err := s.tagUnbound(ctx, *req.RFIDTag, req.Code); err != nil {
			return nil, s.fail(req.Code, "create", err)
		}
	}

	now := time.Now().UTC()
	object := &TrackedObject{
		Code:              req.Code,
		Type:              req.Type,
		Status:            ObjectStatusActive,
		CurrentLocationID: req.LocationID,
		AssignedTo:        req.AssignTo,
		RFIDTag:           req.RFIDTag,
		Metadata:          req.Metadata,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	draft := EventDraft{
		ID:            uuid.New(),
		Kind:          EventKindCreate,
		ActorID:       req.ActorID,
		ToLocationID:  req.LocationID,
		ToAssignee:    req.AssignTo,
		ToStatus:      ObjectStatusActive,
		ToTag:         req.RFIDTag,
		OccurredAt:    now,
		CorrelationID: uuid.New(),
	}

	created, event, err := s.repository.CreateObject(ctx, object, draft)
	if err != nil {
		return nil, s.fail(req.Code, "create", err)
	}

	s.metrics.observeCommit("create")
	if err := s.eventSink.ObjectCreated(ctx, created, event); err != nil {
		s.logger.Warn("event sink failed", "op", "create", "object_code", created.Code, "err", err)
	}

	return created, nil
}

func (s *service) MoveObject(ctx context.Context, req MoveObjectRequest) (*TrackedObject, error) {
	return s.mutate(ctx, req.ObjectCode, EventKindMove, req.ActorID, "move",
		func(object *TrackedObject, correlation uuid.UUID, now time.Time) (Delta, []EventDraft, error) {
			if err := canMutate(object); err != nil {
				return Delta{}, nil, err
			}
			if err := s.resolveActiveLocation(ctx, req.ToLocationID); err != nil {
				return Delta{}, nil, err
			}

			to := req.ToLocationID
			delta := Delta{SetLocation: true, LocationID: &to}
			drafts := []EventDraft{{
				ID:             uuid.New(),
				Kind:           EventKindMove,
				ActorID:        req.ActorID,
				FromLocationID: object.CurrentLocationID,
				ToLocationID:   &to,
				OccurredAt:     now,
				CorrelationID:  correlation,
			}}

			// A move may hand custody over in the same request; both events
			// share the correlation id and commit together.
			if req.AssignTo != nil {
				if err := s.recognizedActor(ctx, *req.AssignTo); err != nil {
					return Delta{}, nil, err
				}
				delta.SetAssignee = true
				delta.Assignee = req.AssignTo
				drafts = append(drafts, EventDraft{
					ID:            uuid.New(),
					Kind:          EventKindAssign,
					ActorID:       req.ActorID,
					FromAssignee:  object.AssignedTo,
					ToAssignee:    req.AssignTo,
					OccurredAt:    now,
					CorrelationID: correlation,
				})
			}

			return delta, drafts, nil
		})
}

func (s *service) AssignObject(ctx context.Context, req AssignObjectRequest) (*TrackedObject, error) {
	return s.mutate(ctx, req.ObjectCode, EventKindAssign, req.ActorID, "assign",
		func(object *TrackedObject, correlation uuid.UUID, now time.Time) (Delta, []EventDraft, error) {
			if err := canMutate(object); err != nil {
				return Delta{}, nil, err
			}
			if req.ToActorID != nil {
				if err := s.recognizedActor(ctx, *req.ToActorID); err != nil {
					return Delta{}, nil, err
				}
			}

			delta := Delta{SetAssignee: true, Assignee: req.ToActorID}
			drafts := []EventDraft{{
				ID:            uuid.New(),
				Kind:          EventKindAssign,
				ActorID:       req.ActorID,
				FromAssignee:  object.AssignedTo,
				ToAssignee:    req.ToActorID,
				OccurredAt:    now,
				CorrelationID: correlation,
			}}
			return delta, drafts, nil
		})
}

func (s *service) TagObject(ctx context.Context, req TagObjectRequest) (*TrackedObject, error) {
	return s.mutate(ctx, req.ObjectCode, EventKindTag, req.ActorID, "tag",
		func(object *TrackedObject, correlation uuid.UUID, now time.Time) (Delta, []EventDraft, error) {
			if err := canMutate(object); err != nil {
				return Delta{}, nil, err
			}
			if req.RFIDTag != nil {
				if err := s.tagUnbound(ctx, *req.RFIDTag, object.Code); err != nil {
					return Delta{}, nil, err
				}
			}

			delta := Delta{SetTag: true, Tag: req.RFIDTag}
			drafts := []EventDraft{{
				ID:            uuid.New(),
				Kind:          EventKindTag,
				ActorID:       req.ActorID,
				FromTag:       object.RFIDTag,
				ToTag:         req.RFIDTag,
				OccurredAt:    now,
				CorrelationID: correlation,
			}}
			return delta, drafts, nil
		})
}

func (s *service) ChangeStatus(ctx context.Context, req ChangeStatusRequest) (*TrackedObject, error) {
	kind := EventKindStatusChange
	op := "status_change"
	if req.NewStatus == ObjectStatusRetired {
		kind = EventKindRetire
		op = "retire"
	}

	return s.mutate(ctx, req.ObjectCode, kind, req.ActorID, op,
		func(object *TrackedObject, correlation uuid.UUID, now time.Time) (Delta, []EventDraft, error) {
			if err := canTransition(object.Status, req.NewStatus); err != nil {
				return Delta{}, nil, err
			}

			delta := Delta{SetStatus: true, Status: req.NewStatus}
			drafts := []EventDraft{{
				ID:            uuid.New(),
				Kind:          kind,
				ActorID:       req.ActorID,
				FromStatus:    object.Status,
				ToStatus:      req.NewStatus,
				OccurredAt:    now,
				CorrelationID: correlation,
			}}
			return delta, drafts, nil
		})
}

// mutate runs the coordinator protocol for one mutation: authorize, acquire
// the guard, load current state, let compute validate and derive the delta
// and event drafts, then commit atomically. The guard is released on every
// exit path.
func (s *service) mutate(
	ctx context.Context,
	objectCode string,
	kind EventKind,
	actorID string,
	op string,
	compute func(object *TrackedObject, correlation uuid.UUID, now time.Time) (Delta, []EventDraft, error),
) (*TrackedObject, error) {
	if objectCode == "" {
		return nil, s.fail(objectCode, op, fmt.Errorf("%w: object code is required", ErrValidation))
	}
	if actorID == "" {
		return nil, s.fail(objectCode, op, fmt.Errorf("%w: actor id is required", ErrValidation))
	}

	if err := s.authorize(ctx, actorID, kind, objectCode); err != nil {
		return nil, s.fail(objectCode, op, err)
	}

	release, err := s.acquire(ctx, objectCode)
	if err != nil {
		return nil, s.fail(objectCode, op, err)
	}
	defer release()

	object, err := s.repository.GetObject(ctx, objectCode)
	if err != nil {
		return nil, s.fail(objectCode, op, err)
	}

	now := time.Now().UTC()
	delta, drafts, err := compute(object, uuid.New(), now)
	if err != nil {
		return nil, s.fail(objectCode, op, err)
	}

	// The guard already serialized this object; the version check catches
	// any writer that reached the repository without holding it.
	updated, events, err := s.repository.ApplyProjection(ctx, objectCode, delta, object.Version, drafts)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrSequenceConflict) {
			s.logger.Error("writer slipped past the object guard",
				"op", op, "object_code", objectCode, "version", object.Version, "err", err)
		}
		return nil, s.fail(objectCode, op, err)
	}

	s.metrics.observeCommit(op)
	if err := s.eventSink.EventsCommitted(ctx, updated, events); err != nil {
		s.logger.Warn("event sink failed", "op", op, "object_code", objectCode, "err", err)
	}

	return updated, nil
}

// Reads

func (s *service) GetObject(ctx context.Context, code string) (*TrackedObject, error) {
	return s.repository.GetObject(ctx, code)
}

func (s *service) GetHistory(ctx context.Context, req HistoryRequest) ([]*CustodyEvent, error) {
	return s.repository.ListEvents(ctx, req)
}

func (s *service) ReconstructAt(ctx context.Context, code string, asOf time.Time) (*Projection, error) {
	events, err := s.repository.ListEvents(ctx, HistoryRequest{ObjectCode: code, AsOf: &asOf})
	if err != nil {
		return nil, err
	}
	return replay(code, events, asOf), nil
}

func (s *service) VerifyConsistency(ctx context.Context, code string) (*ConsistencyReport, error) {
	object, err := s.repository.GetObject(ctx, code)
	if err != nil {
		return nil, err
	}
	events, err := s.repository.ListEvents(ctx, HistoryRequest{ObjectCode: code})
	if err != nil {
		return nil, err
	}

	replayed := replay(code, events, time.Now().UTC())
	report := &ConsistencyReport{
		ObjectCode: code,
		Consistent: matches(object, replayed) && replayed.EventCount > 0,
		Registry:   object,
		Replayed:   replayed,
	}
	if !report.Consistent {
		s.logger.Error("registry diverged from ledger", "object_code", code,
			"registry_status", object.Status, "replayed_status", replayed.Status)
	}
	return report, nil
}

func (s *service) ListObjectCodes(ctx context.Context) ([]string, error) {
	return s.repository.ListObjectCodes(ctx)
}

func (s *service) ResolveLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	return s.repository.GetLocation(ctx, id)
}

// Attachments

func (s *service) AttachFile(ctx context.Context, req AttachFileRequest, reader io.Reader) (*Attachment, error) {
	if req.FileName == "" {
		return nil, s.fail(req.ObjectCode, "attach", fmt.Errorf("%w: file name is required", ErrValidation))
	}
	if err := s.authorize(ctx, req.ActorID, EventKindCreate, req.ObjectCode); err != nil {
		return nil, s.fail(req.ObjectCode, "attach", err)
	}

	object, err := s.repository.GetObject(ctx, req.ObjectCode)
	if err != nil {
		return nil, s.fail(req.ObjectCode, "attach", err)
	}
	if err := canMutate(object); err != nil {
		return nil, s.fail(req.ObjectCode, "attach", err)
	}

	storeName := req.StoreName
	if storeName == "" {
		storeName = s.blobName
	}
	store, err := s.getBlobStore(storeName)
	if err != nil {
		return nil, s.fail(req.ObjectCode, "attach", err)
	}

	id := uuid.New()
	key := fmt.Sprintf("A/%s/%s/%s", object.Code, id, req.FileName)
	size, err := store.Upload(ctx, key, reader)
	if err != nil {
		return nil, &StorageError{Store: storeName, Key: key, Op: "upload", Err: err}
	}

	attachment := &Attachment{
		ID:         id,
		ObjectCode: object.Code,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		SizeBytes:  size,
		StoreName:  storeName,
		BlobKey:    key,
		UploadedBy: req.ActorID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repository.CreateAttachment(ctx, attachment); err != nil {
		// Best effort: do not leave an orphaned blob behind a failed row.
		if delErr := store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("orphaned attachment blob", "key", key, "err", delErr)
		}
		return nil, s.fail(req.ObjectCode, "attach", err)
	}

	return attachment, nil
}

func (s *service) ListAttachments(ctx context.Context, objectCode string) ([]*Attachment, error) {
	if _, err := s.repository.GetObject(ctx, objectCode); err != nil {
		return nil, err
	}
	return s.repository.ListAttachments(ctx, objectCode)
}

func (s *service) OpenAttachment(ctx context.Context, id uuid.UUID) (*Attachment, io.ReadCloser, error) {
	attachment, err := s.repository.GetAttachment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	store, err := s.getBlobStore(attachment.StoreName)
	if err != nil {
		return nil, nil, err
	}
	reader, err := store.Download(ctx, attachment.BlobKey)
	if err != nil {
		return nil, nil, &StorageError{Store: attachment.StoreName, Key: attachment.BlobKey, Op: "download", Err: err}
	}
	return attachment, reader, nil
}

func (s *service) GetAttachmentURL(ctx context.Context, id uuid.UUID) (string, error) {
	attachment, err := s.repository.GetAttachment(ctx, id)
	if err != nil {
		return "", err
	}
	store, err := s.getBlobStore(attachment.StoreName)
	if err != nil {
		return "", err
	}
	url, err := store.GetDownloadURL(ctx, attachment.BlobKey, attachment.FileName)
	if err != nil {
		return "", &StorageError{Store: attachment.StoreName, Key: attachment.BlobKey, Op: "presign", Err: err}
	}
	return url, nil
}

// Helpers

func (s *service) authorize(ctx context.Context, actorID string, kind EventKind, objectCode string) error {
	if actorID == "" {
		return fmt.Errorf("%w: actor id is required", ErrValidation)
	}
	allowed, err := s.gate.Authorize(ctx, actorID, kind, objectCode)
	if err != nil {
		return fmt.Errorf("access gate: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: actor %s may not %s object %s", ErrForbidden, actorID, kind, objectCode)
	}
	return nil
}

func (s *service) acquire(ctx context.Context, code string) (func(), error) {
	start := time.Now()
	release, err := s.guard.Acquire(ctx, code)
	s.metrics.observeLockWait(time.Since(start), errors.Is(err, ErrLockTimeout))
	if err != nil {
		return nil, err
	}

	s.metrics.lockHeld(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			s.metrics.lockHeld(-1)
		})
	}, nil
}

func (s *service) resolveActiveLocation(ctx context.Context, id uuid.UUID) error {
	location, err := s.repository.GetLocation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return fmt.Errorf("%w: location %s does not exist", ErrInvalidLocation, id)
		}
		return err
	}
	if location.Retired {
		return fmt.Errorf("%w: location %s is retired", ErrInvalidLocation, id)
	}
	return nil
}

func (s *service) recognizedActor(ctx context.Context, actorID string) error {
	ok, err := s.actors.Exists(ctx, actorID)
	if err != nil {
		return fmt.Errorf("actor directory: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidActor, actorID)
	}
	return nil
}

func (s *service) tagUnbound(ctx context.Context, tag, selfCode string) error {
	if tag == "" {
		return fmt.Errorf("%w: rfid tag must not be empty", ErrValidation)
	}
	holder, err := s.repository.GetObjectByTag(ctx, tag)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil
		}
		return err
	}
	if holder.Code != selfCode {
		return fmt.Errorf("%w: tag %s held by object %s", ErrDuplicateTag, tag, holder.Code)
	}
	return nil
}

func (s *service) getBlobStore(name string) (BlobStore, error) {
	store, exists := s.blobStores[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBlobStoreNotFound, name)
	}
	return store, nil
}

func (s *service) validateCreate(req CreateObjectRequest) error {
	if req.Code == "" {
		return fmt.Errorf("%w: object code is required", ErrValidation)
	}
	if !validObjectType(req.Type) {
		return fmt.Errorf("%w: unknown object type %q", ErrValidation, req.Type)
	}
	if req.ActorID == "" {
		return fmt.Errorf("%w: actor id is required", ErrValidation)
	}
	if len(req.Metadata) > MaxMetadataKeys {
		return fmt.Errorf("%w: %d keys (max %d)", ErrMetadataTooLarge, len(req.Metadata), MaxMetadataKeys)
	}
	if req.RFIDTag != nil && *req.RFIDTag == "" {
		return fmt.Errorf("%w: rfid tag must not be empty", ErrValidation)
	}
	return nil
}

func (s *service) fail(objectCode, op string, err error) error {
	s.metrics.observeFailure(op, err)
	return &OperationError{ObjectCode: objectCode, Op: op, Err: err}
}
