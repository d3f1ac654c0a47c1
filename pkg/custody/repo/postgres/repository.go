package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/recordsdesk/custody/pkg/custody"
)

//go:embed schema.sql
var schema string

// DB is the subset of pgxpool.Pool the repository needs. Begin is required
// because CreateObject and ApplyProjection pair the registry write with the
// ledger append in one transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements custody.Repository using PostgreSQL
type Repository struct {
	db DB
}

// New creates a new PostgreSQL repository
func New(db DB) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with a connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate applies the embedded schema. Idempotent.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// handleError maps postgres errors onto the custody taxonomy. Anything that
// is not a recognized business violation surfaces as ErrStorageUnavailable.
func handleError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch {
			case strings.Contains(pgErr.ConstraintName, "tracked_object_pkey"):
				return custody.ErrDuplicateCode
			case strings.Contains(pgErr.ConstraintName, "rfid_tag"):
				return custody.ErrDuplicateTag
			case strings.Contains(pgErr.ConstraintName, "custody_event_object_seq"):
				return custody.ErrSequenceConflict
			}
		case "23503": // foreign_key_violation
			if strings.Contains(pgErr.ConstraintName, "location") {
				return custody.ErrLocationNotFound
			}
			return custody.ErrObjectNotFound
		}
	}
	return fmt.Errorf("%w: %s: %v", custody.ErrStorageUnavailable, operation, err)
}

const objectColumns = `code, type, status, current_location_id, assigned_to, rfid_tag, metadata, version, created_at, updated_at`

func scanObject(row pgx.Row) (*custody.TrackedObject, error) {
	var object custody.TrackedObject
	err := row.Scan(
		&object.Code, &object.Type, &object.Status, &object.CurrentLocationID,
		&object.AssignedTo, &object.RFIDTag, &object.Metadata, &object.Version,
		&object.CreatedAt, &object.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &object, nil
}

// Object registry operations

func (r *Repository) CreateObject(ctx context.Context, object *custody.TrackedObject, draft custody.EventDraft) (*custody.TrackedObject, *custody.CustodyEvent, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, handleError("begin create object", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO tracked_object (` + objectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = tx.Exec(ctx, query,
		object.Code, object.Type, object.Status, object.CurrentLocationID,
		object.AssignedTo, object.RFIDTag, object.Metadata, object.Version,
		object.CreatedAt, object.UpdatedAt)
	if err != nil {
		return nil, nil, handleError("create object", err)
	}

	event, err := insertEvent(ctx, tx, object.Code, 1, draft)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, handleError("commit create object", err)
	}

	created := *object
	return &created, event, nil
}

func (r *Repository) GetObject(ctx context.Context, code string) (*custody.TrackedObject, error) {
	query := `SELECT ` + objectColumns + ` FROM tracked_object WHERE code = $1`
	object, err := scanObject(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, custody.ErrObjectNotFound
		}
		return nil, handleError("get object", err)
	}
	return object, nil
}

func (r *Repository) GetObjectByTag(ctx context.Context, tag string) (*custody.TrackedObject, error) {
	query := `
		SELECT ` + objectColumns + ` FROM tracked_object
		WHERE rfid_tag = $1 AND status NOT IN ('disposed', 'retired')`
	object, err := scanObject(r.db.QueryRow(ctx, query, tag))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, custody.ErrObjectNotFound
		}
		return nil, handleError("get object by tag", err)
	}
	return object, nil
}

func (r *Repository) ListObjectCodes(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT code FROM tracked_object ORDER BY code`)
	if err != nil {
		return nil, handleError("list object codes", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, handleError("scan object code", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, handleError("iterate object codes", err)
	}
	return codes, nil
}

func (r *Repository) ApplyProjection(ctx context.Context, code string, delta custody.Delta, expectedVersion int64, drafts []custody.EventDraft) (*custody.TrackedObject, []*custody.CustodyEvent, error) {
	if len(drafts) == 0 {
		return nil, nil, fmt.Errorf("projection update requires at least one event draft")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, handleError("begin apply projection", err)
	}
	defer tx.Rollback(ctx)

	// Row lock pairs with the in-process guard; the version check below
	// rejects any writer that reached here without holding it.
	query := `SELECT ` + objectColumns + ` FROM tracked_object WHERE code = $1 FOR UPDATE`
	object, err := scanObject(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, custody.ErrObjectNotFound
		}
		return nil, nil, handleError("lock object", err)
	}
	if object.Version != expectedVersion {
		return nil, nil, fmt.Errorf("%w: expected version %d, found %d", custody.ErrVersionConflict, expectedVersion, object.Version)
	}

	if delta.SetLocation {
		object.CurrentLocationID = delta.LocationID
	}
	if delta.SetAssignee {
		object.AssignedTo = delta.Assignee
	}
	if delta.SetTag {
		object.RFIDTag = delta.Tag
	}
	if delta.SetStatus {
		object.Status = delta.Status
	}
	object.Version++
	object.UpdatedAt = drafts[len(drafts)-1].OccurredAt

	update := `
		UPDATE tracked_object SET
			status = $2, current_location_id = $3, assigned_to = $4,
			rfid_tag = $5, version = $6, updated_at = $7
		WHERE code = $1`
	_, err = tx.Exec(ctx, update, code,
		object.Status, object.CurrentLocationID, object.AssignedTo,
		object.RFIDTag, object.Version, object.UpdatedAt)
	if err != nil {
		return nil, nil, handleError("update projection", err)
	}

	var lastSeq int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM custody_event WHERE object_code = $1`, code).Scan(&lastSeq)
	if err != nil {
		return nil, nil, handleError("read event sequence", err)
	}

	events := make([]*custody.CustodyEvent, 0, len(drafts))
	for i, draft := range drafts {
		event, err := insertEvent(ctx, tx, code, lastSeq+int64(i)+1, draft)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, event)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, handleError("commit apply projection", err)
	}

	return object, events, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, code string, seq int64, draft custody.EventDraft) (*custody.CustodyEvent, error) {
	event := &custody.CustodyEvent{
		ID:             draft.ID,
		ObjectCode:     code,
		Seq:            seq,
		Kind:           draft.Kind,
		ActorID:        draft.ActorID,
		FromLocationID: draft.FromLocationID,
		ToLocationID:   draft.ToLocationID,
		FromAssignee:   draft.FromAssignee,
		ToAssignee:     draft.ToAssignee,
		FromStatus:     draft.FromStatus,
		ToStatus:       draft.ToStatus,
		FromTag:        draft.FromTag,
		ToTag:          draft.ToTag,
		OccurredAt:     draft.OccurredAt,
		CorrelationID:  draft.CorrelationID,
	}

	query := `
		INSERT INTO custody_event (
			id, object_code, seq, kind, actor_id,
			from_location_id, to_location_id, from_assignee, to_assignee,
			from_status, to_status, from_tag, to_tag, occurred_at, correlation_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := tx.Exec(ctx, query,
		event.ID, event.ObjectCode, event.Seq, event.Kind, event.ActorID,
		event.FromLocationID, event.ToLocationID, event.FromAssignee, event.ToAssignee,
		nullableStatus(event.FromStatus), nullableStatus(event.ToStatus),
		event.FromTag, event.ToTag, event.OccurredAt, event.CorrelationID)
	if err != nil {
		return nil, handleError("append custody event", err)
	}
	return event, nil
}

func nullableStatus(status custody.ObjectStatus) *string {
	if status == "" {
		return nil
	}
	s := string(status)
	return &s
}

// Custody ledger operations

func (r *Repository) ListEvents(ctx context.Context, req custody.HistoryRequest) ([]*custody.CustodyEvent, error) {
	if _, err := r.GetObject(ctx, req.ObjectCode); err != nil {
		return nil, err
	}

	query := `
		SELECT id, object_code, seq, kind, actor_id,
		       from_location_id, to_location_id, from_assignee, to_assignee,
		       COALESCE(from_status, ''), COALESCE(to_status, ''),
		       from_tag, to_tag, occurred_at, correlation_id
		FROM custody_event
		WHERE object_code = $1`
	args := []interface{}{req.ObjectCode}

	if req.AsOf != nil {
		args = append(args, *req.AsOf)
		query += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}
	query += " ORDER BY seq ASC"
	if req.Limit != nil && *req.Limit > 0 {
		args = append(args, *req.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if req.Offset != nil && *req.Offset > 0 {
		args = append(args, *req.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handleError("list events", err)
	}
	defer rows.Close()

	var events []*custody.CustodyEvent
	for rows.Next() {
		var event custody.CustodyEvent
		err := rows.Scan(
			&event.ID, &event.ObjectCode, &event.Seq, &event.Kind, &event.ActorID,
			&event.FromLocationID, &event.ToLocationID, &event.FromAssignee, &event.ToAssignee,
			&event.FromStatus, &event.ToStatus,
			&event.FromTag, &event.ToTag, &event.OccurredAt, &event.CorrelationID)
		if err != nil {
			return nil, handleError("scan event", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, handleError("iterate events", err)
	}

	return events, nil
}

// Location operations

func (r *Repository) CreateLocation(ctx context.Context, location *custody.Location) error {
	query := `
		INSERT INTO location (id, name, parent_id, capacity_hint, retired, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, query,
		location.ID, location.Name, location.ParentID,
		location.CapacityHint, location.Retired, location.CreatedAt)
	if err != nil {
		return handleError("create location", err)
	}
	return nil
}

func (r *Repository) GetLocation(ctx context.Context, id uuid.UUID) (*custody.Location, error) {
	query := `
		SELECT id, name, parent_id, capacity_hint, retired, created_at
		FROM location WHERE id = $1`

	var location custody.Location
	err := r.db.QueryRow(ctx, query, id).Scan(
		&location.ID, &location.Name, &location.ParentID,
		&location.CapacityHint, &location.Retired, &location.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, custody.ErrLocationNotFound
		}
		return nil, handleError("get location", err)
	}
	return &location, nil
}

// Attachment metadata operations

func (r *Repository) CreateAttachment(ctx context.Context, attachment *custody.Attachment) error {
	query := `
		INSERT INTO attachment (
			id, object_code, file_name, mime_type, size_bytes,
			store_name, blob_key, uploaded_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		attachment.ID, attachment.ObjectCode, attachment.FileName, attachment.MimeType,
		attachment.SizeBytes, attachment.StoreName, attachment.BlobKey,
		attachment.UploadedBy, attachment.CreatedAt)
	if err != nil {
		return handleError("create attachment", err)
	}
	return nil
}

func (r *Repository) GetAttachment(ctx context.Context, id uuid.UUID) (*custody.Attachment, error) {
	query := `
		SELECT id, object_code, file_name, mime_type, size_bytes,
		       store_name, blob_key, uploaded_by, created_at
		FROM attachment WHERE id = $1`

	var attachment custody.Attachment
	err := r.db.QueryRow(ctx, query, id).Scan(
		&attachment.ID, &attachment.ObjectCode, &attachment.FileName, &attachment.MimeType,
		&attachment.SizeBytes, &attachment.StoreName, &attachment.BlobKey,
		&attachment.UploadedBy, &attachment.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, custody.ErrAttachmentNotFound
		}
		return nil, handleError("get attachment", err)
	}
	return &attachment, nil
}

func (r *Repository) ListAttachments(ctx context.Context, objectCode string) ([]*custody.Attachment, error) {
	query := `
		SELECT id, object_code, file_name, mime_type, size_bytes,
		       store_name, blob_key, uploaded_by, created_at
		FROM attachment WHERE object_code = $1 ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, objectCode)
	if err != nil {
		return nil, handleError("list attachments", err)
	}
	defer rows.Close()

	var attachments []*custody.Attachment
	for rows.Next() {
		var attachment custody.Attachment
		err := rows.Scan(
			&attachment.ID, &attachment.ObjectCode, &attachment.FileName, &attachment.MimeType,
			&attachment.SizeBytes, &attachment.StoreName, &attachment.BlobKey,
			&attachment.UploadedBy, &attachment.CreatedAt)
		if err != nil {
			return nil, handleError("scan attachment", err)
		}
		attachments = append(attachments, &attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, handleError("iterate attachments", err)
	}
	return attachments, nil
}
