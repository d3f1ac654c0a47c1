package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordsdesk/custody/pkg/custody"
	"github.com/recordsdesk/custody/pkg/custody/repo/memory"
)

func newObject(code string) *custody.TrackedObject {
	now := time.Now().UTC()
	return &custody.TrackedObject{
		Code:      code,
		Type:      custody.ObjectTypeEvidence,
		Status:    custody.ObjectStatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func createDraft(actorID string) custody.EventDraft {
	return custody.EventDraft{
		ID:            uuid.New(),
		Kind:          custody.EventKindCreate,
		ActorID:       actorID,
		ToStatus:      custody.ObjectStatusActive,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New(),
	}
}

func TestCreateObjectAppendsCreateEvent(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	object, event, err := repo.CreateObject(ctx, newObject("EV-0001"), createDraft("clerk-1"))
	require.NoError(t, err)
	assert.Equal(t, "EV-0001", object.Code)
	assert.Equal(t, int64(1), event.Seq)
	assert.Equal(t, custody.EventKindCreate, event.Kind)

	_, _, err = repo.CreateObject(ctx, newObject("EV-0001"), createDraft("clerk-2"))
	assert.ErrorIs(t, err, custody.ErrDuplicateCode)
}

func TestCreateObjectDuplicateTag(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	tag := "TAG-7"
	first := newObject("EV-0001")
	first.RFIDTag = &tag
	_, _, err := repo.CreateObject(ctx, first, createDraft("clerk-1"))
	require.NoError(t, err)

	second := newObject("EV-0002")
	second.RFIDTag = &tag
	_, _, err = repo.CreateObject(ctx, second, createDraft("clerk-1"))
	assert.ErrorIs(t, err, custody.ErrDuplicateTag)
}

func TestGetObjectByTag(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	tag := "TAG-7"
	object := newObject("EV-0001")
	object.RFIDTag = &tag
	_, _, err := repo.CreateObject(ctx, object, createDraft("clerk-1"))
	require.NoError(t, err)

	holder, err := repo.GetObjectByTag(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, "EV-0001", holder.Code)

	_, err = repo.GetObjectByTag(ctx, "TAG-UNBOUND")
	assert.ErrorIs(t, err, custody.ErrObjectNotFound)

	// A terminal holder does not count.
	_, _, err = repo.ApplyProjection(ctx, "EV-0001",
		custody.Delta{SetStatus: true, Status: custody.ObjectStatusRetired}, 1,
		[]custody.EventDraft{{
			ID:         uuid.New(),
			Kind:       custody.EventKindRetire,
			ActorID:    "clerk-1",
			FromStatus: custody.ObjectStatusActive,
			ToStatus:   custody.ObjectStatusRetired,
			OccurredAt: time.Now().UTC(),
		}})
	require.NoError(t, err)

	_, err = repo.GetObjectByTag(ctx, tag)
	assert.ErrorIs(t, err, custody.ErrObjectNotFound)
}

func TestApplyProjectionVersionCheck(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	_, _, err := repo.CreateObject(ctx, newObject("EV-0001"), createDraft("clerk-1"))
	require.NoError(t, err)

	officer := "officer-9"
	drafts := []custody.EventDraft{{
		ID:         uuid.New(),
		Kind:       custody.EventKindAssign,
		ActorID:    "clerk-1",
		ToAssignee: &officer,
		OccurredAt: time.Now().UTC(),
	}}

	updated, events, err := repo.ApplyProjection(ctx, "EV-0001",
		custody.Delta{SetAssignee: true, Assignee: &officer}, 1, drafts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Seq)

	// Stale expected version is refused and nothing is appended.
	_, _, err = repo.ApplyProjection(ctx, "EV-0001",
		custody.Delta{SetAssignee: true, Assignee: nil}, 1, drafts)
	assert.ErrorIs(t, err, custody.ErrVersionConflict)

	chain, err := repo.ListEvents(ctx, custody.HistoryRequest{ObjectCode: "EV-0001"})
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestApplyProjectionDuplicateTag(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	tag := "TAG-7"
	first := newObject("EV-0001")
	first.RFIDTag = &tag
	_, _, err := repo.CreateObject(ctx, first, createDraft("clerk-1"))
	require.NoError(t, err)

	_, _, err = repo.CreateObject(ctx, newObject("EV-0002"), createDraft("clerk-1"))
	require.NoError(t, err)

	// Binding a tag already held by another non-terminal object is refused
	// even when the caller skipped the coordinator's pre-check.
	_, _, err = repo.ApplyProjection(ctx, "EV-0002",
		custody.Delta{SetTag: true, Tag: &tag}, 1,
		[]custody.EventDraft{{
			ID:         uuid.New(),
			Kind:       custody.EventKindTag,
			ActorID:    "clerk-1",
			ToTag:      &tag,
			OccurredAt: time.Now().UTC(),
		}})
	assert.ErrorIs(t, err, custody.ErrDuplicateTag)

	chain, err := repo.ListEvents(ctx, custody.HistoryRequest{ObjectCode: "EV-0002"})
	require.NoError(t, err)
	assert.Len(t, chain, 1)

	// Re-binding the holder's own tag stays allowed.
	_, _, err = repo.ApplyProjection(ctx, "EV-0001",
		custody.Delta{SetTag: true, Tag: &tag}, 1,
		[]custody.EventDraft{{
			ID:         uuid.New(),
			Kind:       custody.EventKindTag,
			ActorID:    "clerk-1",
			ToTag:      &tag,
			OccurredAt: time.Now().UTC(),
		}})
	assert.NoError(t, err)
}

func TestApplyProjectionMultiDraftSequencing(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	_, _, err := repo.CreateObject(ctx, newObject("EV-0001"), createDraft("clerk-1"))
	require.NoError(t, err)

	locationID := uuid.New()
	officer := "officer-9"
	correlation := uuid.New()
	drafts := []custody.EventDraft{
		{
			ID:            uuid.New(),
			Kind:          custody.EventKindMove,
			ActorID:       "clerk-1",
			ToLocationID:  &locationID,
			OccurredAt:    time.Now().UTC(),
			CorrelationID: correlation,
		},
		{
			ID:            uuid.New(),
			Kind:          custody.EventKindAssign,
			ActorID:       "clerk-1",
			ToAssignee:    &officer,
			OccurredAt:    time.Now().UTC(),
			CorrelationID: correlation,
		},
	}

	_, events, err := repo.ApplyProjection(ctx, "EV-0001", custody.Delta{
		SetLocation: true, LocationID: &locationID,
		SetAssignee: true, Assignee: &officer,
	}, 1, drafts)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
	assert.Equal(t, correlation, events[0].CorrelationID)
	assert.Equal(t, correlation, events[1].CorrelationID)
}

func TestListEventsFiltering(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	draft := createDraft("clerk-1")
	draft.OccurredAt = base
	_, _, err := repo.CreateObject(ctx, newObject("EV-0001"), draft)
	require.NoError(t, err)

	officer := "officer-9"
	for i := 1; i <= 3; i++ {
		_, _, err = repo.ApplyProjection(ctx, "EV-0001",
			custody.Delta{SetAssignee: true, Assignee: &officer}, int64(i),
			[]custody.EventDraft{{
				ID:         uuid.New(),
				Kind:       custody.EventKindAssign,
				ActorID:    "clerk-1",
				ToAssignee: &officer,
				OccurredAt: base.Add(time.Duration(i) * time.Hour),
			}})
		require.NoError(t, err)
	}

	asOf := base.Add(90 * time.Minute)
	events, err := repo.ListEvents(ctx, custody.HistoryRequest{ObjectCode: "EV-0001", AsOf: &asOf})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	limit, offset := 2, 1
	events, err = repo.ListEvents(ctx, custody.HistoryRequest{ObjectCode: "EV-0001", Limit: &limit, Offset: &offset})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)

	offset = 10
	events, err = repo.ListEvents(ctx, custody.HistoryRequest{ObjectCode: "EV-0001", Offset: &offset})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = repo.ListEvents(ctx, custody.HistoryRequest{ObjectCode: "NOPE"})
	assert.ErrorIs(t, err, custody.ErrObjectNotFound)
}

func TestLocations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	zone := &custody.Location{ID: uuid.New(), Name: "Zone A", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateLocation(ctx, zone))

	box := &custody.Location{ID: uuid.New(), Name: "Box A-1", ParentID: &zone.ID, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateLocation(ctx, box))

	got, err := repo.GetLocation(ctx, box.ID)
	require.NoError(t, err)
	assert.Equal(t, "Box A-1", got.Name)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, zone.ID, *got.ParentID)

	missingParent := uuid.New()
	orphan := &custody.Location{ID: uuid.New(), Name: "Orphan", ParentID: &missingParent}
	assert.ErrorIs(t, repo.CreateLocation(ctx, orphan), custody.ErrLocationNotFound)

	_, err = repo.GetLocation(ctx, uuid.New())
	assert.ErrorIs(t, err, custody.ErrLocationNotFound)
}

func TestAttachments(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	_, _, err := repo.CreateObject(ctx, newObject("EV-0001"), createDraft("clerk-1"))
	require.NoError(t, err)

	attachment := &custody.Attachment{
		ID:         uuid.New(),
		ObjectCode: "EV-0001",
		FileName:   "intake.jpg",
		StoreName:  "memory",
		BlobKey:    "A/EV-0001/x/intake.jpg",
		UploadedBy: "clerk-1",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.CreateAttachment(ctx, attachment))

	got, err := repo.GetAttachment(ctx, attachment.ID)
	require.NoError(t, err)
	assert.Equal(t, "intake.jpg", got.FileName)

	list, err := repo.ListAttachments(ctx, "EV-0001")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetAttachment(ctx, uuid.New())
	assert.ErrorIs(t, err, custody.ErrAttachmentNotFound)

	orphan := &custody.Attachment{ID: uuid.New(), ObjectCode: "NOPE"}
	assert.ErrorIs(t, repo.CreateAttachment(ctx, orphan), custody.ErrObjectNotFound)
}

func TestReadsReturnCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	object := newObject("EV-0001")
	object.Metadata = map[string]interface{}{"case": "24-117"}
	_, _, err := repo.CreateObject(ctx, object, createDraft("clerk-1"))
	require.NoError(t, err)

	first, err := repo.GetObject(ctx, "EV-0001")
	require.NoError(t, err)
	first.Status = custody.ObjectStatusDisposed
	first.Metadata["case"] = "tampered"

	second, err := repo.GetObject(ctx, "EV-0001")
	require.NoError(t, err)
	assert.Equal(t, custody.ObjectStatusActive, second.Status)
	assert.Equal(t, "24-117", second.Metadata["case"])
}
