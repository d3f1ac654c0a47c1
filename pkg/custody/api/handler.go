package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/recordsdesk/custody/pkg/custody"
)

// Handler exposes the custody service over HTTP. It owns the wire format
// and the mapping of the core error taxonomy to status codes; the core owns
// everything else.
type Handler struct {
	service custody.Service
	logger  *slog.Logger
}

// NewHandler creates a new custody HTTP handler
func NewHandler(service custody.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns the routes for tracked objects. Mount behind ActorAuth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/objects", h.CreateObject)
	r.Get("/objects/{code}", h.GetObject)
	r.Post("/objects/{code}/move", h.MoveObject)
	r.Post("/objects/{code}/assign", h.AssignObject)
	r.Post("/objects/{code}/tag", h.TagObject)
	r.Post("/objects/{code}/status", h.ChangeStatus)
	r.Get("/objects/{code}/history", h.GetHistory)
	r.Get("/objects/{code}/state", h.ReconstructAt)
	r.Get("/objects/{code}/consistency", h.VerifyConsistency)

	r.Post("/objects/{code}/attachments", h.AttachFile)
	r.Get("/objects/{code}/attachments", h.ListAttachments)
	r.Get("/attachments/{id}", h.DownloadAttachment)

	r.Get("/locations/{id}", h.GetLocation)

	return r
}

// Request bodies

type createObjectBody struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	LocationID *uuid.UUID             `json:"location_id,omitempty"`
	AssignTo   *string                `json:"assign_to,omitempty"`
	RFIDTag    *string                `json:"rfid_tag,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type moveObjectBody struct {
	ToLocationID uuid.UUID `json:"to_location_id"`
	AssignTo     *string   `json:"assign_to,omitempty"`
}

type assignObjectBody struct {
	ToActorID *string `json:"to_actor_id"`
}

type tagObjectBody struct {
	RFIDTag *string `json:"rfid_tag"`
}

type changeStatusBody struct {
	NewStatus string `json:"new_status"`
}

// Handlers

func (h *Handler) CreateObject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, custody.ErrForbidden)
		return
	}

	var body createObjectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, r, "invalid request body")
		return
	}

	object, err := h.service.CreateObject(r.Context(), custody.CreateObjectRequest{
		Code:       body.Code,
		Type:       custody.ObjectType(body.Type),
		ActorID:    actorID,
		LocationID: body.LocationID,
		AssignTo:   body.AssignTo,
		RFIDTag:    body.RFIDTag,
		Metadata:   body.Metadata,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, object)
}

func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	object, err := h.service.GetObject(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, object)
}

func (h *Handler) MoveObject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, custody.ErrForbidden)
		return
	}

	var body moveObjectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, r, "invalid request body")
		return
	}

	object, err := h.service.MoveObject(r.Context(), custody.MoveObjectRequest{
		ObjectCode:   chi.URLParam(r, "code"),
		ToLocationID: body.ToLocationID,
		ActorID:      actorID,
		AssignTo:     body.AssignTo,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, object)
}

func (h *Handler) AssignObject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, custody.ErrForbidden)
		return
	}

	var body assignObjectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, r, "invalid request body")
		return
	}

	object, err := h.service.AssignObject(r.Context(), custody.AssignObjectRequest{
		ObjectCode: chi.URLParam(r, "code"),
		ToActorID:  body.ToActorID,
		ActorID:    actorID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, object)
}

func (h *Handler) TagObject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, custody.ErrForbidden)
		return
	}

	var body tagObjectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, r, "invalid request body")
		return
	}

	object, err := h.service.TagObject(r.Context(), custody.TagObjectRequest{
		ObjectCode: chi.URLParam(r, "code"),
		RFIDTag:    body.RFIDTag,
		ActorID:    actorID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, object)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, custody.ErrForbidden)
		return
	}

	var body changeStatusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, r, "invalid request body")
		return
	}

	object, err := h.service.ChangeStatus(r.Context(), custody.ChangeStatusRequest{
		ObjectCode: chi.URLParam(r, "code"),
		NewStatus:  custody.ObjectStatus(body.NewStatus),
		ActorID:    actorID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, object)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	req := custody.HistoryRequest{ObjectCode: chi.URLParam(r, "code")}

	if v := r.URL.Query().Get("as_of"); v != "" {
		asOf, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			h.badRequest(w, r, "as_of must be RFC 3339")
			return
		}
		req.AsOf = &asOf
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			h.badRequest(w, r, "limit must be a positive integer")
			return
		}
		req.Limit = &limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			h.badRequest(w, r, "offset must be a non-negative integer")
			return
		}
		req.Offset = &offset
	}

	events, err := h.service.GetHistory(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"events": events})
}

func (h *Handler) ReconstructAt(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			h.badRequest(w, r, "as_of must be RFC 3339")
			return
		}
		asOf = parsed
	}

	projection, err := h.service.ReconstructAt(r.Context(), chi.URLParam(r, "code"), asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, projection)
}

func (h *Handler) VerifyConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.VerifyConsistency(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

func (h *Handler) AttachFile(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, custody.ErrForbidden)
		return
	}

	fileName := r.URL.Query().Get("file_name")
	if fileName == "" {
		h.badRequest(w, r, "file_name query parameter is required")
		return
	}

	attachment, err := h.service.AttachFile(r.Context(), custody.AttachFileRequest{
		ObjectCode: chi.URLParam(r, "code"),
		FileName:   fileName,
		MimeType:   r.Header.Get("Content-Type"),
		ActorID:    actorID,
	}, r.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, attachment)
}

func (h *Handler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	attachments, err := h.service.ListAttachments(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"attachments": attachments})
}

func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.badRequest(w, r, "invalid attachment id")
		return
	}

	// Stores that can presign hand the download off to them directly.
	url, err := h.service.GetAttachmentURL(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	attachment, reader, err := h.service.OpenAttachment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer reader.Close()

	if attachment.MimeType != "" {
		w.Header().Set("Content-Type", attachment.MimeType)
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(attachment.FileName))
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("attachment download interrupted", "attachment_id", id, "err", err)
	}
}

func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.badRequest(w, r, "invalid location id")
		return
	}

	location, err := h.service.ResolveLocation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, location)
}

// Error mapping

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, map[string]string{"error": "validation", "message": message})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := custody.ErrorCode(err)
	status := statusFor(code)

	if status >= http.StatusInternalServerError {
		h.logger.Error("custody operation failed", "code", code, "err", err)
	}
	if code == "lock_timeout" {
		w.Header().Set("Retry-After", "1")
	}

	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": code, "message": err.Error()})
}

func statusFor(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "duplicate_code", "duplicate_tag", "version_conflict", "invalid_transition":
		return http.StatusConflict
	case "invalid_location", "invalid_actor", "validation":
		return http.StatusBadRequest
	case "forbidden":
		return http.StatusForbidden
	case "lock_timeout":
		return http.StatusServiceUnavailable
	case "sequence_conflict":
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
