package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/husainf4l/ravoxai/internal/audit"
	"github.com/husainf4l/ravoxai/internal/auth"
	"github.com/husainf4l/ravoxai/internal/calls"
	"github.com/husainf4l/ravoxai/internal/events"
	"github.com/husainf4l/ravoxai/internal/maintenance"
	"github.com/husainf4l/ravoxai/internal/media"
	"github.com/husainf4l/ravoxai/internal/reporting"
	"github.com/husainf4l/ravoxai/internal/voice"
	"github.com/husainf4l/ravoxai/pkg/logger"
)

const maxInlineUpload = 64 << 20 // 64 MiB

// EventPublisher enqueues lifecycle callbacks for ordered consumption.
// Implemented by events.Queue.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls       *calls.Service
	Media       *media.Resolver
	Reports     *reporting.Service
	History     *audit.Service
	Maintenance *maintenance.Service
	Events      EventPublisher

	Auth *auth.Manager
	// BootstrapSecret gates the token mint endpoint.
	BootstrapSecret string
}

// respondError translates the service error taxonomy to HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrValidation), errors.Is(err, reporting.ErrInvalidRequest), errors.Is(err, audit.ErrInvalidEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrInvalidTransition), errors.Is(err, media.ErrMediaExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrUpstream):
		logger.FromGin(c).Error("upstream failure", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		// The client only sees "internal error"; keep the cause in the log.
		logger.FromGin(c).Error("unhandled error", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Auth ---

type tokenRequest struct {
	Subject         string `json:"subject"`
	Role            string `json:"role"`
	BootstrapSecret string `json:"bootstrap_secret"`
}

// IssueToken mints an access token. It is gated by a shared bootstrap secret
// so deployments without an identity provider can still authenticate callers.
func (h Handlers) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if h.BootstrapSecret == "" || req.BootstrapSecret != h.BootstrapSecret {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bootstrap secret"})
		return
	}
	tok, err := h.Auth.IssueAccess(time.Now(), req.Subject, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok, "token_type": "bearer"})
}

// --- Calls ---

// CreateCall accepts the call for placement. The response returns before the
// voice platform is contacted; poll the record for progress.
func (h Handlers) CreateCall(c *gin.Context) {
	var req calls.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rec, err := h.Calls.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"call_id":  rec.CallID,
		"status":   rec.Status,
		"accepted": true,
	})
}

func (h Handlers) ListCalls(c *gin.Context) {
	var filter calls.ListFilter
	filter.Status = calls.Status(c.Query("status"))
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		filter.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
			return
		}
		filter.Offset = n
	}

	recs, err := h.Calls.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs, "count": len(recs)})
}

func (h Handlers) GetCall(c *gin.Context) {
	rec, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type updateCallRequest struct {
	Status     string     `json:"status"`
	Reason     string     `json:"reason"`
	OccurredAt *time.Time `json:"occurred_at"`

	ConversationTranscript *string `json:"conversation_transcript"`
	ConversationSummary    *string `json:"conversation_summary"`
}

// UpdateCall applies an explicit status transition and/or stores conversation
// text on the record.
func (h Handlers) UpdateCall(c *gin.Context) {
	callID := c.Param("call_id")

	var req updateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Status == "" && req.ConversationTranscript == nil && req.ConversationSummary == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	var rec calls.CallRecord
	var err error
	if req.Status != "" {
		at := time.Now()
		if req.OccurredAt != nil {
			at = *req.OccurredAt
		}
		rec, err = h.Calls.Transition(c.Request.Context(), callID, calls.TransitionRequest{
			Status: calls.Status(req.Status),
			At:     at,
			Reason: req.Reason,
			Source: calls.SourceAPI,
		})
		if err != nil {
			respondError(c, err)
			return
		}
	}
	if req.ConversationTranscript != nil || req.ConversationSummary != nil {
		rec, err = h.Calls.RecordConversation(c.Request.Context(), callID, req.ConversationTranscript, req.ConversationSummary)
		if err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, rec)
}

// CallEvents returns the transition history of one call, oldest first.
func (h Handlers) CallEvents(c *gin.Context) {
	callID := c.Param("call_id")
	// 404 for unknown calls rather than an empty history.
	if _, err := h.Calls.Get(c.Request.Context(), callID); err != nil {
		respondError(c, err)
		return
	}
	evs, err := h.History.ListByCall(c.Request.Context(), callID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "events": evs, "count": len(evs)})
}

// --- Media ---

type attachMediaJSON struct {
	Kind    string `json:"kind"`
	S3Key   string `json:"s3_key"`
	Replace bool   `json:"replace"`
}

// AttachMedia accepts either a multipart upload (file + kind/replace form
// fields) or a JSON body referencing an object already in storage.
func (h Handlers) AttachMedia(c *gin.Context) {
	callID := c.Param("call_id")
	req := media.AttachRequest{CallID: callID}

	if c.ContentType() == "application/json" {
		var body attachMediaJSON
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		req.Kind = media.Kind(body.Kind)
		req.Key = body.S3Key
		req.Replace = body.Replace
	} else {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
			return
		}
		defer file.Close()
		// Read one byte past the cap so oversize uploads are rejected
		// instead of silently truncated.
		content, err := io.ReadAll(io.LimitReader(file, maxInlineUpload+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reading upload failed"})
			return
		}
		if len(content) > maxInlineUpload {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds the inline size limit"})
			return
		}
		req.Kind = media.Kind(c.PostForm("kind"))
		req.Content = content
		req.Filename = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
		req.Replace = c.PostForm("replace") == "true"
	}

	rec, err := h.Media.Attach(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) MediaSummary(c *gin.Context) {
	sum, err := h.Media.Summary(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) RecordingURL(c *gin.Context) {
	var ttl time.Duration
	if raw := c.Query("expires_in"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "expires_in must be a positive integer"})
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	url, err := h.Media.PresignRecording(c.Request.Context(), c.Param("call_id"), ttl)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": c.Param("call_id"), "url": url})
}

// --- Webhooks ---

// VoiceWebhook enqueues a platform lifecycle callback. The transition itself
// is applied by the stream consumer so callbacks for the same call are
// processed in arrival order.
func (h Handlers) VoiceWebhook(c *gin.Context) {
	var cb voice.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	status, err := cb.Normalize()
	if err != nil {
		respondError(c, err)
		return
	}

	err = h.Events.Publish(c.Request.Context(), events.Event{
		CallID:     cb.CallID,
		RoomName:   cb.RoomName,
		Status:     status,
		OccurredAt: cb.OccurredAt,
		Reason:     cb.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

// --- Reports ---

func (h Handlers) CallsSummaryReport(c *gin.Context) {
	var req reporting.CallsSummaryRequest
	var err error
	if req.Range.From, err = parseTimeQuery(c.Query("from")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	if req.Range.To, err = parseTimeQuery(c.Query("to")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}
	if req.Range.To.IsZero() {
		req.Range.To = time.Now()
	}
	if req.Range.From.IsZero() {
		req.Range.From = req.Range.To.Add(-24 * time.Hour)
	}

	sum, err := h.Reports.CallsSummary(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func parseTimeQuery(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// --- Operations ---

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StatusCheck probes all backing services and reports the last task runs.
func (h Handlers) StatusCheck(c *gin.Context) {
	health := h.Maintenance.HealthCheck(c.Request.Context())
	code := http.StatusOK
	if !health.OK() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"health": health, "tasks": h.Maintenance.Status()})
}

func (h Handlers) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.Maintenance.Status()})
}

func (h Handlers) RunSweep(c *gin.Context) {
	logTaskTrigger(c, "sweep")
	swept, err := h.Maintenance.SweepStale(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "swept": swept})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

func (h Handlers) RunCleanup(c *gin.Context) {
	logTaskTrigger(c, "cleanup")
	removed, err := h.Maintenance.Cleanup(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "removed": removed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h Handlers) RunHealthCheck(c *gin.Context) {
	logTaskTrigger(c, "health_check")
	health := h.Maintenance.HealthCheck(c.Request.Context())
	if !health.OK() {
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	c.JSON(http.StatusOK, health)
}

// logTaskTrigger records who ran a maintenance task by hand.
func logTaskTrigger(c *gin.Context, task string) {
	subject, err := auth.Subject(c.Request.Context())
	if err != nil {
		subject = "unknown"
	}
	logger.FromGin(c).Info("maintenance task triggered", "task", task, "subject", subject)
}
