package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/glonboarding/hr-lambda-telnyx/internal/client"
	"github.com/glonboarding/hr-lambda-telnyx/internal/model"
	"github.com/glonboarding/hr-lambda-telnyx/internal/repo"
	"github.com/glonboarding/hr-lambda-telnyx/internal/scheduler"
	"github.com/glonboarding/hr-lambda-telnyx/internal/service"
)

type BurstDispatcher interface {
	DispatchBurst(ctx context.Context, orgID string) (model.BurstSummary, error)
}

type InboundProcessor interface {
	ProcessInbound(ctx context.Context, ev model.WebhookEvent) (service.Ack, error)
}

type MessageGateway interface {
	Send(ctx context.Context, req client.SendRequest) (*client.Response, error)
	SendGroupMMS(ctx context.Context, req client.SendRequest) (*client.Response, error)
}

type Handler struct {
	sched    *scheduler.Scheduler
	messages repo.MessageRepository
	bursts   BurstDispatcher
	inbound  InboundProcessor
	gateway  MessageGateway
}

func NewHandler(
	s *scheduler.Scheduler,
	messages repo.MessageRepository,
	bursts BurstDispatcher,
	inbound InboundProcessor,
	gateway MessageGateway,
) *Handler {
	return &Handler{
		sched:    s,
		messages: messages,
		bursts:   bursts,
		inbound:  inbound,
		gateway:  gateway,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(c *gin.Context) {
	h.sched.Start()
	c.JSON(http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStop(c *gin.Context) {
	h.sched.Stop()
	c.JSON(http.StatusOK, h.sched.Status())
}

type burstRequest struct {
	OrgID string `json:"org_id"`
}

// SendBurst runs one burst for the org named in the body.
func (h *Handler) SendBurst(c *gin.Context) {
	var req burstRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid JSON body"})
			return
		}
	}
	if req.OrgID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Missing org_id"})
		return
	}

	summary, err := h.bursts.DispatchBurst(c.Request.Context(), req.OrgID)
	if err != nil {
		if errors.Is(err, service.ErrBurstInProgress) {
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": err.Error()})
			return
		}
		slog.Error("burst handler error", "org_id", req.OrgID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": summary})
}

// Inbound is the messaging webhook. Telnyx retries anything but a 2xx, so
// only store faults answer 500.
func (h *Handler) Inbound(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing body"})
		return
	}

	var ev model.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	ack, err := h.inbound.ProcessInbound(c.Request.Context(), ev)
	if err != nil {
		slog.Error("inbound handler error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, ack)
}

// sendRequest accepts "to" as a single number or a list of numbers.
type sendRequest struct {
	To        json.RawMessage `json:"to"`
	From      string          `json:"from"`
	Text      string          `json:"text"`
	MediaURLs []string        `json:"mediaUrls"`
}

func (r sendRequest) recipients() []string {
	var one string
	if err := json.Unmarshal(r.To, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}

	var many []string
	if err := json.Unmarshal(r.To, &many); err != nil {
		return nil
	}
	out := many[:0]
	for _, n := range many {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

type sendKind int

const (
	kindSMS sendKind = iota
	kindMMS
	kindGroupMMS
)

func (h *Handler) SendSMS(c *gin.Context)      { h.send(c, kindSMS) }
func (h *Handler) SendMMS(c *gin.Context)      { h.send(c, kindMMS) }
func (h *Handler) SendGroupMMS(c *gin.Context) { h.send(c, kindGroupMMS) }

func (h *Handler) send(c *gin.Context, kind sendKind) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid JSON body"})
		return
	}

	to := req.recipients()
	if len(to) == 0 || req.From == "" || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Missing required fields: to, from, text"})
		return
	}

	isMMS := len(req.MediaURLs) > 0
	switch {
	case kind == kindSMS && isMMS:
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "MMS payload not allowed on /v1/sms (remove mediaUrls)"})
		return
	case kind != kindSMS && !isMMS:
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "mediaUrls[] required for MMS"})
		return
	}

	out := client.SendRequest{To: to, From: req.From, Text: req.Text, MediaURLs: req.MediaURLs}

	var (
		resp *client.Response
		err  error
	)
	if kind == kindGroupMMS {
		resp, err = h.gateway.SendGroupMMS(c.Request.Context(), out)
	} else {
		resp, err = h.gateway.Send(c.Request.Context(), out)
	}

	if err != nil {
		slog.Warn("gateway send failed", "recipients", len(to), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !resp.OK {
		status := resp.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"ok": false, "error": resp.Error})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": resp.Body})
}

func (h *Handler) ListSentMessages(c *gin.Context) {
	orgID := c.Query("org_id")
	if orgID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Missing org_id"})
		return
	}
	limit := parseInt(c.Query("limit"), 50)
	offset := parseInt(c.Query("offset"), 0)

	items, err := h.messages.ListSent(c.Request.Context(), orgID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if items == nil {
		items = []model.MessageRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
