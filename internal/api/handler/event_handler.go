package handler

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/mailflow-engine/internal/api/dto"
	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookSecretHeader carries the per-automation shared secret.
const WebhookSecretHeader = "X-Webhook-Secret"

// PublishEvent handles POST /api/v1/events
// Queues a contact_added, tag_added or named event for enrollment
func (h *EventHandler) PublishEvent(c *gin.Context) {
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.ContactID == "" && req.ContactEmail == "" && req.Contact == nil {
		badRequest(c, "one of contact_id, contact_email or contact is required")
		return
	}
	kind := domain.TriggerKind(req.Kind)
	if kind == domain.TriggerContactAdded && req.Contact == nil {
		badRequest(c, "contact_added events must carry the contact")
		return
	}

	ev := domain.TriggerEvent{
		EventID:      req.EventID,
		UserID:       userID(c),
		Kind:         kind,
		ContactID:    req.ContactID,
		ContactEmail: req.ContactEmail,
		Name:         req.Name,
		Tag:          req.Tag,
		Data:         req.Data,
	}
	if req.Contact != nil {
		ev.Contact = contactInput(*req.Contact)
	}

	h.publish(c, ev)
}

// Webhook handles POST /api/v1/webhooks/:automation_id
// Authenticated by the automation's own secret rather than a tenant token
func (h *EventHandler) Webhook(c *gin.Context) {
	automationID := c.Param("automation_id")
	if _, err := uuid.Parse(automationID); err != nil {
		notFound(c, "automation not found")
		return
	}

	automation, err := h.automations.GetAutomation(c.Request.Context(), "", automationID)
	if err != nil {
		if errors.Is(err, domain.ErrAutomationNotFound) {
			notFound(c, "automation not found")
			return
		}
		h.logger.Error("Failed to load automation", slog.String("automation_id", automationID), slog.String("error", err.Error()))
		internalError(c, err)
		return
	}

	if automation.WebhookSecret == nil || !secretMatches(*automation.WebhookSecret, c.GetHeader(WebhookSecretHeader)) {
		Problem(c, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
		return
	}

	var req dto.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	h.publish(c, domain.TriggerEvent{
		EventID:      req.EventID,
		UserID:       automation.UserID,
		Kind:         domain.TriggerWebhook,
		AutomationID: automation.ID,
		Contact:      contactInput(req.ContactRequest),
		Data:         req.Data,
	})
}

// Enroll handles POST /api/v1/automations/:automation_id/enroll
func (h *EventHandler) Enroll(c *gin.Context) {
	automationID := c.Param("automation_id")
	if _, err := uuid.Parse(automationID); err != nil {
		badRequest(c, "automation_id must be a valid UUID")
		return
	}

	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.ContactID == "" && req.ContactEmail == "" {
		badRequest(c, "one of contact_id or contact_email is required")
		return
	}

	tenant := userID(c)
	if _, err := h.automations.GetAutomation(c.Request.Context(), tenant, automationID); err != nil {
		if errors.Is(err, domain.ErrAutomationNotFound) {
			notFound(c, "automation not found")
			return
		}
		internalError(c, err)
		return
	}

	h.publish(c, domain.TriggerEvent{
		EventID:      req.EventID,
		UserID:       tenant,
		Kind:         domain.TriggerManual,
		AutomationID: automationID,
		ContactID:    req.ContactID,
		ContactEmail: req.ContactEmail,
	})
}

func (h *EventHandler) publish(c *gin.Context, ev domain.TriggerEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}

	if err := h.publisher.PublishTrigger(c.Request.Context(), ev); err != nil {
		h.logger.Error("Failed to publish trigger event",
			slog.String("event_id", ev.EventID),
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
		Problem(c, http.StatusServiceUnavailable, "broker_unavailable", "event could not be queued")
		return
	}

	h.logger.Info("Trigger event accepted",
		slog.String("event_id", ev.EventID),
		slog.String("kind", string(ev.Kind)),
		slog.String("user_id", ev.UserID),
	)
	c.JSON(http.StatusAccepted, dto.AcceptedResponse{EventID: ev.EventID, Status: "queued"})
}

func contactInput(req dto.ContactRequest) *domain.ContactInput {
	return &domain.ContactInput{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Attributes: req.Attributes,
	}
}

func secretMatches(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
