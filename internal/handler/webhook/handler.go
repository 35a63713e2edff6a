package webhook

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
	suppressionsvc "github.com/Xianghbb/au-email-marketing-saas/internal/service/suppression"
	apperrors "github.com/Xianghbb/au-email-marketing-saas/pkg/errors"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/httputil"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
)

// Event is the delivery notification posted by the email provider.
type Event struct {
	Type           string     `json:"type" binding:"required"`
	Email          string     `json:"email" binding:"required,email"`
	OrganizationID string     `json:"organization_id" binding:"required"`
	CampaignID     *uuid.UUID `json:"campaign_id"`
	CampaignItemID *uuid.UUID `json:"campaign_item_id"`
	BounceType     string     `json:"bounce_type"`
	Reason         string     `json:"reason"`
	OccurredAt     *time.Time `json:"occurred_at"`
}

// Handler ingests provider delivery events: bounces and complaints feed the
// suppression list, everything recognized lands in the tracking table.
type Handler struct {
	suppression suppressionsvc.Service
	events      repository.EmailEventRepository
	logger      *logger.Logger
}

func NewHandler(suppression suppressionsvc.Service, events repository.EmailEventRepository, log *logger.Logger) *Handler {
	return &Handler{suppression: suppression, events: events, logger: log}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhooks/email", h.HandleEvent)
}

func (h *Handler) HandleEvent(c *gin.Context) {
	var event Event
	if err := c.ShouldBindJSON(&event); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	ctx := c.Request.Context()
	switch model.EmailEventType(event.Type) {
	case model.EmailEventBounced:
		bounceType := suppressionsvc.BounceType(event.BounceType)
		if bounceType != suppressionsvc.BounceHard && bounceType != suppressionsvc.BounceSoft {
			bounceType = suppressionsvc.BounceHard
		}
		if err := h.suppression.ProcessBounce(ctx, event.OrganizationID, event.Email, bounceType, event.Reason, event.CampaignID); err != nil {
			httputil.RespondWithError(c, apperrors.NewInternal(err))
			return
		}
	case model.EmailEventComplained:
		if err := h.suppression.ProcessComplaint(ctx, event.OrganizationID, event.Email, event.Reason, event.CampaignID); err != nil {
			httputil.RespondWithError(c, apperrors.NewInternal(err))
			return
		}
	case model.EmailEventDelivered, model.EmailEventOpened, model.EmailEventClicked:
		// Tracking only.
	default:
		httputil.RespondWithError(c, apperrors.NewBadRequest("unknown event type: "+event.Type, nil))
		return
	}

	h.recordEvent(c, &event)
	httputil.RespondWithSuccess(c, gin.H{"processed": event.Type})
}

func (h *Handler) recordEvent(c *gin.Context, event *Event) {
	if event.CampaignID == nil || event.CampaignItemID == nil {
		return
	}
	occurredAt := time.Now().UTC()
	if event.OccurredAt != nil {
		occurredAt = *event.OccurredAt
	}
	err := h.events.Insert(c.Request.Context(), &model.EmailEvent{
		OrganizationID: event.OrganizationID,
		CampaignID:     *event.CampaignID,
		CampaignItemID: *event.CampaignItemID,
		EventType:      model.EmailEventType(event.Type),
		EventData:      model.JSONMap{"reason": event.Reason, "bounce_type": event.BounceType},
		OccurredAt:     occurredAt,
	})
	if err != nil {
		h.logger.Error(err, "failed to record webhook event", "type", event.Type)
	}
}
