// internal/notification/handler.go
package notification

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"freelance-lifecycle/internal/common/aws"
	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"

	"github.com/gin-gonic/gin"
)

const (
	snsMessageTypeHeader = "x-amz-sns-message-type"

	snsNotification             = "Notification"
	snsSubscriptionConfirmation = "SubscriptionConfirmation"
	snsUnsubscribeConfirmation  = "UnsubscribeConfirmation"

	maxEventBody = 256 << 10
)

// snsEnvelope is the body SNS posts to an HTTP subscription.
type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	Token        string `json:"Token"`
	SubscribeURL string `json:"SubscribeURL"`
}

type Handler struct {
	service *Service
	sns     *aws.SNSClient
	errs    *errors.ErrorHandler
	logger  logger.Logger
}

// NewHandler builds the inbox handler. sns may be nil, in which case
// subscription confirmations are only logged.
func NewHandler(service *Service, sns *aws.SNSClient, errs *errors.ErrorHandler, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		sns:     sns,
		errs:    errs,
		logger:  log.WithFields(map[string]interface{}{"component": "notification-handler"}),
	}
}

// RegisterRoutes mounts the inbox API on rg (normally /api/v1/notifications).
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/user/:userId", h.handleListForUser())
	rg.GET("/user/:userId/unread", h.handleListUnread())
	rg.GET("/user/:userId/unread-count", h.handleUnreadCount())
	rg.PATCH("/:id/read", h.handleMarkAsRead())
	rg.PATCH("/user/:userId/read-all", h.handleMarkAllAsRead())
	rg.POST("/events", h.handleIngest())
}

func (h *Handler) handleListForUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := pathID(c, "userId")
		if err != nil {
			h.errs.Respond(c, err)
			return
		}

		notifications, err := h.service.ListForUser(c.Request.Context(), userID)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

func (h *Handler) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := pathID(c, "userId")
		if err != nil {
			h.errs.Respond(c, err)
			return
		}

		notifications, err := h.service.ListUnread(c.Request.Context(), userID)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

func (h *Handler) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := pathID(c, "userId")
		if err != nil {
			h.errs.Respond(c, err)
			return
		}

		count, err := h.service.UnreadCount(c.Request.Context(), userID)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, count)
	}
}

func (h *Handler) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "id")
		if err != nil {
			h.errs.Respond(c, err)
			return
		}

		n, err := h.service.MarkAsRead(c.Request.Context(), id)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

func (h *Handler) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := pathID(c, "userId")
		if err != nil {
			h.errs.Respond(c, err)
			return
		}

		updated, err := h.service.MarkAllAsRead(c.Request.Context(), userID)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// handleIngest accepts a raw NotificationEvent or an SNS HTTP delivery.
// A 5xx response makes the sender redeliver.
func (h *Handler) handleIngest() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
		if err != nil {
			h.errs.Respond(c, errors.NewMalformedEventError("unreadable body: "+err.Error()))
			return
		}

		payload := body
		if msgType := c.GetHeader(snsMessageTypeHeader); msgType != "" {
			var env snsEnvelope
			if err := json.Unmarshal(body, &env); err != nil {
				h.errs.Respond(c, errors.NewMalformedEventError("invalid SNS envelope: "+err.Error()))
				return
			}

			switch msgType {
			case snsNotification:
				payload = []byte(env.Message)
			case snsSubscriptionConfirmation:
				h.confirmSubscription(c, env)
				return
			case snsUnsubscribeConfirmation:
				h.logger.Info("SNS subscription removed", map[string]interface{}{"topicArn": env.TopicArn})
				c.JSON(http.StatusOK, gin.H{"status": "ignored"})
				return
			default:
				h.errs.Respond(c, errors.NewMalformedEventError(fmt.Sprintf("unsupported SNS message type %q", msgType)))
				return
			}
		}

		n, err := h.service.Ingest(c.Request.Context(), payload)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusAccepted, n)
	}
}

func (h *Handler) confirmSubscription(c *gin.Context, env snsEnvelope) {
	fields := map[string]interface{}{
		"topicArn":     env.TopicArn,
		"subscribeUrl": env.SubscribeURL,
	}

	if h.sns == nil {
		h.logger.Warn("SNS subscription confirmation received but no SNS client configured", fields)
		c.JSON(http.StatusOK, gin.H{"status": "pending"})
		return
	}

	if err := h.sns.ConfirmSubscription(c.Request.Context(), env.TopicArn, env.Token); err != nil {
		h.errs.Respond(c, errors.NewExternalServiceError("sns", err))
		return
	}

	h.logger.Info("SNS subscription confirmed", fields)
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("%s: must be a positive integer", name))
	}
	return id, nil
}
