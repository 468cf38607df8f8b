// internal/application/handler.go
package application

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/models"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
	errs    *errors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(service *Service, errs *errors.ErrorHandler, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		errs:    errs,
		logger:  log.WithFields(map[string]interface{}{"component": "application-handler"}),
	}
}

// RegisterRoutes mounts the application API on rg (normally /api/v1/applications).
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.handleCreate())
	rg.GET("/:id", h.handleGet())
	rg.PATCH("/:id/status", h.handleUpdateStatus())
	rg.GET("/project/:projectId", h.handleListByProject())
	rg.GET("/user/:freelancerId", h.handleListByFreelancer())
	rg.GET("/employer/:employerId", h.handleListByEmployer())
}

func (h *Handler) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateApplicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.errs.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		app, err := h.service.CreateApplication(c.Request.Context(), req)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, app)
	}
}

func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "id")
		if err != nil {
			h.errs.Respond(c, err)
			return
		}

		app, err := h.service.GetApplication(c.Request.Context(), id)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	}
}

func (h *Handler) handleUpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "id")
		if err != nil {
			h.errs.Respond(c, err)
			return
		}

		var req models.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.errs.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}
		if req.Status == "" {
			h.errs.Respond(c, errors.NewValidationError("status: required"))
			return
		}

		app, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	}
}

func (h *Handler) handleListByProject() gin.HandlerFunc {
	return h.list("projectId", h.service.ListByProject)
}

func (h *Handler) handleListByFreelancer() gin.HandlerFunc {
	return h.list("freelancerId", h.service.ListByFreelancer)
}

func (h *Handler) handleListByEmployer() gin.HandlerFunc {
	return h.list("employerId", h.service.ListByEmployer)
}

func (h *Handler) list(param string, lookup func(ctx context.Context, id int64) ([]models.Application, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, param)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}

		apps, err := lookup(c.Request.Context(), id)
		if err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, apps)
	}
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("%s: must be a positive integer", name))
	}
	return id, nil
}
