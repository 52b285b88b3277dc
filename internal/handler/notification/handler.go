package notification

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/service/notification"
	"github.com/jwalitptl/notify-engine/pkg/errors"
	"github.com/jwalitptl/notify-engine/pkg/httputil"
)

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/notifications", h.Enqueue)
	r.GET("/notifications", h.History)
	r.GET("/notifications/:id", h.Get)
	r.POST("/notifications/:id/cancel", h.Cancel)
}

func (h *Handler) Enqueue(c *gin.Context) {
	var req model.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewValidation(err.Error(), err))
		return
	}

	n, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, n)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewValidation("invalid notification ID", err))
		return
	}

	n, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, n)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewValidation("invalid notification ID", err))
		return
	}

	if err := h.service.Cancel(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"id": id, "status": model.StatusCancelled})
}

func (h *Handler) History(c *gin.Context) {
	var req model.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.RespondWithError(c, errors.NewValidation(err.Error(), err))
		return
	}

	filter, err := buildFilter(req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	page := model.Pagination{Page: req.Page, Limit: req.Limit}
	page.Normalize()

	items, total, err := h.service.History(c.Request.Context(), filter, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, items, page.Page, page.Limit, total)
}

func buildFilter(req model.HistoryRequest) (model.NotificationFilter, error) {
	var filter model.NotificationFilter

	if req.BranchID != "" {
		id, err := uuid.Parse(req.BranchID)
		if err != nil {
			return filter, errors.NewValidation("invalid branch ID", err)
		}
		filter.BranchID = id
	}
	if req.CustomerID != "" {
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return filter, errors.NewValidation("invalid customer ID", err)
		}
		filter.CustomerID = id
	}
	if req.Status != "" {
		status, err := model.ParseStatus(req.Status)
		if err != nil {
			return filter, errors.NewValidation("invalid status", err)
		}
		filter.Status = status
	}
	if req.Type != "" {
		channel, err := model.ParseChannel(req.Type)
		if err != nil {
			return filter, errors.NewValidation("invalid channel", err)
		}
		filter.Type = channel
	}
	if req.StartDate != "" {
		t, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			return filter, errors.NewValidation("invalid start date", err)
		}
		filter.StartDate = &t
	}
	if req.EndDate != "" {
		t, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			return filter, errors.NewValidation("invalid end date", err)
		}
		filter.EndDate = &t
	}
	return filter, nil
}
