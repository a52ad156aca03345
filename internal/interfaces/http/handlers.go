package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/optalis/request-portal/internal/domain/entity"
	domainwf "github.com/optalis/request-portal/internal/domain/workflow"
	"github.com/optalis/request-portal/internal/notify"
	"github.com/optalis/request-portal/internal/report"
	"github.com/optalis/request-portal/internal/repository"
	"github.com/optalis/request-portal/internal/workflow"
)

// Directory looks up portal actors, used for endpoint authorization.
type Directory interface {
	Lookup(actorID string) (*entity.Actor, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine     *workflow.Engine
	exporter   *report.Exporter
	directory  Directory
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine *workflow.Engine,
	exporter *report.Exporter,
	directory Directory,
	dispatcher notify.Dispatcher,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:     engine,
		exporter:   exporter,
		directory:  directory,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// StartWorkflowRequest is the body of POST /api/v1/workflows
type StartWorkflowRequest struct {
	EntityID    string `json:"entity_id" binding:"required"`
	EntityType  string `json:"entity_type" binding:"required"`
	TemplateID  int64  `json:"template_id"`
	InitiatorID string `json:"initiator_id" binding:"required"`
}

// ProcessStepRequest is the body of POST /api/v1/workflows/steps
type ProcessStepRequest struct {
	EntityID   string `json:"entity_id" binding:"required"`
	EntityType string `json:"entity_type" binding:"required"`
	Action     string `json:"action" binding:"required"`
	ActorID    string `json:"actor_id" binding:"required"`
	Comments   string `json:"comments"`
}

// WorkflowResponse is a workflow instance with its execution history
type WorkflowResponse struct {
	Instance   *domainwf.Instance       `json:"instance"`
	Executions []domainwf.StepExecution `json:"executions,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// StartWorkflow handles POST /api/v1/workflows
func (h *Handlers) StartWorkflow(c *gin.Context) {
	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	instance, triggers, err := h.engine.StartInstance(c.Request.Context(), workflow.StartRequest{
		EntityID:    req.EntityID,
		EntityType:  entity.EntityType(req.EntityType),
		TemplateID:  req.TemplateID,
		InitiatorID: req.InitiatorID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	notify.DispatchAll(c.Request.Context(), h.dispatcher, triggers, h.logger)

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    WorkflowResponse{Instance: instance},
	})
}

// ProcessStep handles POST /api/v1/workflows/steps
func (h *Handlers) ProcessStep(c *gin.Context) {
	var req ProcessStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	action := domainwf.Action(req.Action)
	if !action.IsValid() {
		h.badRequest(c, fmt.Errorf("unknown action %q", req.Action))
		return
	}

	instance, triggers, err := h.engine.ProcessStep(c.Request.Context(), workflow.StepRequest{
		EntityID:   req.EntityID,
		EntityType: entity.EntityType(req.EntityType),
		Action:     action,
		ActorID:    req.ActorID,
		Comments:   req.Comments,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	notify.DispatchAll(c.Request.Context(), h.dispatcher, triggers, h.logger)

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    WorkflowResponse{Instance: instance},
	})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	actorID := c.Query("actor_id")
	if actorID == "" {
		h.badRequest(c, errors.New("actor_id is required"))
		return
	}

	filter := repository.ListFilter{
		Status:     domainwf.Status(c.Query("status")),
		EntityType: c.Query("entity_type"),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		h.badRequest(c, fmt.Errorf("unknown status %q", filter.Status))
		return
	}

	instances, err := h.engine.ListInstances(actorID, filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    instances,
	})
}

// GetWorkflow handles GET /api/v1/workflows/:entity_type/:entity_id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	entityType := entity.EntityType(c.Param("entity_type"))
	if !entityType.IsValid() {
		h.badRequest(c, fmt.Errorf("unknown entity type %q", c.Param("entity_type")))
		return
	}

	instance, executions, err := h.engine.GetInstance(c.Param("entity_id"), entityType)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    WorkflowResponse{Instance: instance, Executions: executions},
	})
}

// ExportExecutions handles GET /api/v1/reports/executions. The audit export
// is restricted to administrators.
func (h *Handlers) ExportExecutions(c *gin.Context) {
	actorID := c.Query("actor_id")
	if actorID == "" {
		h.badRequest(c, errors.New("actor_id is required"))
		return
	}

	actor, err := h.directory.Lookup(actorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if actor == nil || actor.Role != entity.RoleAdmin {
		c.JSON(http.StatusForbidden, Response{
			Success: false,
			Error:   "administrator role required",
		})
		return
	}

	filter := repository.ListFilter{
		Status:     domainwf.Status(c.Query("status")),
		EntityType: c.Query("entity_type"),
	}

	c.Header("Content-Disposition", `attachment; filename="workflow_audit.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := h.exporter.ExportTo(c.Writer, filter); err != nil {
		h.logger.Error("Audit export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to generate report",
		})
	}
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   err.Error(),
	})
}

// fail maps engine errors onto HTTP status codes.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domainwf.ErrValidation),
		errors.Is(err, domainwf.ErrMissingReason),
		errors.Is(err, domainwf.ErrTemplateMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, domainwf.ErrUnauthorizedActor):
		status = http.StatusForbidden
	case errors.Is(err, domainwf.ErrEntityNotFound),
		errors.Is(err, domainwf.ErrInstanceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domainwf.ErrDuplicateInstance),
		errors.Is(err, domainwf.ErrTerminalState),
		errors.Is(err, domainwf.ErrStaleSequence),
		errors.Is(err, domainwf.ErrNoEligibleApprover):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}
