// Package api exposes workflow documents and their execution over HTTP.
package api

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/ctxlog"
	"github.com/meikuraledutech/workflow/engine"
	"github.com/meikuraledutech/workflow/metrics"
)

// Handler serves the HTTP routes on top of a store and an execution manager.
type Handler struct {
	store   workflow.Store
	manager *engine.Manager
	metrics *metrics.Registry
	logger  *slog.Logger
}

// New builds a fiber app with every route registered.
func New(store workflow.Store, manager *engine.Manager, reg *metrics.Registry, logger *slog.Logger) *fiber.App {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	h := &Handler{store: store, manager: manager, metrics: reg, logger: logger}

	app := fiber.New(fiber.Config{AppName: "workflow"})
	app.Use(h.observe)
	h.Register(app)
	return app
}

// Register mounts the routes on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", func(c fiber.Ctx) error { return c.SendString("OK") })
	app.Get("/metrics", adaptor.HTTPHandler(h.metrics.Handler()))

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", h.createSchema)
	app.Delete("/schema", h.dropSchema)

	// ── Workflows (bulk) ──────────────────────────────────────────────
	app.Post("/workflows", h.createWorkflow)
	app.Get("/workflows", h.listWorkflows)
	app.Get("/workflows/:id", h.getWorkflow)
	app.Delete("/workflows/:id", h.deleteWorkflow)

	// ── Nodes ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/nodes", h.addNode)
	app.Get("/workflows/:id/nodes", h.listNodes)
	app.Get("/nodes/:id", h.getNode)
	app.Put("/nodes/:id", h.updateNode)
	app.Delete("/nodes/:id", h.deleteNode)

	// ── Connections ───────────────────────────────────────────────────
	app.Post("/workflows/:id/connections", h.addConnection)
	app.Get("/workflows/:id/connections", h.listConnections)
	app.Get("/connections/:id", h.getConnection)
	app.Put("/connections/:id", h.updateConnection)
	app.Delete("/connections/:id", h.deleteConnection)

	// ── Execution ─────────────────────────────────────────────────────
	app.Get("/workflows/:id/validate", h.validate)
	app.Post("/workflows/:id/autorun", h.enableAutoRun)
	app.Post("/workflows/:id/start", h.start)
	app.Post("/workflows/:id/stop", h.stop)
	app.Get("/workflows/:id/execution", h.execution)
	app.Get("/workflows/:id/executions", h.executions)

	// ── Tool catalog ──────────────────────────────────────────────────
	app.Get("/tools", h.listTools)
	app.Put("/tools/:type", h.setToolAvailable)
}

// observe puts a request-scoped logger in the context and records the
// request in the HTTP metrics under its route pattern.
func (h *Handler) observe(c fiber.Ctx) error {
	start := time.Now()
	logger := h.logger.With("method", c.Method(), "path", c.Path())
	c.SetContext(ctxlog.WithLogger(c.Context(), logger))

	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	route := c.Route().Path
	elapsed := time.Since(start)
	h.metrics.RecordHTTPRequest(c.Method(), route, strconv.Itoa(status), elapsed)
	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed", "status", status, "duration", elapsed, "error", err)
	} else {
		logger.Debug("request", "status", status, "duration", elapsed)
	}
	return err
}

// errorJSON writes the {"error": ...} body used by every failing route.
func errorJSON(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// fail maps store and engine errors to HTTP statuses.
func fail(c fiber.Ctx, err error) error {
	var cycle *workflow.CycleError
	var pre *engine.PreconditionError
	switch {
	case errors.As(err, &cycle):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "cycle detected", "cycle": cycle.Nodes})
	case errors.Is(err, workflow.ErrCycleDetected):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "cycle detected")
	case errors.As(err, &pre):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  pre.Error(),
			"reason": pre.Reason,
			"nodes":  pre.Nodes,
			"issues": pre.Issues,
		})
	case errors.Is(err, engine.ErrEmptyWorkflow),
		errors.Is(err, workflow.ErrSelfLoop):
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, workflow.ErrUnknownNodeType):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return errorJSON(c, fiber.StatusNotFound, "workflow not found")
	case errors.Is(err, workflow.ErrNodeNotFound):
		return errorJSON(c, fiber.StatusNotFound, "node not found")
	case errors.Is(err, workflow.ErrConnectionNotFound):
		return errorJSON(c, fiber.StatusNotFound, "connection not found")
	case errors.Is(err, engine.ErrAlreadyRunning), errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, workflow.ErrNodeConflict), errors.Is(err, workflow.ErrConnectionConflict):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	default:
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
}
