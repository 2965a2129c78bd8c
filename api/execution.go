package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/engine"
)

// Report is the body of GET /workflows/:id/validate.
type Report struct {
	OK     bool                   `json:"ok"`
	Error  string                 `json:"error,omitempty"`
	Reason engine.Reason          `json:"reason,omitempty"`
	Nodes  []string               `json:"nodes,omitempty"`
	Issues []workflow.ConfigIssue `json:"issues,omitempty"`
	Cycle  []string               `json:"cycle,omitempty"`
}

func newReport(err error) Report {
	if err == nil {
		return Report{OK: true}
	}
	r := Report{Error: err.Error()}
	var pre *engine.PreconditionError
	if errors.As(err, &pre) {
		r.Reason, r.Nodes, r.Issues = pre.Reason, pre.Nodes, pre.Issues
	}
	var cycle *workflow.CycleError
	if errors.As(err, &cycle) {
		r.Cycle = cycle.Nodes
	}
	return r
}

func (h *Handler) validate(c fiber.Ctx) error {
	err := h.manager.Preflight(c.Context(), c.Params("id"))
	if errors.Is(err, workflow.ErrWorkflowNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "workflow not found")
	}
	return c.JSON(newReport(err))
}

func (h *Handler) enableAutoRun(c fiber.Ctx) error {
	changed, err := h.manager.EnableAutoRun(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if changed == nil {
		changed = []string{}
	}
	return c.JSON(fiber.Map{"changed": changed})
}

func (h *Handler) start(c fiber.Ctx) error {
	exec, err := h.manager.Start(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(exec)
}

func (h *Handler) stop(c fiber.Ctx) error {
	exec, err := h.manager.Stop(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(exec)
}

func (h *Handler) execution(c fiber.Ctx) error {
	snap, ok := h.manager.Snapshot(c.Params("id"))
	if !ok || snap.Execution == nil {
		return errorJSON(c, fiber.StatusNotFound, "workflow has not run")
	}
	return c.JSON(snap)
}

func (h *Handler) executions(c fiber.Ctx) error {
	list, err := h.store.ListExecutions(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(list)
}

func (h *Handler) listTools(c fiber.Ctx) error {
	return c.JSON(h.manager.Catalog().List())
}

type availability struct {
	Available bool `json:"available"`
}

func (h *Handler) setToolAvailable(c fiber.Ctx) error {
	var body availability
	if err := c.Bind().JSON(&body); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if !h.manager.Catalog().SetAvailable(workflow.NodeType(c.Params("type")), body.Available) {
		return errorJSON(c, fiber.StatusNotFound, "tool not found")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
