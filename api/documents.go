package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/meikuraledutech/workflow"
)

func (h *Handler) createSchema(c fiber.Ctx) error {
	if err := h.store.CreateSchema(c.Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema created"})
}

func (h *Handler) dropSchema(c fiber.Ctx) error {
	if err := h.store.DropSchema(c.Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema dropped"})
}

func (h *Handler) createWorkflow(c fiber.Ctx) error {
	var wf workflow.Workflow
	if err := c.Bind().JSON(&wf); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	result, err := h.store.CreateWorkflow(c.Context(), &wf)
	if errors.Is(err, workflow.ErrNodeNotFound) {
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *Handler) listWorkflows(c fiber.Ctx) error {
	list, err := h.store.ListWorkflows(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(list)
}

func (h *Handler) getWorkflow(c fiber.Ctx) error {
	wf, err := h.store.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if wf == nil {
		return errorJSON(c, fiber.StatusNotFound, "workflow not found")
	}
	return c.JSON(wf)
}

func (h *Handler) deleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if snap, ok := h.manager.Snapshot(id); ok && snap.Execution != nil && !snap.Execution.Status.Terminal() {
		return errorJSON(c, fiber.StatusConflict, "workflow is running")
	}
	if err := h.store.DeleteWorkflow(c.Context(), id); err != nil {
		return fail(c, err)
	}
	if err := h.manager.Forget(id); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) addNode(c fiber.Ctx) error {
	var node workflow.Node
	if err := c.Bind().JSON(&node); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	id, err := h.store.AddNode(c.Context(), c.Params("id"), &node)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *Handler) listNodes(c fiber.Ctx) error {
	nodes, err := h.store.ListNodes(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(nodes)
}

func (h *Handler) getNode(c fiber.Ctx) error {
	n, err := h.store.GetNode(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if n == nil {
		return errorJSON(c, fiber.StatusNotFound, "node not found")
	}
	return c.JSON(n)
}

func (h *Handler) updateNode(c fiber.Ctx) error {
	var node workflow.Node
	if err := c.Bind().JSON(&node); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	node.ID = c.Params("id")
	if err := h.store.UpdateNode(c.Context(), &node); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) deleteNode(c fiber.Ctx) error {
	if err := h.store.DeleteNode(c.Context(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// connectionError reports a dangling endpoint as a bad graph rather than a missing route target.
func connectionError(c fiber.Ctx, err error) error {
	if errors.Is(err, workflow.ErrNodeNotFound) {
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	}
	return fail(c, err)
}

func (h *Handler) addConnection(c fiber.Ctx) error {
	var conn workflow.Connection
	if err := c.Bind().JSON(&conn); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	id, err := h.store.AddConnection(c.Context(), c.Params("id"), &conn)
	if err != nil {
		return connectionError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *Handler) listConnections(c fiber.Ctx) error {
	conns, err := h.store.ListConnections(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conns)
}

func (h *Handler) getConnection(c fiber.Ctx) error {
	conn, err := h.store.GetConnection(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if conn == nil {
		return errorJSON(c, fiber.StatusNotFound, "connection not found")
	}
	return c.JSON(conn)
}

func (h *Handler) updateConnection(c fiber.Ctx) error {
	var conn workflow.Connection
	if err := c.Bind().JSON(&conn); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	conn.ID = c.Params("id")
	if err := h.store.UpdateConnection(c.Context(), &conn); err != nil {
		return connectionError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) deleteConnection(c fiber.Ctx) error {
	if err := h.store.DeleteConnection(c.Context(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
