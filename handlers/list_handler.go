package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/appprecos/scan-gateway/models"
	"github.com/appprecos/scan-gateway/services"
)

type ListHandler struct {
	Service *services.ShoppingListService
}

func NewListHandler(service *services.ShoppingListService) *ListHandler {
	return &ListHandler{Service: service}
}

// AddItem adds a product to the shopping list. Re-adding an existing
// (ean, product_name) pair returns the stored item with 200 instead of 201.
func (h *ListHandler) AddItem(c *fiber.Ctx) error {
	var request models.AddListItemRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	item, created, err := h.Service.Add(c.Context(), request)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    item,
	})
}

func (h *ListHandler) GetItems(c *fiber.Ctx) error {
	items, err := h.Service.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    items,
	})
}

func (h *ListHandler) RemoveItem(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid item id",
		})
	}

	removed, err := h.Service.Remove(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "item not found",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ListHandler) ClearItems(c *fiber.Ctx) error {
	removed, err := h.Service.Clear(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"removed": removed,
		},
	})
}
