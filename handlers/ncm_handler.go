package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/appprecos/scan-gateway/services"
)

type NCMHandler struct {
	Service *services.NCMService
}

func NewNCMHandler(service *services.NCMService) *NCMHandler {
	return &NCMHandler{Service: service}
}

// DescribeCode resolves an NCM code to its description, falling back to
// parent categories for codes missing from the table.
func (h *NCMHandler) DescribeCode(c *fiber.Ctx) error {
	code := c.Params("code")
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"code":        code,
			"description": h.Service.Describe(code),
		},
	})
}

// SearchCodes matches the query against NCM codes and descriptions.
func (h *NCMHandler) SearchCodes(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "q query parameter is required",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Service.Search(query),
	})
}
