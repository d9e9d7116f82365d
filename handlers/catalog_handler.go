package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/appprecos/scan-gateway/models"
	"github.com/appprecos/scan-gateway/services"
)

type CatalogHandler struct {
	Service *services.CatalogService
}

func NewCatalogHandler(service *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{Service: service}
}

func (h *CatalogHandler) GetMarkets(c *fiber.Ctx) error {
	markets, err := h.Service.GetMarkets(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    markets,
	})
}

func (h *CatalogHandler) GetMarketProducts(c *fiber.Ctx) error {
	marketID := c.Params("market_id")
	products, err := h.Service.GetMarketProducts(c.Context(), marketID)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
	})
}

func (h *CatalogHandler) SearchProducts(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "name query parameter is required",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	results, err := h.Service.SearchProducts(c.Context(), name, limit)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    results,
	})
}

func (h *CatalogHandler) CompareProducts(c *fiber.Ctx) error {
	var request models.CompareRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if len(request.Products) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "products must not be empty",
		})
	}

	comparison, err := h.Service.CompareProducts(c.Context(), request)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    comparison,
	})
}
