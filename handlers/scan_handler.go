package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/appprecos/scan-gateway/queue"
)

type ScanHandler struct {
	Manager *queue.Manager
}

func NewScanHandler(manager *queue.Manager) *ScanHandler {
	return &ScanHandler{Manager: manager}
}

type scanRequest struct {
	URL string `json:"url"`
}

// SubmitScan admits a decoded receipt URL into the processing queue.
// Rejected submissions (debounce window or already queued) answer 409.
func (h *ScanHandler) SubmitScan(c *fiber.Ctx) error {
	var request scanRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	url := strings.TrimSpace(request.URL)
	if url == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "url must not be empty",
		})
	}

	if !h.Manager.Submit(url) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "scan rejected, URL was submitted recently or is already queued",
		})
	}

	entry, _ := h.Manager.Store().Get(url)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

// DismissScan removes a queue entry by URL or record id. The key arrives
// as a query parameter because receipt URLs contain slashes.
func (h *ScanHandler) DismissScan(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "key query parameter is required",
		})
	}

	if !h.Manager.Dismiss(key) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "queue entry not found",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetQueue returns the full queue snapshot in insertion order.
func (h *ScanHandler) GetQueue(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Manager.Store().List(),
	})
}

// GetActiveCount reports how many entries are still being processed.
func (h *ScanHandler) GetActiveCount(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"active_count": h.Manager.ActiveCount(),
		},
	})
}

// GetMetrics exposes the queue manager's metrics snapshot.
func (h *ScanHandler) GetMetrics(c *fiber.Ctx) error {
	snapshot := h.Manager.Metrics().GetSnapshot()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snapshot,
	})
}
