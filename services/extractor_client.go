package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/appprecos/scan-gateway/models"
	"github.com/appprecos/scan-gateway/shared"
)

// ExtractorClient talks to the remote NFC-e extraction backend. The
// backend does the heavy receipt parsing; this client only submits URLs
// and watches job state.
type ExtractorClient struct {
	config      shared.ClientConfig
	client      *http.Client
	rateLimiter *shared.RequestRateLimiter
	httpMetrics *shared.HTTPMetrics
}

// NewExtractorClient creates a client for the extraction backend.
func NewExtractorClient(config shared.ClientConfig, factory *shared.HTTPClientFactory) *ExtractorClient {
	config.ValidateAndApplyDefaults()
	return &ExtractorClient{
		config:      config,
		client:      factory.CreateOptimizedHTTPClient(config.HTTPRequestTimeout),
		rateLimiter: shared.NewRequestRateLimiter(config.RequestRateLimit),
		httpMetrics: shared.NewHTTPMetrics(),
	}
}

// HTTPMetrics exposes the client's HTTP metrics tracker.
func (c *ExtractorClient) HTTPMetrics() *shared.HTTPMetrics {
	return c.httpMetrics
}

// Extract submits a receipt URL for asynchronous extraction. A 409
// conflict decodes into *models.DuplicateReceiptError; a missing or
// malformed conflict body still yields the duplicate error with its
// generic message.
func (c *ExtractorClient) Extract(ctx context.Context, url string) (*models.ExtractResponse, error) {
	c.rateLimiter.EnforceRateLimit()

	payload, err := json.Marshal(models.ExtractRequest{URL: url, Save: true, Async: true})
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryValidation, "EXTRACT_ENCODE", "extractor-client", "extract", false)
	}

	endpoint := c.config.BaseURL + "/api/nfce/extract"
	started := time.Now()
	response, err := shared.ExecuteHTTPRequestWithRetry(c.client, func() (*http.Request, error) {
		request, buildErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if buildErr != nil {
			return nil, buildErr
		}
		shared.SetJSONHeaders(request)
		return request, nil
	}, c.config.MaxRetryAttempts)
	if err != nil {
		c.httpMetrics.RecordHTTPRequest(false, 0, time.Since(started), "network", false)
		return nil, shared.WrapError(err, shared.ErrorCategoryNetwork, "EXTRACT_SUBMIT", "extractor-client", "extract", true)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusConflict {
		c.httpMetrics.RecordHTTPRequest(false, response.StatusCode, time.Since(started), "duplicate", false)
		duplicate := &models.DuplicateReceiptError{}
		if decodeErr := json.NewDecoder(response.Body).Decode(duplicate); decodeErr != nil {
			logrus.WithFields(logrus.Fields{
				"component": "ExtractorClient",
				"url":       url,
			}).WithError(decodeErr).Debug("Could not decode duplicate conflict body")
			return nil, &models.DuplicateReceiptError{}
		}
		return nil, duplicate
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		c.httpMetrics.RecordHTTPRequest(false, response.StatusCode, time.Since(started), "http_status", false)
		io.Copy(io.Discard, response.Body)
		return nil, shared.NewServiceError(shared.ErrorCategoryProcessing, "EXTRACT_REJECTED",
			fmt.Sprintf("extraction backend returned HTTP %d", response.StatusCode),
			"extractor-client", "extract", false, nil)
	}

	result := &models.ExtractResponse{}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		c.httpMetrics.RecordHTTPRequest(false, response.StatusCode, time.Since(started), "decode", false)
		return nil, shared.WrapError(err, shared.ErrorCategoryProcessing, "EXTRACT_DECODE", "extractor-client", "extract", false)
	}

	c.httpMetrics.RecordHTTPRequest(true, response.StatusCode, time.Since(started), "", false)
	return result, nil
}

// Status fetches the current state of a submitted extraction job.
func (c *ExtractorClient) Status(ctx context.Context, recordID int) (*models.NFCeStatusResponse, error) {
	endpoint := fmt.Sprintf("%s/api/nfce/status/%d", c.config.BaseURL, recordID)
	result := &models.NFCeStatusResponse{}
	if err := c.getJSON(ctx, endpoint, "status", result); err != nil {
		return nil, err
	}
	return result, nil
}

// Processing fetches the backend's snapshot of in-flight extractions.
func (c *ExtractorClient) Processing(ctx context.Context) ([]models.NFCeStatusResponse, error) {
	endpoint := c.config.BaseURL + "/api/nfce/processing"
	var result []models.NFCeStatusResponse
	if err := c.getJSON(ctx, endpoint, "processing", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// getJSON performs a retried GET and decodes the 2xx body into out.
func (c *ExtractorClient) getJSON(ctx context.Context, endpoint, operation string, out interface{}) error {
	started := time.Now()
	response, err := shared.ExecuteHTTPRequestWithRetry(c.client, func() (*http.Request, error) {
		request, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if buildErr != nil {
			return nil, buildErr
		}
		shared.SetJSONHeaders(request)
		return request, nil
	}, c.config.MaxRetryAttempts)
	if err != nil {
		c.httpMetrics.RecordHTTPRequest(false, 0, time.Since(started), "network", false)
		return shared.WrapError(err, shared.ErrorCategoryNetwork, "EXTRACTOR_GET", "extractor-client", operation, true)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		c.httpMetrics.RecordHTTPRequest(false, response.StatusCode, time.Since(started), "http_status", false)
		io.Copy(io.Discard, response.Body)
		return shared.NewServiceError(shared.ErrorCategoryProcessing, "EXTRACTOR_STATUS",
			fmt.Sprintf("extraction backend returned HTTP %d", response.StatusCode),
			"extractor-client", operation, true, nil)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		c.httpMetrics.RecordHTTPRequest(false, response.StatusCode, time.Since(started), "decode", false)
		return shared.WrapError(err, shared.ErrorCategoryProcessing, "EXTRACTOR_DECODE", "extractor-client", operation, false)
	}

	c.httpMetrics.RecordHTTPRequest(true, response.StatusCode, time.Since(started), "", false)
	return nil
}
