package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/appprecos/scan-gateway/models"
	"github.com/appprecos/scan-gateway/shared"
)

// CatalogService fronts the backend's market and product endpoints. The
// market listing changes rarely, so it is served from a TTL cache.
type CatalogService struct {
	config  shared.ClientConfig
	client  *http.Client
	metrics *shared.ServiceMetrics

	cacheTTL       time.Duration
	cacheMu        sync.RWMutex
	cachedMarkets  []models.Market
	cacheExpiresAt time.Time
}

// NewCatalogService creates a catalog service with the given market cache TTL.
func NewCatalogService(config shared.ClientConfig, factory *shared.HTTPClientFactory, cacheTTL time.Duration) *CatalogService {
	config.ValidateAndApplyDefaults()
	return &CatalogService{
		config:   config,
		client:   factory.CreateOptimizedHTTPClient(config.HTTPRequestTimeout),
		metrics:  shared.NewServiceMetrics("catalog-service"),
		cacheTTL: cacheTTL,
	}
}

// Metrics exposes the service metrics tracker.
func (s *CatalogService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// GetMarkets returns all known markets, from cache when fresh.
func (s *CatalogService) GetMarkets(ctx context.Context) ([]models.Market, error) {
	s.cacheMu.RLock()
	if s.cachedMarkets != nil && time.Now().Before(s.cacheExpiresAt) {
		markets := s.cachedMarkets
		s.cacheMu.RUnlock()
		s.metrics.IncrementCustomCounter("market_cache_hits")
		return markets, nil
	}
	s.cacheMu.RUnlock()

	return s.RefreshMarkets(ctx)
}

// RefreshMarkets fetches the market listing from the backend and replaces
// the cache. A fetch failure leaves any stale cache in place.
func (s *CatalogService) RefreshMarkets(ctx context.Context) ([]models.Market, error) {
	var markets []models.Market
	if err := s.getJSON(ctx, s.config.BaseURL+"/api/markets", "get_markets", &markets); err != nil {
		s.metrics.IncrementCustomCounter("market_cache_misses")
		return nil, err
	}

	s.cacheMu.Lock()
	s.cachedMarkets = markets
	s.cacheExpiresAt = time.Now().Add(s.cacheTTL)
	s.cacheMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"component": "CatalogService",
		"markets":   len(markets),
	}).Debug("Refreshed market cache")
	return markets, nil
}

// GetMarketProducts returns everything one market currently carries.
func (s *CatalogService) GetMarketProducts(ctx context.Context, marketID string) (*models.MarketProductsResponse, error) {
	endpoint := fmt.Sprintf("%s/api/markets/%s/products", s.config.BaseURL, url.PathEscape(marketID))
	result := &models.MarketProductsResponse{}
	if err := s.getJSON(ctx, endpoint, "get_market_products", result); err != nil {
		return nil, err
	}
	return result, nil
}

// SearchProducts searches products by name across all markets.
func (s *CatalogService) SearchProducts(ctx context.Context, name string, limit int) (*models.ProductSearchResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	endpoint := fmt.Sprintf("%s/api/products/search?name=%s&limit=%d",
		s.config.BaseURL, url.QueryEscape(name), limit)
	result := &models.ProductSearchResponse{}
	if err := s.getJSON(ctx, endpoint, "search_products", result); err != nil {
		return nil, err
	}
	return result, nil
}

// CompareProducts prices a set of products across the selected markets.
func (s *CatalogService) CompareProducts(ctx context.Context, request models.CompareRequest) (*models.CompareResponse, error) {
	started := time.Now()
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryValidation, "COMPARE_ENCODE", "catalog-service", "compare_products", false)
	}

	response, err := shared.ExecuteHTTPRequestWithRetry(s.client, func() (*http.Request, error) {
		httpRequest, buildErr := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/api/products/compare", bytes.NewReader(payload))
		if buildErr != nil {
			return nil, buildErr
		}
		shared.SetJSONHeaders(httpRequest)
		return httpRequest, nil
	}, s.config.MaxRetryAttempts)
	if err != nil {
		s.metrics.RecordRequest(false, time.Since(started))
		return nil, shared.WrapError(err, shared.ErrorCategoryNetwork, "COMPARE_REQUEST", "catalog-service", "compare_products", true)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		s.metrics.RecordRequest(false, time.Since(started))
		io.Copy(io.Discard, response.Body)
		return nil, shared.NewServiceError(shared.ErrorCategoryProcessing, "COMPARE_STATUS",
			fmt.Sprintf("catalog backend returned HTTP %d", response.StatusCode),
			"catalog-service", "compare_products", true, nil)
	}

	result := &models.CompareResponse{}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		s.metrics.RecordRequest(false, time.Since(started))
		return nil, shared.WrapError(err, shared.ErrorCategoryProcessing, "COMPARE_DECODE", "catalog-service", "compare_products", false)
	}

	s.metrics.RecordRequest(true, time.Since(started))
	return result, nil
}

func (s *CatalogService) getJSON(ctx context.Context, endpoint, operation string, out interface{}) error {
	started := time.Now()
	response, err := shared.ExecuteHTTPRequestWithRetry(s.client, func() (*http.Request, error) {
		request, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if buildErr != nil {
			return nil, buildErr
		}
		shared.SetJSONHeaders(request)
		return request, nil
	}, s.config.MaxRetryAttempts)
	if err != nil {
		s.metrics.RecordRequest(false, time.Since(started))
		return shared.WrapError(err, shared.ErrorCategoryNetwork, "CATALOG_GET", "catalog-service", operation, true)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		s.metrics.RecordRequest(false, time.Since(started))
		io.Copy(io.Discard, response.Body)
		return shared.NewServiceError(shared.ErrorCategoryProcessing, "CATALOG_STATUS",
			fmt.Sprintf("catalog backend returned HTTP %d", response.StatusCode),
			"catalog-service", operation, true, nil)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		s.metrics.RecordRequest(false, time.Since(started))
		return shared.WrapError(err, shared.ErrorCategoryProcessing, "CATALOG_DECODE", "catalog-service", operation, false)
	}

	s.metrics.RecordRequest(true, time.Since(started))
	return nil
}
