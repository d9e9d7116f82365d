package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/appprecos/scan-gateway/services"
)

type MarketRefreshJob struct {
	Catalog  *services.CatalogService
	Interval time.Duration
}

func NewMarketRefreshJob(catalog *services.CatalogService, interval time.Duration) *MarketRefreshJob {
	return &MarketRefreshJob{Catalog: catalog, Interval: interval}
}

func (j *MarketRefreshJob) Start() {
	logrus.Infof("Starting Market Refresh Job (runs every %v)...", j.Interval)
	ticker := time.NewTicker(j.Interval)

	go func() {
		// Run immediately on start
		j.Run()

		for range ticker.C {
			j.Run()
		}
	}()
}

func (j *MarketRefreshJob) Run() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	markets, err := j.Catalog.RefreshMarkets(ctx)
	if err != nil {
		logrus.Errorf("Market Refresh Job failed: %v", err)
		return
	}

	logrus.Infof("Market Refresh Job completed: cached %d markets (took %v)",
		len(markets), time.Since(startTime))
}
