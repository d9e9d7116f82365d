package jobs

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/appprecos/scan-gateway/database"
	"github.com/appprecos/scan-gateway/shared"
)

// MetricsReportJob periodically logs service and database metric summaries
// so long-running deployments leave an operational trail.
type MetricsReportJob struct {
	Services []*shared.ServiceMetrics
	Interval time.Duration
}

func NewMetricsReportJob(interval time.Duration, services ...*shared.ServiceMetrics) *MetricsReportJob {
	return &MetricsReportJob{Services: services, Interval: interval}
}

func (j *MetricsReportJob) Start() {
	logrus.Infof("Starting Metrics Report Job (runs every %v)...", j.Interval)
	ticker := time.NewTicker(j.Interval)

	go func() {
		for range ticker.C {
			j.Run()
		}
	}()
}

func (j *MetricsReportJob) Run() {
	for _, metrics := range j.Services {
		metrics.LogSummary()
	}
	database.Metrics.LogDatabaseSummary()
}
