package clients

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
)

const availabilityDateLayout = "2006-01-02"

// PerformanceDTO is a worker's rolling results as reported by labor
type PerformanceDTO struct {
	QualityPassRate   float64 `json:"qualityPassRate"`
	AvgMinutesPerUnit float64 `json:"avgMinutesPerUnit"`
	SampleSize        int     `json:"sampleSize"`
}

// WorkerDTO is a worker as returned by the labor service
type WorkerDTO struct {
	WorkerID        string         `json:"workerId"`
	Name            string         `json:"name"`
	Role            string         `json:"role"`
	Specializations []string       `json:"specializations"`
	Active          bool           `json:"active"`
	Available       bool           `json:"available"`
	Performance     PerformanceDTO `json:"performance"`
	OpenAssignments int            `json:"openAssignments"`
}

// PagedWorkersResponse is the worker listing envelope
type PagedWorkersResponse struct {
	Data []WorkerDTO `json:"data"`
}

// LaborServiceClient implements domain.WorkerDirectory over HTTP
type LaborServiceClient struct {
	client *serviceClient
}

// NewLaborServiceClient creates a new LaborServiceClient
func NewLaborServiceClient(cfg *Config, m *metrics.Metrics, logger *logging.Logger) *LaborServiceClient {
	return &LaborServiceClient{
		client: newServiceClient("labor-service", cfg.LaborServiceURL, cfg.Timeout, m, logger),
	}
}

// GetActiveWorkers lists active workers, narrowed by specialization and
// reporting availability for the filter's date
func (c *LaborServiceClient) GetActiveWorkers(ctx context.Context, filter domain.WorkerFilter) ([]domain.Worker, error) {
	query := url.Values{}
	query.Set("status", "active")
	if filter.Specialization != "" {
		query.Set("specialization", string(filter.Specialization))
	}
	if !filter.AvailabilityDate.IsZero() {
		query.Set("availableOn", filter.AvailabilityDate.Format(availabilityDateLayout))
	}

	var paged PagedWorkersResponse
	found, err := c.client.getJSON(ctx, "/api/v1/workers", query, &paged)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("labor-service has no worker listing")
	}

	workers := make([]domain.Worker, 0, len(paged.Data))
	for _, dto := range paged.Data {
		w := toWorker(dto)
		if !w.Active {
			continue
		}
		if filter.Specialization != "" && !w.IsSpecializedIn(filter.Specialization) {
			continue
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// GetWorker returns nil, nil for workers labor does not know
func (c *LaborServiceClient) GetWorker(ctx context.Context, workerID string, availabilityDate time.Time) (*domain.Worker, error) {
	query := url.Values{}
	if !availabilityDate.IsZero() {
		query.Set("availableOn", availabilityDate.Format(availabilityDateLayout))
	}

	var dto WorkerDTO
	found, err := c.client.getJSON(ctx, "/api/v1/workers/"+url.PathEscape(workerID), query, &dto)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	w := toWorker(dto)
	return &w, nil
}

// toWorker drops specializations outside the stage catalog
func toWorker(dto WorkerDTO) domain.Worker {
	specs := make([]domain.Stage, 0, len(dto.Specializations))
	for _, s := range dto.Specializations {
		if stage, err := domain.ParseStage(s); err == nil {
			specs = append(specs, stage)
		}
	}
	return domain.Worker{
		WorkerID:        dto.WorkerID,
		Name:            dto.Name,
		Role:            domain.Role(dto.Role),
		Specializations: specs,
		Active:          dto.Active,
		Available:       dto.Available,
		Performance: domain.PerformanceMetrics{
			QualityPassRate:   dto.Performance.QualityPassRate,
			AvgMinutesPerUnit: dto.Performance.AvgMinutesPerUnit,
			SampleSize:        dto.Performance.SampleSize,
		},
		OpenAssignments: dto.OpenAssignments,
	}
}
