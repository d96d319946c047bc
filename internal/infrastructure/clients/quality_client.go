package clients

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
)

// QualityStatusDTO is the aggregated open-issue status of one batch stage
type QualityStatusDTO struct {
	BatchID    string `json:"batchId"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	OpenIssues int    `json:"openIssues"`
}

// QualityServiceClient implements domain.QualityGate over HTTP
type QualityServiceClient struct {
	client *serviceClient
}

// NewQualityServiceClient creates a new QualityServiceClient
func NewQualityServiceClient(cfg *Config, m *metrics.Metrics, logger *logging.Logger) *QualityServiceClient {
	return &QualityServiceClient{
		client: newServiceClient("quality-service", cfg.QualityServiceURL, cfg.Timeout, m, logger),
	}
}

// GetOpenQualityStatus returns the worst open issue severity for the stage.
// A stage the quality service has never seen is good.
func (c *QualityServiceClient) GetOpenQualityStatus(ctx context.Context, batchID string, stage domain.Stage) (domain.QualityStatus, error) {
	path := fmt.Sprintf("/api/v1/batches/%s/stages/%s/quality", url.PathEscape(batchID), url.PathEscape(string(stage)))

	var dto QualityStatusDTO
	found, err := c.client.getJSON(ctx, path, nil, &dto)
	if err != nil {
		return "", err
	}
	if !found {
		return domain.QualityGood, nil
	}

	status, err := domain.ParseQualityStatus(dto.Status)
	if err != nil {
		return "", fmt.Errorf("quality-service returned %q for batch %s: %w", dto.Status, batchID, err)
	}
	return status, nil
}
