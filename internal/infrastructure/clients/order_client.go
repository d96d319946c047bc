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

// OrderDTO is an order as returned by order management
type OrderDTO struct {
	OrderID  string            `json:"orderId"`
	ModelRef string            `json:"modelRef"`
	Options  map[string]string `json:"options,omitempty"`
	Priority string            `json:"priority"`
	DueDate  *time.Time        `json:"dueDate,omitempty"`
	Status   string            `json:"status"`
}

// PagedOrdersResponse is the order listing envelope
type PagedOrdersResponse struct {
	Data       []OrderDTO `json:"data"`
	TotalItems int        `json:"totalItems"`
}

// OrderServiceClient implements domain.OrderSource over HTTP
type OrderServiceClient struct {
	client *serviceClient
}

// NewOrderServiceClient creates a new OrderServiceClient
func NewOrderServiceClient(cfg *Config, m *metrics.Metrics, logger *logging.Logger) *OrderServiceClient {
	return &OrderServiceClient{
		client: newServiceClient("order-service", cfg.OrderServiceURL, cfg.Timeout, m, logger),
	}
}

// GetPendingOrders lists orders waiting to be batched. Unknown priorities are
// treated as standard.
func (c *OrderServiceClient) GetPendingOrders(ctx context.Context) ([]domain.Order, error) {
	query := url.Values{}
	query.Set("status", string(domain.OrderStatusPending))

	var paged PagedOrdersResponse
	found, err := c.client.getJSON(ctx, "/api/v1/orders", query, &paged)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("order-service has no order listing")
	}

	orders := make([]domain.Order, 0, len(paged.Data))
	for _, o := range paged.Data {
		priority, err := domain.ParsePriority(o.Priority)
		if err != nil {
			priority = domain.PriorityStandard
		}
		orders = append(orders, domain.Order{
			OrderID:  o.OrderID,
			ModelRef: o.ModelRef,
			Options:  o.Options,
			Priority: priority,
			DueDate:  o.DueDate,
			Status:   domain.OrderStatus(o.Status),
		})
	}
	return orders, nil
}
