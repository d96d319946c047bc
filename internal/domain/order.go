package domain

import "time"

// OrderStatus is the order lifecycle as reported by order management
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "pending"
	OrderStatusBatched      OrderStatus = "batched"
	OrderStatusInProduction OrderStatus = "in_production"
	OrderStatusShipped      OrderStatus = "shipped"
)

// Order is a customer purchase record owned by order management
type Order struct {
	OrderID  string            `json:"orderId" bson:"orderId"`
	ModelRef string            `json:"modelRef" bson:"modelRef"`
	Options  map[string]string `json:"options,omitempty" bson:"options,omitempty"`
	Priority Priority          `json:"priority" bson:"priority"`
	DueDate  *time.Time        `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Status   OrderStatus       `json:"status" bson:"status"`
}

// IsPending reports whether the order is still waiting to be batched
func (o Order) IsPending() bool {
	return o.Status == "" || o.Status == OrderStatusPending
}
