// Package repository defines the Repository Interface contract (C8) used
// by the Fingerprinter, Collector and Scheduler, plus its SQLite and
// Postgres implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/routerdiscovery/engine/internal/models"
)

// Repository is the abstract persistence contract spec section 4.8 names.
// Implementations MUST cascade Router deletion to its Metrics and MUST
// return listForRouter results newest-first up to limit.
type Repository interface {
	ListRouters(ctx context.Context) ([]models.Router, error)
	ListMonitoredRouters(ctx context.Context) ([]models.Router, error)
	GetRouterByID(ctx context.Context, id uuid.UUID) (*models.Router, error)
	GetRouterByMacOrIP(ctx context.Context, mac, ip, hostname string) (*models.Router, error)
	CreateRouter(ctx context.Context, r *models.Router) error
	UpdateRouter(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*models.Router, error)
	DeleteRouter(ctx context.Context, id uuid.UUID) error

	InsertMetric(ctx context.Context, m *models.Metric) error
	ListMetricsForRouter(ctx context.Context, routerID uuid.UUID, since time.Time, limit int) ([]models.Metric, error)
	DeleteMetricsBefore(ctx context.Context, routerID uuid.UUID, cutoff time.Time) (int64, error)

	Close() error
}
