package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/routerdiscovery/engine/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteRepository is the default, dependency-free Repository
// implementation, grounded on the teacher's cmd/server/main.go initDB.
type SQLiteRepository struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed repository and
// runs AutoMigrate for the Router/Metric schema.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&models.Router{}, &models.Metric{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (s *SQLiteRepository) ListRouters(ctx context.Context) ([]models.Router, error) {
	var routers []models.Router
	err := s.db.WithContext(ctx).Order("created_at asc").Find(&routers).Error
	return routers, err
}

func (s *SQLiteRepository) ListMonitoredRouters(ctx context.Context) ([]models.Router, error) {
	var routers []models.Router
	err := s.db.WithContext(ctx).Where("monitoring_enabled = ?", true).Find(&routers).Error
	return routers, err
}

func (s *SQLiteRepository) GetRouterByID(ctx context.Context, id uuid.UUID) (*models.Router, error) {
	var router models.Router
	err := s.db.WithContext(ctx).First(&router, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("router")
	}
	if err != nil {
		return nil, err
	}
	return &router, nil
}

func (s *SQLiteRepository) GetRouterByMacOrIP(ctx context.Context, mac, ip, hostname string) (*models.Router, error) {
	q := s.db.WithContext(ctx)
	var router models.Router
	var err error
	switch {
	case mac != "":
		err = q.First(&router, "mac_address = ?", models.NormalizeMAC(mac)).Error
	case ip != "":
		err = q.First(&router, "ip_address = ?", ip).Error
	case hostname != "":
		err = q.First(&router, "hostname = ?", hostname).Error
	default:
		return nil, models.NewValidationError("mac, ip or hostname required", nil)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("router")
	}
	if err != nil {
		return nil, err
	}
	return &router, nil
}

func (s *SQLiteRepository) CreateRouter(ctx context.Context, r *models.Router) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *SQLiteRepository) UpdateRouter(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*models.Router, error) {
	if err := s.db.WithContext(ctx).Model(&models.Router{}).Where("id = ?", id).Updates(patch).Error; err != nil {
		return nil, err
	}
	return s.GetRouterByID(ctx, id)
}

// DeleteRouter cascades to Metrics (spec section 4.8, 6) inside a
// transaction so the cascade is atomic.
func (s *SQLiteRepository) DeleteRouter(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("router_id = ?", id).Delete(&models.Metric{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Router{}, "id = ?", id).Error
	})
}

func (s *SQLiteRepository) InsertMetric(ctx context.Context, m *models.Metric) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *SQLiteRepository) ListMetricsForRouter(ctx context.Context, routerID uuid.UUID, since time.Time, limit int) ([]models.Metric, error) {
	var metrics []models.Metric
	q := s.db.WithContext(ctx).Where("router_id = ? AND timestamp >= ?", routerID, since).
		Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&metrics).Error
	return metrics, err
}

func (s *SQLiteRepository) DeleteMetricsBefore(ctx context.Context, routerID uuid.UUID, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("router_id = ? AND timestamp < ?", routerID, cutoff).Delete(&models.Metric{})
	return res.RowsAffected, res.Error
}

func (s *SQLiteRepository) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
