package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/routerdiscovery/engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	repo, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_CreateAndGetRouter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	router := &models.Router{Name: "core-router", IPAddress: "192.168.1.1", Username: "root"}
	require.NoError(t, repo.CreateRouter(ctx, router))
	assert.NotEqual(t, uuid.Nil, router.ID)

	got, err := repo.GetRouterByID(ctx, router.ID)
	require.NoError(t, err)
	assert.Equal(t, "core-router", got.Name)
	assert.Equal(t, models.RouterStatusUnknown, got.Status)
}

func TestSQLiteRepository_GetRouterByID_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetRouterByID(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestSQLiteRepository_UniqueConstraints(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := &models.Router{Name: "r1", IPAddress: "192.168.1.1", MAC: "AA:BB:CC:DD:EE:FF", Username: "root"}
	require.NoError(t, repo.CreateRouter(ctx, a))

	dupIP := &models.Router{Name: "r2", IPAddress: "192.168.1.1", Username: "root"}
	assert.Error(t, repo.CreateRouter(ctx, dupIP))

	dupMAC := &models.Router{Name: "r3", IPAddress: "192.168.1.2", MAC: "aa:bb:cc:dd:ee:ff", Username: "root"}
	assert.Error(t, repo.CreateRouter(ctx, dupMAC))
}

func TestSQLiteRepository_GetRouterByMacOrIP(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	router := &models.Router{Name: "r1", IPAddress: "192.168.1.1", MAC: "AA:BB:CC:DD:EE:FF", Username: "root"}
	require.NoError(t, repo.CreateRouter(ctx, router))

	byMac, err := repo.GetRouterByMacOrIP(ctx, "aa:bb:cc:dd:ee:ff", "", "")
	require.NoError(t, err)
	assert.Equal(t, router.ID, byMac.ID)

	byIP, err := repo.GetRouterByMacOrIP(ctx, "", "192.168.1.1", "")
	require.NoError(t, err)
	assert.Equal(t, router.ID, byIP.ID)

	_, err = repo.GetRouterByMacOrIP(ctx, "", "", "")
	assert.Error(t, err)
}

func TestSQLiteRepository_ListMonitoredRouters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	monitored := &models.Router{Name: "r1", IPAddress: "192.168.1.1", Username: "root", MonitoringEnabled: true}
	unmonitored := &models.Router{Name: "r2", IPAddress: "192.168.1.2", Username: "root", MonitoringEnabled: false}
	require.NoError(t, repo.CreateRouter(ctx, monitored))
	require.NoError(t, repo.CreateRouter(ctx, unmonitored))

	routers, err := repo.ListMonitoredRouters(ctx)
	require.NoError(t, err)
	require.Len(t, routers, 1)
	assert.Equal(t, "r1", routers[0].Name)
}

func TestSQLiteRepository_UpdateRouter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	router := &models.Router{Name: "r1", IPAddress: "192.168.1.1", Username: "root"}
	require.NoError(t, repo.CreateRouter(ctx, router))

	updated, err := repo.UpdateRouter(ctx, router.ID, map[string]interface{}{"status": models.RouterStatusOnline})
	require.NoError(t, err)
	assert.Equal(t, models.RouterStatusOnline, updated.Status)
}

func TestSQLiteRepository_DeleteRouter_CascadesMetrics(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	router := &models.Router{Name: "r1", IPAddress: "192.168.1.1", Username: "root"}
	require.NoError(t, repo.CreateRouter(ctx, router))

	metric := &models.Metric{RouterID: router.ID, Timestamp: time.Now().UTC()}
	require.NoError(t, repo.InsertMetric(ctx, metric))

	require.NoError(t, repo.DeleteRouter(ctx, router.ID))

	_, err := repo.GetRouterByID(ctx, router.ID)
	assert.Error(t, err)

	metrics, err := repo.ListMetricsForRouter(ctx, router.ID, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestSQLiteRepository_ListMetricsForRouter_NewestFirstWithLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	router := &models.Router{Name: "r1", IPAddress: "192.168.1.1", Username: "root"}
	require.NoError(t, repo.CreateRouter(ctx, router))

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		m := &models.Metric{RouterID: router.ID, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.InsertMetric(ctx, m))
	}

	metrics, err := repo.ListMetricsForRouter(ctx, router.ID, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.True(t, metrics[0].Timestamp.After(metrics[1].Timestamp))
}

func TestSQLiteRepository_DeleteMetricsBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	router := &models.Router{Name: "r1", IPAddress: "192.168.1.1", Username: "root"}
	require.NoError(t, repo.CreateRouter(ctx, router))

	old := &models.Metric{RouterID: router.ID, Timestamp: time.Now().UTC().Add(-48 * time.Hour)}
	recent := &models.Metric{RouterID: router.ID, Timestamp: time.Now().UTC()}
	require.NoError(t, repo.InsertMetric(ctx, old))
	require.NoError(t, repo.InsertMetric(ctx, recent))

	deleted, err := repo.DeleteMetricsBefore(ctx, router.ID, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	metrics, err := repo.ListMetricsForRouter(ctx, router.ID, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
}
