package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/routerdiscovery/engine/internal/models"
)

// PostgresRepository is the pgx-backed Repository implementation, used
// when DATABASE_URL is a postgres:// DSN. Grounded on jbouey-msp-flake's
// appliance checkin store: a pgxpool.Pool plus hand-written SQL, no ORM.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS routers (
	id uuid PRIMARY KEY,
	name text NOT NULL UNIQUE,
	ip_address text NOT NULL UNIQUE,
	hostname text NOT NULL DEFAULT '',
	mac_address text UNIQUE,
	ssh_port int NOT NULL DEFAULT 22,
	username text NOT NULL DEFAULT '',
	credential_key text NOT NULL DEFAULT '',
	monitoring_enabled boolean NOT NULL DEFAULT true,
	metrics_retention_days int NOT NULL DEFAULT 30,
	status text NOT NULL DEFAULT 'unknown',
	last_seen timestamptz,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS metrics (
	id uuid PRIMARY KEY,
	router_id uuid NOT NULL REFERENCES routers(id) ON DELETE CASCADE,
	timestamp timestamptz NOT NULL,
	uptime text NOT NULL DEFAULT '',
	cpu_load double precision NOT NULL DEFAULT 0,
	mem_total_kb bigint NOT NULL DEFAULT 0,
	mem_free_kb bigint NOT NULL DEFAULT 0,
	mem_used_kb bigint NOT NULL DEFAULT 0,
	mem_percentage int NOT NULL DEFAULT 0,
	disk_total_bytes bigint NOT NULL DEFAULT 0,
	disk_free_bytes bigint NOT NULL DEFAULT 0,
	disk_used_bytes bigint NOT NULL DEFAULT 0,
	disk_percentage int NOT NULL DEFAULT 0,
	disk_total_raw text NOT NULL DEFAULT '',
	disk_used_raw text NOT NULL DEFAULT '',
	disk_free_raw text NOT NULL DEFAULT '',
	network_interfaces jsonb NOT NULL DEFAULT '[]',
	wireless_clients int NOT NULL DEFAULT 0,
	error text NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS metrics_router_ts_idx ON metrics (router_id, timestamp DESC);
`

// OpenPostgres connects, pings, and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (p *PostgresRepository) ListRouters(ctx context.Context) ([]models.Router, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, ip_address, hostname, mac_address, ssh_port,
		username, credential_key, monitoring_enabled, metrics_retention_days, status, last_seen,
		created_at, updated_at FROM routers ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRouters(rows)
}

func (p *PostgresRepository) ListMonitoredRouters(ctx context.Context) ([]models.Router, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, ip_address, hostname, mac_address, ssh_port,
		username, credential_key, monitoring_enabled, metrics_retention_days, status, last_seen,
		created_at, updated_at FROM routers WHERE monitoring_enabled = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRouters(rows)
}

func scanRouters(rows pgx.Rows) ([]models.Router, error) {
	var out []models.Router
	for rows.Next() {
		var r models.Router
		var mac *string
		if err := rows.Scan(&r.ID, &r.Name, &r.IPAddress, &r.Hostname, &mac, &r.SSHPort,
			&r.Username, &r.CredentialKey, &r.MonitoringEnabled, &r.MetricsRetentionDays,
			&r.Status, &r.LastSeen, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if mac != nil {
			r.MAC = *mac
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresRepository) GetRouterByID(ctx context.Context, id uuid.UUID) (*models.Router, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, name, ip_address, hostname, mac_address, ssh_port,
		username, credential_key, monitoring_enabled, metrics_retention_days, status, last_seen,
		created_at, updated_at FROM routers WHERE id = $1`, id)
	return scanOneRouter(row)
}

func scanOneRouter(row pgx.Row) (*models.Router, error) {
	var r models.Router
	var mac *string
	err := row.Scan(&r.ID, &r.Name, &r.IPAddress, &r.Hostname, &mac, &r.SSHPort,
		&r.Username, &r.CredentialKey, &r.MonitoringEnabled, &r.MetricsRetentionDays,
		&r.Status, &r.LastSeen, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("router")
	}
	if err != nil {
		return nil, err
	}
	if mac != nil {
		r.MAC = *mac
	}
	return &r, nil
}

func (p *PostgresRepository) GetRouterByMacOrIP(ctx context.Context, mac, ip, hostname string) (*models.Router, error) {
	switch {
	case mac != "":
		return scanOneRouter(p.pool.QueryRow(ctx, routerSelectByField("mac_address"), models.NormalizeMAC(mac)))
	case ip != "":
		return scanOneRouter(p.pool.QueryRow(ctx, routerSelectByField("ip_address"), ip))
	case hostname != "":
		return scanOneRouter(p.pool.QueryRow(ctx, routerSelectByField("hostname"), hostname))
	default:
		return nil, models.NewValidationError("mac, ip or hostname required", nil)
	}
}

func routerSelectByField(field string) string {
	return fmt.Sprintf(`SELECT id, name, ip_address, hostname, mac_address, ssh_port,
		username, credential_key, monitoring_enabled, metrics_retention_days, status, last_seen,
		created_at, updated_at FROM routers WHERE %s = $1`, field)
}

func (p *PostgresRepository) CreateRouter(ctx context.Context, r *models.Router) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.MAC != "" {
		r.MAC = models.NormalizeMAC(r.MAC)
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	var mac *string
	if r.MAC != "" {
		mac = &r.MAC
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO routers (id, name, ip_address, hostname, mac_address,
		ssh_port, username, credential_key, monitoring_enabled, metrics_retention_days, status,
		last_seen, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.Name, r.IPAddress, r.Hostname, mac, r.SSHPort, r.Username, r.CredentialKey,
		r.MonitoringEnabled, r.MetricsRetentionDays, r.Status, r.LastSeen, r.CreatedAt, r.UpdatedAt)
	return err
}

// UpdateRouter applies a partial update built from a small whitelist of
// patchable columns, then returns the refreshed row.
func (p *PostgresRepository) UpdateRouter(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*models.Router, error) {
	allowed := map[string]bool{
		"name": true, "ip_address": true, "hostname": true, "mac_address": true,
		"ssh_port": true, "username": true, "credential_key": true,
		"monitoring_enabled": true, "metrics_retention_days": true,
		"status": true, "last_seen": true,
	}
	setClauses := "updated_at = now()"
	args := []interface{}{id}
	for k, v := range patch {
		if !allowed[k] {
			continue
		}
		args = append(args, v)
		setClauses += fmt.Sprintf(", %s = $%d", k, len(args))
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`UPDATE routers SET %s WHERE id = $1`, setClauses), args...)
	if err != nil {
		return nil, err
	}
	return p.GetRouterByID(ctx, id)
}

func (p *PostgresRepository) DeleteRouter(ctx context.Context, id uuid.UUID) error {
	// The metrics FK carries ON DELETE CASCADE, so a single delete suffices.
	_, err := p.pool.Exec(ctx, `DELETE FROM routers WHERE id = $1`, id)
	return err
}

func (p *PostgresRepository) InsertMetric(ctx context.Context, m *models.Metric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	ifacesJSON, err := marshalInterfaces(m.NetworkInterfaces)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO metrics (id, router_id, timestamp, uptime, cpu_load,
		mem_total_kb, mem_free_kb, mem_used_kb, mem_percentage,
		disk_total_bytes, disk_free_bytes, disk_used_bytes, disk_percentage,
		disk_total_raw, disk_used_raw, disk_free_raw, network_interfaces, wireless_clients, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		m.ID, m.RouterID, m.Timestamp, m.Uptime, m.CPULoad,
		m.MemoryUsage.TotalKB, m.MemoryUsage.FreeKB, m.MemoryUsage.UsedKB, m.MemoryUsage.Percentage,
		m.DiskUsage.TotalBytes, m.DiskUsage.FreeBytes, m.DiskUsage.UsedBytes, m.DiskUsage.Percentage,
		m.DiskUsage.TotalRaw, m.DiskUsage.UsedRaw, m.DiskUsage.FreeRaw,
		ifacesJSON, m.WirelessClients, m.Error)
	return err
}

func (p *PostgresRepository) ListMetricsForRouter(ctx context.Context, routerID uuid.UUID, since time.Time, limit int) ([]models.Metric, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.pool.Query(ctx, `SELECT id, router_id, timestamp, uptime, cpu_load,
		mem_total_kb, mem_free_kb, mem_used_kb, mem_percentage,
		disk_total_bytes, disk_free_bytes, disk_used_bytes, disk_percentage,
		disk_total_raw, disk_used_raw, disk_free_raw, network_interfaces, wireless_clients, error
		FROM metrics WHERE router_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC LIMIT $3`, routerID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Metric
	for rows.Next() {
		var m models.Metric
		var ifacesJSON []byte
		if err := rows.Scan(&m.ID, &m.RouterID, &m.Timestamp, &m.Uptime, &m.CPULoad,
			&m.MemoryUsage.TotalKB, &m.MemoryUsage.FreeKB, &m.MemoryUsage.UsedKB, &m.MemoryUsage.Percentage,
			&m.DiskUsage.TotalBytes, &m.DiskUsage.FreeBytes, &m.DiskUsage.UsedBytes, &m.DiskUsage.Percentage,
			&m.DiskUsage.TotalRaw, &m.DiskUsage.UsedRaw, &m.DiskUsage.FreeRaw,
			&ifacesJSON, &m.WirelessClients, &m.Error); err != nil {
			return nil, err
		}
		ifaces, err := unmarshalInterfaces(ifacesJSON)
		if err != nil {
			return nil, err
		}
		m.NetworkInterfaces = ifaces
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresRepository) DeleteMetricsBefore(ctx context.Context, routerID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM metrics WHERE router_id = $1 AND timestamp < $2`, routerID, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresRepository) Close() error {
	p.pool.Close()
	return nil
}
