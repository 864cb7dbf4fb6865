package api

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/routerdiscovery/engine/internal/collector"
	"github.com/routerdiscovery/engine/internal/fingerprint"
	"github.com/routerdiscovery/engine/internal/models"
	"github.com/routerdiscovery/engine/internal/probe"
	"github.com/routerdiscovery/engine/internal/repository"
	"github.com/routerdiscovery/engine/internal/scheduler"
	"github.com/routerdiscovery/engine/internal/sshsession"
	"github.com/routerdiscovery/engine/internal/vault"
)

// RouterHandler serves the /routers family of endpoints (spec section 6).
type RouterHandler struct {
	repo      repository.Repository
	vault     *vault.Vault
	scheduler *scheduler.Scheduler
}

func NewRouterHandler(repo repository.Repository, v *vault.Vault, s *scheduler.Scheduler) *RouterHandler {
	return &RouterHandler{repo: repo, vault: v, scheduler: s}
}

// CreateRouterRequest is the POST /routers body.
type CreateRouterRequest struct {
	Name                 string `json:"name" validate:"required"`
	IPAddress             string `json:"ipAddress" validate:"required"`
	Port                  int    `json:"port"`
	Username              string `json:"username" validate:"required"`
	Password              string `json:"password"`
	SSHKey                string `json:"sshKey"`
	MonitoringEnabled     *bool  `json:"monitoringEnabled"`
	MetricsRetentionDays  int    `json:"metricsRetentionDays"`
}

// UpdateRouterRequest is the PUT /routers/{id} body; every field optional.
type UpdateRouterRequest struct {
	Name                 *string `json:"name"`
	IPAddress            *string `json:"ipAddress"`
	Port                 *int    `json:"port"`
	Username             *string `json:"username"`
	Password             *string `json:"password"`
	SSHKey               *string `json:"sshKey"`
	MonitoringEnabled    *bool   `json:"monitoringEnabled"`
	MetricsRetentionDays *int    `json:"metricsRetentionDays"`
}

var ipv4Pattern = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

// ValidateIPv4 accepts dotted-quad notation with each octet in [0,255]
// (spec section 6).
func ValidateIPv4(ip string) bool {
	match := ipv4Pattern.FindStringSubmatch(ip)
	if match == nil {
		return false
	}
	for _, part := range match[1:] {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return net.ParseIP(ip) != nil
}

func (h *RouterHandler) ListRouters(c *fiber.Ctx) error {
	routers, err := h.repo.ListRouters(c.Context())
	if err != nil {
		return HandleError(c, fiber.StatusInternalServerError, err, "Failed to list routers")
	}
	return c.JSON(routers)
}

func (h *RouterHandler) GetRouter(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid router id")
	}
	router, err := h.repo.GetRouterByID(c.Context(), id)
	if err != nil {
		return HandleError(c, fiber.StatusNotFound, err, "Router not found")
	}
	return c.JSON(router)
}

func (h *RouterHandler) CreateRouter(c *fiber.Ctx) error {
	var req CreateRouterRequest
	if err := c.BodyParser(&req); err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid request body")
	}
	if err := ValidateRequest(c, &req); err != nil {
		return err
	}
	if !ValidateIPv4(req.IPAddress) {
		return HandleError(c, fiber.StatusBadRequest, models.NewValidationError("ipAddress must be IPv4 dotted-quad", []string{"ipAddress"}), "Invalid IP address")
	}
	if req.Password == "" && req.SSHKey == "" {
		return HandleError(c, fiber.StatusBadRequest, models.NewValidationError("one of password or sshKey is required", []string{"password", "sshKey"}), "Missing credentials")
	}

	port := req.Port
	if port == 0 {
		port = models.DefaultSSHPort
	}
	if port < 1 || port > 65535 {
		return HandleError(c, fiber.StatusBadRequest, models.NewValidationError("port must be in [1,65535]", []string{"port"}), "Invalid port")
	}

	retentionDays := req.MetricsRetentionDays
	if retentionDays == 0 {
		retentionDays = models.DefaultMetricsRetentionDays
	}
	if retentionDays < models.MinMetricsRetentionDays || retentionDays > models.MaxMetricsRetentionDays {
		return HandleError(c, fiber.StatusBadRequest, models.NewValidationError("metricsRetentionDays must be in [1,365]", []string{"metricsRetentionDays"}), "Invalid retention")
	}

	monitoringEnabled := true
	if req.MonitoringEnabled != nil {
		monitoringEnabled = *req.MonitoringEnabled
	}

	router := &models.Router{
		Name:                 req.Name,
		IPAddress:            req.IPAddress,
		SSHPort:              port,
		Username:             req.Username,
		MonitoringEnabled:    monitoringEnabled,
		MetricsRetentionDays: retentionDays,
	}

	if err := h.repo.CreateRouter(c.Context(), router); err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Failed to create router")
	}

	credKey, err := h.vault.Store(router.ID.String(), vault.Secret{
		Username:   req.Username,
		Password:   req.Password,
		PrivateKey: req.SSHKey,
	}, req.Name, req.IPAddress)
	if err == nil {
		_, _ = h.repo.UpdateRouter(c.Context(), router.ID, map[string]interface{}{"credential_key": credKey})
		router.CredentialKey = credKey
	}

	h.bestEffortFingerprint(c.Context(), router, req)

	refreshed, err := h.repo.GetRouterByID(c.Context(), router.ID)
	if err != nil {
		return c.Status(fiber.StatusCreated).JSON(router)
	}
	return c.Status(fiber.StatusCreated).JSON(refreshed)
}

// bestEffortFingerprint fills in hostname/MAC/status after creation without
// failing the request if the router can't be reached (spec section 6).
func (h *RouterHandler) bestEffortFingerprint(ctx context.Context, router *models.Router, req CreateRouterRequest) {
	creds := sshsession.Credentials{Username: req.Username, Password: req.Password, PrivateKey: req.SSHKey}
	fctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	fp := fingerprint.Quick(fctx, router.IPAddress, router.SSHPort, creds)
	patch := map[string]interface{}{}
	if fp.SSHSuccess {
		patch["status"] = models.RouterStatusOnline
		patch["last_seen"] = time.Now().UTC()
		if fp.Hostname != "" {
			patch["hostname"] = fp.Hostname
		}
		if fp.MAC != "" {
			patch["mac_address"] = fp.MAC
		}
	} else if probe.TCP(fctx, router.IPAddress, router.SSHPort, 2*time.Second) == probe.Open {
		patch["status"] = models.RouterStatusOnline
	} else {
		patch["status"] = models.RouterStatusOffline
	}
	if len(patch) > 0 {
		_, _ = h.repo.UpdateRouter(ctx, router.ID, patch)
	}
}

func (h *RouterHandler) UpdateRouter(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid router id")
	}
	existing, err := h.repo.GetRouterByID(c.Context(), id)
	if err != nil {
		return HandleError(c, fiber.StatusNotFound, err, "Router not found")
	}

	var req UpdateRouterRequest
	if err := c.BodyParser(&req); err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid request body")
	}

	patch := map[string]interface{}{}
	ipChanged := false
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.IPAddress != nil {
		if !ValidateIPv4(*req.IPAddress) {
			return HandleError(c, fiber.StatusBadRequest, models.NewValidationError("ipAddress must be IPv4 dotted-quad", []string{"ipAddress"}), "Invalid IP address")
		}
		ipChanged = *req.IPAddress != existing.IPAddress
		patch["ip_address"] = *req.IPAddress
	}
	if req.Port != nil {
		if *req.Port < 1 || *req.Port > 65535 {
			return HandleError(c, fiber.StatusBadRequest, models.NewValidationError("port must be in [1,65535]", []string{"port"}), "Invalid port")
		}
		patch["ssh_port"] = *req.Port
	}
	if req.Username != nil {
		patch["username"] = *req.Username
	}
	if req.MonitoringEnabled != nil {
		patch["monitoring_enabled"] = *req.MonitoringEnabled
	}
	if req.MetricsRetentionDays != nil {
		if *req.MetricsRetentionDays < models.MinMetricsRetentionDays || *req.MetricsRetentionDays > models.MaxMetricsRetentionDays {
			return HandleError(c, fiber.StatusBadRequest, models.NewValidationError("metricsRetentionDays must be in [1,365]", []string{"metricsRetentionDays"}), "Invalid retention")
		}
		patch["metrics_retention_days"] = *req.MetricsRetentionDays
	}
	if req.Password != nil || req.SSHKey != nil {
		secret, _ := h.vault.Get(existing.CredentialKey)
		if req.Password != nil {
			secret.Password = *req.Password
		}
		if req.SSHKey != nil {
			secret.PrivateKey = *req.SSHKey
		}
		if secret.Username == "" {
			secret.Username = existing.Username
		}
		_, _ = h.vault.Store(existing.ID.String(), secret, existing.Name, existing.IPAddress)
	}

	updated, err := h.repo.UpdateRouter(c.Context(), id, patch)
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Failed to update router")
	}

	if ipChanged {
		secret, err := h.vault.Get(updated.CredentialKey)
		if err == nil {
			creds := sshsession.Credentials{Username: secret.Username, Password: secret.Password, PrivateKey: secret.PrivateKey}
			fctx, cancel := context.WithTimeout(c.Context(), 4*time.Second)
			fp := fingerprint.Quick(fctx, updated.IPAddress, updated.SSHPort, creds)
			cancel()
			if fp.SSHSuccess {
				reFingerprint := map[string]interface{}{}
				if fp.Hostname != "" {
					reFingerprint["hostname"] = fp.Hostname
				}
				if fp.MAC != "" {
					reFingerprint["mac_address"] = fp.MAC
				}
				if len(reFingerprint) > 0 {
					updated, err = h.repo.UpdateRouter(c.Context(), id, reFingerprint)
					if err != nil {
						return HandleError(c, fiber.StatusInternalServerError, err, "Failed to refresh fingerprint")
					}
				}
			}
		}
	}

	return c.JSON(updated)
}

func (h *RouterHandler) DeleteRouter(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid router id")
	}
	router, err := h.repo.GetRouterByID(c.Context(), id)
	if err != nil {
		return HandleError(c, fiber.StatusNotFound, err, "Router not found")
	}
	if err := h.repo.DeleteRouter(c.Context(), id); err != nil {
		return HandleError(c, fiber.StatusInternalServerError, err, "Failed to delete router")
	}
	if router.CredentialKey != "" {
		_ = h.vault.Delete(router.CredentialKey)
	}
	return c.JSON(fiber.Map{"message": fmt.Sprintf("Router %s deleted", router.Name)})
}

func (h *RouterHandler) TestConnection(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid router id")
	}
	router, err := h.repo.GetRouterByID(c.Context(), id)
	if err != nil {
		return HandleError(c, fiber.StatusNotFound, err, "Router not found")
	}

	portOpen := probe.TCP(c.Context(), router.IPAddress, router.SSHPort, 2*time.Second) == probe.Open
	details := fiber.Map{"portOpen": portOpen, "sshConnection": false}

	if !portOpen {
		_, _ = h.repo.UpdateRouter(c.Context(), id, map[string]interface{}{"status": models.RouterStatusOffline})
		return c.JSON(fiber.Map{"success": false, "message": "Router not reachable", "details": details})
	}

	secret, err := h.vault.Get(router.CredentialKey)
	if err != nil {
		return c.JSON(fiber.Map{"success": false, "message": "No stored credentials", "details": details})
	}
	creds := sshsession.Credentials{Username: secret.Username, Password: secret.Password, PrivateKey: secret.PrivateKey}
	fctx, cancel := context.WithTimeout(c.Context(), 4*time.Second)
	defer cancel()
	fp := fingerprint.Quick(fctx, router.IPAddress, router.SSHPort, creds)

	details["sshConnection"] = fp.SSHSuccess
	if fp.SSHSuccess {
		details["hostname"] = fp.Hostname
		details["macAddress"] = fp.MAC
		_, _ = h.repo.UpdateRouter(c.Context(), id, map[string]interface{}{"status": models.RouterStatusOnline, "last_seen": time.Now().UTC()})
		return c.JSON(fiber.Map{"success": true, "message": "Connection successful", "details": details})
	}
	_, _ = h.repo.UpdateRouter(c.Context(), id, map[string]interface{}{"status": models.RouterStatusOnline})
	return c.JSON(fiber.Map{"success": false, "message": "SSH connection failed", "details": details})
}

func (h *RouterHandler) CollectMetrics(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid router id")
	}
	router, err := h.repo.GetRouterByID(c.Context(), id)
	if err != nil {
		return HandleError(c, fiber.StatusNotFound, err, "Router not found")
	}

	secret, err := h.vault.Get(router.CredentialKey)
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "No stored credentials for router")
	}
	creds := sshsession.Credentials{Username: secret.Username, Password: secret.Password, PrivateKey: secret.PrivateKey}

	metric, status := collector.Collect(c.Context(), router.ID, router.IPAddress, router.SSHPort, creds)
	patch := map[string]interface{}{"status": status}
	if status == models.RouterStatusOnline {
		patch["last_seen"] = time.Now().UTC()
	}
	if _, err := h.repo.UpdateRouter(c.Context(), id, patch); err != nil {
		return HandleError(c, fiber.StatusInternalServerError, err, "Failed to update router status")
	}
	if err := h.repo.InsertMetric(c.Context(), metric); err != nil {
		return HandleError(c, fiber.StatusInternalServerError, err, "Failed to store metric")
	}

	return c.JSON(fiber.Map{
		"message": "Metrics collected",
		"online":  status == models.RouterStatusOnline,
		"metrics": metric,
	})
}

func (h *RouterHandler) GetMetrics(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid router id")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "0"))
	since := timespanToSince(c.Query("timespan", ""))

	metrics, err := h.repo.ListMetricsForRouter(c.Context(), id, since, limit)
	if err != nil {
		return HandleError(c, fiber.StatusInternalServerError, err, "Failed to fetch metrics")
	}
	return c.JSON(metrics)
}

func timespanToSince(span string) time.Time {
	now := time.Now().UTC()
	switch span {
	case "hour":
		return now.Add(-time.Hour)
	case "day":
		return now.AddDate(0, 0, -1)
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

func (h *RouterHandler) MetricsSummary(c *fiber.Ctx) error {
	routers, err := h.repo.ListRouters(c.Context())
	if err != nil {
		return HandleError(c, fiber.StatusInternalServerError, err, "Failed to summarise routers")
	}
	summary := fiber.Map{"totalRouters": len(routers), "onlineRouters": 0, "offlineRouters": 0, "unknownRouters": 0, "totalClients": 0}
	online, offline, unknown := 0, 0, 0
	for _, r := range routers {
		switch r.Status {
		case models.RouterStatusOnline:
			online++
		case models.RouterStatusOffline:
			offline++
		default:
			unknown++
		}
	}
	summary["onlineRouters"] = online
	summary["offlineRouters"] = offline
	summary["unknownRouters"] = unknown
	return c.JSON(summary)
}

func (h *RouterHandler) GetMetricsConfig(c *fiber.Ctx) error {
	available := fiber.Map{}
	for label, cronStr := range map[string]string{
		"EVERY_MINUTE": "* * * * *", "EVERY_5_MINUTES": "*/5 * * * *",
		"EVERY_15_MINUTES": "*/15 * * * *", "EVERY_30_MINUTES": "*/30 * * * *",
		"HOURLY": "0 * * * *", "DAILY": "0 0 * * *",
	} {
		available[label] = cronStr
	}
	status := "stopped"
	if h.scheduler.IsRunning() {
		status = "running"
	}
	return c.JSON(fiber.Map{
		"currentInterval":    h.scheduler.CurrentInterval(),
		"availableIntervals": available,
		"status":             status,
	})
}

func (h *RouterHandler) SetMetricsConfig(c *fiber.Ctx) error {
	var body struct {
		Interval string `json:"interval" validate:"required"`
	}
	if err := c.BodyParser(&body); err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid request body")
	}
	label, _, ok := scheduler.ResolveInterval(body.Interval)
	if !ok {
		return HandleError(c, fiber.StatusBadRequest, models.NewValidationError("unknown interval", []string{"interval"}), "Invalid interval")
	}
	if err := h.scheduler.Reconfigure(label); err != nil {
		return HandleError(c, fiber.StatusInternalServerError, err, "Failed to reconfigure scheduler")
	}
	return c.JSON(fiber.Map{"currentInterval": label})
}

// RegisterRoutes wires /routers endpoints. Static sub-paths (metrics/summary,
// metrics/config) are registered before the /:id wildcard to avoid path
// conflicts, matching the teacher's scanner handler convention.
func (h *RouterHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/routers")
	group.Get("/metrics/summary", h.MetricsSummary)
	group.Get("/metrics/config", h.GetMetricsConfig)
	group.Post("/metrics/config", h.SetMetricsConfig)

	group.Get("/", h.ListRouters)
	group.Post("/", h.CreateRouter)
	group.Get("/:id", h.GetRouter)
	group.Put("/:id", h.UpdateRouter)
	group.Delete("/:id", h.DeleteRouter)
	group.Post("/:id/test-connection", h.TestConnection)
	group.Post("/:id/collect-metrics", h.CollectMetrics)
	group.Get("/:id/metrics", h.GetMetrics)
}
