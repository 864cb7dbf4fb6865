package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/routerdiscovery/engine/internal/models"
	"github.com/routerdiscovery/engine/internal/registry"
	"github.com/routerdiscovery/engine/internal/repository"
	"github.com/routerdiscovery/engine/internal/scanner"
	"github.com/routerdiscovery/engine/internal/sshsession"
	"github.com/routerdiscovery/engine/internal/vault"
)

// ScannerHandler serves the /scanner family of endpoints (spec section 6):
// subnet sweeps driven through the Job Registry, plus manual enrolment of
// already-known devices.
type ScannerHandler struct {
	repo     repository.Repository
	registry *registry.Registry
	vault    *vault.Vault
}

func NewScannerHandler(repo repository.Repository, reg *registry.Registry, v *vault.Vault) *ScannerHandler {
	return &ScannerHandler{repo: repo, registry: reg, vault: v}
}

type startScanRequest struct {
	Subnet   string `json:"subnet" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

// StartScan creates a pending ScanJob and returns its id immediately
// (spec section 6: a jobId within 200ms), then drives the scan to
// completion in the background.
func (h *ScannerHandler) StartScan(c *fiber.Ctx) error {
	var req startScanRequest
	if err := c.BodyParser(&req); err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid request body")
	}
	if err := ValidateRequest(c, &req); err != nil {
		return err
	}

	job := h.registry.Create(req.Subnet, req.Username, req.Password)
	h.registry.Start(job.ID)

	go h.runScan(job.ID, job.SubnetPrefix, req.Username, req.Password)

	return c.JSON(fiber.Map{
		"status":    "accepted",
		"jobId":     job.ID,
		"subnet":    job.SubnetPrefix,
		"timestamp": job.CreatedAt,
	})
}

// scanJobDeadline is the scan-level hard deadline that force-terminates an
// in-flight job (spec section 5).
const scanJobDeadline = 10 * time.Minute

// runScan drives the tiered scan in the background, reporting progress into
// the Job Registry and recording the terminal result (spec section 4.4, 4.6).
func (h *ScannerHandler) runScan(jobID, subnet, username, password string) {
	ctx, cancel := context.WithTimeout(context.Background(), scanJobDeadline)
	defer cancel()

	creds := sshsession.Credentials{Username: username, Password: password}

	devices, partial := scanner.Scan(ctx, scanner.Options{
		SubnetPrefix: subnet,
		Credentials:  creds,
		OnProgress: func(p scanner.Progress) {
			percent := 0
			if p.TotalCount > 0 {
				percent = (p.ScannedCount * 100) / p.TotalCount
				if percent > 99 && !p.Done {
					percent = 99
				}
			}
			h.registry.Update(jobID, registry.Patch{Progress: &percent})
		},
	})

	devices = h.annotateExisting(ctx, devices)

	status := models.ScanJobCompleted
	progress := 100
	message := "Scan complete"
	result := models.ScanResult{Devices: devices, PartialScan: partial}
	h.registry.Update(jobID, registry.Patch{
		Status:   &status,
		Progress: &progress,
		Message:  &message,
		Result:   &result,
	})
}

// annotateExisting marks each discovered device as exists=true when a
// Router already matches it: by MAC when the device has one, otherwise by
// IP (spec section 3).
func (h *ScannerHandler) annotateExisting(ctx context.Context, devices []models.DiscoveredDevice) []models.DiscoveredDevice {
	for i := range devices {
		mac := ""
		if devices[i].MACAddress != nil {
			mac = *devices[i].MACAddress
		}
		if _, err := h.repo.GetRouterByMacOrIP(ctx, mac, devices[i].IPAddress, ""); err == nil {
			devices[i].Exists = true
		}
	}
	return devices
}

// GetScan reports a ScanJob's current state (spec section 6).
func (h *ScannerHandler) GetScan(c *fiber.Ctx) error {
	job, ok := h.registry.Get(c.Params("jobId"))
	if !ok {
		return HandleError(c, fiber.StatusNotFound, models.NewNotFoundError("scan job"), "Scan job not found")
	}
	return c.JSON(fiber.Map{
		"status":       job.Status,
		"progress":     job.Progress,
		"subnet":       job.SubnetPrefix,
		"message":      job.Message,
		"devices":      job.Result.Devices,
		"devicesFound": job.DevicesFound(),
		"partialScan":  job.Result.PartialScan,
		"error":        job.Error,
		"timestamp":    job.UpdatedAt,
	})
}

type addDeviceRequest struct {
	IPAddress  string `json:"ipAddress" validate:"required"`
	Hostname   string `json:"hostname"`
	MACAddress string `json:"macAddress"`
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	Name       string `json:"name"`
}

// AddDevice enrols one already-discovered device as a Router, or updates
// the existing Router that matches its MAC/IP (spec section 6, 8).
func (h *ScannerHandler) AddDevice(c *fiber.Ctx) error {
	var req addDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid request body")
	}
	if err := ValidateRequest(c, &req); err != nil {
		return err
	}
	router, _, err := h.addOrUpdate(c.Context(), req)
	if err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Failed to add device")
	}
	return c.JSON(router)
}

type addMultipleRequest struct {
	Devices []addDeviceRequest `json:"devices" validate:"required"`
}

// AddMultiple enrols a batch of devices, reporting per-device outcomes.
// Idempotent: replaying the same payload reports every device as updated,
// none as added (spec section 8).
func (h *ScannerHandler) AddMultiple(c *fiber.Ctx) error {
	var req addMultipleRequest
	if err := c.BodyParser(&req); err != nil {
		return HandleError(c, fiber.StatusBadRequest, err, "Invalid request body")
	}

	added := []models.Router{}
	updated := []models.Router{}
	failed := []fiber.Map{}

	for _, device := range req.Devices {
		router, wasCreated, err := h.addOrUpdate(c.Context(), device)
		if err != nil {
			failed = append(failed, fiber.Map{"ipAddress": device.IPAddress, "error": err.Error()})
			continue
		}
		if wasCreated {
			added = append(added, *router)
		} else {
			updated = append(updated, *router)
		}
	}

	return c.JSON(fiber.Map{
		"summary": fiber.Map{
			"added":   len(added),
			"updated": len(updated),
			"failed":  len(failed),
			"total":   len(req.Devices),
		},
		"added":   added,
		"updated": updated,
		"failed":  failed,
	})
}

// addOrUpdate creates a new Router for req, or rewrites the credentials of
// the Router already matching its MAC/IP.
func (h *ScannerHandler) addOrUpdate(ctx context.Context, req addDeviceRequest) (*models.Router, bool, error) {
	existing, err := h.repo.GetRouterByMacOrIP(ctx, req.MACAddress, req.IPAddress, req.Hostname)
	if err == nil {
		secret, err := h.vault.Store(existing.ID.String(), vault.Secret{Username: req.Username, Password: req.Password}, existing.Name, existing.IPAddress)
		if err != nil {
			return nil, false, err
		}
		patch := map[string]interface{}{"credential_key": secret, "username": req.Username}
		if req.Hostname != "" {
			patch["hostname"] = req.Hostname
		}
		updated, err := h.repo.UpdateRouter(ctx, existing.ID, patch)
		return updated, false, err
	}

	name := req.Name
	if name == "" {
		name = req.Hostname
	}
	if name == "" {
		name = req.IPAddress
	}

	router := &models.Router{
		Name:      name,
		IPAddress: req.IPAddress,
		Hostname:  req.Hostname,
		MAC:       req.MACAddress,
		Username:  req.Username,
	}
	if err := h.repo.CreateRouter(ctx, router); err != nil {
		return nil, false, err
	}
	credKey, err := h.vault.Store(router.ID.String(), vault.Secret{Username: req.Username, Password: req.Password}, router.Name, router.IPAddress)
	if err == nil {
		_, _ = h.repo.UpdateRouter(ctx, router.ID, map[string]interface{}{"credential_key": credKey})
		router.CredentialKey = credKey
	}
	return router, true, nil
}

// RegisterRoutes wires /scanner endpoints.
func (h *ScannerHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/scanner")
	group.Post("/scan", h.StartScan)
	group.Get("/scan/:jobId", h.GetScan)
	group.Post("/add", h.AddDevice)
	group.Post("/add-multiple", h.AddMultiple)
}
