// Package scheduler implements the Scheduler & Retention Manager (C7):
// periodic fan-out of the Collector across all monitored routers, plus a
// daily per-router retention sweep. Grounded on the teacher's
// resource_monitoring.go monitoringLoop, generalised from a flat ticker to
// a reconfigurable cron schedule via robfig/cron/v3.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/routerdiscovery/engine/internal/collector"
	"github.com/routerdiscovery/engine/internal/models"
	"github.com/routerdiscovery/engine/internal/repository"
	"github.com/routerdiscovery/engine/internal/sshsession"
	"github.com/routerdiscovery/engine/internal/vault"
)

// Interval is one of the allowed cron-style labels (spec section 4.7, 6).
type Interval string

const (
	EveryMinute    Interval = "EVERY_MINUTE"
	Every5Minutes  Interval = "EVERY_5_MINUTES"
	Every15Minutes Interval = "EVERY_15_MINUTES"
	Every30Minutes Interval = "EVERY_30_MINUTES"
	Hourly         Interval = "HOURLY"
	Daily          Interval = "DAILY"

	DefaultInterval = Every5Minutes
)

// intervalCron maps each allowed label to its wire-level cron string
// (spec section 6).
var intervalCron = map[Interval]string{
	EveryMinute:    "* * * * *",
	Every5Minutes:  "*/5 * * * *",
	Every15Minutes: "*/15 * * * *",
	Every30Minutes: "*/30 * * * *",
	Hourly:         "0 * * * *",
	Daily:          "0 0 * * *",
}

const retentionCron = "0 1 * * *" // daily at 01:00 local, spec section 4.7

const maxConcurrentCollections = 24

// ResolveInterval accepts either a label or a raw cron string, both of
// which MUST be accepted (spec section 6).
func ResolveInterval(value string) (Interval, string, bool) {
	if cronStr, ok := intervalCron[Interval(value)]; ok {
		return Interval(value), cronStr, true
	}
	for label, cronStr := range intervalCron {
		if cronStr == value {
			return label, cronStr, true
		}
	}
	return "", "", false
}

// Scheduler owns the cron wheels for collection and retention. Reconfiguring
// the collection interval is serialised against tick dispatch (spec
// section 5).
type Scheduler struct {
	repo  repository.Repository
	vault *vault.Vault

	mu              sync.Mutex
	cronEngine      *cron.Cron
	collectionEntry cron.EntryID
	currentInterval Interval

	running bool
}

// New constructs a Scheduler bound to repo and vault; call Start to begin
// dispatching.
func New(repo repository.Repository, v *vault.Vault) *Scheduler {
	return &Scheduler{
		repo:            repo,
		vault:           v,
		currentInterval: DefaultInterval,
	}
}

// Start installs the collection schedule (at the given interval) and the
// fixed daily retention schedule, then starts the cron engine.
func (s *Scheduler) Start(interval Interval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	label, cronStr, ok := ResolveInterval(string(interval))
	if !ok {
		label, cronStr = DefaultInterval, intervalCron[DefaultInterval]
	}

	s.cronEngine = cron.New()
	entryID, err := s.cronEngine.AddFunc(cronStr, s.runCollectionTick)
	if err != nil {
		return err
	}
	s.collectionEntry = entryID
	s.currentInterval = label

	if _, err := s.cronEngine.AddFunc(retentionCron, s.runRetentionSweep); err != nil {
		return err
	}

	s.cronEngine.Start()
	s.running = true
	log.Printf("[Scheduler] started, collection interval=%s", label)
	return nil
}

// Stop halts the cron engine, which stops collection and retention
// together; neither schedule can be started or stopped on its own.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	stopCtx := s.cronEngine.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.running = false
	log.Printf("[Scheduler] stopped")
}

// Reconfigure installs a new collection interval: stop the current job,
// install the new schedule, start again (spec section 4.7).
func (s *Scheduler) Reconfigure(interval Interval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.currentInterval = interval
		return nil
	}

	label, cronStr, ok := ResolveInterval(string(interval))
	if !ok {
		label, cronStr = DefaultInterval, intervalCron[DefaultInterval]
	}

	s.cronEngine.Remove(s.collectionEntry)
	entryID, err := s.cronEngine.AddFunc(cronStr, s.runCollectionTick)
	if err != nil {
		return err
	}
	s.collectionEntry = entryID
	s.currentInterval = label
	log.Printf("[Scheduler] reconfigured collection interval=%s", label)
	return nil
}

// CurrentInterval reports the active collection schedule label.
func (s *Scheduler) CurrentInterval() Interval {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentInterval
}

// IsRunning reports whether the cron engine is dispatching.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runCollectionTick queries monitored routers and fans out one Collector
// call per router concurrently; individual failures are logged but never
// abort the tick (spec section 4.7).
func (s *Scheduler) runCollectionTick() {
	ctx := context.Background()
	routers, err := s.repo.ListMonitoredRouters(ctx)
	if err != nil {
		log.Printf("[Scheduler] failed to list monitored routers: %v", err)
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, failed := 0, 0
	sem := make(chan struct{}, maxConcurrentCollections)

	for _, router := range routers {
		wg.Add(1)
		go func(r models.Router) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.collectOne(ctx, r); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				log.Printf("[Scheduler] collect failed for router %s (%s): %v", r.Name, r.IPAddress, err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}(router)
	}
	wg.Wait()

	log.Printf("[Scheduler] collection tick complete: success=%d failed=%d", succeeded, failed)
}

func (s *Scheduler) collectOne(ctx context.Context, r models.Router) error {
	secret, err := s.vault.Get(r.CredentialKey)
	if err != nil {
		return err
	}
	creds := sshsession.Credentials{
		Username:      secret.Username,
		Password:      secret.Password,
		PrivateKey:    secret.PrivateKey,
		KeyPassphrase: secret.KeyPassphrase,
	}

	metric, status := collector.Collect(ctx, r.ID, r.IPAddress, r.SSHPort, creds)
	now := time.Now().UTC()
	patch := map[string]interface{}{"status": status}
	if status == models.RouterStatusOnline {
		patch["last_seen"] = now
	}
	if _, err := s.repo.UpdateRouter(ctx, r.ID, patch); err != nil {
		return err
	}
	return s.repo.InsertMetric(ctx, metric)
}

// runRetentionSweep deletes, for each Router, Metric rows older than that
// Router's configured retention horizon (spec section 4.7, 8).
func (s *Scheduler) runRetentionSweep() {
	ctx := context.Background()
	routers, err := s.repo.ListRouters(ctx)
	if err != nil {
		log.Printf("[Scheduler] retention sweep: failed to list routers: %v", err)
		return
	}

	total := int64(0)
	for _, r := range routers {
		cutoff := time.Now().UTC().AddDate(0, 0, -r.MetricsRetentionDays)
		deleted, err := s.repo.DeleteMetricsBefore(ctx, r.ID, cutoff)
		if err != nil {
			log.Printf("[Scheduler] retention sweep failed for router %s: %v", r.Name, err)
			continue
		}
		total += deleted
	}
	log.Printf("[Scheduler] retention sweep complete: %d metrics deleted", total)
}
