// Package scanner implements the Scanner component: tiered TCP probing of
// a /24 followed by fingerprinting of the candidate hosts that answered.
package scanner

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/routerdiscovery/engine/internal/fingerprint"
	"github.com/routerdiscovery/engine/internal/models"
	"github.com/routerdiscovery/engine/internal/probe"
	"github.com/routerdiscovery/engine/internal/sshsession"
)

// timeout tiers, spec section 4.1.
const (
	ultraTimeout    = 120 * time.Millisecond
	quickTimeout    = 300 * time.Millisecond
	extendedTimeout = 1000 * time.Millisecond
	hintTimeout     = 500 * time.Millisecond
)

var priorityHosts = []int{1, 2, 10, 20, 99, 100, 101, 102, 250, 253, 254}
var priorityPorts = []int{22, 80, 443, 8080}
var fullSweepPorts = []int{80, 443, 22, 8080, 8081}

const fullSweepBatchSize = 40

// Progress reports interim state back to the Job Registry while a scan runs.
type Progress struct {
	CandidateIPs []string
	Partial      bool
	Done         bool
	ScannedCount int
	TotalCount   int
}

// ProgressFunc is invoked as tiers complete so the caller (the Job
// Registry) can update its ScanJob's monotonic progress counter.
type ProgressFunc func(Progress)

// Options configures one Scan call.
type Options struct {
	SubnetPrefix string // normalised "a.b.c."
	HintedHosts  []int  // last-octet hints, extended-timeout treatment
	Credentials  sshsession.Credentials
	OnProgress   ProgressFunc
}

// Scan performs the three-tier probe (spec section 4.4) and returns the
// discovered devices plus whether the sweep terminated early.
func Scan(ctx context.Context, opts Options) ([]models.DiscoveredDevice, bool) {
	found := newIPSet()
	partial := false

	// Tier 1: priority sweep.
	tier1 := probeHosts(ctx, opts.SubnetPrefix, priorityHosts, priorityPorts, quickTimeout)
	found.addAll(tier1)
	report(opts.OnProgress, found, false, len(tier1), 254)

	if len(tier1) >= 2 || found.len() >= 5 {
		partial = true
	}

	// Tier 2: nearby expansion around hinted hosts.
	if !partial {
		hintCandidates := expandHints(opts.HintedHosts)
		tier2 := probeHosts(ctx, opts.SubnetPrefix, hintCandidates, fullSweepPorts, hintTimeout)
		found.addAll(tier2)
		report(opts.OnProgress, found, false, found.len(), 254)
	}

	// A hinted host is a first-class input: force it into the candidate
	// set even when every Tier-2 probe against it failed, so it still
	// reaches fingerprinting and produces at least a degraded result.
	found.addAll(opts.HintedHosts)

	// Tier 3: full sweep in batches of ~40, unless tier 1/2 already
	// satisfied the early-termination policy.
	if !partial {
		remaining := remainingOctets(found, opts.HintedHosts)
		batchesSeen := 0
		for start := 0; start < len(remaining); start += fullSweepBatchSize {
			end := start + fullSweepBatchSize
			if end > len(remaining) {
				end = len(remaining)
			}
			batch := remaining[start:end]
			hits := probeHosts(ctx, opts.SubnetPrefix, batch, fullSweepPorts, ultraTimeout)
			found.addAll(hits)
			batchesSeen++

			report(opts.OnProgress, found, false, start+len(batch), len(remaining))

			if batchesSeen >= 8 && found.len() > 0 {
				partial = true
				break
			}
			select {
			case <-ctx.Done():
				partial = true
			default:
			}
			if partial {
				break
			}
		}
	}

	hintSet := make(map[int]bool, len(opts.HintedHosts))
	for _, h := range opts.HintedHosts {
		hintSet[h] = true
	}

	devices := fingerprintCandidates(ctx, opts.SubnetPrefix, found.sortedOctets(), hintSet, opts.Credentials)
	report(opts.OnProgress, found, true, found.len(), found.len())

	return devices, partial
}

func report(fn ProgressFunc, found *ipSet, done bool, scanned, total int) {
	if fn == nil {
		return
	}
	fn(Progress{
		CandidateIPs: found.addrs(),
		ScannedCount: scanned,
		TotalCount:   total,
		Done:         done,
	})
}

// fingerprintCandidates runs the Fingerprinter over every candidate IP,
// extended for hinted hosts and quick otherwise, each with its own outer
// deadline (spec section 4.4).
func fingerprintCandidates(ctx context.Context, prefix string, octets []int, hints map[int]bool, creds sshsession.Credentials) []models.DiscoveredDevice {
	type outcome struct {
		idx    int
		device models.DiscoveredDevice
	}

	results := make([]outcome, len(octets))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 16)

	for i, octet := range octets {
		wg.Add(1)
		go func(i, octet int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ip := fmt.Sprintf("%s%d", prefix, octet)
			hinted := hints[octet]

			deadline := 3 * time.Second
			if hinted {
				deadline = 5 * time.Second
			}
			fctx, cancel := context.WithTimeout(ctx, deadline)
			defer cancel()

			if hinted {
				results[i] = outcome{i, fingerprint.Extended(fctx, ip, 22, creds)}
				return
			}

			fp := fingerprint.Quick(fctx, ip, 22, creds)
			if !fp.SSHSuccess {
				results[i] = outcome{i, models.DiscoveredDevice{
					IPAddress:  ip,
					SSHSuccess: false,
					Note:       "no ssh response within quick deadline",
				}}
				return
			}
			var macPtr *string
			if fp.MAC != "" {
				macPtr = &fp.MAC
			}
			results[i] = outcome{i, models.DiscoveredDevice{
				IPAddress:  ip,
				Hostname:   fp.Hostname,
				MACAddress: macPtr,
				IsOpenWrt:  fp.IsOpenWrt,
				SSHSuccess: true,
			}}
		}(i, octet)
	}
	wg.Wait()

	devices := make([]models.DiscoveredDevice, len(results))
	for i, r := range results {
		devices[i] = r.device
	}
	return devices
}

// probeHosts concurrently probes each octet's port list, stopping at the
// first open port per host, and returns the octets that answered.
func probeHosts(ctx context.Context, prefix string, octets []int, ports []int, timeout time.Duration) []int {
	var mu sync.Mutex
	var hits []int
	var wg sync.WaitGroup
	sem := make(chan struct{}, 64)

	for _, octet := range octets {
		wg.Add(1)
		go func(octet int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ip := fmt.Sprintf("%s%d", prefix, octet)
			for _, port := range ports {
				if probe.TCP(ctx, ip, port, timeout) == probe.Open {
					mu.Lock()
					hits = append(hits, octet)
					mu.Unlock()
					return
				}
			}
		}(octet)
	}
	wg.Wait()
	return hits
}

// expandHints probes a small neighbourhood (+/-2) around each hinted octet.
func expandHints(hints []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, h := range hints {
		for _, offset := range []int{-2, -1, 0, 1, 2} {
			o := h + offset
			if o < 1 || o > 254 || seen[o] {
				continue
			}
			seen[o] = true
			out = append(out, o)
		}
	}
	return out
}

func remainingOctets(found *ipSet, hints []int) []int {
	skip := map[int]bool{}
	for _, o := range found.sortedOctets() {
		skip[o] = true
	}
	for _, h := range hints {
		skip[h] = true
	}
	var out []int
	for o := 1; o <= 254; o++ {
		if !skip[o] {
			out = append(out, o)
		}
	}
	return out
}

// ipSet tracks discovered octets under a mutex; shared between goroutines
// fanning out tier probes.
type ipSet struct {
	mu     sync.Mutex
	octets map[int]bool
}

func newIPSet() *ipSet {
	return &ipSet{octets: map[int]bool{}}
}

func (s *ipSet) addAll(octets []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range octets {
		s.octets[o] = true
	}
}

func (s *ipSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.octets)
}

func (s *ipSet) sortedOctets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.octets))
	for o := range s.octets {
		out = append(out, o)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (s *ipSet) addrs() []string {
	octets := s.sortedOctets()
	out := make([]string, len(octets))
	for i, o := range octets {
		out[i] = strconv.Itoa(o)
	}
	return out
}
