// Package collector implements the Collector component: runs the metric
// battery against a known router and returns a structurally-complete
// Metric record with per-field error tolerance.
package collector

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/routerdiscovery/engine/internal/models"
	"github.com/routerdiscovery/engine/internal/probe"
	"github.com/routerdiscovery/engine/internal/sshsession"
)

const commandTimeout = 5 * time.Second

// Collect produces one Metric for router (spec section 4.5). It never
// returns a Go error for telemetry failures — those are folded into the
// returned Metric's Error field or left as zero sub-fields — and it
// reports the status/lastSeen transition the caller should apply to the
// Router record.
func Collect(ctx context.Context, routerID uuid.UUID, ip string, sshPort int, creds sshsession.Credentials) (*models.Metric, models.RouterStatus) {
	if probe.TCP(ctx, ip, sshPort, 2*time.Second) != probe.Open {
		return models.SentinelMetric(routerID, "Device not reachable"), models.RouterStatusOffline
	}

	session, err := sshsession.Open(ctx, ip, sshPort, creds, 5*time.Second)
	if err != nil {
		return models.SentinelMetric(routerID, "SSH connection failed"), models.RouterStatusOnline
	}
	defer session.Close()

	metric := &models.Metric{
		ID:                uuid.New(),
		RouterID:          routerID,
		Timestamp:         time.Now().UTC(),
		NetworkInterfaces: models.NetworkInterfaces{},
	}

	run := func(cmd string) (string, bool) {
		res, err := session.Run(ctx, cmd, commandTimeout)
		if err != nil {
			return "", false
		}
		return res.Stdout, true
	}

	collectUptime(run, metric)
	collectMemory(run, metric)
	collectCPULoad(run, metric)
	collectDisk(run, metric)
	collectInterfaces(run, metric)
	metric.WirelessClients = collectWirelessClients(run)

	return metric, models.RouterStatusOnline
}

func collectUptime(run func(string) (string, bool), m *models.Metric) {
	if out, ok := run("uptime"); ok {
		m.Uptime = strings.TrimSpace(out)
	}
}

var meminfoField = regexp.MustCompile(`(?i)^(MemTotal|MemFree|MemAvailable|Buffers|Cached):\s*(\d+)`)

func collectMemory(run func(string) (string, bool), m *models.Metric) {
	fields := map[string]int64{}
	if out, ok := run("cat /proc/meminfo"); ok {
		for _, line := range strings.Split(out, "\n") {
			match := meminfoField.FindStringSubmatch(line)
			if match == nil {
				continue
			}
			v, err := strconv.ParseInt(match[2], 10, 64)
			if err != nil {
				continue
			}
			fields[strings.ToLower(match[1])] = v
		}
	}

	total := fields["memtotal"]
	if total == 0 {
		if out, ok := run("free | grep Mem"); ok {
			parts := strings.Fields(out)
			if len(parts) >= 3 {
				total, _ = strconv.ParseInt(parts[1], 10, 64)
				used, _ := strconv.ParseInt(parts[2], 10, 64)
				m.MemoryUsage = models.MemoryUsage{
					TotalKB:    total,
					FreeKB:     total - used,
					UsedKB:     used,
					Percentage: models.ComputePercentage(used, total),
				}
			}
		}
		return
	}

	available := fields["memavailable"]
	effectiveFree := available
	if effectiveFree <= 0 {
		effectiveFree = fields["memfree"] + fields["buffers"] + fields["cached"]
	}
	used := total - effectiveFree
	m.MemoryUsage = models.MemoryUsage{
		TotalKB:    total,
		FreeKB:     effectiveFree,
		UsedKB:     used,
		Percentage: models.ComputePercentage(used, total),
	}
}

var loadavgRegex = regexp.MustCompile(`load average:\s*([0-9.]+)`)

func collectCPULoad(run func(string) (string, bool), m *models.Metric) {
	if out, ok := run("cat /proc/loadavg"); ok {
		fields := strings.Fields(out)
		if len(fields) > 0 {
			if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
				m.CPULoad = v
				return
			}
		}
	}

	if out, ok := run("uptime"); ok {
		if match := loadavgRegex.FindStringSubmatch(out); match != nil {
			if v, err := strconv.ParseFloat(match[1], 64); err == nil {
				m.CPULoad = v
				return
			}
		}
	}

	if out, ok := run(`top -bn1 | grep %Cpu | awk '{print $2}'`); ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(out), 64); err == nil {
			m.CPULoad = v / 100
		}
	}
}

var sizeRegex = regexp.MustCompile(`(?i)^([0-9.]+)\s*(K|KB|M|MB|G|GB|T|TB)?$`)

// parseSize accepts the df -h unit suffixes (case-insensitive, 1024-based)
// and returns the byte count, matching spec section 4.5's df parsing rule
// and the parse round-trip testable property (spec section 8).
func parseSize(raw string) int64 {
	match := sizeRegex.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	unit := strings.ToUpper(match[2])
	var multiplier float64 = 1
	switch unit {
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	case "T", "TB":
		multiplier = 1024 * 1024 * 1024 * 1024
	}
	return int64(value * multiplier)
}

func collectDisk(run func(string) (string, bool), m *models.Metric) {
	out, ok := run("df -h / | tail -n 1")
	if !ok {
		return
	}
	fields := strings.Fields(out)
	// Typical layout: filesystem size used avail use% mountpoint (6 cols)
	// or size used avail use% mountpoint when the filesystem column is
	// stripped by the device's busybox df.
	if len(fields) < 4 {
		return
	}
	var totalRaw, usedRaw, freeRaw, pctRaw string
	switch len(fields) {
	case 6:
		totalRaw, usedRaw, freeRaw, pctRaw = fields[1], fields[2], fields[3], fields[4]
	default:
		totalRaw, usedRaw, freeRaw, pctRaw = fields[0], fields[1], fields[2], fields[3]
	}

	pct, _ := strconv.Atoi(strings.TrimSuffix(pctRaw, "%"))
	m.DiskUsage = models.DiskUsage{
		TotalBytes: parseSize(totalRaw),
		UsedBytes:  parseSize(usedRaw),
		FreeBytes:  parseSize(freeRaw),
		Percentage: pct,
		TotalRaw:   totalRaw,
		UsedRaw:    usedRaw,
		FreeRaw:    freeRaw,
	}
}

var (
	ifaceHeader  = regexp.MustCompile(`^([a-zA-Z0-9.:@_-]+)\s*(?:Link encap|flags=)`)
	ifconfigIPv4 = regexp.MustCompile(`inet (?:addr:)?([0-9.]+)`)
	ifconfigMAC  = regexp.MustCompile(`(?:ether|HWaddr|link/ether)\s+([0-9a-fA-F:]{17})`)
	rxBytes      = regexp.MustCompile(`RX bytes:(\d+)`)
	txBytes      = regexp.MustCompile(`TX bytes:(\d+)`)
)

// collectInterfaces block-parses ifconfig output into one NetworkInterface
// per device, then fills a missing IPv4 from `ip addr show <iface>` and a
// missing MAC from sysfs (spec section 4.5). When ifconfig itself fails, no
// interfaces are reported; `ip link show` is not used to list them.
func collectInterfaces(run func(string) (string, bool), m *models.Metric) {
	out, ok := run("ifconfig")
	if !ok {
		return
	}

	var current *models.NetworkInterface
	flush := func() {
		if current != nil {
			m.NetworkInterfaces = append(m.NetworkInterfaces, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(out, "\n") {
		if match := ifaceHeader.FindStringSubmatch(line); match != nil {
			flush()
			status := models.InterfaceDown
			if strings.Contains(line, "UP") {
				status = models.InterfaceUp
			}
			current = &models.NetworkInterface{Name: match[1], Status: status}
		}
		if current == nil {
			continue
		}
		if match := ifconfigIPv4.FindStringSubmatch(line); match != nil && current.IPv4 == "" {
			current.IPv4 = match[1]
		}
		if match := ifconfigMAC.FindStringSubmatch(line); match != nil && current.MAC == "" {
			current.MAC = models.NormalizeMAC(match[1])
		}
		if match := rxBytes.FindStringSubmatch(line); match != nil {
			current.RXBytes, _ = strconv.ParseInt(match[1], 10, 64)
		}
		if match := txBytes.FindStringSubmatch(line); match != nil {
			current.TXBytes, _ = strconv.ParseInt(match[1], 10, 64)
		}
	}
	flush()

	for i := range m.NetworkInterfaces {
		iface := &m.NetworkInterfaces[i]
		if iface.IPv4 == "" {
			if out, ok := run("ip addr show " + iface.Name); ok {
				if match := regexp.MustCompile(`inet ([0-9.]+)`).FindStringSubmatch(out); match != nil {
					iface.IPv4 = match[1]
				}
			}
		}
		if iface.MAC == "" {
			if out, ok := run("cat /sys/class/net/" + iface.Name + "/address"); ok {
				iface.MAC = models.NormalizeMAC(strings.TrimSpace(out))
			}
		}
	}
}

// collectWirelessClients iterates every wlan* radio rather than assuming a
// single wlan0 (spec section 9, Open Question 3).
func collectWirelessClients(run func(string) (string, bool)) int {
	if _, ok := run("which iw"); !ok {
		return 0
	}
	total := 0
	for _, radio := range wirelessRadios(run) {
		out, ok := run("iw dev " + radio + " station dump | grep Station | wc -l")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(out)); err == nil {
			total += n
		}
	}
	return total
}

func wirelessRadios(run func(string) (string, bool)) []string {
	out, ok := run("ls /sys/class/net | grep '^wlan'")
	if !ok || strings.TrimSpace(out) == "" {
		return []string{"wlan0"}
	}
	var radios []string
	for _, line := range strings.Split(out, "\n") {
		if r := strings.TrimSpace(line); r != "" {
			radios = append(radios, r)
		}
	}
	if len(radios) == 0 {
		return []string{"wlan0"}
	}
	return radios
}
