package collector

import (
	"testing"

	"github.com/routerdiscovery/engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestParseSize(t *testing.T) {
	assert.Equal(t, int64(1024), parseSize("1K"))
	assert.Equal(t, int64(1024), parseSize("1KB"))
	assert.Equal(t, int64(1024*1024), parseSize("1M"))
	assert.Equal(t, int64(1024*1024*1024), parseSize("1G"))
	assert.Equal(t, int64(1024*1024*1024*1024), parseSize("1T"))
	assert.Equal(t, int64(512), parseSize("0.5K"))
	assert.Equal(t, int64(0), parseSize("garbage"))
}

func fakeRun(outputs map[string]string) func(string) (string, bool) {
	return func(cmd string) (string, bool) {
		out, ok := outputs[cmd]
		return out, ok
	}
}

func TestCollectMemory_FromMeminfo(t *testing.T) {
	run := fakeRun(map[string]string{
		"cat /proc/meminfo": "MemTotal:       102400 kB\nMemFree:        40960 kB\nBuffers:        0 kB\nCached:         0 kB\n",
	})
	m := &models.Metric{}
	collectMemory(run, m)
	assert.Equal(t, int64(102400), m.MemoryUsage.TotalKB)
	assert.Equal(t, int64(40960), m.MemoryUsage.FreeKB)
	assert.Equal(t, int64(61440), m.MemoryUsage.UsedKB)
}

func TestCollectMemory_FallsBackToFree(t *testing.T) {
	run := fakeRun(map[string]string{
		"cat /proc/meminfo": "",
		"free | grep Mem":   "Mem: 102400 61440 40960",
	})
	m := &models.Metric{}
	collectMemory(run, m)
	assert.Equal(t, int64(102400), m.MemoryUsage.TotalKB)
	assert.Equal(t, int64(61440), m.MemoryUsage.UsedKB)
}

func TestCollectCPULoad_FromLoadavg(t *testing.T) {
	run := fakeRun(map[string]string{"cat /proc/loadavg": "0.42 0.30 0.25 1/100 1234"})
	m := &models.Metric{}
	collectCPULoad(run, m)
	assert.InDelta(t, 0.42, m.CPULoad, 0.001)
}

func TestCollectCPULoad_FallsBackToUptime(t *testing.T) {
	run := fakeRun(map[string]string{
		"cat /proc/loadavg": "",
		"uptime":            " 10:00:00 up 1 day, 2:34, 1 user, load average: 0.15, 0.10, 0.05",
	})
	m := &models.Metric{}
	collectCPULoad(run, m)
	assert.InDelta(t, 0.15, m.CPULoad, 0.001)
}

func TestCollectDisk_SixColumnLayout(t *testing.T) {
	run := fakeRun(map[string]string{
		"df -h / | tail -n 1": "/dev/root   256M   64M  192M  25% /",
	})
	m := &models.Metric{}
	collectDisk(run, m)
	assert.Equal(t, 25, m.DiskUsage.Percentage)
	assert.Equal(t, "256M", m.DiskUsage.TotalRaw)
	assert.Equal(t, parseSize("256M"), m.DiskUsage.TotalBytes)
}

func TestCollectDisk_FiveColumnLayout(t *testing.T) {
	run := fakeRun(map[string]string{
		"df -h / | tail -n 1": "256M 64M 192M 25% /",
	})
	m := &models.Metric{}
	collectDisk(run, m)
	assert.Equal(t, 25, m.DiskUsage.Percentage)
	assert.Equal(t, "64M", m.DiskUsage.UsedRaw)
}

func TestCollectInterfaces_ParsesBlockAndFallsBack(t *testing.T) {
	run := fakeRun(map[string]string{
		"ifconfig": "eth0      Link encap:Ethernet  HWaddr AA:BB:CC:DD:EE:FF\n" +
			"          inet addr:192.168.1.1  Bcast:192.168.1.255\n" +
			"          RX bytes:1000 (1000.0 B)  TX bytes:2000 (2000.0 B)\n" +
			"br-lan    Link encap:Ethernet\n",
		"ip addr show br-lan":              "inet 192.168.1.2/24 brd 192.168.1.255",
		"cat /sys/class/net/br-lan/address": "aa:bb:cc:dd:ee:00",
	})
	m := &models.Metric{}
	collectInterfaces(run, m)
	assert.Len(t, m.NetworkInterfaces, 2)
	assert.Equal(t, "eth0", m.NetworkInterfaces[0].Name)
	assert.Equal(t, "192.168.1.1", m.NetworkInterfaces[0].IPv4)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", m.NetworkInterfaces[0].MAC)
	assert.EqualValues(t, 1000, m.NetworkInterfaces[0].RXBytes)
	assert.Equal(t, "br-lan", m.NetworkInterfaces[1].Name)
	assert.Equal(t, "192.168.1.2", m.NetworkInterfaces[1].IPv4)
	assert.Equal(t, "aa:bb:cc:dd:ee:00", m.NetworkInterfaces[1].MAC)
}

func TestCollectWirelessClients_SumsAcrossRadios(t *testing.T) {
	run := fakeRun(map[string]string{
		"which iw":                                     "/usr/sbin/iw",
		"ls /sys/class/net | grep '^wlan'":             "wlan0\nwlan1",
		"iw dev wlan0 station dump | grep Station | wc -l": "2",
		"iw dev wlan1 station dump | grep Station | wc -l": "3",
	})
	assert.Equal(t, 5, collectWirelessClients(run))
}

func TestCollectWirelessClients_NoIW(t *testing.T) {
	run := fakeRun(map[string]string{})
	assert.Equal(t, 0, collectWirelessClients(run))
}
