package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstNonEmptyLine(t *testing.T) {
	assert.Equal(t, "router1", firstNonEmptyLine("\n  \nrouter1\nrouter2"))
	assert.Equal(t, "", firstNonEmptyLine("\n\n  \n"))
}

func TestExtractMAC(t *testing.T) {
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", extractMAC("link/ether AA:BB:CC:DD:EE:FF brd ff:ff:ff:ff:ff:ff"))
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", extractMAC("HWaddr AA-BB-CC-DD-EE-FF"))
	assert.Equal(t, "", extractMAC("no mac here"))
}

func TestContainsAnyMarker(t *testing.T) {
	assert.True(t, containsAnyMarker("DISTRIB_ID='OpenWrt'", openWrtMarkers))
	assert.True(t, containsAnyMarker("This is LEDE based firmware", openWrtMarkers))
	assert.False(t, containsAnyMarker("Ubuntu 22.04 LTS", openWrtMarkers))
}

func TestLastOctet(t *testing.T) {
	assert.Equal(t, "254", lastOctet("192.168.1.254"))
	assert.Equal(t, "x", lastOctet("x"))
}

func TestDegraded(t *testing.T) {
	d := degraded("192.168.1.1")
	assert.Equal(t, "192.168.1.1", d.IPAddress)
	assert.False(t, d.SSHSuccess)
	assert.True(t, d.IsOpenWrt)
	assert.Nil(t, d.MACAddress)
}
