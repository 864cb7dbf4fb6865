package repository

import (
	"testing"

	"github.com/routerdiscovery/engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterSelectByField(t *testing.T) {
	q := routerSelectByField("mac_address")
	assert.Contains(t, q, "WHERE mac_address = $1")
	assert.Contains(t, q, "FROM routers")
}

func TestMarshalUnmarshalInterfaces_RoundTrip(t *testing.T) {
	ifaces := models.NetworkInterfaces{
		{Name: "eth0", IPv4: "192.168.1.1", MAC: "aa:bb:cc:dd:ee:ff", RXBytes: 10, TXBytes: 20, Status: models.InterfaceUp},
	}
	data, err := marshalInterfaces(ifaces)
	require.NoError(t, err)

	back, err := unmarshalInterfaces(data)
	require.NoError(t, err)
	assert.Equal(t, ifaces, back)
}

func TestUnmarshalInterfaces_Empty(t *testing.T) {
	back, err := unmarshalInterfaces(nil)
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestMarshalInterfaces_NilBecomesEmptyArray(t *testing.T) {
	data, err := marshalInterfaces(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
