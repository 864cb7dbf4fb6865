package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerAPI_StartScan_ReturnsJobID(t *testing.T) {
	app, _, _ := setupTestApp(t)

	body, _ := json.Marshal(startScanRequest{Subnet: "192.168.1", Username: "root", Password: "secret"})
	req := httptest.NewRequest("POST", "/scanner/scan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "accepted", out["status"])
	assert.NotEmpty(t, out["jobId"])
}

func TestScannerAPI_StartScan_RejectsMissingSubnet(t *testing.T) {
	app, _, _ := setupTestApp(t)

	body, _ := json.Marshal(startScanRequest{Username: "root"})
	req := httptest.NewRequest("POST", "/scanner/scan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestScannerAPI_GetScan_Missing(t *testing.T) {
	app, _, _ := setupTestApp(t)
	req := httptest.NewRequest("GET", "/scanner/scan/not-a-real-job", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func postAddDevice(t *testing.T, app *fiber.App, req addDeviceRequest) map[string]interface{} {
	t.Helper()
	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/scanner/add", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(httpReq, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestScannerAPI_AddDevice_CreatesRouter(t *testing.T) {
	app, repo, _ := setupTestApp(t)

	out := postAddDevice(t, app, addDeviceRequest{
		IPAddress:  "192.168.1.50",
		MACAddress: "aa:bb:cc:dd:ee:ff",
		Username:   "root",
		Password:   "secret",
		Name:       "attic-ap",
	})
	assert.Equal(t, "attic-ap", out["name"])

	routers, err := repo.ListRouters(t.Context())
	require.NoError(t, err)
	assert.Len(t, routers, 1)
}

func TestScannerAPI_AddMultiple_IsIdempotent(t *testing.T) {
	app, repo, _ := setupTestApp(t)

	devices := []addDeviceRequest{
		{IPAddress: "192.168.1.10", MACAddress: "aa:aa:aa:aa:aa:01", Username: "root", Password: "x", Name: "ap1"},
		{IPAddress: "192.168.1.11", MACAddress: "aa:aa:aa:aa:aa:02", Username: "root", Password: "x", Name: "ap2"},
	}
	body, _ := json.Marshal(addMultipleRequest{Devices: devices})

	req1 := httptest.NewRequest("POST", "/scanner/add-multiple", bytes.NewReader(body))
	req1.Header.Set("Content-Type", "application/json")
	resp1, err := app.Test(req1, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp1.StatusCode)

	var out1 map[string]interface{}
	require.NoError(t, json.NewDecoder(resp1.Body).Decode(&out1))
	summary1 := out1["summary"].(map[string]interface{})
	assert.EqualValues(t, 2, summary1["added"])
	assert.EqualValues(t, 0, summary1["updated"])

	req2 := httptest.NewRequest("POST", "/scanner/add-multiple", bytes.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	resp2, err := app.Test(req2, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp2.StatusCode)

	var out2 map[string]interface{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&out2))
	summary2 := out2["summary"].(map[string]interface{})
	assert.EqualValues(t, 0, summary2["added"])
	assert.EqualValues(t, 2, summary2["updated"])

	routers, err := repo.ListRouters(t.Context())
	require.NoError(t, err)
	assert.Len(t, routers, 2)
}
