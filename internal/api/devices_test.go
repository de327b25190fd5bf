package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nearclip/nearclip-core/internal/device"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
)

type listResponse struct {
	Query   string          `json:"query"`
	Devices []device.Device `json:"devices"`
	Count   int             `json:"count"`
}

func seedDevices(t *testing.T, ts *testServer) {
	t.Helper()
	ts.insert(t, device.Device{ID: "phone", Name: "Pixel", Type: device.TypeAndroid})
	ts.insert(t, device.Device{ID: "laptop", Name: "MacBook", Type: device.TypeMac, Paired: true})
	ts.insert(t, device.Device{ID: "desktop", Name: "Tower", Type: device.TypeLinux})
	if _, err := ts.manager.Connect(context.Background(), "phone"); err != nil {
		t.Fatalf("Connect(phone) error = %v", err)
	}
}

func TestListDevices(t *testing.T) {
	ts := setupTestServer(t, "")
	seedDevices(t, ts)

	tests := []struct {
		name    string
		path    string
		wantIDs []string
	}{
		{"all", "/api/v1/devices", []string{"desktop", "laptop", "phone"}},
		{"connected", "/api/v1/devices?filter=connected", []string{"phone"}},
		{"paired", "/api/v1/devices?filter=paired", []string{"laptop"}},
		{"by type", "/api/v1/devices?type=mac", []string{"laptop"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			body := decodeBody[listResponse](t, rec)
			if body.Count != len(tt.wantIDs) {
				t.Fatalf("count = %d, want %d", body.Count, len(tt.wantIDs))
			}
			got := make(map[string]bool, len(body.Devices))
			for _, d := range body.Devices {
				got[d.ID] = true
			}
			for _, id := range tt.wantIDs {
				if !got[id] {
					t.Errorf("missing %s in %v", id, body.Devices)
				}
			}
		})
	}
}

func TestListDevices_BadQuery(t *testing.T) {
	ts := setupTestServer(t, "")

	for _, path := range []string{
		"/api/v1/devices?filter=nearby",
		"/api/v1/devices?filter=connected&type=MAC",
	} {
		if rec := ts.do(t, http.MethodGet, path, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, rec.Code)
		}
	}
}

func TestGetDevice(t *testing.T) {
	ts := setupTestServer(t, "")
	seedDevices(t, ts)

	rec := ts.do(t, http.MethodGet, "/api/v1/devices/phone", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	d := decodeBody[device.Device](t, rec)
	if d.Status != device.StatusConnected {
		t.Errorf("Status = %s, want CONNECTED", d.Status)
	}

	if rec := ts.do(t, http.MethodGet, "/api/v1/devices/ghost", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestConnectDisconnect(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.insert(t, device.Device{ID: "dev-1", Name: "Phone", Type: device.TypeAndroid})

	rec := ts.do(t, http.MethodPost, "/api/v1/devices/dev-1/connect", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("connect status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if d := decodeBody[device.Device](t, rec); d.Status != device.StatusConnected {
		t.Errorf("Status = %s, want CONNECTED", d.Status)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/devices/dev-1/connect", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second connect status = %d, want 409", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/devices/dev-1/disconnect", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("disconnect status = %d, want 200", rec.Code)
	}
	if d := decodeBody[device.Device](t, rec); d.Status != device.StatusDisconnected {
		t.Errorf("Status = %s, want DISCONNECTED", d.Status)
	}

	if rec := ts.do(t, http.MethodPost, "/api/v1/devices/ghost/connect", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestConnect_NativeFailure(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.insert(t, device.Device{ID: "dev-1", Name: "Phone", Type: device.TypeAndroid})
	ts.core.connectErr = errors.New("radio off")

	rec := ts.do(t, http.MethodPost, "/api/v1/devices/dev-1/connect", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if body := decodeBody[Error](t, rec); body.Code != ErrCodeNative {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeNative)
	}

	d, _, err := ts.repo.Get(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Status != device.StatusError {
		t.Errorf("Status = %s, want ERROR", d.Status)
	}
}

func TestPair(t *testing.T) {
	ts := setupTestServer(t, "")
	ts.insert(t, device.Device{ID: "dev-1", Name: "Phone", Type: device.TypeAndroid})

	if rec := ts.do(t, http.MethodPost, "/api/v1/devices/dev-1/pair", ""); rec.Code != http.StatusConflict {
		t.Errorf("pair while disconnected status = %d, want 409", rec.Code)
	}

	ts.do(t, http.MethodPost, "/api/v1/devices/dev-1/connect", "")
	rec := ts.do(t, http.MethodPost, "/api/v1/devices/dev-1/pair", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pair status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	d := decodeBody[device.Device](t, rec)
	if !d.Paired || d.Status != device.StatusConnected {
		t.Errorf("device = %+v, want paired and CONNECTED", d)
	}
}

func TestForgetDevice(t *testing.T) {
	ts := setupTestServer(t, "")
	seedDevices(t, ts)

	if rec := ts.do(t, http.MethodDelete, "/api/v1/devices/phone", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/devices/phone", ""); rec.Code != http.StatusNotFound {
		t.Errorf("after forget status = %d, want 404", rec.Code)
	}
	if n := ts.manager.View().Len(); n != 0 {
		t.Errorf("view length = %d, want 0", n)
	}
}

func TestConnectionsAndStats(t *testing.T) {
	ts := setupTestServer(t, "")
	seedDevices(t, ts)

	rec := ts.do(t, http.MethodGet, "/api/v1/connections", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("connections status = %d, want 200", rec.Code)
	}
	conns := decodeBody[listResponse](t, rec)
	if conns.Count != 1 || conns.Devices[0].ID != "phone" {
		t.Errorf("connections = %+v, want [phone]", conns.Devices)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	stats := decodeBody[lifecycle.Stats](t, rec)
	want := lifecycle.Stats{Total: 3, Connected: 1, Paired: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestDiscoveryStartStop(t *testing.T) {
	ts := setupTestServer(t, "")

	if rec := ts.do(t, http.MethodPost, "/api/v1/discovery/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", rec.Code)
	}
	if !ts.manager.IsDiscovering() {
		t.Error("IsDiscovering() = false after start")
	}

	if rec := ts.do(t, http.MethodPost, "/api/v1/discovery/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", rec.Code)
	}
	if ts.manager.IsDiscovering() {
		t.Error("IsDiscovering() = true after stop")
	}
}

func TestWriteDomainError(t *testing.T) {
	ts := setupTestServer(t, "")

	tests := []struct {
		err  error
		want int
	}{
		{lifecycle.ErrDeviceNotFound, http.StatusNotFound},
		{lifecycle.ErrInvalidStateTransition, http.StatusConflict},
		{device.ErrInvalidQuery, http.StatusBadRequest},
		{device.ErrInvalidDevice, http.StatusBadRequest},
		{lifecycle.ErrPair, http.StatusBadGateway},
		{lifecycle.ErrDiscovery, http.StatusBadGateway},
		{device.ErrStorage, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		ts.server.writeDomainError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("writeDomainError(%v) status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}
