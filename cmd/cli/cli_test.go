package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/history"
	"github.com/anstrom/reconnode/internal/results"
	"github.com/anstrom/reconnode/internal/services"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int
		lo, hi  int
		wantErr bool
	}{
		{name: "single value", input: "80", limit: maxPort, lo: 80, hi: 80},
		{name: "range", input: "1-1024", limit: maxPort, lo: 1, hi: 1024},
		{name: "spaces", input: " 10 - 20 ", limit: maxHostID, lo: 10, hi: 20},
		{name: "full host range", input: "1-255", limit: maxHostID, lo: 1, hi: 255},
		{name: "zero", input: "0", limit: maxPort, wantErr: true},
		{name: "above limit", input: "1-256", limit: maxHostID, wantErr: true},
		{name: "reversed", input: "443-80", limit: maxPort, wantErr: true},
		{name: "not a number", input: "http", limit: maxPort, wantErr: true},
		{name: "empty end", input: "5-", limit: maxPort, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, err := parseRange(tt.input, tt.limit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestApplyRangeFlags(t *testing.T) {
	defer func() { scanHosts, scanPorts = "", "" }()

	scanHosts, scanPorts = "5-9", "20-25"
	v := viper.New()
	require.NoError(t, applyRangeFlags(v))

	cfg := config.Default()
	applyOverrides(cfg, v)
	assert.Equal(t, uint8(5), cfg.Scan.StartIP)
	assert.Equal(t, uint8(9), cfg.Scan.EndIP)
	assert.Equal(t, uint16(20), cfg.Scan.StartPort)
	assert.Equal(t, uint16(25), cfg.Scan.EndPort)

	scanPorts = "0-10"
	assert.Error(t, applyRangeFlags(viper.New()))
}

func TestApplyOverrides(t *testing.T) {
	t.Run("explicit values", func(t *testing.T) {
		v := viper.New()
		v.Set("scan.network_prefix", "10.9.8.")
		v.Set("scan.timeout", "250ms")
		v.Set("scan.enable_banner_grab", false)
		v.Set("api.port", 9100)
		v.Set("logging.level", "debug")

		cfg := config.Default()
		applyOverrides(cfg, v)

		assert.Equal(t, "10.9.8.", cfg.Scan.NetworkPrefix)
		assert.Equal(t, 250*time.Millisecond, cfg.Scan.Timeout)
		assert.False(t, cfg.Scan.EnableBannerGrab)
		assert.Equal(t, 9100, cfg.API.Port)
		assert.Equal(t, "debug", string(cfg.Logging.Level))
		assert.Equal(t, config.Default().Scan.EndPort, cfg.Scan.EndPort, "unset keys keep their value")
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("RECONNODE_SCAN_NETWORK_PREFIX", "172.16.4.")
		t.Setenv("RECONNODE_HISTORY_ENABLED", "true")
		t.Setenv("RECONNODE_SCAN_WORKER_THREADS", "32")

		v := viper.New()
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		cfg := config.Default()
		applyOverrides(cfg, v)

		assert.Equal(t, "172.16.4.", cfg.Scan.NetworkPrefix)
		assert.True(t, cfg.History.Enabled)
		assert.Equal(t, 32, cfg.Scan.WorkerThreads)
	})
}

func TestFormatPorts(t *testing.T) {
	assert.Equal(t, "", formatPorts(nil))
	assert.Equal(t, "22,80", formatPorts([]uint16{22, 80}))
	assert.Equal(t, "1,2,3,4,5,6,7,8,+2", formatPorts([]uint16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))
}

func sampleViews() []results.EndpointView {
	return []results.EndpointView{
		{IP: "10.0.0.9", DeviceType: "Windows Host", RiskScore: 44, Ports: []uint16{445}, AvgResponseTime: 3, ScanCount: 2},
		{IP: "10.0.0.5", Hostname: "cam-1", DeviceType: "IoT Device", RiskScore: 19, Ports: []uint16{22, 80}},
	}
}

func TestRenderEndpointsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderEndpointsTable(&buf, sampleViews()))

	out := buf.String()
	assert.Contains(t, out, "10.0.0.9")
	assert.Contains(t, out, "Windows Host")
	assert.Contains(t, out, "cam-1")
	assert.Contains(t, out, "22,80")
	assert.Less(t, strings.Index(out, "10.0.0.9"), strings.Index(out, "10.0.0.5"), "order is preserved")

	buf.Reset()
	require.NoError(t, renderEndpointsTable(&buf, nil))
	assert.Contains(t, buf.String(), "No endpoints found.")
}

func TestAPIClient(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.RequestURI()
		switch r.URL.Path {
		case "/api/v1/endpoints":
			_ = json.NewEncoder(w).Encode(sampleViews())
		case "/api/v1/scan/start":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"Conflict","message":"[SCAN_IN_PROGRESS] A scan is already running","request_id":"req_1"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	t.Setenv(apiKeyEnv, "secret")
	client := NewAPIClient(config.Default(), srv.URL)

	var views []results.EndpointView
	require.NoError(t, client.Get(context.Background(), "/endpoints?sort=risk", &views))
	assert.Len(t, views, 2)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/api/v1/endpoints?sort=risk", gotPath)

	err := client.Post(context.Background(), "/scan/start", nil)
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "req_1", apiErr.RequestID)
	assert.Contains(t, apiErr.Message, "SCAN_IN_PROGRESS")

	err = client.Get(context.Background(), "/stats", nil)
	require.Error(t, err)
	assert.Contains(t, describeAPIError(err, "get stats").Error(), apiKeyEnv)
}

func TestNewAPIClient_Defaults(t *testing.T) {
	t.Setenv(apiKeyEnv, "")
	cfg := config.Default()
	cfg.API.APIKeys = []string{"from-config"}

	c := NewAPIClient(cfg, "")
	assert.Equal(t, "http://127.0.0.1:8080/api/v1", c.baseURL)
	assert.Equal(t, "from-config", c.apiKey)

	c = NewAPIClient(cfg, "node.local:9000/")
	assert.Equal(t, "http://node.local:9000/api/v1", c.baseURL)
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	setOutput(&buf)
	defer setOutput(os.Stdout)

	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.4.0", "abc123", "today")
	defer SetVersion("dev", "none", "unknown")

	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "reconnode 1.4.0")
	assert.Contains(t, out, "abc123")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconnode.yaml")

	out, err := executeCommand(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Scan.NetworkPrefix, cfg.Scan.NetworkPrefix)

	_, err = executeCommand(t, "config", "init", path)
	assert.Error(t, err, "refuses to overwrite")
}

func TestEndpointsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "risk", r.URL.Query().Get("sort"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(sampleViews()[:1])
	}))
	defer srv.Close()

	out, err := executeCommand(t, "endpoints", "--server", srv.URL, "--limit", "1", "--output", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "10.0.0.9")
	assert.NotContains(t, out, "10.0.0.5")
}

func TestConfigGenKeyCommand(t *testing.T) {
	out, err := executeCommand(t, "config", "gen-key", "--no-hash")
	require.NoError(t, err)
	assert.Contains(t, out, "API key: rn_")
	assert.NotContains(t, out, "Config entry")
}

func TestHistoryMigrationsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/history/migrations"), r.URL.Path)
		_ = json.NewEncoder(w).Encode([]history.MigrationStatus{
			{Name: "001_scan_cycles", Applied: true, AppliedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
			{Name: "002_pending"},
		})
	}))
	defer srv.Close()

	out, err := executeCommand(t, "history", "--server", srv.URL, "--migrations")
	require.NoError(t, err)
	assert.Contains(t, out, "001_scan_cycles")
	assert.Contains(t, out, "002_pending")
}

func TestServicesCommand(t *testing.T) {
	report := services.Report{
		Services: []services.Service{{Name: "Office", Description: "Printer", IP: "10.0.0.7", Port: 631}},
		Shares: []services.Share{
			{IP: "10.0.0.3", Port: 445, Hostname: "nas", NullSession: true, Risk: services.RiskCritical},
		},
		Vulnerable: 1,
		ScannedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method+" "+r.URL.Path)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(report)
	}))
	defer srv.Close()

	out, err := executeCommand(t, "services", "--server", srv.URL, "--scan")
	require.NoError(t, err)
	assert.Contains(t, out, "Office")
	assert.Contains(t, out, "CRITICAL")
	assert.Contains(t, out, "1 server(s) accept anonymous sessions")

	_, err = executeCommand(t, "services", "--server", srv.URL, "--scan=false")
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, methods, 2)
	assert.Equal(t, "POST /api/v1/services/scan", methods[0])
	assert.Equal(t, "GET /api/v1/services", methods[1])
}

func TestRenderServices_NoScanYet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderServices(&buf, services.Report{}))
	assert.Equal(t, "No service scan has run yet.\n", buf.String())
}
