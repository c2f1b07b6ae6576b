package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"github.com/bcnelson/bulk-vm-provisioner/internal/api"
	"github.com/bcnelson/bulk-vm-provisioner/internal/batch"
	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/ipam"
	"github.com/bcnelson/bulk-vm-provisioner/internal/provision"
	"github.com/bcnelson/bulk-vm-provisioner/internal/service"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage/memory"
)

const testSeed = `
tenants:
  - name: PatientSky Hosting
    slug: patientsky-hosting
sites:
  - name: odn1
clusters:
  - name: odn1-cl1
    site: odn1
roles:
  - name: "redirtp:v0.2.0"
platforms:
  - name: "base:v1.0.0-coreos"
tags: [env_vlb, datazone_1, datazone_2, backup_general_1]
vrfs: [global]
vlans:
  - site: odn1
    vid: 61
    name: vlb
prefixes:
  - site: odn1
    prefix: 10.50.61.0/24
    vlan: 61
    is_pool: true
`

const testProfile = `
monitoring_envs:
  odn1:
    env_vlb: vlb-prod
defaults:
  interfaces:
    nic0: {name: eth0, mtu: 1500, mode: Access}
  prometheus_exporters:
    node_exporter: {ports: [9100], protocol: tcp, metrics_path: /metrics}
`

var testDefaults = domain.Defaults{
	Status:   "staged",
	Tenant:   "patientsky-hosting",
	Cluster:  "odn1-cl1",
	Env:      "vlb",
	Platform: "base:v1.0.0-coreos",
	Role:     "redirtp:v0.2.0",
	Backup:   "backup_general_1",
}

// testServer creates a test server with in-memory storage
type testServer struct {
	handler      http.Handler
	store        *memory.Store
	bootstrapKey string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	bootstrapKey := "test-bootstrap-key"

	profile, err := config.ParseProfile([]byte(testProfile))
	if err != nil {
		t.Fatalf("parsing profile: %v", err)
	}
	provisioning := service.NewProvisioningService(store, profile, batch.Options{
		Provision: provision.Options{
			Addresses:    ipam.Options{VRF: "global", PrivateDomain: "patientsky.zone", PublicDomain: "patientsky.dev"},
			BaselineTags: []string{"ansible", "zero_day"},
		},
	}, logr.Discard())

	// Web UI is not mounted in API tests
	handler := api.NewRouter(store, provisioning, api.Options{
		BootstrapKey: bootstrapKey,
		MetricsPath:  "/metrics",
		Log:          logr.Discard(),
	})

	return &testServer{
		handler:      handler,
		store:        store,
		bootstrapKey: bootstrapKey,
	}
}

func (ts *testServer) request(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}
	return ts.raw(method, path, reqBody, apiKey)
}

func (ts *testServer) raw(method, path string, body io.Reader, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// seeded applies testSeed with the bootstrap key.
func (ts *testServer) seeded(t *testing.T) {
	t.Helper()
	rr := ts.raw("POST", "/api/v1/catalog/seed", strings.NewReader(testSeed), ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from seed, got %d: %s", rr.Code, rr.Body.String())
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) domain.StandardError {
	t.Helper()
	var resp domain.StandardErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return resp.Error
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/health", nil, "")

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/metrics", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	// Request without auth header
	rr := ts.request("GET", "/api/v1/keys", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
	if got := decodeError(t, rr).Code; got != domain.ErrCodeUnauthorized {
		t.Errorf("Expected code %s, got %s", domain.ErrCodeUnauthorized, got)
	}

	// Request with invalid auth header format
	req := httptest.NewRequest("GET", "/api/v1/keys", nil)
	req.Header.Set("Authorization", "Basic invalid")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	rr = ts.request("GET", "/api/v1/keys", nil, "invalid-key")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}

func TestBootstrapKeyAuth(t *testing.T) {
	ts := newTestServer(t)

	// Bootstrap key should work when no API keys exist
	rr := ts.request("GET", "/api/v1/keys", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with bootstrap key, got %d", rr.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Create API key using bootstrap key
	createReq := domain.CreateAPIKeyRequest{Name: "Test Key"}
	rr := ts.request("POST", "/api/v1/keys", createReq, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var createResp domain.IssuedAPIKey
	if err := json.Unmarshal(rr.Body.Bytes(), &createResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.HasPrefix(createResp.Key, "bvm_") {
		t.Errorf("Expected key with bvm_ prefix, got %s", createResp.Key)
	}
	if createResp.KeyPrefix != createResp.Key[:12] {
		t.Errorf("Expected key prefix %s, got %s", createResp.Key[:12], createResp.KeyPrefix)
	}

	// Bootstrap key is refused once a real key exists
	rr = ts.request("GET", "/api/v1/keys", nil, ts.bootstrapKey)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for bootstrap key after key creation, got %d", rr.Code)
	}

	// List keys using new key
	rr = ts.request("GET", "/api/v1/keys", nil, createResp.Key)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var keys []domain.APIKey
	_ = json.Unmarshal(rr.Body.Bytes(), &keys)
	if len(keys) != 1 {
		t.Errorf("Expected 1 key, got %d", len(keys))
	}
	if strings.Contains(rr.Body.String(), createResp.Key) {
		t.Error("Expected key listing to omit the key itself")
	}

	// Delete the key
	rr = ts.request("DELETE", "/api/v1/keys/"+createResp.ID, nil, createResp.Key)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}

	// Deleted key no longer authenticates; bootstrap works again
	rr = ts.request("GET", "/api/v1/keys", nil, createResp.Key)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for deleted key, got %d", rr.Code)
	}
	rr = ts.request("DELETE", "/api/v1/keys/"+createResp.ID, nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for deleting a missing key, got %d", rr.Code)
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("POST", "/api/v1/keys", domain.CreateAPIKeyRequest{Name: "  "}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != domain.ErrCodeValidationError || e.Field != "name" {
		t.Errorf("Expected validation error on name, got %+v", e)
	}

	rr = ts.raw("POST", "/api/v1/keys", strings.NewReader("{"), ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed body, got %d", rr.Code)
	}
}

func TestCatalogSeedAndList(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.raw("POST", "/api/v1/catalog/seed", strings.NewReader(testSeed), ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var sum struct {
		Created map[string]int `json:"created"`
		Skipped map[string]int `json:"skipped"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &sum)
	if sum.Created["clusters"] != 1 || sum.Created["tags"] != 4 {
		t.Errorf("Unexpected seed summary: %s", rr.Body.String())
	}

	// Seeding twice only skips
	rr = ts.raw("POST", "/api/v1/catalog/seed", strings.NewReader(testSeed), ts.bootstrapKey)
	sum.Created, sum.Skipped = nil, nil
	_ = json.Unmarshal(rr.Body.Bytes(), &sum)
	if sum.Created["clusters"] != 0 || sum.Skipped["clusters"] != 1 {
		t.Errorf("Expected second seed to skip, got %s", rr.Body.String())
	}

	rr = ts.request("GET", "/api/v1/catalog/sites", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var sites []domain.Site
	_ = json.Unmarshal(rr.Body.Bytes(), &sites)
	if len(sites) != 1 || sites[0].Name != "odn1" {
		t.Errorf("Expected site odn1, got %+v", sites)
	}

	// Empty kinds list as [] rather than null
	rr = ts.request("GET", "/api/v1/catalog/virtual-machines", nil, ts.bootstrapKey)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", rr.Body.String())
	}

	rr = ts.request("GET", "/api/v1/catalog/widgets", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown kind, got %d", rr.Code)
	}

	rr = ts.raw("POST", "/api/v1/catalog/seed", strings.NewReader("tenants: ["), ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid seed, got %d", rr.Code)
	}
}

func TestBulkDryRun(t *testing.T) {
	ts := newTestServer(t)
	ts.seeded(t)

	rr := ts.request("POST", "/api/v1/bulk", domain.BulkRequest{
		CSV:      "vcpus,memory,disk,ip_address,extra_tags\n1,1024,10,10.50.61.10/24,voip\n",
		Defaults: testDefaults,
	}, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var run domain.BatchRun
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.Commit || run.Succeeded != 1 || run.Failed != 0 {
		t.Errorf("Unexpected dry run: %+v", run)
	}
	if len(run.Outcomes) != 1 || run.Outcomes[0].Hostname != "odn1-vlb-redirtp-001" {
		t.Errorf("Unexpected outcomes: %+v", run.Outcomes)
	}

	// Nothing was kept
	rr = ts.request("GET", "/api/v1/virtual-machines/odn1-vlb-redirtp-001", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after dry run, got %d", rr.Code)
	}
}

func TestBulkCreditsAPIKey(t *testing.T) {
	ts := newTestServer(t)
	ts.seeded(t)

	rr := ts.request("POST", "/api/v1/keys", domain.CreateAPIKeyRequest{Name: "ci"}, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var issued domain.IssuedAPIKey
	_ = json.Unmarshal(rr.Body.Bytes(), &issued)

	rr = ts.request("POST", "/api/v1/bulk", domain.BulkRequest{
		CSV:      "vcpus,memory,disk,ip_address\n1,1024,10,10.50.61.10/24\n",
		Defaults: testDefaults,
	}, issued.Key)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var run domain.BatchRun
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.SubmittedBy != "ci" || run.APIKeyID != issued.ID {
		t.Errorf("Expected run submitted by key %s, got %q/%q", issued.ID, run.SubmittedBy, run.APIKeyID)
	}

	rr = ts.request("GET", "/api/v1/keys", nil, issued.Key)
	var keys []domain.APIKey
	_ = json.Unmarshal(rr.Body.Bytes(), &keys)
	if len(keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(keys))
	}
	if keys[0].Batches != 1 {
		t.Errorf("Expected 1 batch on the key, got %d", keys[0].Batches)
	}
	if keys[0].LastBatchID == nil || *keys[0].LastBatchID != run.ID {
		t.Errorf("Expected last batch %s, got %v", run.ID, keys[0].LastBatchID)
	}
}

func TestBulkCommit(t *testing.T) {
	ts := newTestServer(t)
	ts.seeded(t)

	rr := ts.request("POST", "/api/v1/bulk", domain.BulkRequest{
		CSV:      "vcpus,memory,disk,ip_address,vlan,extra_tags\n1,1024,10,10.50.61.10/24,,voip\n2,2048,20,,61,\n",
		Defaults: testDefaults,
		Commit:   true,
	}, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var run domain.BatchRun
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if !run.Commit || run.Rows != 2 || run.Succeeded != 2 {
		t.Fatalf("Unexpected run: %+v", run)
	}
	if run.SubmittedBy != "Bootstrap Key" {
		t.Errorf("Expected submitter Bootstrap Key, got %q", run.SubmittedBy)
	}

	rr = ts.request("GET", "/api/v1/virtual-machines/odn1-vlb-redirtp-001", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var detail domain.VirtualMachineDetail
	_ = json.Unmarshal(rr.Body.Bytes(), &detail)
	if detail.PrimaryIP4 == nil || detail.PrimaryIP4.Address != "10.50.61.10/24" {
		t.Errorf("Expected primary address 10.50.61.10/24, got %+v", detail.PrimaryIP4)
	}
	if len(detail.Interfaces) != 1 || detail.Interfaces[0].Name != "eth0" {
		t.Errorf("Expected interface eth0, got %+v", detail.Interfaces)
	}
	if len(detail.Services) != 1 || detail.Services[0].Name != "node_exporter" {
		t.Errorf("Expected service node_exporter, got %+v", detail.Services)
	}

	// The second row drew from the VLAN's pool
	rr = ts.request("GET", "/api/v1/virtual-machines/odn1-vlb-redirtp-002", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for second VM, got %d", rr.Code)
	}
	detail = domain.VirtualMachineDetail{}
	_ = json.Unmarshal(rr.Body.Bytes(), &detail)
	if detail.PrimaryIP4 == nil || detail.PrimaryIP4.Address != "10.50.61.0/24" {
		t.Errorf("Expected pool address 10.50.61.0/24, got %+v", detail.PrimaryIP4)
	}

	// History
	rr = ts.request("GET", "/api/v1/batches", nil, ts.bootstrapKey)
	var runs []domain.BatchRun
	_ = json.Unmarshal(rr.Body.Bytes(), &runs)
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("Expected one recorded run, got %+v", runs)
	}
	rr = ts.request("GET", "/api/v1/batches/"+run.ID, nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("Expected an ETag on batch runs")
	}
	req := httptest.NewRequest("GET", "/api/v1/batches/"+run.ID, nil)
	req.Header.Set("Authorization", "Bearer "+ts.bootstrapKey)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotModified {
		t.Errorf("Expected status 304, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/batches/missing", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/batches?limit=-1", nil, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for negative limit, got %d", rr.Code)
	}
}

func TestBulkReportsRowFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.seeded(t)

	rr := ts.request("POST", "/api/v1/bulk", domain.BulkRequest{
		CSV:      "vcpus,memory,disk,ip_address,extra_tags,cluster\n1,1024,10,10.50.61.10/24,,nope\n",
		Defaults: testDefaults,
		Commit:   true,
	}, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var run domain.BatchRun
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.Failed != 1 || run.Outcomes[0].ErrorKind != "resolution" {
		t.Errorf("Expected one resolution failure, got %+v", run.Outcomes)
	}
}

func TestBulkValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.seeded(t)

	tests := []struct {
		name string
		req  domain.BulkRequest
		code string
	}{
		{"missing csv", domain.BulkRequest{Defaults: testDefaults}, domain.ErrCodeValidationError},
		{"bad defaults", domain.BulkRequest{CSV: "vcpus\n1\n", Defaults: domain.Defaults{Status: "active"}}, domain.ErrCodeValidationError},
		{"bad header", domain.BulkRequest{CSV: "vcpus,,memory\n1,2,3\n", Defaults: testDefaults}, domain.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request("POST", "/api/v1/bulk", tt.req, ts.bootstrapKey)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if got := decodeError(t, rr).Code; got != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, got)
			}
		})
	}

	runs, err := ts.store.ListBatchRuns(context.Background(), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected rejected batches to leave no record, got %d", len(runs))
	}
}
