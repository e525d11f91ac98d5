//go:build integration
// +build integration

// Package integration exercises a running Settle server end to end.
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must use the default fee table and accepted statuses:
//
//	citylink: 10% fee, 5% tax, 150 per return; "Transferred" counts as paid
//
// Every test uses its own tenant so runs do not mix.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/settle/internal/api"
	"github.com/opensource-finance/settle/internal/domain"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig(tenant string) TestConfig {
	baseURL := os.Getenv("SETTLE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("%s-%d", tenant, time.Now().UnixNano()),
	}
}

func do(t *testing.T, config TestConfig, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if config.TenantID != "" {
		req.Header.Set("X-Tenant-ID", config.TenantID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func createRun(t *testing.T, config TestConfig, body api.RunRequestBody) domain.Run {
	t.Helper()

	status, data := do(t, config, http.MethodPost, "/runs", body)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(data))
	}

	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("Failed to unmarshal run: %v (body: %s)", err, string(data))
	}
	return run
}

// cityLinkOrders builds delivered, returned and in-transit citylink orders
// in Lahore, dated today, at 1000 each.
func cityLinkOrders(delivered, returned, transit int) []domain.OrderRecord {
	today := time.Now().UTC().Format("2006-01-02")
	var orders []domain.OrderRecord
	add := func(n int, status string) {
		for i := 0; i < n; i++ {
			orders = append(orders, domain.OrderRecord{
				Source:     domain.SourceCityLink,
				TrackingID: fmt.Sprintf("CL-%s-%d", status, i),
				Status:     status,
				Courier:    "citylink",
				City:       "Lahore",
				OrderDate:  today,
				Amount:     "1000",
			})
		}
	}
	add(delivered, "Delivered")
	add(returned, "Returned")
	add(transit, "In Transit")
	return orders
}

func balance(run domain.Run, src domain.Source) domain.Balance {
	for _, b := range run.Balances {
		if b.Source == src {
			return b
		}
	}
	return domain.Balance{}
}

// ============================================================================
// SCENARIO 1: Fully settled month
// ============================================================================

func TestSettledMonth_NothingOutstanding(t *testing.T) {
	/*
	   SCENARIO: 7 delivered citylink parcels at 1000, one transfer of 5950

	   EXPECTED BEHAVIOR:
	   - each parcel nets 1000 - 100 fee - 50 tax = 850
	   - net owed 7 x 850 = 5950
	   - the transfer is "Transferred", so it counts
	   - outstanding 0, no alerts
	*/
	config := getTestConfig("settled")
	today := time.Now().UTC().Format("2006-01-02")

	run := createRun(t, config, api.RunRequestBody{
		Orders: cityLinkOrders(7, 0, 0),
		Receipts: map[domain.Source][]domain.Receipt{
			domain.SourceCityLink: {{Amount: "5950", Status: "Transferred", Date: today}},
		},
	})

	b := balance(run, domain.SourceCityLink)
	if !b.NetOwed.Equal(decimal.NewFromInt(5950)) {
		t.Errorf("Expected net owed 5950, got %s", b.NetOwed)
	}
	if !b.Outstanding.IsZero() {
		t.Errorf("Expected nothing outstanding, got %s", b.Outstanding)
	}
	if b.ReceiptsCounted != 1 {
		t.Errorf("Expected 1 counted receipt, got %d", b.ReceiptsCounted)
	}
	if len(run.Alerts) != 0 {
		t.Errorf("Expected no alerts, got %+v", run.Alerts)
	}
}

// ============================================================================
// SCENARIO 2: Return spike
// ============================================================================

func TestReturnSpike_Warning(t *testing.T) {
	/*
	   SCENARIO: 7 delivered, 2 returned, 1 in transit; threshold 15%

	   EXPECTED BEHAVIOR:
	   - return rate 2/10 = 20% > 15%
	   - a ReturnSpike warning for the courier's dominant city, Lahore
	*/
	config := getTestConfig("spike")

	run := createRun(t, config, api.RunRequestBody{
		Orders:     cityLinkOrders(7, 2, 1),
		Thresholds: &domain.Thresholds{ReturnRatePercent: 15},
	})

	if run.Totals.TotalOrders != 10 {
		t.Errorf("Expected 10 orders, got %d", run.Totals.TotalOrders)
	}

	found := false
	for _, a := range run.Alerts {
		if a.Type == domain.AlertReturnSpike {
			found = true
			if a.Severity != domain.SeverityWarning {
				t.Errorf("Expected warning severity, got %s", a.Severity)
			}
			if a.SubjectKey != "Lahore" {
				t.Errorf("Expected Lahore, got %s", a.SubjectKey)
			}
		}
	}
	if !found {
		t.Errorf("Expected a return spike, got %+v", run.Alerts)
	}
}

// ============================================================================
// SCENARIO 3: Stored runs
// ============================================================================

func TestRunIsStoredAndListed(t *testing.T) {
	config := getTestConfig("stored")

	run := createRun(t, config, api.RunRequestBody{Orders: cityLinkOrders(3, 0, 0)})

	status, data := do(t, config, http.MethodGet, "/runs/"+run.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 for stored run, got %d: %s", status, string(data))
	}

	status, data = do(t, config, http.MethodGet, "/runs", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 for list, got %d", status)
	}
	var list struct {
		Runs []domain.RunSummary `json:"runs"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("Failed to unmarshal list: %v", err)
	}
	if len(list.Runs) != 1 || list.Runs[0].ID != run.ID {
		t.Errorf("Expected only this run listed, got %+v", list.Runs)
	}

	other := getTestConfig("other")
	if status, _ := do(t, other, http.MethodGet, "/runs/"+run.ID, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for another tenant, got %d", status)
	}
}

// ============================================================================
// SCENARIO 4: Malformed records are skipped, not fatal
// ============================================================================

func TestMalformedRecords_Skipped(t *testing.T) {
	config := getTestConfig("skipped")

	orders := cityLinkOrders(2, 0, 0)
	orders = append(orders, domain.OrderRecord{
		Source:     domain.SourceCityLink,
		TrackingID: "CL-bad",
		Status:     "Delivered",
		OrderDate:  "not-a-date",
		Amount:     "1000",
	})

	run := createRun(t, config, api.RunRequestBody{Orders: orders})
	if run.Skipped.Count != 1 {
		t.Errorf("Expected 1 skipped record, got %d", run.Skipped.Count)
	}
	if run.Totals.TotalOrders != 2 {
		t.Errorf("Expected 2 counted orders, got %d", run.Totals.TotalOrders)
	}
}

// ============================================================================
// SCENARIO 5: Request errors
// ============================================================================

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getTestConfig("")
	config.TenantID = ""

	status, _ := do(t, config, http.MethodPost, "/runs", api.RunRequestBody{})
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 without tenant, got %d", status)
	}
}

func TestUnknownWindow_Error(t *testing.T) {
	config := getTestConfig("window")

	status, _ := do(t, config, http.MethodPost, "/runs", api.RunRequestBody{Window: "fortnight"})
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown window, got %d", status)
	}
}

func TestResponseMetadata(t *testing.T) {
	config := getTestConfig("metadata")

	run := createRun(t, config, api.RunRequestBody{Orders: cityLinkOrders(1, 0, 0)})
	if run.ID == "" {
		t.Error("Expected a run id")
	}
	if run.Metadata.EngineVersion == "" {
		t.Error("Expected engine version")
	}
	if run.Metadata.RecordsIn != 1 {
		t.Errorf("Expected 1 record in, got %d", run.Metadata.RecordsIn)
	}
}
