package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/beajinsu/investment/internal/domain/models"
	"github.com/beajinsu/investment/internal/usecase"
	"github.com/beajinsu/investment/internal/viewmodel"
	xhttp "github.com/beajinsu/investment/pkg/http"
	applogger "github.com/beajinsu/investment/pkg/logger"
)

type noopMetrics struct{}

func (noopMetrics) RecordCycle(string, string)              {}
func (noopMetrics) RecordCycleSkipped(string)               {}
func (noopMetrics) RecordCycleDuration(string, float64)     {}
func (noopMetrics) RecordAdapterError(string, string)       {}
func (noopMetrics) RecordLastPrice(string, string, float64) {}

type idleCycle struct{}

func (idleCycle) Table() string { return "crypto" }
func (idleCycle) Run(context.Context) ([]models.CanonicalRecord, error) { return nil, nil }

func testServer(t *testing.T) (*echo.Echo, *viewmodel.Table) {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	price := 50_000_000.0
	vm := viewmodel.NewTable([]viewmodel.Column{
		{Key: "name", Kind: viewmodel.KindText, InitialDir: viewmodel.Asc},
		{Key: "global_price", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
	})
	vm.SetData([]models.CanonicalRecord{{
		EntityID:    "bitcoin",
		DisplayName: "비트코인",
		Fields:      map[string]*float64{"global_price": &price},
		AsOf:        time.Now(),
	}})

	refresher := usecase.NewRefresher(idleCycle{}, vm, time.Hour, time.Second, noopMetrics{}, l)
	dashboard := usecase.NewDashboard(&usecase.TableEntry{Name: "crypto", VM: vm, Refresher: refresher})

	e := echo.New()
	NewTablesEchoHandler(l, dashboard).RegisterRoutes(e)
	return e, vm
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bodyStatus(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	var resp xhttp.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Status
}

func TestListTables(t *testing.T) {
	e, _ := testServer(t)
	rec := do(e, http.MethodGet, "/api/tables", "")
	if got := bodyStatus(t, rec); got != http.StatusOK {
		t.Fatalf("status = %d", got)
	}
	if !strings.Contains(rec.Body.String(), "crypto") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	e, _ := testServer(t)
	rec := do(e, http.MethodGet, "/api/tables/crypto", "")
	if got := bodyStatus(t, rec); got != http.StatusOK {
		t.Fatalf("status = %d", got)
	}
	if !strings.Contains(rec.Body.String(), "비트코인") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestUnknownTableIs404(t *testing.T) {
	e, _ := testServer(t)
	rec := do(e, http.MethodGet, "/api/tables/bonds", "")
	if got := bodyStatus(t, rec); got != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", got)
	}
}

func TestSortEndpointTogglesDirection(t *testing.T) {
	e, vm := testServer(t)

	rec := do(e, http.MethodPost, "/api/tables/crypto/sort", `{"key": "global_price"}`)
	if got := bodyStatus(t, rec); got != http.StatusOK {
		t.Fatalf("status = %d", got)
	}
	if snap := vm.Snapshot(); snap.SortKey != "global_price" || snap.SortDir != viewmodel.Desc {
		t.Fatalf("sort = %s/%s", snap.SortKey, snap.SortDir)
	}

	do(e, http.MethodPost, "/api/tables/crypto/sort", `{"key": "global_price"}`)
	if snap := vm.Snapshot(); snap.SortDir != viewmodel.Asc {
		t.Fatalf("second click did not flip: %s", snap.SortDir)
	}
}

func TestSortEndpointValidatesBody(t *testing.T) {
	e, _ := testServer(t)
	rec := do(e, http.MethodPost, "/api/tables/crypto/sort", `{}`)
	if got := bodyStatus(t, rec); got != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", got)
	}
}

func TestToggleEndpoint(t *testing.T) {
	e, vm := testServer(t)

	rec := do(e, http.MethodPost, "/api/tables/crypto/columns", `{"key": "global_price", "visible": false}`)
	if got := bodyStatus(t, rec); got != http.StatusOK {
		t.Fatalf("status = %d", got)
	}
	if vm.Snapshot().Visibility["global_price"] {
		t.Fatal("column still visible")
	}

	// visible is required even when false, so a missing field is a 400.
	rec = do(e, http.MethodPost, "/api/tables/crypto/columns", `{"key": "global_price"}`)
	if got := bodyStatus(t, rec); got != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", got)
	}
}

func TestRefreshEndpointSchedules(t *testing.T) {
	e, _ := testServer(t)
	rec := do(e, http.MethodPost, "/api/tables/crypto/refresh", "")
	if got := bodyStatus(t, rec); got != http.StatusOK {
		t.Fatalf("status = %d", got)
	}
	if !strings.Contains(rec.Body.String(), "scheduled") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
