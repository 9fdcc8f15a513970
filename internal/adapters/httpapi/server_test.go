package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sharpline/internal/adapters/httpapi"
	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/metrics"
)

// --- mocks ---

type mockSnapshots struct {
	rows []domain.SnapshotRow
	err  error
}

func (m *mockSnapshots) Load(_ context.Context) ([]domain.SnapshotRow, error) {
	return m.rows, m.err
}

type mockExposure struct {
	themes map[string]float64
	err    error
}

func (m *mockExposure) All(_ context.Context) (map[string]float64, error) {
	return m.themes, m.err
}

func newServer(snaps *mockSnapshots, exp *mockExposure) *httptest.Server {
	h := httpapi.NewHandler(snaps, exp)
	return httptest.NewServer(httpapi.NewRouter(h, metrics.New().Handler()))
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newServer(&mockSnapshots{}, &mockExposure{})
	defer srv.Close()

	var body map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestSnapshot_FiltersByRoleAndVisibility(t *testing.T) {
	rows := []domain.SnapshotRow{
		{GameID: "g", Market: "totals", Side: "Over", Visible: true, Roles: []domain.Role{domain.RoleLive}},
		{GameID: "g", Market: "totals", Side: "Under", Visible: true},
		{GameID: "g", Market: "h2h", Side: "NYY", Visible: false, Roles: []domain.Role{domain.RoleLive}},
	}
	srv := newServer(&mockSnapshots{rows: rows}, &mockExposure{})
	defer srv.Close()

	var body struct {
		Rows  []domain.SnapshotRow `json:"rows"`
		Count int                  `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/snapshot", &body))
	assert.Equal(t, 2, body.Count)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/snapshot?role=live", &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Over", body.Rows[0].Side)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/snapshot?role=live&all=true", &body))
	assert.Equal(t, 2, body.Count)
}

func TestSnapshot_Unavailable(t *testing.T) {
	srv := newServer(&mockSnapshots{err: errors.New("corrupt")}, &mockExposure{})
	defer srv.Close()

	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/snapshot", &body))
	assert.Equal(t, "snapshot unavailable", body["error"])
}

func TestExposure(t *testing.T) {
	srv := newServer(&mockSnapshots{}, &mockExposure{themes: map[string]float64{
		"g::Over_total": 1.59,
		"g::NYY_side":   2.0,
	}})
	defer srv.Close()

	var body struct {
		Themes []struct {
			Theme string  `json:"theme"`
			Units float64 `json:"units"`
		} `json:"themes"`
		Total float64 `json:"total"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/exposure", &body))
	require.Len(t, body.Themes, 2)
	assert.Equal(t, "g::NYY_side", body.Themes[0].Theme)
	assert.Equal(t, 3.59, body.Total)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(&mockSnapshots{}, &mockExposure{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
