package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
	"github.com/malbeclabs/stakewatch/pkg/testutil"
)

type staticReports struct {
	report *analysis.Report
}

func (s *staticReports) Latest() *analysis.Report {
	return s.report
}

func newTestServer(t *testing.T, reports ReportSource) *Server {
	t.Helper()
	srv, err := New(Config{
		Logger:      testutil.NewLogger(),
		ListenAddr:  "127.0.0.1:0",
		VersionInfo: VersionInfo{Version: "v0.1.0", Commit: "abc123", Date: "2026-08-01"},
		Reports:     reports,
	})
	require.NoError(t, err)
	return srv
}

func TestStakewatch_Server_Endpoints(t *testing.T) {
	t.Parallel()

	t.Run("healthz is always ok", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &staticReports{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz unavailable before first report", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &staticReports{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("readyz ok once report exists", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &staticReports{report: &analysis.Report{RunID: "run-1"}})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("version reports build info", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &staticReports{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var info VersionInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		require.Equal(t, "v0.1.0", info.Version)
		require.Equal(t, "abc123", info.Commit)
	})

	t.Run("report serves latest assembly", func(t *testing.T) {
		t.Parallel()

		report := &analysis.Report{
			GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			RunID:       "run-7",
			Epoch:       analysis.EpochInfo{Epoch: 812},
		}
		srv := newTestServer(t, &staticReports{report: report})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got analysis.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Equal(t, "run-7", got.RunID)
		require.Equal(t, uint64(812), got.Epoch.Epoch)
	})

	t.Run("report unavailable before first run", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &staticReports{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("metrics endpoint is wired", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, &staticReports{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("requires report source", func(t *testing.T) {
		t.Parallel()

		_, err := New(Config{Logger: testutil.NewLogger(), ListenAddr: "127.0.0.1:0"})
		require.ErrorContains(t, err, "report source is required")
	})
}
