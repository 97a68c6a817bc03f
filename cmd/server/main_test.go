package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintMonitorSnapshot_RendersTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/clients", r.URL.Path)
		assert.Equal(t, "s3cr3t", r.Header.Get("X-Admin-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clients":[{"client_id":"gpu-box-1","last_heartbeat":"2026-07-31T00:00:00Z","metrics":{"CPUPercent":12.5,"MemoryPercent":40.1,"DiskPercent":70.0}}]}`))
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().String()
	err := printMonitorSnapshot(context.Background(), addr, "s3cr3t")
	require.NoError(t, err)
}

func TestPrintMonitorSnapshot_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := printMonitorSnapshot(context.Background(), srv.Listener.Addr().String(), "wrong-key")
	assert.Error(t, err)
}

func TestPrintMonitorSnapshot_UnreachableAdminAPIIsError(t *testing.T) {
	err := printMonitorSnapshot(context.Background(), "127.0.0.1:1", "")
	assert.Error(t, err)
}
