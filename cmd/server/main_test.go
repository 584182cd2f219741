package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algodid/internal/ledger/simulated"
	"algodid/internal/platform/config"
	auditmemory "algodid/pkg/platform/audit/store/memory"
)

type downLedger struct{ *simulated.Ledger }

func (downLedger) Health(context.Context) error { return errors.New("catching up") }

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	healthHandler(simulated.New())(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	healthHandler(downLedger{simulated.New()})(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "catching up")
}

func TestBuildDefaults(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Server{Ledger: config.LedgerSimulated, SimulatedApps: []uint64{5}}

	l, err := buildLedger(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &simulated.Ledger{}, l)

	store, closeFn, err := buildAuditStore(context.Background(), cfg, log)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &auditmemory.InMemoryStore{}, store)
}
