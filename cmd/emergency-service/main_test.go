package main

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/zeronet/internal/audit"
	"github.com/medrex/zeronet/pkg/config"
	"github.com/medrex/zeronet/pkg/logger"
)

func TestRun_ClosesAuditStoreOnStartupFailure(t *testing.T) {
	// hold the port so ListenAndServe fails after the audit store is open
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := config.Defaults()
	cfg.JWT.SecretKey = "test-secret"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = busy.Addr().(*net.TCPAddr).Port
	cfg.Resolver.Sources = nil
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(t.TempDir(), "scan-audit")

	err = run(cfg, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server failed")

	// LevelDB holds a file lock until closed
	store, err := audit.Open(cfg.Audit.Path)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestRun_AuditStoreUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan-audit")
	held, err := audit.Open(path)
	require.NoError(t, err)
	defer held.Close()

	cfg := config.Defaults()
	cfg.JWT.SecretKey = "test-secret"
	cfg.Resolver.Sources = nil
	cfg.Audit.Enabled = true
	cfg.Audit.Path = path

	err = run(cfg, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open scan audit store")
}
