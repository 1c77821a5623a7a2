package app

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ahart-dev/vaultmind/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Vaults.DataDir = t.TempDir()
	cfg.Vaults.WorkRoot = t.TempDir()
	cfg.Vaults.PersonalRoot = t.TempDir()
	cfg.Rerank.Enabled = false
	return cfg
}

func TestNew_BuildsApplicationWithSQLiteKeywordBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.KeywordBackend = "sqlite"

	application, err := New(cfg, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer application.Close()

	require.NotNil(t, application.Engine)
	require.NotNil(t, application.Orchestrator)
	require.NotNil(t, application.Jobs)
	require.NotNil(t, application.Metrics)
}

func TestNew_BuildsApplicationWithBleveKeywordBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.KeywordBackend = "bleve"

	application, err := New(cfg, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer application.Close()

	require.NotNil(t, application.Keywords)
}

func TestNew_RejectsUnknownKeywordBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.KeywordBackend = "elasticsearch"

	_, err := New(cfg, WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestNew_DisablesRerankerAndExpanderWhenRerankDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rerank.Enabled = false

	application, err := New(cfg, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer application.Close()

	require.NotNil(t, application.Engine)
}
