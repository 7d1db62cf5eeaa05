package cmd

import (
	"testing"

	"TradeReview/internal/di"
	"TradeReview/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedStore(t *testing.T) {
	mem, err := config.Parse([]byte("storage:\n  backend: memory\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, sharedStore(mem), `got "memory"`)

	pg, err := config.Parse([]byte("storage:\n  backend: postgres\n  postgres:\n    url: postgres://u:p@db/reviews\n"))
	require.NoError(t, err)
	assert.NoError(t, sharedStore(pg))
}

func TestWithOpsRefusesMemoryBackend(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_BACKEND", "")
	prev := configPath
	configPath = "../../../config/config.yaml"
	t.Cleanup(func() { configPath = prev })

	called := false
	err := withOps(func(*di.Ops) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
