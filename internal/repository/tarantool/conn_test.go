package tarantool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("TT_ADDRESS", "")
	t.Setenv("TT_USER", "votechain")
	t.Setenv("TT_PASSWORD", "secret")
	t.Setenv("TT_TIMEOUT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultAddress, cfg.Address)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestLoadConfigRequiresCredentials(t *testing.T) {
	t.Setenv("TT_USER", "")
	t.Setenv("TT_PASSWORD", "secret")
	_, err := LoadConfig()
	require.ErrorIs(t, err, ErrUserNotSet)

	t.Setenv("TT_USER", "votechain")
	t.Setenv("TT_PASSWORD", "")
	_, err = LoadConfig()
	require.ErrorIs(t, err, ErrPasswordNotSet)
}
