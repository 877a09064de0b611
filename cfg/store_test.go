package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyStore_GetSet(t *testing.T) {
	s := newPropertyStore(map[string]string{KeyDatacenter: "cloud"}, false)

	v, ok, err := s.GetString(KeyDatacenter)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cloud", v)

	_, ok, err = s.GetString(KeyEnvironment)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetProperty(KeyEnvironment, "prod"))
	v, ok, _ = s.GetString(KeyEnvironment)
	assert.True(t, ok)
	assert.Equal(t, "prod", v)
}

func TestPropertyStore_EnvironmentOverride(t *testing.T) {
	t.Setenv("REGNODE_REGISTRY_DATACENTER", "from-env")
	t.Setenv("REGNODE_REGISTRY_ENVIRONMENT", "staging")

	s := NewPropertyStore(map[string]string{KeyDatacenter: "from-file"})

	v, _, _ := s.GetString(KeyDatacenter)
	assert.Equal(t, "from-env", v, "environment wins over seeded value")

	v, ok, _ := s.GetString(KeyEnvironment)
	assert.True(t, ok, "environment supplies keys missing from the seed")
	assert.Equal(t, "staging", v)

	require.NoError(t, s.SetProperty(KeyDatacenter, "explicit"))
	v, _, _ = s.GetString(KeyDatacenter)
	assert.Equal(t, "explicit", v, "SetProperty wins over environment")
}

func TestPropertyStore_EnvironmentIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("REGNODE_REGISTRY_DATACENTER", "from-env")

	s := newPropertyStore(map[string]string{KeyDatacenter: "from-file"}, false)
	v, _, _ := s.GetString(KeyDatacenter)
	assert.Equal(t, "from-file", v)

	_, ok, _ := s.GetString(KeyEnvironment)
	assert.False(t, ok)
}

func TestPropertyStore_SeedIsCopied(t *testing.T) {
	seed := map[string]string{"a": "1"}
	s := newPropertyStore(seed, false)
	require.NoError(t, s.SetProperty("a", "2"))
	assert.Equal(t, "1", seed["a"])

	v, _, _ := s.GetString("a")
	assert.Equal(t, "2", v)
}
