package environment

import (
	"errors"
	"testing"

	"github.com/maxpert/regnode/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct {
	readErr  error
	writeErr error
}

func (s brokenStore) GetString(string) (string, bool, error) {
	return "", false, s.readErr
}

func (s brokenStore) SetProperty(string, string) error {
	return s.writeErr
}

// mapStore is an in-memory Store with no environment overrides
type mapStore map[string]string

func (s mapStore) GetString(key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func (s mapStore) SetProperty(key, value string) error {
	s[key] = value
	return nil
}

func TestResolve(t *testing.T) {
	t.Setenv("REGNODE_REGISTRY_DATACENTER", "from-process")

	tests := []struct {
		name  string
		props map[string]string
		want  Identity
	}{
		{
			name:  "both absent",
			props: map[string]string{},
			want:  Identity{Datacenter: "default", Environment: "test"},
		},
		{
			name:  "both present",
			props: map[string]string{cfg.KeyDatacenter: "cloud", cfg.KeyEnvironment: "prod"},
			want:  Identity{Datacenter: "cloud", Environment: "prod"},
		},
		{
			name:  "datacenter only",
			props: map[string]string{cfg.KeyDatacenter: "us-east"},
			want:  Identity{Datacenter: "us-east", Environment: "test"},
		},
		{
			name:  "environment only",
			props: map[string]string{cfg.KeyEnvironment: "staging"},
			want:  Identity{Datacenter: "default", Environment: "staging"},
		},
		{
			name:  "empty string treated as absent",
			props: map[string]string{cfg.KeyDatacenter: ""},
			want:  Identity{Datacenter: "default", Environment: "test"},
		},
		{
			name:  "values kept verbatim",
			props: map[string]string{cfg.KeyDatacenter: " Mixed Case ", cfg.KeyEnvironment: "PROD"},
			want:  Identity{Datacenter: " Mixed Case ", Environment: "PROD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mapStore{}
			for k, v := range tt.props {
				store[k] = v
			}

			got, err := Resolve(store)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			dc, ok, _ := store.GetString(cfg.KeyDeploymentDatacenter)
			assert.True(t, ok)
			assert.Equal(t, tt.want.Datacenter, dc)

			env, ok, _ := store.GetString(cfg.KeyDeploymentEnvironment)
			assert.True(t, ok)
			assert.Equal(t, tt.want.Environment, env)
		})
	}
}

func TestResolve_StoreUnavailable(t *testing.T) {
	_, err := Resolve(brokenStore{readErr: errors.New("backend down")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigurationUnavailable)
	assert.Contains(t, err.Error(), "backend down")

	_, err = Resolve(brokenStore{writeErr: errors.New("read only")})
	assert.ErrorIs(t, err, ErrConfigurationUnavailable)
}
