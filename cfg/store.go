package cfg

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Property keys read and written during environment resolution
const (
	KeyDatacenter            = "registry.datacenter"
	KeyEnvironment           = "registry.environment"
	KeyDeploymentDatacenter  = "deployment.datacenter"
	KeyDeploymentEnvironment = "deployment.environment"
)

// envPrefix is prepended to property keys when looking up environment overrides
const envPrefix = "REGNODE"

// Store is a string property store.
// GetString reports ok=false when the key is absent. A non-nil error means
// the store itself could not be read.
type Store interface {
	GetString(key string) (value string, ok bool, err error)
	SetProperty(key, value string) error
}

// PropertyStore is a viper backed Store seeded from the [properties] table.
// Environment variables (REGNODE_ + upper-cased key, dots as underscores)
// take precedence over seeded values but not over SetProperty.
type PropertyStore struct {
	mu sync.RWMutex
	v  *viper.Viper
}

// NewPropertyStore creates a store seeded with props and environment overrides
func NewPropertyStore(props map[string]string) *PropertyStore {
	return newPropertyStore(props, true)
}

func newPropertyStore(props map[string]string, automaticEnv bool) *PropertyStore {
	v := viper.New()
	for k, val := range props {
		v.SetDefault(k, val)
	}

	if automaticEnv {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	return &PropertyStore{v: v}
}

// GetString returns the value for key
func (s *PropertyStore) GetString(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.v.IsSet(key) {
		return "", false, nil
	}
	return s.v.GetString(key), true, nil
}

// SetProperty stores value under key
func (s *PropertyStore) SetProperty(key, value string) error {
	s.mu.Lock()
	s.v.Set(key, value)
	s.mu.Unlock()
	return nil
}
