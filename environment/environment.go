// Package environment resolves the deployment identity (datacenter and
// environment) of the node before anything else reads configuration.
package environment

import (
	"errors"
	"fmt"

	"github.com/maxpert/regnode/cfg"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDatacenter is used when registry.datacenter is not set
	DefaultDatacenter = "default"
	// DefaultEnvironment is used when registry.environment is not set
	DefaultEnvironment = "test"
)

// ErrConfigurationUnavailable wraps failures to read or write the property store
var ErrConfigurationUnavailable = errors.New("configuration unavailable")

// Identity is the resolved deployment identity. Both fields are non-empty.
type Identity struct {
	Datacenter  string `json:"datacenter" msgpack:"datacenter"`
	Environment string `json:"environment" msgpack:"environment"`
}

// Resolve reads the datacenter and environment properties, falling back to
// the defaults, and publishes the result under the deployment keys.
func Resolve(store cfg.Store) (Identity, error) {
	log.Info().Msg("Setting the deployment configuration")

	datacenter, err := resolveKey(store, cfg.KeyDatacenter, cfg.KeyDeploymentDatacenter, DefaultDatacenter)
	if err != nil {
		return Identity{}, err
	}

	environment, err := resolveKey(store, cfg.KeyEnvironment, cfg.KeyDeploymentEnvironment, DefaultEnvironment)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{Datacenter: datacenter, Environment: environment}
	log.Info().
		Str("datacenter", id.Datacenter).
		Str("environment", id.Environment).
		Msg("Deployment identity resolved")
	return id, nil
}

func resolveKey(store cfg.Store, key, deploymentKey, fallback string) (string, error) {
	value, ok, err := store.GetString(key)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrConfigurationUnavailable, key, err)
	}

	if !ok || value == "" {
		log.Info().
			Str("key", key).
			Str("default", fallback).
			Msgf("Value %s is not set, defaulting to %s", key, fallback)
		value = fallback
	}

	if err := store.SetProperty(deploymentKey, value); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrConfigurationUnavailable, deploymentKey, err)
	}
	return value, nil
}
