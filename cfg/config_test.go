package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDefaultConfig(t *testing.T) {
	t.Helper()
	saved := *Config
	savedProps := make(map[string]string, len(Config.Properties))
	for k, v := range Config.Properties {
		savedProps[k] = v
	}
	t.Cleanup(func() {
		*Config = saved
		Config.Properties = savedProps
	})
}

func TestLoad_DecodesFileAndKeepsDefaults(t *testing.T) {
	withDefaultConfig(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[node]
instance_id = "node-a"
datacenter_type = "Amazon"

[registry]
peer_urls = ["http://peer-1:8761", "http://peer-2:8761"]
peer_grpc_addrs = ["peer-3:8762"]
sync_retries = 2

[properties]
"registry.datacenter" = "cloud"

[[events.sinks]]
name = "audit"
type = "nats"
nats_url = "nats://localhost:4222"
events = ["server.*"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	require.NoError(t, Load(path))

	assert.Equal(t, "node-a", Config.Node.InstanceID)
	assert.Equal(t, DataCenterAmazon, Config.Node.DataCenterType)
	assert.Equal(t, []string{"http://peer-1:8761", "http://peer-2:8761"}, Config.Registry.PeerURLs)
	assert.Equal(t, []string{"peer-3:8762"}, Config.Registry.PeerGRPCAddrs)
	assert.Equal(t, 2, Config.Registry.SyncRetries)
	assert.Equal(t, 0, Config.GRPC.Port, "gRPC listener disabled by default")
	assert.Equal(t, 300, Config.Registry.EmptySyncGraceSeconds, "unset values keep defaults")
	assert.Equal(t, "cloud", Config.Properties[KeyDatacenter])
	require.Len(t, Config.Events.Sinks, 1)
	assert.Equal(t, []string{"server.*"}, Config.Events.Sinks[0].Events)
	assert.NotEmpty(t, Config.Node.HostName)

	require.NoError(t, Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	withDefaultConfig(t)
	Config.Node.InstanceID = "fixed"

	require.NoError(t, Load(filepath.Join(t.TempDir(), "missing.toml")))
	assert.Equal(t, "fixed", Config.Node.InstanceID)
	assert.Equal(t, 8761, Config.HTTP.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Configuration) {}},
		{name: "bad port", mutate: func(c *Configuration) { c.HTTP.Port = 70000 }, wantErr: true},
		{name: "bad grpc port", mutate: func(c *Configuration) { c.GRPC.Port = -1 }, wantErr: true},
		{name: "grpc enabled", mutate: func(c *Configuration) { c.GRPC.Port = 8762 }},
		{name: "bad datacenter", mutate: func(c *Configuration) { c.Node.DataCenterType = "Azure" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Configuration) { c.Registry.SyncRetries = -1 }, wantErr: true},
		{name: "negative grace", mutate: func(c *Configuration) { c.Registry.EmptySyncGraceSeconds = -1 }, wantErr: true},
		{name: "zero grace allowed", mutate: func(c *Configuration) { c.Registry.EmptySyncGraceSeconds = 0 }},
		{
			name: "unknown sink type",
			mutate: func(c *Configuration) {
				c.Events.Sinks = []SinkConfiguration{{Name: "x", Type: "rabbit"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withDefaultConfig(t)
			tt.mutate(Config)
			err := Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
