package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maxpert/regnode/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInstances_CurrentLayout(t *testing.T) {
	in := []InstanceInfo{
		{
			InstanceID: "a",
			AppName:    "ORDERS",
			HostName:   "a.local",
			DataCenter: DataCenterInfo{Name: DataCenterAmazon},
			Status:     StatusUp,
			Metadata:   map[string]string{"zone": "us-east-1a"},
		},
	}

	data, err := EncodeInstances(in)
	require.NoError(t, err)

	out, err := DecodeInstances(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeInstances_V1Layout(t *testing.T) {
	RegisterCompatConverters()
	RegisterCompatConverters() // idempotent

	assert.Contains(t, encoding.Converters(InstanceKind), "v1-instance")

	legacy := []map[string]interface{}{
		{
			"instanceId":     "legacy-1",
			"app":            "BILLING",
			"hostName":       "billing.local",
			"dataCenterInfo": map[string]interface{}{"name": "Amazon"},
			"status":         "UP",
			"metadata":       map[string]interface{}{"version": "1"},
		},
		{
			"instanceId":     "legacy-2",
			"app":            "BILLING",
			"dataCenterInfo": "MyOwn",
		},
	}
	data, err := encoding.MarshalCompressed(legacy)
	require.NoError(t, err)

	out, err := DecodeInstances(data)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "legacy-1", out[0].InstanceID)
	assert.Equal(t, "BILLING", out[0].AppName)
	assert.Equal(t, "billing.local", out[0].HostName)
	assert.Equal(t, DataCenterAmazon, out[0].DataCenter.Name)
	assert.Equal(t, StatusUp, out[0].Status)
	assert.Equal(t, "1", out[0].Metadata["version"])

	assert.Equal(t, DataCenterMyOwn, out[1].DataCenter.Name)
	assert.Equal(t, StatusUnknown, out[1].Status)
}

func TestHTTPPeer_FetchInstances(t *testing.T) {
	snapshot := []InstanceInfo{inst("a"), inst("b")}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PeerInstancesPath {
			http.NotFound(w, r)
			return
		}
		data, err := EncodeInstances(snapshot)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", SnapshotContentType)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	p := NewHTTPPeer(srv.URL+"/", time.Second)
	assert.Equal(t, srv.URL, p.Name())

	got, err := p.FetchInstances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)
	require.NoError(t, p.Close())
}

func TestHTTPPeer_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPPeer(srv.URL, time.Second).FetchInstances(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
