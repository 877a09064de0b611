package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// PeerInstancesPath is served by every node for peer sync
	PeerInstancesPath = "/v1/peer/instances"
	// SnapshotContentType is msgpack wrapped in a zstd frame
	SnapshotContentType = "application/x-msgpack+zstd"

	maxSnapshotBytes = 64 << 20
)

// HTTPPeer fetches instance snapshots from another node over HTTP
type HTTPPeer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPeer creates a peer for baseURL (e.g. http://peer-1:8761)
func NewHTTPPeer(baseURL string, timeout time.Duration) *HTTPPeer {
	return &HTTPPeer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the peer base URL
func (p *HTTPPeer) Name() string {
	return p.baseURL
}

// FetchInstances downloads and decodes the peer's instance snapshot
func (p *HTTPPeer) FetchInstances(ctx context.Context) ([]InstanceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+PeerInstancesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", SnapshotContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach peer %s: %w", p.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer %s returned status %d", p.baseURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from %s: %w", p.baseURL, err)
	}

	instances, err := DecodeInstances(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot from %s: %w", p.baseURL, err)
	}
	return instances, nil
}

// Close releases idle connections
func (p *HTTPPeer) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
