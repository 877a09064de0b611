package cloud

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/maxpert/regnode/registry"
	"github.com/rs/zerolog/log"
)

// MetadataClient is the subset of the EC2 instance metadata client used by AmazonBinder
type MetadataClient interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
	GetRegion(ctx context.Context, params *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

// CloudIdentity is what the metadata service says about this machine
type CloudIdentity struct {
	InstanceID       string `json:"instance_id"`
	AvailabilityZone string `json:"availability_zone"`
	Region           string `json:"region"`
}

// AmazonBinder binds the node to its EC2 identity and re-verifies it periodically
type AmazonBinder struct {
	client   MetadataClient
	self     registry.InstanceInfo
	interval time.Duration

	mu       sync.Mutex
	identity CloudIdentity
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

// NewAmazonBinder creates a binder using client
func NewAmazonBinder(client MetadataClient, self registry.InstanceInfo, interval time.Duration) *AmazonBinder {
	return &AmazonBinder{
		client:   client,
		self:     self,
		interval: interval,
	}
}

// NewAmazonFactory returns a Factory backed by the EC2 metadata service.
// An empty endpoint uses the SDK default.
func NewAmazonFactory(endpoint string, interval time.Duration) Factory {
	return func(self registry.InstanceInfo) (Binder, error) {
		client := imds.New(imds.Options{Endpoint: endpoint})
		return NewAmazonBinder(client, self, interval), nil
	}
}

// Start resolves the EC2 identity and starts re-verification.
// Unreachable metadata is an error.
func (b *AmazonBinder) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	identity, err := b.fetch(ctx)
	if err != nil {
		return err
	}
	b.identity = identity

	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true

	b.wg.Add(1)
	go b.verifyLoop(loopCtx)

	log.Info().
		Str("ec2_instance_id", identity.InstanceID).
		Str("availability_zone", identity.AvailabilityZone).
		Str("region", identity.Region).
		Str("self", b.self.InstanceID).
		Msg("Bound to EC2 instance")
	return nil
}

// Shutdown stops re-verification
func (b *AmazonBinder) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.cancel()
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Amazon binder stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for binder loop: %w", ctx.Err())
	}
}

// Identity returns the identity resolved at Start
func (b *AmazonBinder) Identity() CloudIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identity
}

func (b *AmazonBinder) verifyLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.verify(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (b *AmazonBinder) verify(ctx context.Context) {
	current, err := b.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("EC2 metadata re-verification failed")
		}
		return
	}

	b.mu.Lock()
	previous := b.identity
	b.identity = current
	b.mu.Unlock()

	if previous.InstanceID != current.InstanceID {
		log.Error().
			Str("previous", previous.InstanceID).
			Str("current", current.InstanceID).
			Msg("EC2 instance identity changed")
	}
}

func (b *AmazonBinder) fetch(ctx context.Context) (CloudIdentity, error) {
	instanceID, err := b.metadata(ctx, "instance-id")
	if err != nil {
		return CloudIdentity{}, err
	}
	zone, err := b.metadata(ctx, "placement/availability-zone")
	if err != nil {
		return CloudIdentity{}, err
	}
	region, err := b.client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return CloudIdentity{}, fmt.Errorf("failed to get region: %w", err)
	}

	return CloudIdentity{
		InstanceID:       instanceID,
		AvailabilityZone: zone,
		Region:           region.Region,
	}, nil
}

func (b *AmazonBinder) metadata(ctx context.Context, path string) (string, error) {
	out, err := b.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", path, err)
	}
	defer out.Content.Close()

	data, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
