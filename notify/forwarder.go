package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/regnode/cfg"
	"github.com/maxpert/regnode/encoding"
	"github.com/maxpert/regnode/notify/sink"
	"github.com/maxpert/regnode/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	defaultTopic   = "regnode.lifecycle"
	publishTimeout = 5 * time.Second
)

// Forwarder drains a hub subscription into an external sink.
// Events are msgpack encoded and keyed by instance id.
type Forwarder struct {
	name   string
	topic  string
	sink   sink.Sink
	events <-chan Event
	cancel func()
	done   chan struct{}
}

// NewForwarder subscribes to hub with the patterns in config
func NewForwarder(hub *Hub, config cfg.SinkConfiguration, s sink.Sink) (*Forwarder, error) {
	events, cancel, err := hub.Subscribe(config.Events...)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", config.Name, err)
	}

	topic := config.Topic
	if topic == "" {
		topic = defaultTopic
	}

	return &Forwarder{
		name:   config.Name,
		topic:  topic,
		sink:   s,
		events: events,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// Start begins forwarding in the background
func (f *Forwarder) Start() {
	go f.run()
}

// Stop cancels the subscription, waits for buffered events to be forwarded
// and closes the sink
func (f *Forwarder) Stop(ctx context.Context) error {
	f.cancel()

	select {
	case <-f.done:
	case <-ctx.Done():
		return fmt.Errorf("sink %s: waiting for drain: %w", f.name, ctx.Err())
	}

	return f.sink.Close()
}

func (f *Forwarder) run() {
	defer close(f.done)

	for ev := range f.events {
		f.forward(ev)
	}
}

func (f *Forwarder) forward(ev Event) {
	data, err := encoding.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("sink", f.name).Str("event", string(ev.Type)).Msg("Failed to encode event")
		telemetry.SinkPublishTotal.With(f.name, "failed").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := f.sink.Publish(ctx, f.topic, ev.InstanceID, data); err != nil {
		log.Warn().Err(err).Str("sink", f.name).Str("event", string(ev.Type)).Msg("Failed to publish event")
		telemetry.SinkPublishTotal.With(f.name, "failed").Inc()
		return
	}

	telemetry.SinkPublishTotal.With(f.name, "success").Inc()
}
