package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/beerpi/beerpi/internal/broker"
	"github.com/beerpi/beerpi/internal/sensor"
)

// Publisher is the session surface the bus sink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
}

// Bus publishes each sample's temperature and relay state to the data
// topics. Delivery is best-effort: while the broker is down the
// session drops the publishes without error.
type Bus struct {
	pub    Publisher
	topics broker.Topics
	raw    bool
	logger *slog.Logger
}

// NewBus creates the bus sink. raw selects bare payloads over the
// default JSON envelopes.
func NewBus(pub Publisher, topics broker.Topics, raw bool, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{pub: pub, topics: topics, raw: raw, logger: logger}
}

// Name implements Sink.
func (b *Bus) Name() string { return "bus" }

// Write publishes the temperature and relay payloads. Both are
// attempted even if the first fails.
func (b *Bus) Write(ctx context.Context, s sensor.Sample) error {
	tempPayload, err := b.temperaturePayload(s)
	if err != nil {
		return fmt.Errorf("encode temperature: %w", err)
	}

	tempErr := b.pub.Publish(ctx, b.topics.Temperature(), tempPayload, 0, false)
	relayErr := b.pub.Publish(ctx, b.topics.RelayState(), b.relayPayload(s), 0, false)

	return errors.Join(tempErr, relayErr)
}

func (b *Bus) temperaturePayload(s sensor.Sample) ([]byte, error) {
	if b.raw {
		if s.Temperature == nil {
			return []byte("unknown"), nil
		}
		return []byte(strconv.FormatFloat(*s.Temperature, 'f', -1, 64)), nil
	}

	return json.Marshal(struct {
		Temperature *float64 `json:"temperature"`
	}{s.Temperature})
}

func (b *Bus) relayPayload(s sensor.Sample) []byte {
	if b.raw {
		return []byte(s.Relay)
	}

	// A single plain-string field cannot fail to marshal.
	payload, _ := json.Marshal(struct {
		Relay sensor.RelayState `json:"relay"`
	}{s.Relay})
	return payload
}
