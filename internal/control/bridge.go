package control

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/beerpi/beerpi/internal/broker"
)

// Publisher is the slice of the broker session the bridge needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
}

// Bridge connects the setpoint store to the bus: inbound commands on
// the .../config/<name>/set topics update the store, and the current
// values are republished retained on the matching status topics.
type Bridge struct {
	setpoints *Setpoints
	pub       Publisher
	topics    broker.Topics
	logger    *slog.Logger
}

// NewBridge creates a bridge. Wire [Bridge.HandleCommand] as the
// session's handler for the setpoint command filter and
// [Bridge.PublishStates] as a connect hook.
func NewBridge(setpoints *Setpoints, pub Publisher, topics broker.Topics, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		setpoints: setpoints,
		pub:       pub,
		topics:    topics,
		logger:    logger,
	}
}

// HandleCommand processes one inbound setpoint command. Malformed
// payloads and unknown entities are logged and dropped; a command
// never fails the connection.
func (b *Bridge) HandleCommand(topic string, payload []byte) {
	name := commandEntity(topic)
	value := strings.TrimSpace(string(payload))

	var err error
	switch name {
	case "min_temp":
		err = b.setFloat(b.setpoints.SetMin, value)
	case "max_temp":
		err = b.setFloat(b.setpoints.SetMax, value)
	case "manual_control":
		err = b.setManual(value)
	default:
		b.logger.Warn("command for unknown entity", "topic", topic)
		return
	}

	if err != nil {
		b.logger.Warn("setpoint command rejected",
			"entity", name,
			"payload", value,
			"error", err,
		)
		return
	}

	b.logger.Info("setpoint updated", "entity", name, "value", value)
	b.PublishStates(context.Background())
}

// PublishStates publishes every setpoint retained so new subscribers
// (and Home Assistant after a broker restart) see current values.
func (b *Bridge) PublishStates(ctx context.Context) {
	min, max, manual := b.setpoints.Snapshot()

	states := map[string]string{
		"min_temp":       strconv.FormatFloat(min, 'f', -1, 64),
		"max_temp":       strconv.FormatFloat(max, 'f', -1, 64),
		"manual_control": onOff(manual),
	}

	for name, value := range states {
		topic := b.topics.ConfigStatus(name)
		if err := b.pub.Publish(ctx, topic, []byte(value), 1, true); err != nil {
			b.logger.Warn("setpoint state publish failed",
				"entity", name, "error", err)
		}
	}
}

func (b *Bridge) setFloat(set func(float64) error, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	return set(f)
}

func (b *Bridge) setManual(value string) error {
	switch strings.ToLower(value) {
	case "on", "true", "1":
		b.setpoints.SetManual(true)
	default:
		b.setpoints.SetManual(false)
	}
	return nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// commandEntity extracts the setpoint name from a command topic
// (.../config/<name>/set).
func commandEntity(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
