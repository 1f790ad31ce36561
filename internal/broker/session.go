package broker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/beerpi/beerpi/internal/config"
)

// State is the broker connection state. It is owned by the session and
// only transitions through the reconnect protocol.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MessageHandler is called for each message received on a subscribed
// topic. Implementations must be safe for concurrent use.
type MessageHandler func(topic string, payload []byte)

// publishTimeout bounds each individual publish so a stalled broker
// can never hold up a tick.
const publishTimeout = 5 * time.Second

type subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// conn is the slice of the autopaho connection manager the session
// drives. Narrowed so the connection-epoch protocol is testable
// without a broker.
type conn interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Subscribe(ctx context.Context, sub *paho.Subscribe) (*paho.Suback, error)
	Disconnect(ctx context.Context) error
}

// Session manages the MQTT connection. Create it with NewSession,
// register discovery payloads and subscriptions, then call
// [Session.Connect] once at startup.
type Session struct {
	cfg        config.MQTTConfig
	topics     Topics
	instanceID string
	device     DeviceInfo
	logger     *slog.Logger

	mu    sync.Mutex
	regs  []Registration
	subs  []subscription
	hooks []func(ctx context.Context)

	cm conn

	state        atomic.Int32
	epoch        atomic.Int64
	dropped      atomic.Int64
	connectFails atomic.Int64
}

// NewSession creates a session but does not connect.
func NewSession(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:        cfg,
		topics:     Topics{Prefix: cfg.TopicPrefix},
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		logger:     logger,
	}
}

// Topics returns the topic layout derived from the configured prefix.
func (s *Session) Topics() Topics { return s.topics }

// Device returns the HA device registry block for this instance.
func (s *Session) Device() DeviceInfo { return s.device }

// Register adds discovery registrations. They are published retained
// on every (re-)connect; registering after Connect takes effect on the
// next reconnect.
func (s *Session) Register(regs ...Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs = append(s.regs, regs...)
}

// Subscribe adds a topic filter and handler. The subscription is made
// on every (re-)connect, so it survives broker session resets.
func (s *Session) Subscribe(filter string, qos byte, handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, subscription{filter: filter, qos: qos, handler: handler})
}

// OnConnect registers a hook invoked after liveness, discovery, and
// subscriptions complete for a new connection epoch. Used to republish
// retained state (setpoints) that a broker restart may have lost.
func (s *Session) OnConnect(hook func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Connect establishes the broker connection. It blocks for at most
// MaxConnectRetries × RetryDelay; if the broker is still unreachable
// it logs, leaves reconnection to the background, and returns nil so
// the pipeline starts in degraded no-bus mode. A non-nil error means
// the configuration itself is unusable (bad URL).
func (s *Session) Connect(ctx context.Context) error {
	brokerURL, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	// The manager must outlive the startup context: a shutdown signal
	// cancels ctx while [Session.Stop] still needs the connection to
	// publish the retained "offline" status before disconnecting.
	mgrCtx := context.WithoutCancel(ctx)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:        []*url.URL{brokerURL},
		KeepAlive:         30,
		ConnectRetryDelay: s.cfg.RetryDelay(),
		ConnectUsername:   s.cfg.Username,
		ConnectPassword:   []byte(s.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   s.topics.Status(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.connectionUp(mgrCtx, cm)
		},
		OnConnectError: func(err error) {
			s.state.Store(int32(StateConnecting))
			n := s.connectFails.Add(1)
			s.logger.Warn("broker connect attempt failed",
				"attempt", n,
				"error", err,
			)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "beerpi-" + s.cfg.DeviceName,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					s.dispatchInbound(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnServerDisconnect: func(_ *paho.Disconnect) {
				s.state.Store(int32(StateDisconnected))
				s.logger.Warn("broker disconnected by server")
			},
			OnClientError: func(err error) {
				s.state.Store(int32(StateDisconnected))
				s.logger.Warn("broker connection lost", "error", err)
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	s.state.Store(int32(StateConnecting))
	cm, err := autopaho.NewConnection(mgrCtx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	s.cm = cm

	// Bound the startup wait to the configured retry budget. Past
	// that the pipeline runs without the bus; autopaho keeps retrying
	// in the background and OnConnectionUp restores full service.
	budget := time.Duration(s.cfg.MaxConnectRetries) * s.cfg.RetryDelay()
	connCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		s.logger.Warn("broker unreachable, continuing without message bus",
			"attempts", s.connectFails.Load(),
			"waited", budget.String(),
		)
	}
	return nil
}

// Stop publishes the retained "offline" status and closes the
// connection. The provided context bounds both operations.
func (s *Session) Stop(ctx context.Context) error {
	if s.cm == nil {
		return nil
	}
	if s.State() == StateConnected {
		s.announce(ctx, s.cm, "offline")
	}
	s.state.Store(int32(StateDisconnected))
	return s.cm.Disconnect(ctx)
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Epoch returns the number of successful connections so far.
func (s *Session) Epoch() int64 { return s.epoch.Load() }

// Dropped returns how many publishes were skipped while disconnected.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// Publish sends one message. While disconnected it is a counted,
// logged no-op: it never blocks the tick and never returns an error
// for an absent broker. A publish failure on a live connection is
// returned so the fan-out can record it.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if s.cm == nil || s.State() != StateConnected {
		n := s.dropped.Add(1)
		s.logger.Debug("bus publish skipped, broker unavailable",
			"topic", topic,
			"dropped_total", n,
		)
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if _, err := s.cm.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retained,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// connectionUp runs the bring-up protocol for a new connection epoch:
// retained liveness first, then retained discovery, then command
// subscriptions and connect hooks. The connected flag is set last;
// data publishes gate on it, so every data publish for the epoch
// lands after its liveness and discovery.
func (s *Session) connectionUp(ctx context.Context, cm conn) {
	epoch := s.epoch.Add(1)
	s.logger.Info("broker connected",
		"broker", s.cfg.Broker,
		"epoch", epoch,
	)
	s.announce(ctx, cm, "online")
	s.publishDiscovery(ctx, cm)
	s.resubscribe(ctx, cm)
	s.runHooks(ctx)
	s.state.Store(int32(StateConnected))
}

// announce publishes the retained liveness status. Always the first
// publish of a connection epoch.
func (s *Session) announce(ctx context.Context, cm conn, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   s.topics.Status(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		s.logger.Warn("status publish failed", "status", status, "error", err)
	} else {
		s.logger.Info("status published", "status", status)
	}
}

// publishDiscovery publishes every registration retained. Safe to
// repeat: payloads are static, so re-publishing is idempotent.
func (s *Session) publishDiscovery(ctx context.Context, cm conn) {
	s.mu.Lock()
	regs := make([]Registration, len(s.regs))
	copy(regs, s.regs)
	s.mu.Unlock()

	for _, r := range regs {
		topic := s.cfg.DiscoveryPrefix + "/" + r.Component + "/" + r.ObjectID + "/config"
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			s.logger.Error("marshal discovery payload",
				"object_id", r.ObjectID, "error", err)
			continue
		}

		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			s.logger.Warn("discovery publish failed",
				"object_id", r.ObjectID, "topic", topic, "error", err)
		} else {
			s.logger.Debug("discovery published",
				"object_id", r.ObjectID, "topic", topic)
		}
	}
}

// resubscribe re-establishes every subscription for the new broker
// session. A broker restart may have dropped server-side state, so
// this runs on every connection epoch.
func (s *Session) resubscribe(ctx context.Context, cm conn) {
	s.mu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	opts := make([]paho.SubscribeOptions, 0, len(subs))
	for _, sub := range subs {
		opts = append(opts, paho.SubscribeOptions{Topic: sub.filter, QoS: sub.qos})
	}

	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		s.logger.Warn("subscribe failed", "error", err)
		return
	}
	for _, sub := range subs {
		s.logger.Debug("subscribed", "filter", sub.filter)
	}
}

func (s *Session) runHooks(ctx context.Context) {
	s.mu.Lock()
	hooks := make([]func(ctx context.Context), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx)
	}
}

// dispatchInbound routes a received message to every matching handler.
func (s *Session) dispatchInbound(topic string, payload []byte) {
	s.mu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		if topicMatches(sub.filter, topic) {
			sub.handler(topic, payload)
		}
	}
}

// topicMatches implements MQTT topic filter matching with the + and #
// wildcards.
func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
