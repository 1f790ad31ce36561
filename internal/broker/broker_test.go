package broker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/beerpi/beerpi/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home/beerpi"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", topics.Status(), "home/beerpi/status"},
		{"temperature", topics.Temperature(), "home/beerpi/temperature"},
		{"relay state", topics.RelayState(), "home/beerpi/relay_state"},
		{"config status", topics.ConfigStatus("min_temp"), "home/beerpi/config/min_temp/status"},
		{"config set", topics.ConfigSet("max_temp"), "home/beerpi/config/max_temp/set"},
		{"config set filter", topics.ConfigSetFilter(), "home/beerpi/config/+/set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"home/beerpi/status", "home/beerpi/status", true},
		{"home/beerpi/status", "home/beerpi/temperature", false},
		{"home/beerpi/config/+/set", "home/beerpi/config/min_temp/set", true},
		{"home/beerpi/config/+/set", "home/beerpi/config/min_temp/status", false},
		{"home/beerpi/config/+/set", "home/beerpi/config/a/b/set", false},
		{"home/beerpi/#", "home/beerpi/config/min_temp/set", true},
		{"home/beerpi/#", "home/other/status", false},
		{"+/+/status", "home/beerpi/status", true},
		{"home/beerpi/config/+/set", "home/beerpi/config/set", false},
		{"home/beerpi", "home/beerpi/status", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+" vs "+tt.topic, func(t *testing.T) {
			if got := topicMatches(tt.filter, tt.topic); got != tt.want {
				t.Errorf("topicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{State(99), "disconnected"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestDefaultRegistrations(t *testing.T) {
	topics := Topics{Prefix: "home/beerpi"}
	device := NewDeviceInfo("0190d9b0-test", "beerpi")

	regs := DefaultRegistrations(topics, device, false)
	if len(regs) != 5 {
		t.Fatalf("got %d registrations, want 5", len(regs))
	}

	byID := map[string]Registration{}
	for _, r := range regs {
		if _, dup := byID[r.ObjectID]; dup {
			t.Errorf("duplicate object ID %q", r.ObjectID)
		}
		byID[r.ObjectID] = r
	}

	t.Run("temperature sensor", func(t *testing.T) {
		r, ok := byID["beerpi_temperature"]
		if !ok {
			t.Fatal("beerpi_temperature not registered")
		}
		if r.Component != "sensor" {
			t.Errorf("Component = %q, want sensor", r.Component)
		}
		p := r.Payload.(SensorConfig)
		if p.StateTopic != "home/beerpi/temperature" {
			t.Errorf("StateTopic = %q", p.StateTopic)
		}
		if p.UnitOfMeasurement != "°C" {
			t.Errorf("UnitOfMeasurement = %q, want °C", p.UnitOfMeasurement)
		}
		if p.ValueTemplate != "{{ value_json.temperature }}" {
			t.Errorf("ValueTemplate = %q", p.ValueTemplate)
		}
		if p.AvailabilityTopic != "home/beerpi/status" {
			t.Errorf("AvailabilityTopic = %q", p.AvailabilityTopic)
		}
		if p.Device == nil || p.Device.Identifiers[0] != "0190d9b0-test" {
			t.Errorf("Device = %+v, want identifier 0190d9b0-test", p.Device)
		}
	})

	t.Run("relay binary sensor", func(t *testing.T) {
		r, ok := byID["beerpi_relay"]
		if !ok {
			t.Fatal("beerpi_relay not registered")
		}
		if r.Component != "binary_sensor" {
			t.Errorf("Component = %q, want binary_sensor", r.Component)
		}
		p := r.Payload.(BinarySensorConfig)
		if p.PayloadOn != "ON" || p.PayloadOff != "OFF" {
			t.Errorf("payloads = %q/%q, want ON/OFF", p.PayloadOn, p.PayloadOff)
		}
		if p.ValueTemplate != "{{ value_json.relay }}" {
			t.Errorf("ValueTemplate = %q", p.ValueTemplate)
		}
	})

	t.Run("setpoint numbers", func(t *testing.T) {
		for _, id := range []string{"beerpi_min_temp", "beerpi_max_temp"} {
			r, ok := byID[id]
			if !ok {
				t.Fatalf("%s not registered", id)
			}
			if r.Component != "number" {
				t.Errorf("%s Component = %q, want number", id, r.Component)
			}
			p := r.Payload.(NumberConfig)
			if p.Min != 0 || p.Max != 100 || p.Step != 0.5 {
				t.Errorf("%s range = [%v, %v] step %v, want [0, 100] step 0.5", id, p.Min, p.Max, p.Step)
			}
			if !strings.HasSuffix(p.CommandTopic, "/set") {
				t.Errorf("%s CommandTopic = %q, want .../set", id, p.CommandTopic)
			}
			if !strings.HasSuffix(p.StateTopic, "/status") {
				t.Errorf("%s StateTopic = %q, want .../status", id, p.StateTopic)
			}
		}
	})

	t.Run("manual control switch", func(t *testing.T) {
		r, ok := byID["beerpi_manual_control"]
		if !ok {
			t.Fatal("beerpi_manual_control not registered")
		}
		if r.Component != "switch" {
			t.Errorf("Component = %q, want switch", r.Component)
		}
		p := r.Payload.(SwitchConfig)
		if p.PayloadOn != "on" || p.PayloadOff != "off" {
			t.Errorf("payloads = %q/%q, want on/off", p.PayloadOn, p.PayloadOff)
		}
	})

	t.Run("raw payloads drop value templates", func(t *testing.T) {
		raw := DefaultRegistrations(topics, device, true)
		p := raw[0].Payload.(SensorConfig)
		if p.ValueTemplate != "" {
			t.Errorf("ValueTemplate = %q, want empty in raw mode", p.ValueTemplate)
		}
		// omitempty must drop the key entirely from the JSON payload
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), "value_template") {
			t.Errorf("raw payload still contains value_template: %s", data)
		}
	})
}

func TestPublishWhileDisconnected(t *testing.T) {
	cfg := config.Default().MQTT
	cfg.Broker = "mqtt://localhost:1883"
	s := NewSession(cfg, "0190d9b0-test", nil)

	// No Connect call: the session is disconnected.
	err := s.Publish(context.Background(), s.Topics().Temperature(), []byte("{}"), 0, false)
	if err != nil {
		t.Fatalf("Publish() while disconnected = %v, want nil (counted no-op)", err)
	}
	if got := s.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	_ = s.Publish(context.Background(), s.Topics().RelayState(), []byte("{}"), 0, false)
	if got := s.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	if got := s.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}

func TestSessionDispatchInbound(t *testing.T) {
	cfg := config.Default().MQTT
	cfg.Broker = "mqtt://localhost:1883"
	s := NewSession(cfg, "0190d9b0-test", nil)

	var gotTopic string
	var gotPayload string
	s.Subscribe(s.Topics().ConfigSetFilter(), 1, func(topic string, payload []byte) {
		gotTopic = topic
		gotPayload = string(payload)
	})

	s.dispatchInbound("home/beerpi/config/min_temp/set", []byte("18.5"))
	if gotTopic != "home/beerpi/config/min_temp/set" {
		t.Errorf("handler topic = %q", gotTopic)
	}
	if gotPayload != "18.5" {
		t.Errorf("handler payload = %q, want 18.5", gotPayload)
	}

	// Non-matching topics never reach the handler.
	gotTopic = ""
	s.dispatchInbound("home/beerpi/temperature", []byte("21.5"))
	if gotTopic != "" {
		t.Errorf("handler invoked for non-matching topic %q", gotTopic)
	}
}

// orderedConn records the session's bring-up operations in sequence.
type orderedConn struct {
	mu  sync.Mutex
	ops []string
}

func (c *orderedConn) Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, "publish:"+p.Topic)
	return nil, nil
}

func (c *orderedConn) Subscribe(ctx context.Context, _ *paho.Subscribe) (*paho.Suback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, "subscribe")
	return nil, nil
}

func (c *orderedConn) Disconnect(ctx context.Context) error { return nil }

func TestConnectionUpOrdersEpochPublishes(t *testing.T) {
	cfg := config.Default().MQTT
	cfg.Broker = "mqtt://localhost:1883"
	s := NewSession(cfg, "0190d9b0-test", discardLogger())
	s.Register(DefaultRegistrations(s.Topics(), s.Device(), false)...)
	s.Subscribe(s.Topics().ConfigSetFilter(), 1, func(string, []byte) {})

	fc := &orderedConn{}
	s.cm = fc

	// A data publish attempted during bring-up (here from a connect
	// hook, standing in for a concurrent scheduler tick) must be a
	// counted drop, never an out-of-order publish on the new epoch.
	var hookState State
	var hookErr error
	s.OnConnect(func(ctx context.Context) {
		hookState = s.State()
		hookErr = s.Publish(ctx, s.Topics().Temperature(), []byte("{}"), 0, false)
	})

	s.connectionUp(context.Background(), fc)

	if got := s.State(); got != StateConnected {
		t.Fatalf("State() = %v after bring-up, want %v", got, StateConnected)
	}
	if got := s.Epoch(); got != 1 {
		t.Errorf("Epoch() = %d, want 1", got)
	}
	if hookState == StateConnected {
		t.Error("session reported connected before the epoch bring-up finished")
	}
	if hookErr != nil {
		t.Errorf("mid-bring-up publish = %v, want nil no-op", hookErr)
	}
	if got := s.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want the mid-bring-up publish counted", got)
	}

	if len(fc.ops) == 0 || fc.ops[0] != "publish:"+s.Topics().Status() {
		t.Fatalf("first operation = %v, want the retained liveness publish", fc.ops)
	}
	sawSubscribe := false
	for i, op := range fc.ops {
		if op == "publish:"+s.Topics().Temperature() {
			t.Errorf("ops[%d] is a data publish during bring-up", i)
		}
		if op == "subscribe" {
			sawSubscribe = true
		}
		if strings.HasPrefix(op, "publish:"+cfg.DiscoveryPrefix) && sawSubscribe {
			t.Errorf("ops[%d] discovery publish after subscribe", i)
		}
	}
	if !sawSubscribe {
		t.Error("command topics never subscribed during bring-up")
	}
	// liveness + 5 discovery configs + 1 subscribe
	if len(fc.ops) != 7 {
		t.Errorf("got %d operations %v, want 7", len(fc.ops), fc.ops)
	}
}

func TestConnectDegradesWhenBrokerUnreachable(t *testing.T) {
	cfg := config.Default().MQTT
	cfg.Broker = "mqtt://127.0.0.1:1"
	cfg.MaxConnectRetries = 2
	cfg.RetryDelaySec = 0.05

	s := NewSession(cfg, "0190d9b0-test", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() = %v, want nil (degraded no-bus mode)", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Connect() blocked %v, want roughly the 100ms retry budget", elapsed)
	}

	if got := s.State(); got == StateConnected {
		t.Errorf("State() = %v with no broker, want not connected", got)
	}
	if err := s.Publish(context.Background(), s.Topics().Temperature(), []byte("{}"), 0, false); err != nil {
		t.Errorf("Publish() while degraded = %v, want nil no-op", err)
	}
	if got := s.Dropped(); got == 0 {
		t.Error("Dropped() = 0, want degraded publishes counted")
	}

	// Cancelling the startup context must not tear the session down;
	// Stop alone drives shutdown.
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}

func TestLoadOrCreateInstanceID(t *testing.T) {
	t.Run("creates and persists", func(t *testing.T) {
		dir := t.TempDir()
		id, err := LoadOrCreateInstanceID(dir)
		if err != nil {
			t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
		}
		if id == "" {
			t.Fatal("got empty instance ID")
		}

		data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
		if err != nil {
			t.Fatalf("instance_id file not written: %v", err)
		}
		if strings.TrimSpace(string(data)) != id {
			t.Errorf("persisted %q, returned %q", strings.TrimSpace(string(data)), id)
		}
	})

	t.Run("stable across calls", func(t *testing.T) {
		dir := t.TempDir()
		first, err := LoadOrCreateInstanceID(dir)
		if err != nil {
			t.Fatal(err)
		}
		second, err := LoadOrCreateInstanceID(dir)
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Errorf("instance ID changed: %q then %q", first, second)
		}
	})

	t.Run("reads existing", func(t *testing.T) {
		dir := t.TempDir()
		const existing = "018f4e5a-7b3c-7d2e-9f10-2a4b6c8d0e12"
		if err := os.WriteFile(filepath.Join(dir, "instance_id"), []byte(existing+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		id, err := LoadOrCreateInstanceID(dir)
		if err != nil {
			t.Fatal(err)
		}
		if id != existing {
			t.Errorf("LoadOrCreateInstanceID() = %q, want %q", id, existing)
		}
	})

	t.Run("corrupt file replaced", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "instance_id"), []byte("not-a-uuid\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		id, err := LoadOrCreateInstanceID(dir)
		if err != nil {
			t.Fatal(err)
		}
		if id == "not-a-uuid" {
			t.Error("corrupt instance ID handed out verbatim, want regenerated")
		}

		data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
		if err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(string(data)) != id {
			t.Errorf("persisted %q, returned %q", strings.TrimSpace(string(data)), id)
		}
	})
}

func TestNewDeviceInfo(t *testing.T) {
	d := NewDeviceInfo("abc-123", "cellar-pi")
	if len(d.Identifiers) != 1 || d.Identifiers[0] != "abc-123" {
		t.Errorf("Identifiers = %v, want [abc-123]", d.Identifiers)
	}
	if d.Name != "cellar-pi" {
		t.Errorf("Name = %q, want cellar-pi", d.Name)
	}
}
