package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// devicePattern matches DS18B20 slave files under the 1-Wire sysfs
// root. The 28- prefix is the DS18B20 family code.
const devicePattern = "28-*/w1_slave"

// readyMarker terminates the first payload line when the temperature
// conversion has completed and the CRC checked out.
const readyMarker = "YES"

// LiveSource reads the DS18B20 probe through the kernel's w1 sysfs
// interface and the relay position through a RelayReader. It is the
// LIVE half of the acquisition strategy; see SimulatedSource for the
// fallback.
type LiveSource struct {
	deviceDir string
	relay     RelayReader
	logger    *slog.Logger
}

// NewLiveSource creates a live source rooted at deviceDir (normally
// /sys/bus/w1/devices). relay may be nil, in which case every sample
// reports RelayUnknown.
func NewLiveSource(deviceDir string, relay RelayReader, logger *slog.Logger) *LiveSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveSource{
		deviceDir: deviceDir,
		relay:     relay,
		logger:    logger,
	}
}

// Probe reports whether a DS18B20 slave file is currently present.
// Used at startup and by the mode arbiter when deciding whether to
// promote back to live acquisition.
func (s *LiveSource) Probe() bool {
	_, err := s.devicePath()
	return err == nil
}

// devicePath returns the w1_slave file for the attached probe. With
// several probes attached the lexically first is used, so the choice
// is stable across ticks.
func (s *LiveSource) devicePath() (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.deviceDir, devicePattern))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRead, err)
	}
	if len(matches) == 0 {
		return "", ErrNoDevice
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Acquire reads one live sample. Temperature failures are returned as
// transient errors; a relay read failure only degrades the relay state
// to RelayUnknown and never fails the acquisition.
func (s *LiveSource) Acquire(ctx context.Context) (Sample, error) {
	path, err := s.devicePath()
	if err != nil {
		return Sample{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}

	temp, err := ParsePayload(raw)
	if err != nil {
		return Sample{}, err
	}

	relay := RelayUnknown
	if s.relay != nil {
		relay = s.relay.State()
	}

	return Sample{
		Temperature: &temp,
		Relay:       relay,
		Mode:        ModeLive,
		ObservedAt:  time.Now().UTC(),
	}, nil
}

// ParsePayload extracts the temperature from a raw w1_slave payload.
// The payload has two lines:
//
//	4b 46 7f ff 0c 10 1c : crc=1c YES
//	4b 46 7f ff 0c 10 1c t=21562
//
// The first line must end with the ready marker; the second must carry
// a t= token holding integer millidegrees. The returned temperature is
// millidegrees / 1000, so the integer precision is retained exactly.
func ParsePayload(raw []byte) (float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty payload", ErrRead)
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: expected 2 lines, got %d", ErrRead, len(lines))
	}

	if !strings.HasSuffix(strings.TrimSpace(lines[0]), readyMarker) {
		return 0, ErrNotReady
	}

	idx := strings.Index(lines[1], "t=")
	if idx < 0 {
		return 0, fmt.Errorf("%w: no t= token", ErrMalformedPayload)
	}

	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][idx+2:]))
	if err != nil {
		return 0, fmt.Errorf("%w: bad t= value: %v", ErrMalformedPayload, err)
	}

	return float64(milli) / 1000.0, nil
}
