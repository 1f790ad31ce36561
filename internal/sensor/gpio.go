package sensor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// RelayReader reports the relay position. Implementations must never
// block a tick: a failed read degrades to RelayUnknown.
type RelayReader interface {
	State() RelayState
}

// GPIORelay reads a binary input through the sysfs GPIO value file
// (/sys/class/gpio/gpioN/value). HIGH maps to ON, LOW to OFF.
type GPIORelay struct {
	path   string
	logger *slog.Logger
}

// NewGPIORelay creates a reader for pin under gpioDir (normally
// /sys/class/gpio). The pin is expected to be exported already.
func NewGPIORelay(gpioDir string, pin int, logger *slog.Logger) *GPIORelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &GPIORelay{
		path:   filepath.Join(gpioDir, fmt.Sprintf("gpio%d", pin), "value"),
		logger: logger,
	}
}

// State reads the pin. Any failure is logged at debug level and
// reported as RelayUnknown so the temperature reading still goes out.
func (g *GPIORelay) State() RelayState {
	raw, err := os.ReadFile(g.path)
	if err != nil {
		g.logger.Debug("relay read failed", "path", g.path, "error", err)
		return RelayUnknown
	}

	switch strings.TrimSpace(string(raw)) {
	case "0":
		return RelayOff
	case "1":
		return RelayOn
	default:
		g.logger.Debug("relay value unrecognized", "path", g.path, "value", strings.TrimSpace(string(raw)))
		return RelayUnknown
	}
}
