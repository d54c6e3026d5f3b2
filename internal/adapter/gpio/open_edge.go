//go:build edge

package gpio

import (
	"fmt"
	"log/slog"
)

// Open returns the backend named by the configuration. The periph backend
// falls back to the mock when no hardware is detected.
func Open(name string, logger *slog.Logger) (Backend, error) {
	switch name {
	case "periph":
		b, err := NewPeriph()
		if err != nil {
			logger.Warn("periph.io GPIO init failed, using mock backend", "error", err)
			return NewMock(), nil
		}
		logger.Info("gpio enabled (periph.io hardware backend)")
		return b, nil
	case "mock", "":
		logger.Info("gpio enabled (mock backend)")
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported gpio backend %q", name)
	}
}
