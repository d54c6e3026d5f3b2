//go:build !edge

package gpio

import (
	"fmt"
	"log/slog"
)

// Open returns the backend named by the configuration. Hardware backends
// need the edge build tag.
func Open(name string, logger *slog.Logger) (Backend, error) {
	switch name {
	case "mock", "":
		logger.Info("gpio enabled (mock backend)")
		return NewMock(), nil
	case "periph":
		return nil, fmt.Errorf("gpio backend %q requires an edge build", name)
	default:
		return nil, fmt.Errorf("unsupported gpio backend %q", name)
	}
}
