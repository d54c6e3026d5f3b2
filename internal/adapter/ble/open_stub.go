//go:build !edge

package ble

import (
	"fmt"
	"log/slog"

	"garage-opener/internal/domain"
)

// Open returns the transport named by backend. The hardware transport needs
// the edge build tag.
func Open(backend string, sim SimConfig, _ GATTConfig, logger *slog.Logger) (domain.Transport, error) {
	switch backend {
	case "sim", "":
		logger.Info("ble transport enabled (simulator)")
		return NewSim(sim, logger), nil
	case "tinygo":
		return nil, fmt.Errorf("transport backend %q requires an edge build", backend)
	default:
		return nil, fmt.Errorf("unsupported transport backend %q", backend)
	}
}
