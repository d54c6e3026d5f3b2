//go:build edge

package ble

import (
	"fmt"
	"log/slog"

	"garage-opener/internal/domain"
)

// Open returns the transport named by backend.
func Open(backend string, sim SimConfig, gatt GATTConfig, logger *slog.Logger) (domain.Transport, error) {
	switch backend {
	case "tinygo":
		t, err := NewGATT(gatt, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("ble transport enabled (tinygo bluetooth)", "name", gatt.Name)
		return t, nil
	case "sim", "":
		logger.Info("ble transport enabled (simulator)")
		return NewSim(sim, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport backend %q", backend)
	}
}
