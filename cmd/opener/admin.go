package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"garage-opener/internal/adapter/store"
	"garage-opener/internal/domain"
	"garage-opener/internal/infra/logger"
	"garage-opener/internal/usecase/registry"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// openRegistry opens the bond store behind a registry. The restarter only
// reports: administrative commands never run next to a live opener.
func openRegistry(opts cliOptions, out io.Writer) (*registry.Registry, func() error, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	bonds, err := store.NewSQLiteBondStore(cfg.Storage.BondsPath, cfg.Registry.MaxBonds)
	if err != nil {
		return nil, nil, fmt.Errorf("bond store: %w", err)
	}
	restarter := domain.RestartFunc(func(reason string) {
		fmt.Fprintf(out, "%s: restart the opener to apply\n", reason)
	})
	reg := registry.New(bonds, restarter, registry.Config{
		MaxBonds:     cfg.Registry.MaxBonds,
		Buffers:      1,
		LeaseTimeout: time.Second,
	}, logger.Discard())
	return reg, bonds.Close, nil
}

func runBonds(opts cliOptions) error {
	reg, closeStore, err := openRegistry(opts, os.Stdout)
	if err != nil {
		return err
	}
	defer closeStore()

	devices, err := reg.List(context.Background())
	if err != nil {
		return err
	}
	return printBonds(os.Stdout, devices)
}

func printBonds(w io.Writer, devices []domain.BondedDevice) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No bonded devices found.")
		return err
	}
	t := newTable("#", "ADDRESS", "BONDED AT")
	for i, dev := range devices {
		t.Row(strconv.Itoa(i+1), dev.Identity.String(), dev.BondedAt.Local().Format(time.DateTime))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func runReset(opts cliOptions) error {
	if !opts.Yes {
		return fmt.Errorf("refusing to erase bonded devices without --yes")
	}
	reg, closeStore, err := openRegistry(opts, os.Stdout)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	n, err := reg.Count(ctx)
	if err != nil {
		return err
	}
	if err := reg.EraseAll(ctx, "factory reset from command line"); err != nil {
		return err
	}
	fmt.Printf("Removed %d bonded device(s).\n", n)
	return nil
}

func runEvents(opts cliOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	events, err := store.NewSQLiteEventStore(cfg.Storage.EventsPath)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	defer events.Close()

	records, err := events.Recent(context.Background(), opts.Limit)
	if err != nil {
		return err
	}
	return printEvents(os.Stdout, records)
}

func printEvents(w io.Writer, records []domain.AccessRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No access events recorded.")
		return err
	}
	t := newTable("TIME", "EVENT", "LINK", "PEER", "OUTCOME", "DETAIL")
	for _, rec := range records {
		outcome := "granted"
		if !rec.Granted {
			outcome = "denied"
			if rec.Code != domain.CodeNone {
				outcome = string(rec.Code)
			}
		}
		link := ""
		if rec.Link != 0 {
			link = strconv.Itoa(int(rec.Link))
		}
		t.Row(rec.Timestamp.Local().Format(time.DateTime), string(rec.Type), link,
			rec.RemoteHash, outcome, rec.Detail)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
