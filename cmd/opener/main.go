package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/config"
	"garage-opener/internal/infra/logger"
	"garage-opener/internal/infra/tracer"
)

// cliOptions are the flags shared by every command.
type cliOptions struct {
	ConfigPath string
	LogLevel   string
	Limit      int
	Yes        bool
}

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	if cmd == "help" {
		showUsage()
		return
	}

	opts, err := parseFlags(cmd, args)
	if errors.Is(err, pflag.ErrHelp) {
		showUsage()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(2)
	}

	switch cmd {
	case "run":
		err = runOpener(opts)
	case "bonds":
		err = runBonds(opts)
	case "reset":
		err = runReset(opts)
	case "events":
		err = runEvents(opts)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'opener --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func parseFlags(cmd string, args []string) (cliOptions, error) {
	var opts cliOptions
	fs := pflag.NewFlagSet("opener "+cmd, pflag.ContinueOnError)
	fs.StringVarP(&opts.ConfigPath, "config", "c", configPathFromEnv(), "path to the YAML config file")
	fs.StringVar(&opts.LogLevel, "log-level", "", "override logger.level (debug, info, warn, error)")
	fs.IntVarP(&opts.Limit, "limit", "n", 20, "number of access records to show (events)")
	fs.BoolVarP(&opts.Yes, "yes", "y", false, "confirm the factory reset (reset)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return opts, nil
}

func configPathFromEnv() string {
	if p := os.Getenv("OPENER_CONFIG"); p != "" {
		return p
	}
	return "opener.yaml"
}

func showUsage() {
	fmt.Println(`opener - BLE garage door opener with bonded-device access control

USAGE:
    opener [COMMAND] [FLAGS]

COMMANDS:
    run         Run the opener (default)
    bonds       List bonded devices
    reset       Erase every bonded device (needs --yes)
    events      Show the most recent access decisions

FLAGS:
    -h, --help          Show this help message
    -c, --config PATH   Config file path (default: ./opener.yaml)
    --log-level LEVEL   Override the configured log level
    -n, --limit N       Records shown by 'events' (default: 20)
    -y, --yes           Confirm 'reset'

CONFIGURATION:
    Config file: ./opener.yaml (optional, defaults match the reference board)
    Environment: OPENER_* variables override the config file

SIMULATOR:
    With transport.backend=sim the opener reads stack events from stdin:
    connect <link> <addr>, secure <link>, passkey <link> [n],
    auth <link> ok|fail [reason], write <link> <payload>, read <link>,
    drop <link>, press, release.`)
}

func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	if opts.LogLevel != "" {
		cfg.Logger.Level = opts.LogLevel
	}
	return cfg, nil
}

// runOpener boots the opener and boots it again every time a factory reset
// asks for a restart, until a signal arrives.
func runOpener(opts cliOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var input <-chan string
	if cfg.Transport.Backend == "sim" {
		input = stdinLines()
	}

	for boot := 1; ; boot++ {
		log.Info("opener starting", "boot", boot, "device", cfg.Device.Name,
			"transport", cfg.Transport.Backend, "gpio", cfg.GPIO.Backend)

		err := bootOnce(ctx, cfg, input, log)
		switch {
		case errors.Is(err, domain.ErrRestartRequested):
			log.Warn("restart requested, rebooting")
			continue
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			log.Info("opener stopped")
			return nil
		default:
			return err
		}
	}
}
