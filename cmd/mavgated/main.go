package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"mavgate/pkg/config"
	"mavgate/pkg/gateway"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "mavgated",
		Usage:   "MAVLink to JSON-over-WebSocket telemetry gateway",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				Usage:   "path to TOML config file",
				EnvVars: []string{"MAVGATE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			monitorCommand(),
			versionCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the telemetry gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "connection",
				Usage:   "MAVLink connection descriptor (udpin:, udpout:, tcp:, or a serial device)",
				EnvVars: []string{"MAVLINK_CONNECTION"},
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "WebSocket bind host",
				EnvVars: []string{"WEBSOCKET_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "WebSocket bind port",
				EnvVars: []string{"WEBSOCKET_PORT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "trace, debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "mock",
				Usage: "replace the MAVLink link with a synthetic telemetry generator",
			},
			&cli.IntFlag{
				Name:  "mock-rate",
				Value: 50,
				Usage: "attitude rate of the synthetic generator, Hz",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, loaded, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return err
	}
	if v := c.String("connection"); v != "" {
		cfg.Connection = v
	}
	if v := c.String("host"); v != "" {
		cfg.WebSocket.Host = v
	}
	if v := c.Int("port"); v != 0 {
		cfg.WebSocket.Port = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel())
	if loaded {
		log.Info().Str("path", cfg.ConfigPath()).Msg("loaded config file")
	}
	log.Info().
		Str("version", version).
		Str("connection", cfg.Connection).
		Str("listen", cfg.WebSocketAddr()).
		Msg("starting gateway")

	opts := []gateway.Option{gateway.WithLogger(log)}
	if c.Bool("mock") {
		log.Info().Int("rate_hz", c.Int("mock-rate")).Msg("using synthetic telemetry source")
		opts = append(opts, gateway.WithSource(newMockSource(c.Int("mock-rate"))))
	}

	gw, err := gateway.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gw.Run(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	log.Info().Msg("gateway stopped")
	return nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version and exit",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, "mavgated", version)
			return nil
		},
	}
}

func newLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
