// bleuart is a command-line client for Bluetooth LE peripherals that
// speak the Nordic UART service: scan for devices, send one-shot
// messages or commands, or open an interactive session.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"bleuart/internal/central"
	"bleuart/internal/config"
	"bleuart/internal/uart"
)

var version = "0.3.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "bleuart",
		Usage:   "talk to Bluetooth LE serial (Nordic UART) peripherals",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file `PATH`",
			},
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Bluetooth adapter `NAME` (substring match, e.g. hci0)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "scan for UART service peripherals",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "time",
						Usage: "scan duration in `SECONDS`",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print results as JSON",
					},
				},
				Action: scanAction,
			},
			{
				Name:      "send",
				Usage:     "send one line of text to a peripheral",
				ArgsUsage: "ADDRESS TEXT",
				Action:    sendAction,
			},
			{
				Name:      "repl",
				Usage:     "open an interactive session with a peripheral",
				ArgsUsage: "ADDRESS",
				Action:    replAction,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bleuart: %v\n", err)
		os.Exit(1)
	}
}

// env bundles everything an action needs after setup.
type env struct {
	cfg     config.Config
	client  *uart.Client
	central central.Central
	log     *slog.Logger
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if a := c.String("adapter"); a != "" {
		cfg.Adapter = a
	}
	if l := c.String("log-level"); l != "" {
		cfg.LogLevel = l
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sys, err := central.NewSystem()
	if err != nil {
		return nil, err
	}
	client := uart.New(sys, uart.Options{
		Logger:         log,
		PollInterval:   cfg.PollInterval(),
		FindTimeout:    cfg.FindTimeout(),
		ConnectRetries: cfg.ConnectRetries,
	})
	return &env{cfg: cfg, client: client, central: sys, log: log}, nil
}

func scanAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.central.Close()

	d := e.cfg.ScanDuration()
	if secs := c.Int("time"); secs > 0 {
		d = time.Duration(secs) * time.Second
	}

	if !c.Bool("json") {
		go scanProgress(c.Context, d)
	}
	results, err := e.client.Scan(c.Context, e.cfg.Adapter, d)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	for _, r := range results {
		rssi := "n/a"
		if r.RSSI != central.RSSIUnknown {
			rssi = fmt.Sprintf("%d dBm", r.RSSI)
		}
		fmt.Printf("%s  %s  %s\n", cyan(r.Address), yellow(rssi), r.Name)
	}
	return nil
}

func sendAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: bleuart send ADDRESS TEXT")
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.central.Close()
	return e.client.Send(c.Context, e.cfg.Adapter, c.Args().Get(0), c.Args().Get(1))
}

func replAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: bleuart repl ADDRESS")
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.central.Close()

	address := c.Args().Get(0)
	fmt.Printf("%s %s\n", c.App.Name, c.App.Version)
	fmt.Printf("Connecting to... %s\n", green(address))

	end, err := e.client.REPL(c.Context, e.cfg.Adapter, address)
	if err != nil {
		return err
	}
	if end.Reason == uart.EndStreamClosed {
		e.log.Info("peripheral disconnected")
	}
	return nil
}

// scanProgress renders a bar that fills over the scan window.
func scanProgress(ctx context.Context, d time.Duration) {
	const step = 50 * time.Millisecond
	steps := int(d / step)
	if steps <= 0 {
		return
	}
	bar := progressbar.NewOptions(steps,
		progressbar.OptionSetDescription("Scanning..."),
		progressbar.OptionClearOnFinish(),
	)
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
	_ = bar.Finish()
}
