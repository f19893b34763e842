package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/atlashq/atlas/internal/watchdog"
	"github.com/atlashq/atlas/internal/watchdog/config"
	"github.com/atlashq/atlas/pkg/logging"
)

func main() {
	app := &cli.App{
		Name:  "watchdog",
		Usage: "Monitor long-running batch processes and kill/restart stuck ones",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "check-once",
				Usage: "run a single monitoring cycle, print a JSON summary, exit",
			},
			&cli.BoolFlag{
				Name:  "daemon",
				Usage: "run forever, sleeping between cycles",
			},
			&cli.IntFlag{
				Name:  "interval",
				Usage: "minutes between cycles in daemon mode (0 uses WATCHDOG_CHECK_INTERVAL)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	logger, err := logging.NewZapLogger(logging.LoggerConfig{
		ProcessName:   logging.WatchdogProcess,
		IsDevelopment: config.IsDevMode(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	wd, err := buildWatchdog(logger)
	if err != nil {
		return err
	}

	switch {
	case c.Bool("check-once"):
		return checkOnce(wd)
	case c.Bool("daemon"):
		return runDaemon(wd, daemonInterval(c), logger)
	default:
		return cli.ShowAppHelp(c)
	}
}

func buildWatchdog(logger logging.Logger) (*watchdog.Watchdog, error) {
	configs, err := config.LoadProcessConfigs(config.GetProcessConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load process configs: %w", err)
	}
	logger.Infof("Loaded %d job policies from %s", len(configs), config.GetProcessConfigPath())

	state := config.NewStateStore(config.GetStateFilePath())
	return watchdog.New(configs, watchdog.NewGopsutilInspector(), state, config.GetKillGracePeriod(), logger)
}

func daemonInterval(c *cli.Context) time.Duration {
	if minutes := c.Int("interval"); minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return config.GetCheckInterval()
}

func checkOnce(wd *watchdog.Watchdog) error {
	summary, err := wd.RunCheckCycle()
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runDaemon(wd *watchdog.Watchdog, interval time.Duration, logger logging.Logger) error {
	logger.Infof("Watchdog daemon started, checking every %s", interval)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First cycle runs immediately rather than waiting a full interval.
	if _, err := wd.RunCheckCycle(); err != nil {
		logger.Errorf("Check cycle failed: %v", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := wd.RunCheckCycle(); err != nil {
				logger.Errorf("Check cycle failed: %v", err)
			}
		case sig := <-shutdown:
			logger.Info("Received shutdown signal", "signal", sig.String())
			return nil
		}
	}
}
