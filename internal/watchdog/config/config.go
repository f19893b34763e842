package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/atlashq/atlas/pkg/env"
)

type Config struct {
	devMode bool

	// JSON files holding per-job policy and persisted restart counters
	processConfigPath string
	stateFilePath     string

	// Daemon mode check interval
	checkInterval time.Duration

	// Grace period between SIGTERM and SIGKILL
	killGracePeriod time.Duration
}

var cfg Config

func Init() error {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}
	cfg = Config{
		devMode:           env.GetEnvBool("DEV_MODE", false),
		processConfigPath: env.GetEnvString("WATCHDOG_CONFIG_PATH", "data/watchdog/process_config.json"),
		stateFilePath:     env.GetEnvString("WATCHDOG_STATE_PATH", "data/watchdog/watchdog_state.json"),
		checkInterval:     env.GetEnvDuration("WATCHDOG_CHECK_INTERVAL", 5*time.Minute),
		killGracePeriod:   env.GetEnvDuration("WATCHDOG_KILL_GRACE_PERIOD", 10*time.Second),
	}
	return nil
}

func IsDevMode() bool                    { return cfg.devMode }
func GetProcessConfigPath() string       { return cfg.processConfigPath }
func GetStateFilePath() string           { return cfg.stateFilePath }
func GetCheckInterval() time.Duration    { return cfg.checkInterval }
func GetKillGracePeriod() time.Duration  { return cfg.killGracePeriod }
