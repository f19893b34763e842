package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/atlashq/atlas/pkg/env"
)

type Config struct {
	devMode bool

	// Queue admin API port
	queueAPIPort string

	// SQLite database file backing the task store
	databasePath string

	// Queue depth and health thresholds
	maxQueueDepth  int
	maxFailedTasks int

	// Circuit breaker policy
	breakerFailureThreshold int
	breakerCooldown         time.Duration

	// Lease reclaim for assigned tasks whose worker died
	leaseTimeout time.Duration

	// Maintenance settings
	cleanupDaysOld  int
	cleanupSchedule string
	reclaimInterval time.Duration
}

var cfg Config

func Init() error {
	if err := godotenv.Load(); err != nil {
		// A missing .env file is fine in production; env vars take over.
		fmt.Println("No .env file found, using environment variables")
	}
	cfg = Config{
		devMode:                 env.GetEnvBool("DEV_MODE", false),
		queueAPIPort:            env.GetEnvString("QUEUE_API_PORT", "9010"),
		databasePath:            env.GetEnvString("QUEUE_DB_PATH", "data/atlas.db"),
		maxQueueDepth:           env.GetEnvInt("QUEUE_MAX_DEPTH", 1000),
		maxFailedTasks:          env.GetEnvInt("QUEUE_MAX_FAILED_TASKS", 50),
		breakerFailureThreshold: env.GetEnvInt("BREAKER_FAILURE_THRESHOLD", 10),
		breakerCooldown:         env.GetEnvDuration("BREAKER_COOLDOWN", 5*time.Minute),
		leaseTimeout:            env.GetEnvDuration("QUEUE_LEASE_TIMEOUT", 30*time.Minute),
		cleanupDaysOld:          env.GetEnvInt("QUEUE_CLEANUP_DAYS", 30),
		cleanupSchedule:         env.GetEnvString("QUEUE_CLEANUP_SCHEDULE", "0 3 * * *"),
		reclaimInterval:         env.GetEnvDuration("QUEUE_RECLAIM_INTERVAL", 5*time.Minute),
	}
	if !env.IsValidPort(cfg.queueAPIPort) {
		return fmt.Errorf("invalid queue API port: %s", cfg.queueAPIPort)
	}
	if cfg.maxQueueDepth <= 0 {
		return fmt.Errorf("queue max depth must be positive, got %d", cfg.maxQueueDepth)
	}
	return nil
}

func IsDevMode() bool                        { return cfg.devMode }
func GetQueueAPIPort() string                { return cfg.queueAPIPort }
func GetDatabasePath() string                { return cfg.databasePath }
func GetMaxQueueDepth() int                  { return cfg.maxQueueDepth }
func GetMaxFailedTasks() int                 { return cfg.maxFailedTasks }
func GetBreakerFailureThreshold() int        { return cfg.breakerFailureThreshold }
func GetBreakerCooldown() time.Duration      { return cfg.breakerCooldown }
func GetLeaseTimeout() time.Duration         { return cfg.leaseTimeout }
func GetCleanupDaysOld() int                 { return cfg.cleanupDaysOld }
func GetCleanupSchedule() string             { return cfg.cleanupSchedule }
func GetReclaimInterval() time.Duration      { return cfg.reclaimInterval }
