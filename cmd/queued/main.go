package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/atlashq/atlas/internal/queue"
	"github.com/atlashq/atlas/internal/queue/api"
	"github.com/atlashq/atlas/internal/queue/config"
	"github.com/atlashq/atlas/internal/queue/repository"
	"github.com/atlashq/atlas/pkg/database"
	"github.com/atlashq/atlas/pkg/logging"
	"github.com/atlashq/atlas/pkg/metrics"
	"github.com/atlashq/atlas/pkg/retry"
)

func main() {
	if err := config.Init(); err != nil {
		panic(fmt.Sprintf("Failed to initialize config: %v", err))
	}

	logConfig := logging.LoggerConfig{
		ProcessName:   logging.QueueProcess,
		IsDevelopment: config.IsDevMode(),
	}

	logger, err := logging.NewZapLogger(logConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	logger.Info("Starting queue service...",
		"mode", config.IsDevMode(),
		"port", config.GetQueueAPIPort(),
		"db", config.GetDatabasePath(),
	)

	conn, err := openDatabase(logger)
	if err != nil {
		logger.Fatalf("Failed to open task store: %v", err)
	}
	defer conn.Close()

	if err := conn.InitSchema(); err != nil {
		logger.Fatalf("Failed to initialize task store schema: %v", err)
	}

	manager := queue.NewManager(repository.NewTaskRepository(conn), logger, queue.Options{
		MaxQueueDepth:           config.GetMaxQueueDepth(),
		MaxFailedTasks:          config.GetMaxFailedTasks(),
		BreakerFailureThreshold: config.GetBreakerFailureThreshold(),
		BreakerCooldown:         config.GetBreakerCooldown(),
	})

	collector := metrics.NewCollector("queued")
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(manager, logger)
	server.Router().GET("/metrics", func(c *gin.Context) {
		collector.Handler().ServeHTTP(c.Writer, c.Request)
	})

	scheduler := startScheduler(manager, logger)
	defer scheduler.Stop()

	serverErrors := make(chan error, 1)
	go func() {
		if err := server.Start(config.GetQueueAPIPort()); err != nil {
			serverErrors <- err
		}
	}()

	logger.Infof("Queue service initialized, listening on port %s", config.GetQueueAPIPort())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error received", "error", err)
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	performGracefulShutdown(server, scheduler, logger)
}

// openDatabase retries the SQLite open so a slow volume mount at boot
// does not take the service down.
func openDatabase(logger logging.Logger) (*database.Connection, error) {
	dbConfig := database.NewDefaultConfig(config.GetDatabasePath())
	return retry.Retry(context.Background(), func() (*database.Connection, error) {
		return database.NewConnection(dbConfig)
	}, retry.DefaultRetryConfig(), logger)
}

// startScheduler runs the maintenance jobs: nightly cleanup of old
// terminal tasks and periodic reclaim of expired worker leases.
func startScheduler(manager *queue.Manager, logger logging.Logger) *cron.Cron {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(config.GetCleanupSchedule(), func() {
		removed, err := manager.CleanupOldTasks(config.GetCleanupDaysOld())
		if err != nil {
			logger.Errorf("Scheduled cleanup failed: %v", err)
			return
		}
		logger.Infof("Scheduled cleanup removed %d old tasks", removed)
	})
	if err != nil {
		logger.Fatalf("Failed to schedule cleanup job: %v", err)
	}

	reclaimSpec := fmt.Sprintf("@every %s", config.GetReclaimInterval())
	_, err = scheduler.AddFunc(reclaimSpec, func() {
		reclaimed, err := manager.ReclaimStaleAssignments(config.GetLeaseTimeout())
		if err != nil {
			logger.Errorf("Lease reclaim failed: %v", err)
			return
		}
		if reclaimed > 0 {
			logger.Warnf("Requeued %d tasks with expired leases", reclaimed)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule lease reclaim job: %v", err)
	}

	scheduler.Start()
	return scheduler
}

func performGracefulShutdown(server *api.Server, scheduler *cron.Cron, logger logging.Logger) {
	logger.Info("Initiating graceful shutdown...")

	scheduler.Stop()

	if err := server.Stop(); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Queue service shutdown complete")
}
