// Command kbasectl inspects and operates the job queues of a kbase
// deployment. It reads the same configuration as the server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/queue"
	"github.com/phrazzld/kbase-api/internal/service/auth"
)

func main() {
	if err := newRootCmd(loadEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadEnv connects to the queue store described by the configuration.
func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(config.ServerConfig{LogLevel: "warn"})
	if err != nil {
		return nil, err
	}

	rdb, err := kv.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &env{
		queue: queue.New(rdb, queue.PoliciesFromConfig(cfg.Queue), log,
			queue.WithLease(time.Duration(cfg.Queue.LeaseMS)*time.Millisecond),
			queue.WithStoreRetry(cfg.Queue.StoreRetryAttempts, time.Duration(cfg.Queue.StoreRetryDelayMS)*time.Millisecond)),
		jwt:   jwtService,
		close: rdb.Close,
	}, nil
}
