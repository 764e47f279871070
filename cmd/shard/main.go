package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sinkr-io/sinkr/internal/config"
	"github.com/sinkr-io/sinkr/internal/loadbus"
	"github.com/sinkr-io/sinkr/internal/logging"
	"github.com/sinkr-io/sinkr/internal/metrics"
	"github.com/sinkr-io/sinkr/internal/shardrpc"
	"github.com/sinkr-io/sinkr/internal/shardserver"
	"github.com/sinkr-io/sinkr/internal/store/postgres"
)

// loadPublishInterval paces the Kafka side of load accounting separately from the
// shardrpc heartbeat (internal/shardrpc's loadInterval) — this one is the slower,
// decoupled signal §12.1 deliberately keeps off the dispatch-critical path.
const loadPublishInterval = 10 * time.Second

func main() {
	cfg := config.MustLoadShard()
	logger := logging.New(cfg.Logger.Host, cfg.Logger.Port, cfg.Service.Name, cfg.Platform.Env)

	st, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		logger.Error(fmt.Sprintf("shard: open postgres: %v", err))
		return
	}
	defer st.Close()

	rpcClient, err := shardrpc.Dial(context.Background(), coordinatorLinkURL(cfg.CoordinatorURL), cfg.CoordinationSecret, cfg.ShardID, cfg.AdvertiseAddr)
	if err != nil {
		logger.Error(fmt.Sprintf("shard: dial coordinator: %v", err))
		return
	}
	defer rpcClient.Close()

	m, err := metrics.New(cfg.Metrics.Host, cfg.Metrics.Port, cfg.Service.Name, cfg.Platform.Env)
	if err != nil {
		logger.Error(fmt.Sprintf("shard: connect metrics: %v", err))
		return
	}

	srv := shardserver.New(st, rpcClient, m, logger)

	loadProducer, err := loadbus.NewProducer(cfg.Kafka.Host, cfg.Kafka.Port, cfg.Kafka.LoadTopic)
	if err != nil {
		logger.Error(fmt.Sprintf("shard: new load producer: %v", err))
		return
	}
	defer loadProducer.Close()

	httpServer := &http.Server{Addr: ":" + cfg.Service.Port, Handler: srv.Router()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := rpcClient.Run(gctx, srv, srv.Registry().Count); err != nil {
			return fmt.Errorf("internal link: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(loadPublishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				_ = loadProducer.Publish(gctx, loadbus.ShardLoad{
					ShardID:         cfg.ShardID,
					AdvertiseAddr:   cfg.AdvertiseAddr,
					ConnectionCount: srv.Registry().Count(),
				})
			}
		}
	})

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("sink http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("shard: server error: %v", err))
	}
}

// coordinatorLinkURL appends the internal registration path to the configured
// coordinator base URL, so ADVERTISE_ADDR-style config stays a plain host:port/URL
// without every deployment needing to know the exact internal route.
func coordinatorLinkURL(base string) string {
	return strings.TrimRight(base, "/") + "/shards"
}
