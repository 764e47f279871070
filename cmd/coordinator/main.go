package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sinkr-io/sinkr/internal/config"
	"github.com/sinkr-io/sinkr/internal/coordinator"
	"github.com/sinkr-io/sinkr/internal/httpapi"
	"github.com/sinkr-io/sinkr/internal/loadbus"
	"github.com/sinkr-io/sinkr/internal/loadstore"
	"github.com/sinkr-io/sinkr/internal/logging"
	"github.com/sinkr-io/sinkr/internal/metrics"
	"github.com/sinkr-io/sinkr/internal/pkg/ticket"
	"github.com/sinkr-io/sinkr/internal/store/postgres"
)

func main() {
	cfg := config.MustLoadCoordinator()
	logger := logging.New(cfg.Logger.Host, cfg.Logger.Port, cfg.Service.Name, cfg.Platform.Env)

	st, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		logger.Error(fmt.Sprintf("coordinator: open postgres: %v", err))
		return
	}
	defer st.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error(fmt.Sprintf("coordinator: parse redis url: %v", err))
		return
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	ls := loadstore.New(redisClient)

	m, err := metrics.New(cfg.Metrics.Host, cfg.Metrics.Port, cfg.Service.Name, cfg.Platform.Env)
	if err != nil {
		logger.Error(fmt.Sprintf("coordinator: connect metrics: %v", err))
		return
	}

	coord := coordinator.New(st, ls, m, cfg.MaxConnectionsPerObject)

	loadConsumer, err := loadbus.NewConsumer(cfg.Kafka.Host, cfg.Kafka.Port, cfg.Kafka.LoadTopic, m.Raw())
	if err != nil {
		logger.Error(fmt.Sprintf("coordinator: new load consumer: %v", err))
		return
	}

	tickets := ticket.New(cfg.TicketSigningKey)
	api := httpapi.New(coord, cfg.CoordinationSecret, tickets, logger)

	publicServer := &http.Server{Addr: ":" + cfg.Service.Port, Handler: api.PublicRouter()}
	internalServer := &http.Server{Addr: ":" + cfg.InternalPort, Handler: api.InternalRouter()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loadConsumer.Run(gctx, func(ctx context.Context, load loadbus.ShardLoad) error {
			return ls.Report(ctx, loadstore.ShardLoad{
				ShardID:         load.ShardID,
				AdvertiseAddr:   load.AdvertiseAddr,
				ConnectionCount: load.ConnectionCount,
			})
		})
		return nil
	})

	g.Go(func() error {
		if err := publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("public http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := internalServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("internal http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("coordinator: server error: %v", err))
	}
}

