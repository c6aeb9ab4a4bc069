package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"MiniShop/internal/catalog"
	"MiniShop/internal/config"
	"MiniShop/internal/events"
	"MiniShop/internal/session"
	"MiniShop/internal/shop"
	"MiniShop/pkg/kit"
)

const service = "shop"

type closer func(context.Context) error

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if cfg.DotEnvLoaded {
		log.Info("loaded .env")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("shop stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var closers []closer
	defer func() {
		// only reached on a startup failure; RunHTTPServer runs them otherwise
		for _, c := range closers {
			_ = c(context.Background())
		}
	}()

	products, closeProducts, err := openProducts(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeProducts)

	sessions, err := openSessions(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, func(context.Context) error { return sessions.Close() })

	tokens, err := newTokenMaker(cfg, log)
	if err != nil {
		return err
	}

	publisher, closeEvents, err := openEvents(cfg, reg, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeEvents)

	h, err := shop.NewHandler(
		shop.Deps{
			Products:     products,
			Sessions:     sessions,
			Tokens:       tokens,
			Events:       publisher,
			SessionTTL:   cfg.SessionTTL,
			CookieSecure: cfg.CookieSecure,
			StaticDir:    cfg.StaticDir,
		},
		shop.HTTPDeps{
			Log:            log,
			Service:        service,
			Registry:       reg,
			MetricsEnabled: true,
			MetricsToken:   cfg.MetricsToken,
		},
	)
	if err != nil {
		return err
	}

	hooks := make([]func(context.Context) error, 0, len(closers))
	for _, c := range closers {
		hooks = append(hooks, c)
	}
	closers = nil

	return kit.RunHTTPServer(":"+cfg.Port, h, log, hooks...)
}

func openProducts(ctx context.Context, cfg config.Config, log *zap.Logger) (catalog.Store, closer, error) {
	switch cfg.ProductStore {
	case config.StorePostgres:
		db, err := catalog.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := catalog.NewPostgresStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("product store", zap.String("driver", "postgres"))
		return s, func(context.Context) error { return db.Close() }, nil

	case config.StoreMongo:
		s, err := catalog.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		log.Info("product store", zap.String("driver", "mongo"), zap.String("database", cfg.MongoDatabase))
		return s, s.Close, nil

	default:
		log.Info("product store", zap.String("driver", "memory"))
		return catalog.NewMemStore(), func(context.Context) error { return nil }, nil
	}
}

func openSessions(ctx context.Context, cfg config.Config, log *zap.Logger) (session.Store, error) {
	if cfg.SessionStore != config.StoreRedis {
		log.Info("session store", zap.String("driver", "memory"))
		return session.NewMemoryStore(cfg.SessionTTL), nil
	}

	s := session.NewRedisStore(session.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cfg.SessionTTL)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("session store", zap.String("driver", "redis"), zap.String("addr", cfg.RedisAddr))
	return s, nil
}

func newTokenMaker(cfg config.Config, log *zap.Logger) (*session.TokenMaker, error) {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		log.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	return session.NewTokenMaker(secret)
}

func openEvents(cfg config.Config, reg prometheus.Registerer, log *zap.Logger) (events.Publisher, closer, error) {
	if cfg.RabbitMQURL == "" {
		log.Info("catalog events disabled")
		return events.Nop{}, func(context.Context) error { return nil }, nil
	}

	pool, err := events.NewChannelPool(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.ChannelPoolSize)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	log.Info("catalog events enabled", zap.String("queue", cfg.RabbitMQQueue))
	pub := events.NewInstrumented(events.NewAMQPPublisher(pool, cfg.RabbitMQQueue, log), reg)
	return pub, func(context.Context) error {
		pool.Close()
		return nil
	}, nil
}
