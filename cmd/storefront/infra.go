package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/jeffersonhds/storefront/internal/account"
	"github.com/jeffersonhds/storefront/internal/catalog"
	"github.com/jeffersonhds/storefront/internal/config"
	"github.com/jeffersonhds/storefront/internal/orders"
	"github.com/jeffersonhds/storefront/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

// infra holds the clients opened at startup, closed in reverse on shutdown.
type infra struct {
	store     store.Store
	orders    orders.OrderSource
	users     account.Users
	firestore *firestore.Client
	verifier  *auth.Client
	closers   []func() error
}

func (in *infra) Close(log logrus.FieldLogger) {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			log.WithError(err).Warn("error closing resource")
		}
	}
}

func openInfra(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*infra, error) {
	in := &infra{}

	s, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	in.store = s
	in.closers = append(in.closers, s.Close)

	var clientOpts []option.ClientOption
	if cred := strings.TrimSpace(cfg.FirebaseCredentials); cred != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cred))
	}

	if cfg.OrderSource == config.OrdersFirestore {
		fsOpts := append([]option.ClientOption{
			option.WithGRPCDialOption(grpc.WithStatsHandler(otelgrpc.NewClientHandler())),
		}, clientOpts...)
		fs, err := firestore.NewClient(ctx, cfg.FirebaseProjectID, fsOpts...)
		if err != nil {
			in.Close(log)
			return nil, fmt.Errorf("firestore.NewClient failed (project=%s): %w", cfg.FirebaseProjectID, err)
		}
		in.firestore = fs
		in.closers = append(in.closers, fs.Close)
		log.WithField("project", cfg.FirebaseProjectID).Info("firestore connected")
	}

	switch cfg.OrderSource {
	case config.OrdersFirestore:
		in.orders = orders.NewFirestoreSource(in.firestore, log)
		in.users = account.NewFirestoreUsers(in.firestore)
	case config.OrdersPostgres:
		cred := &orders.Credentials{
			Host:              cfg.PostgresHost,
			Port:              cfg.PostgresPort,
			User:              cfg.PostgresUser,
			Password:          cfg.PostgresPassword,
			DBName:            cfg.PostgresDB,
			MigrationsDirPath: cfg.PostgresMigrations,
		}
		pg, err := orders.NewPostgresSource(cred, log)
		if err != nil {
			in.Close(log)
			return nil, err
		}
		in.closers = append(in.closers, pg.Close)
		if err := pg.RunMigrations(cred); err != nil {
			in.Close(log)
			return nil, err
		}
		in.orders = pg
		in.users = account.NewMemoryUsers()
	default:
		in.orders = orders.NewMemorySource()
		in.users = account.NewMemoryUsers()
	}

	if cfg.VerifyTokens {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, clientOpts...)
		if err != nil {
			in.Close(log)
			return nil, fmt.Errorf("firebase app init failed: %w", err)
		}
		in.verifier, err = app.Auth(ctx)
		if err != nil {
			in.Close(log)
			return nil, fmt.Errorf("firebase auth init failed: %w", err)
		}
	}
	return in, nil
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(cfg.SQLiteMigrations); err != nil {
			s.Close()
			return nil, err
		}
		log.WithField("path", cfg.SQLitePath).Info("sqlite store ready")
		return s, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		log.WithField("addr", cfg.RedisAddr).Info("redis store ready")
		return store.NewRedisStore(client, store.WithTableTTL(catalog.TableName, cfg.CatalogTTL)), nil
	case config.StoreMongo:
		db, err := store.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		m := store.NewMongoStore(db)
		if err := m.CreateIndexes(ctx); err != nil {
			m.Close()
			return nil, err
		}
		log.WithField("database", cfg.MongoDatabase).Info("mongo store ready")
		return m, nil
	default:
		return store.NewMemoryStore(), nil
	}
}
