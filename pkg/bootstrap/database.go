package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"offermart/internal/config"
	"offermart/internal/logger"
)

// DatabaseConnector opens the three backing stores: Postgres for offer
// records and validation rules, Redis for the replay-guard cache, and
// MongoDB for the decision audit trail. Each Init method pings before
// returning, so a misconfigured store fails at startup rather than on
// the first batch.
type DatabaseConnector struct {
	cfg    config.DatabaseConfig
	logger logger.Logger
}

func NewDatabaseConnector(cfg config.DatabaseConfig, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{cfg: cfg, logger: log}
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.cfg.Redis.Host, dc.cfg.Redis.Port),
		Password: dc.cfg.Redis.Password,
		DB:       dc.cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	dc.logger.Info("Replay cache (Redis) connected")
	return client, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	if dc.cfg.Postgres.Host == "" {
		return nil, nil // not configured; callers that need it reject the nil
	}

	db, err := sql.Open("postgres", dc.postgresDSN())
	if err != nil {
		return nil, fmt.Errorf("postgres open failed: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	dc.logger.Info("Offer store (PostgreSQL) connected")
	return db, nil
}

func (dc *DatabaseConnector) postgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.cfg.Postgres.User,
		dc.cfg.Postgres.Password,
		dc.cfg.Postgres.Host,
		dc.cfg.Postgres.Port,
		dc.cfg.Postgres.DBName,
		dc.cfg.Postgres.SSLMode,
	)
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.cfg.MongoDB.URI == "" {
		return nil, nil // not configured; callers that need it reject the nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dc.cfg.MongoDB.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect failed: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	dc.logger.Info("Audit store (MongoDB) connected")
	return client, nil
}

// ShutdownDatabases closes whichever handles the app actually opened.
// Nil handles are skipped, so both binaries share this path.
func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, redisClient *redis.Client, pg *sql.DB, mongoClient *mongo.Client) []error {
	var errs []error

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if pg != nil {
		if err := pg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if mongoClient != nil {
		if err := mongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
