package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/IBM/sarama"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/djlord-it/easy-relay/internal/circuitbreaker"
	"github.com/djlord-it/easy-relay/internal/config"
	"github.com/djlord-it/easy-relay/internal/destination"
	"github.com/djlord-it/easy-relay/internal/dispatcher"
	"github.com/djlord-it/easy-relay/internal/domain"
	natsintake "github.com/djlord-it/easy-relay/internal/intake/nats"
	"github.com/djlord-it/easy-relay/internal/ledger"
	pgledger "github.com/djlord-it/easy-relay/internal/ledger/postgres"
	redisledger "github.com/djlord-it/easy-relay/internal/ledger/redis"
)

// ledgerBackend bundles the views of the configured ledger that serve needs.
type ledgerBackend struct {
	store     ledger.Store
	reader    ledger.Reader
	unsettled ledger.UnsettledLister
	pruner    ledger.Pruner
	db        *sql.DB // nil unless postgres
}

func (b *ledgerBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// openLedger connects the configured backend. rdb may be nil unless the
// backend or the mirror is redis.
func openLedger(ctx context.Context, cfg config.Config, rdb *redis.Client, logger *zap.Logger) (*ledgerBackend, error) {
	switch cfg.LedgerBackend {
	case "postgres":
		db, err := pgledger.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, pgledger.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("db pool configured",
			zap.String("driver", cfg.DatabaseDriver),
			zap.Int("max_open", cfg.DBMaxOpenConns),
			zap.Int("max_idle", cfg.DBMaxIdleConns),
			zap.Duration("max_lifetime", cfg.DBConnMaxLifetime),
			zap.Duration("max_idle_time", cfg.DBConnMaxIdleTime),
		)

		if err := pgledger.Migrate(db, logger); err != nil {
			db.Close()
			return nil, err
		}

		store := pgledger.New(db)
		b := &ledgerBackend{store: store, reader: store, unsettled: store, pruner: store, db: db}
		if cfg.LedgerMirror == "redis" {
			b.store = ledger.Fanout{store, redisledger.New(rdb, cfg.LedgerRetention)}
			logger.Info("ledger mirrored to redis", zap.String("redis", cfg.RedisAddr))
		}
		return b, nil

	case "redis":
		store := redisledger.New(rdb, cfg.LedgerRetention)
		return &ledgerBackend{store: store, reader: store, unsettled: store, pruner: store}, nil

	default:
		store := ledger.NewMemoryStore()
		return &ledgerBackend{store: store, reader: store, unsettled: store, pruner: store}, nil
	}
}

// brokers holds the messaging clients shared by destinations, the intake and
// the dead letter publisher. Each is only connected when something uses it.
type brokers struct {
	nats     *natsintake.Client
	kafka    sarama.SyncProducer
	amqpConn *amqp.Connection
	amqpCh   *amqp.Channel
}

func connectBrokers(ctx context.Context, cfg config.Config, dests []domain.DestinationConfig) (*brokers, error) {
	b := &brokers{}

	natsSubjects := []string{cfg.NATSDLQSubject}
	var needKafka, needAMQP bool
	for _, d := range dests {
		switch d.Type {
		case domain.DestinationTypeNATS:
			natsSubjects = appendUnique(natsSubjects, d.Topic)
		case domain.DestinationTypeKafka:
			needKafka = true
		case domain.DestinationTypeAMQP:
			needAMQP = true
		}
	}

	if cfg.NATSURL != "" {
		client, err := natsintake.Connect(ctx, cfg.NATSURL, natsSubjects)
		if err != nil {
			return nil, err
		}
		b.nats = client
	}

	if needKafka {
		producer, err := destination.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("kafka producer: %w", err), b.Close())
		}
		b.kafka = producer
	}

	if needAMQP {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("amqp dial: %w", err), b.Close())
		}
		b.amqpConn = conn
		ch, err := conn.Channel()
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("amqp channel: %w", err), b.Close())
		}
		b.amqpCh = ch
	}

	return b, nil
}

func (b *brokers) deps(breakers *circuitbreaker.Breakers) destination.Deps {
	deps := destination.Deps{
		HTTPClient: &http.Client{},
		Breakers:   breakers,
	}
	if b.kafka != nil {
		deps.Kafka = b.kafka
	}
	if b.nats != nil {
		deps.JetStream = b.nats.JetStream()
	}
	if b.amqpCh != nil {
		deps.AMQP = b.amqpCh
	}
	return deps
}

// Close releases every connected client.
func (b *brokers) Close() error {
	var err error
	if b.kafka != nil {
		err = multierr.Append(err, b.kafka.Close())
	}
	if b.amqpCh != nil {
		err = multierr.Append(err, b.amqpCh.Close())
	}
	if b.amqpConn != nil {
		err = multierr.Append(err, b.amqpConn.Close())
	}
	if b.nats != nil {
		err = multierr.Append(err, b.nats.Close())
	}
	return err
}

// buildRoutes turns the ordered destination list into dispatcher routes.
func buildRoutes(dests []domain.DestinationConfig, deps destination.Deps) ([]dispatcher.Route, error) {
	routes := make([]dispatcher.Route, 0, len(dests))
	for _, d := range dests {
		dest, err := destination.Build(d, deps)
		if err != nil {
			return nil, err
		}
		routes = append(routes, dispatcher.Route{Name: d.Name, Category: d.Category, Destination: dest})
	}
	return routes, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// logDeadLetter is the dead letter sink used when NATS is not configured.
type logDeadLetter struct {
	logger *zap.Logger
}

func (l logDeadLetter) DeadLetter(_ context.Context, env domain.Envelope, reason string) error {
	l.logger.Error("request dead-lettered",
		zap.String("request_id", env.Request.ID.String()),
		zap.String("payload_code", env.Request.PayloadCode),
		zap.String("payload_unique_code", env.Request.PayloadUniqueCode),
		zap.Int("attempts", env.Attempt),
		zap.String("reason", reason),
	)
	return nil
}
