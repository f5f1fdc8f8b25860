package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/use-agent/trendscraper/models"
)

// Sink durably stores finished trend results.
type Sink interface {
	Save(ctx context.Context, result models.TrendResult, meta models.RequestMeta) (models.Record, error)
}

// MongoConfig locates the trends collection.
type MongoConfig struct {
	URI        string
	Database   string // default: "twitter_trends"
	Collection string // default: "trends"
	Timeout    time.Duration
}

// documentWriter is one open connection to the collection.
type documentWriter interface {
	InsertOne(ctx context.Context, doc any) error
	Close(ctx context.Context) error
}

type connectFunc func(ctx context.Context, cfg MongoConfig) (documentWriter, error)

// MongoSink opens a connection, inserts one document and closes the
// connection on every Save. There is no pooling across calls.
type MongoSink struct {
	cfg     MongoConfig
	connect connectFunc
	now     func() time.Time
}

// NewMongoSink creates a MongoSink.
func NewMongoSink(cfg MongoConfig) *MongoSink {
	if cfg.Database == "" {
		cfg.Database = "twitter_trends"
	}
	if cfg.Collection == "" {
		cfg.Collection = "trends"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MongoSink{cfg: cfg, connect: connectMongo, now: time.Now}
}

// Save stamps meta.AccessTimestamp if unset, persists the merged record and
// returns it. Failures are *models.PersistenceError.
func (s *MongoSink) Save(ctx context.Context, result models.TrendResult, meta models.RequestMeta) (models.Record, error) {
	if meta.AccessTimestamp.IsZero() {
		meta.AccessTimestamp = s.now()
	}
	rec := models.NewRecord(result, meta)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	w, err := s.connect(ctx, s.cfg)
	if err != nil {
		return models.Record{}, &models.PersistenceError{Op: "connect", Err: err}
	}
	defer func() {
		// Disconnect with a fresh context so a spent request deadline
		// does not leave the connection open.
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := w.Close(closeCtx); err != nil {
			slog.Warn("mongo disconnect failed", "error", err)
		}
	}()

	if err := w.InsertOne(ctx, rec); err != nil {
		return models.Record{}, &models.PersistenceError{Op: "insert", Err: err}
	}

	slog.Info("trend record saved",
		"id", rec.ID,
		"database", s.cfg.Database,
		"collection", s.cfg.Collection,
	)
	return rec, nil
}

type mongoWriter struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func connectMongo(ctx context.Context, cfg MongoConfig) (documentWriter, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return &mongoWriter{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (w *mongoWriter) InsertOne(ctx context.Context, doc any) error {
	_, err := w.coll.InsertOne(ctx, doc)
	return err
}

func (w *mongoWriter) Close(ctx context.Context) error {
	return w.client.Disconnect(ctx)
}
