package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dandantas/grabber/internal/model"
)

// GridFSConfig describes a MongoDB GridFS destination.
type GridFSConfig struct {
	URI      string
	Database string
	Bucket   string
	Timeout  time.Duration
}

// GridFS stores artifacts in a GridFS bucket. The client connects on first
// use and is reused by later uploads.
type GridFS struct {
	cfg GridFSConfig

	mu     sync.Mutex
	client *mongo.Client
	bucket *gridfs.Bucket
}

// NewGridFS creates a GridFS destination
func NewGridFS(cfg GridFSConfig) *GridFS {
	if cfg.Database == "" {
		cfg.Database = "grabber"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "spectrograms"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GridFS{cfg: cfg}
}

func (g *GridFS) Name() string { return "gridfs" }

func connectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetRetryWrites(true).
		SetCompressors([]string{"snappy"})

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

func (g *GridFS) open(ctx context.Context) (*gridfs.Bucket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.bucket != nil {
		return g.bucket, nil
	}

	slog.Info("Connecting to MongoDB", "database", g.cfg.Database, "bucket", g.cfg.Bucket)
	client, err := connectMongo(ctx, g.cfg.URI, g.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	bucket, err := gridfs.NewBucket(client.Database(g.cfg.Database), options.GridFSBucket().SetName(g.cfg.Bucket))
	if err != nil {
		client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to open bucket %s: %w", g.cfg.Bucket, err)
	}

	g.client, g.bucket = client, bucket
	return bucket, nil
}

func (g *GridFS) Upload(ctx context.Context, path string, run model.RunContext) error {
	bucket, err := g.open(ctx)
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(g.cfg.Timeout)
	}
	metadata := bson.D{
		{Key: "run_id", Value: run.ID},
		{Key: "correlation_id", Value: run.CorrelationID},
		{Key: "recording_start", Value: run.RecordingStart.UTC()},
		{Key: "content_type", Value: "image/png"},
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := bucket.SetWriteDeadline(deadline); err != nil {
		return err
	}
	id, err := bucket.UploadFromStream(filepath.Base(path), src, options.GridFSUpload().SetMetadata(metadata))
	if err != nil {
		return fmt.Errorf("gridfs upload failed: %w", err)
	}

	slog.Debug("Stored artifact in GridFS", "run_id", run.ID, "file_id", id.Hex())
	return nil
}

// Close disconnects the client if it was opened.
func (g *GridFS) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		return nil
	}
	slog.Info("Disconnecting from MongoDB")

	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := g.client.Disconnect(disconnectCtx)
	g.client, g.bucket = nil, nil
	if err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}
