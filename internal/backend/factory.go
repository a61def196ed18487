package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ayushsunny/Budgease/internal/amqp"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/persistence/memory"
	"github.com/Ayushsunny/Budgease/internal/persistence/mongo"
	"github.com/Ayushsunny/Budgease/internal/persistence/sqlite"
)

// SeedFile is read from the memory backend's data directory when present.
const SeedFile = "seed_budget.json"

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MongoBackend:
		return f.createMongoBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	opts := []sqlite.Option{sqlite.WithLogger(f.logger)}

	// AMQP is optional; without it the repository works single-process.
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, "", f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change bus", log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client", log.FieldExchange, config.AMQPExchange)
			opts = append(opts, sqlite.WithChangeBus(amqp.NewBus(amqpClient)))
		}
	}

	repo, err := sqlite.NewRepository(config.SQLiteDBPath, opts...)
	if err != nil {
		if amqpClient != nil {
			amqpClient.Close()
		}
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Adapter: repo,
		Cleanup: func() error {
			var errs []error
			if amqpClient != nil {
				errs = append(errs, amqpClient.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := mongo.Connect(connectCtx, config.MongoURI, config.MongoDB, config.MongoCollection, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB backend: %w", err)
	}

	f.logger.Info("Initialized MongoDB backend", "database", config.MongoDB, "collection", config.MongoCollection)

	return &BackendResult{
		Adapter: st,
		Cleanup: func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return st.Close(closeCtx)
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	st := memory.New()
	seed := filepath.Join(dataDir, SeedFile)
	if _, err := os.Stat(seed); err == nil {
		if err := st.LoadSeed(seed); err != nil {
			return nil, fmt.Errorf("failed to load memory seed: %w", err)
		}
		f.logger.Info("Loaded memory seed", "path", seed)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Adapter: st,
		Cleanup: st.Close,
	}, nil
}
