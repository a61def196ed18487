// Package mongo is the remote budget adapter: one MongoDB document per
// signed-in identity, with live updates through change streams.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/persistence"
)

const DefaultCollection = "budgets"

// userDoc is the stored shape. The budget record sits under budgetData, the
// field name the first web client used for the per-user document.
type userDoc struct {
	ID         string      `bson:"_id"`
	BudgetData core.Budget `bson:"budgetData"`
	Revision   int64       `bson:"revision"`
	Origin     string      `bson:"origin"`
	UpdatedAt  time.Time   `bson:"updatedAt"`
}

// rawUserDoc defers decoding of budgetData so its shape can be checked.
type rawUserDoc struct {
	ID         string        `bson:"_id"`
	BudgetData bson.RawValue `bson:"budgetData"`
	Revision   int64         `bson:"revision"`
	Origin     string        `bson:"origin"`
	UpdatedAt  time.Time     `bson:"updatedAt"`
}

type changeEvent struct {
	OperationType string      `bson:"operationType"`
	FullDocument  *rawUserDoc `bson:"fullDocument"`
}

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *log.Logger

	wg sync.WaitGroup
}

var (
	_ persistence.Adapter = (*Store)(nil)
	_ persistence.Lister  = (*Store)(nil)
	_ persistence.Pinger  = (*Store)(nil)
)

// Connect dials uri and pings the server before returning.
func Connect(ctx context.Context, uri, dbName, collName string, logger *log.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	if collName == "" {
		collName = DefaultCollection
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{
		client:     client,
		collection: client.Database(dbName).Collection(collName),
		logger:     logger.WithComponent(log.ComponentPersistence).With(log.FieldBackend, "mongo"),
	}, nil
}

// Close waits for subscription pumps and disconnects.
func (s *Store) Close(ctx context.Context) error {
	s.wg.Wait()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Load(ctx context.Context, id core.Identity) (persistence.Document, error) {
	if id.IsAnonymous() {
		return persistence.Document{}, persistence.ErrNotFound
	}
	var raw rawUserDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": id.UID}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Document{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Document{}, fmt.Errorf("find budget: %w", err)
	}
	return decodeDoc(raw)
}

func (s *Store) Save(ctx context.Context, id core.Identity, doc persistence.Document) error {
	if id.IsAnonymous() {
		return nil
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": id.UID},
		encodeDoc(id.UID, doc, updatedAt),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace budget: %w", err)
	}
	return nil
}

// ListIdentities returns every stored uid in sorted order.
func (s *Store) ListIdentities(ctx context.Context) ([]string, error) {
	cur, err := s.collection.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode budget id: %w", err)
		}
		keys = append(keys, row.ID)
	}
	return keys, cur.Err()
}

// Subscribe watches the identity's document. The returned disposer cancels
// the stream and waits for the pump goroutine to exit.
func (s *Store) Subscribe(ctx context.Context, id core.Identity, onChange func(persistence.Document)) (persistence.Unsubscribe, error) {
	if id.IsAnonymous() {
		return persistence.NopUnsubscribe, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "documentKey._id", Value: id.UID},
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "replace", "update"}}}},
		}}},
	}
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := s.collection.Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch budget: %w", err)
	}

	logger := s.logger.WithIdentity(id.UID)
	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer stream.Close(context.Background())

		for stream.Next(streamCtx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				logger.Error("Failed to decode change event", log.FieldError, err)
				continue
			}
			if ev.FullDocument == nil {
				continue
			}
			doc, err := decodeDoc(*ev.FullDocument)
			if err != nil {
				logger.Warn("Ignoring invalid budget from change stream", log.FieldError, err)
				continue
			}
			onChange(doc)
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Change stream stopped", log.FieldError, err)
		}
	}()

	return persistence.OnceUnsubscribe(func() {
		cancel()
		<-done
	}), nil
}

func encodeDoc(uid string, doc persistence.Document, updatedAt time.Time) userDoc {
	b := doc.Budget.Clone()
	if b.Categories == nil {
		b.Categories = []core.Category{}
	}
	return userDoc{
		ID:         uid,
		BudgetData: b,
		Revision:   int64(doc.Revision),
		Origin:     doc.Origin,
		UpdatedAt:  updatedAt.UTC(),
	}
}

// decodeDoc rejects anything that is not a complete budget record, including
// the empty array older clients wrote on first sign-in. budgetData goes
// through the same strict decoder as the JSON adapters, so a category missing
// allocation or expenses fails here too.
func decodeDoc(raw rawUserDoc) (persistence.Document, error) {
	if raw.BudgetData.Type != bson.TypeEmbeddedDocument {
		return persistence.Document{}, fmt.Errorf("%w: budgetData is %s", core.ErrInvalidRecord, raw.BudgetData.Type)
	}
	data, err := bson.MarshalExtJSON(raw.BudgetData.Document(), false, false)
	if err != nil {
		return persistence.Document{}, fmt.Errorf("%w: %v", core.ErrInvalidRecord, err)
	}
	b, err := core.DecodeBudget(data)
	if err != nil {
		return persistence.Document{}, err
	}
	return persistence.Document{
		Budget:    b,
		Revision:  uint64(raw.Revision),
		Origin:    raw.Origin,
		UpdatedAt: raw.UpdatedAt,
	}, nil
}
