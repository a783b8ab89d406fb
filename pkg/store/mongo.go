package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

const (
	defaultMongoDatabase   = "omniguide"
	defaultMongoCollection = "sessions"
	defaultMongoTimeout    = 5 * time.Second
)

// MongoOptions configures the Mongo session store.
type MongoOptions struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore keeps one document per session, keyed by _id.
type MongoStore struct {
	client  *mongo.Client
	coll    collection
	timeout time.Duration
}

// collection is the subset of *mongo.Collection the store needs.
type collection interface {
	findOne(ctx context.Context, filter any) singleResult
	replaceOne(ctx context.Context, filter, doc any) error
	deleteOne(ctx context.Context, filter any) error
	deleteMany(ctx context.Context, filter any) (int64, error)
	ensureIndexes(ctx context.Context) error
}

type singleResult interface {
	Decode(v any) error
}

type sessionDocument struct {
	ID                  string         `bson:"_id"`
	Mode                string         `bson:"mode"`
	History             []turnDocument `bson:"history"`
	LastDetectedObjects []string       `bson:"last_detected_objects,omitempty"`
	UpdatedAt           time.Time      `bson:"updated_at"`
}

type turnDocument struct {
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
	Mode      string    `bson:"mode"`
	Image     string    `bson:"image,omitempty"`
}

// OpenMongo connects to uri and returns a store over database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s, err := NewMongoStore(ctx, MongoOptions{Client: client, Database: database})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewMongoStore returns a store backed by opts.Client.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	database := opts.Database
	if database == "" {
		database = defaultMongoDatabase
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultMongoCollection
	}
	coll := mongoCollection{coll: opts.Client.Database(database).Collection(collName)}
	return newMongoStoreWithCollection(ctx, opts.Client, coll, opts.Timeout)
}

func newMongoStoreWithCollection(ctx context.Context, client *mongo.Client, coll collection, timeout time.Duration) (*MongoStore, error) {
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}
	s := &MongoStore{client: client, coll: coll, timeout: timeout}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := coll.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongo ensure indexes: %w", err)
	}
	return s, nil
}

// Get loads a session.
func (s *MongoStore) Get(ctx context.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	if err := s.coll.findOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo find session: %w", err)
	}
	return doc.toSession(), nil
}

// Put replaces (or inserts) the session document.
func (s *MongoStore) Put(ctx context.Context, sess *types.Session) error {
	if err := validate(sess); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.coll.replaceOne(ctx, bson.M{"_id": sess.ID}, fromSession(sess)); err != nil {
		return fmt.Errorf("mongo replace session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.coll.deleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongo delete session: %w", err)
	}
	return nil
}

// Prune deletes sessions not updated since olderThan.
func (s *MongoStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.coll.deleteMany(ctx, bson.M{"updated_at": bson.M{"$lt": olderThan.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("mongo prune sessions: %w", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

func fromSession(s *types.Session) sessionDocument {
	doc := sessionDocument{
		ID:                  s.ID,
		Mode:                string(s.Mode),
		History:             make([]turnDocument, 0, len(s.History)),
		LastDetectedObjects: append([]string(nil), s.LastDetectedObjects...),
		UpdatedAt:           s.UpdatedAt.UTC(),
	}
	for _, t := range s.History {
		doc.History = append(doc.History, turnDocument{
			Role:      string(t.Role),
			Content:   t.Content,
			Timestamp: t.Timestamp.UTC(),
			Mode:      string(t.Mode),
			Image:     t.Image,
		})
	}
	return doc
}

func (doc sessionDocument) toSession() *types.Session {
	s := &types.Session{
		ID:        doc.ID,
		Mode:      types.Mode(doc.Mode),
		History:   make([]types.Turn, 0, len(doc.History)),
		UpdatedAt: doc.UpdatedAt,
	}
	if len(doc.LastDetectedObjects) > 0 {
		s.LastDetectedObjects = append([]string(nil), doc.LastDetectedObjects...)
	}
	for _, t := range doc.History {
		s.History = append(s.History, types.Turn{
			Role:      types.Role(t.Role),
			Content:   t.Content,
			Timestamp: t.Timestamp,
			Mode:      types.Mode(t.Mode),
			Image:     t.Image,
		})
	}
	return s
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) findOne(ctx context.Context, filter any) singleResult {
	return c.coll.FindOne(ctx, filter)
}

func (c mongoCollection) replaceOne(ctx context.Context, filter, doc any) error {
	_, err := c.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (c mongoCollection) deleteOne(ctx context.Context, filter any) error {
	_, err := c.coll.DeleteOne(ctx, filter)
	return err
}

func (c mongoCollection) deleteMany(ctx context.Context, filter any) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c mongoCollection) ensureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: 1}},
	})
	return err
}
