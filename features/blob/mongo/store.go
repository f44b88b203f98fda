// Package mongo implements blob.Store on a MongoDB collection. Artifacts are
// small rendered documents (SWOT decks, question memos), so they are stored
// inline rather than chunked.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/korefocus/diligence/runtime/chat/blob"
)

const (
	defaultCollection = "chat_blobs"
	defaultOpTimeout  = 5 * time.Second
	blobClientName    = "blob-mongo"
)

type (
	// Options configures the Mongo blob store.
	Options struct {
		Client     *mongodriver.Client
		Database   string
		Collection string
		// BaseURL prefixes served object URLs, typically "/files".
		BaseURL string
		Timeout time.Duration
	}

	// Store implements blob.Store and health.Pinger on MongoDB.
	Store struct {
		mongo   *mongodriver.Client
		blobs   collection
		baseURL string
		timeout time.Duration
	}
)

var _ blob.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// New returns a Store backed by MongoDB.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	coll := opts.Collection
	if coll == "" {
		coll = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	wrapper := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(coll)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "blob_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := wrapper.Indexes().CreateOne(ctx, index); err != nil {
		return nil, err
	}
	return &Store{mongo: opts.Client, blobs: wrapper, baseURL: opts.BaseURL, timeout: timeout}, nil
}

// Name implements health.Pinger.
func (s *Store) Name() string {
	return blobClientName
}

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// Put implements blob.Store. Objects are immutable: writing an existing ID is
// a no-op thanks to the $setOnInsert upsert.
func (s *Store) Put(ctx context.Context, obj *blob.Object) (string, error) {
	if obj == nil {
		return "", errors.New("object is required")
	}
	id := obj.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := obj.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"blob_id": id}
	update := bson.M{
		"$setOnInsert": bson.M{
			"blob_id":      id,
			"name":         obj.Name,
			"content_type": obj.ContentType,
			"data":         obj.Data,
			"created_at":   createdAt.UTC(),
		},
	}
	if _, err := s.blobs.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return "", err
	}
	return s.baseURL + "/" + id, nil
}

// Get implements blob.Store.
func (s *Store) Get(ctx context.Context, id string) (*blob.Object, error) {
	if id == "" {
		return nil, errors.New("blob id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc blobDocument
	if err := s.blobs.FindOne(ctx, bson.M{"blob_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, blob.ErrNotFound
		}
		return nil, err
	}
	return &blob.Object{
		ID:          doc.BlobID,
		Name:        doc.Name,
		ContentType: doc.ContentType,
		Data:        doc.Data,
		CreatedAt:   doc.CreatedAt.UTC(),
	}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type blobDocument struct {
	BlobID      string    `bson:"blob_id"`
	Name        string    `bson:"name"`
	ContentType string    `bson:"content_type"`
	Data        []byte    `bson:"data"`
	CreatedAt   time.Time `bson:"created_at"`
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
