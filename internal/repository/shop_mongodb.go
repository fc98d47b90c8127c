package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keyshop-bot/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// shopDocumentID is the _id of the single shop document.
	shopDocumentID = "shop"

	// maxMongoRetries bounds how often a mutation is retried after losing a
	// version race with another process.
	maxMongoRetries = 5
)

// ErrConcurrentUpdate is returned when a mutation keeps losing version races.
var ErrConcurrentUpdate = errors.New("shop document was modified concurrently")

// shopRecord is the stored form of the shop document.
type shopRecord struct {
	ID        string    `bson:"_id"`
	Version   int64     `bson:"version"`
	Shop      *document `bson:"shop"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBShopRepository keeps the shop in one MongoDB document. Mutations
// replace it only if its version is unchanged, so each one is atomic without
// multi-document transactions.
type MongoDBShopRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBShopRepository connects to MongoDB and creates the shop document
// if it does not exist.
func NewMongoDBShopRepository(uri, database, collection string) (*MongoDBShopRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	r := &MongoDBShopRepository{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}

	_, err = r.collection.InsertOne(ctx, shopRecord{
		ID:        shopDocumentID,
		Shop:      newDocument(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create shop document: %w", err)
	}

	return r, nil
}

func (r *MongoDBShopRepository) load(ctx context.Context) (*shopRecord, error) {
	var rec shopRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": shopDocumentID}).Decode(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to load shop document: %w", err)
	}
	if rec.Shop == nil {
		rec.Shop = newDocument()
	}
	if err := rec.Shop.validate(); err != nil {
		return nil, err
	}
	rec.Shop.normalize()
	return &rec, nil
}

// mutate applies fn to the current document and writes it back if no other
// writer got there first, retrying on a lost race.
func (r *MongoDBShopRepository) mutate(ctx context.Context, fn func(d *document) error) error {
	for attempt := 0; attempt < maxMongoRetries; attempt++ {
		rec, err := r.load(ctx)
		if err != nil {
			return err
		}
		if err := fn(rec.Shop); err != nil {
			return err
		}

		res, err := r.collection.ReplaceOne(ctx,
			bson.M{"_id": shopDocumentID, "version": rec.Version},
			shopRecord{
				ID:        shopDocumentID,
				Version:   rec.Version + 1,
				Shop:      rec.Shop,
				UpdatedAt: time.Now().UTC(),
			},
		)
		if err != nil {
			return fmt.Errorf("failed to save shop document: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return ErrConcurrentUpdate
}

func (r *MongoDBShopRepository) read(ctx context.Context) (*document, error) {
	rec, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Shop, nil
}

// Counts returns the number of available keys per tier.
func (r *MongoDBShopRepository) Counts(ctx context.Context) (model.Stock, error) {
	d, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	return d.counts(), nil
}

// Keys returns the tier's key list.
func (r *MongoDBShopRepository) Keys(ctx context.Context, tier model.Tier) ([]string, error) {
	if !tier.Valid() {
		return nil, model.ErrInvalidTier
	}
	d, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	return d.Keys[tier], nil
}

// AddKey appends key to the tier.
func (r *MongoDBShopRepository) AddKey(ctx context.Context, tier model.Tier, key string) (int, error) {
	if !tier.Valid() {
		return 0, model.ErrInvalidTier
	}
	var count int
	err := r.mutate(ctx, func(d *document) error {
		count = d.addKey(tier, key)
		return nil
	})
	return count, err
}

// CreateOrder stores a pending order after re-checking availability.
func (r *MongoDBShopRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	return r.mutate(ctx, func(d *document) error {
		return d.createOrder(order)
	})
}

// FulfillOrder consumes keys for the first pending order matching note and amount.
func (r *MongoDBShopRepository) FulfillOrder(ctx context.Context, note string, amount int64) (*model.Order, error) {
	var paid *model.Order
	err := r.mutate(ctx, func(d *document) error {
		var err error
		paid, err = d.fulfill(note, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// ExpireOrder moves a pending order to expired.
func (r *MongoDBShopRepository) ExpireOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var expired *model.Order
	err := r.mutate(ctx, func(d *document) error {
		var err error
		expired, err = d.expire(orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// MarkDelivered flags a paid order as delivered.
func (r *MongoDBShopRepository) MarkDelivered(ctx context.Context, orderID string) error {
	return r.mutate(ctx, func(d *document) error {
		return d.markDelivered(orderID)
	})
}

// Order returns a single order.
func (r *MongoDBShopRepository) Order(ctx context.Context, orderID string) (*model.Order, error) {
	d, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	return d.order(orderID)
}

// ListOrders returns the orders passing filter.
func (r *MongoDBShopRepository) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, error) {
	d, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	return d.listOrders(filter), nil
}

// Panel returns the stored panel reference.
func (r *MongoDBShopRepository) Panel(ctx context.Context) (model.PanelRef, error) {
	d, err := r.read(ctx)
	if err != nil {
		return model.PanelRef{}, err
	}
	return d.panel(), nil
}

// SetPanel overwrites the panel reference.
func (r *MongoDBShopRepository) SetPanel(ctx context.Context, ref model.PanelRef) error {
	return r.mutate(ctx, func(d *document) error {
		d.setPanel(ref)
		return nil
	})
}

// Ping checks the MongoDB connection.
func (r *MongoDBShopRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (r *MongoDBShopRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Ensure MongoDBShopRepository implements ShopRepository
var _ ShopRepository = (*MongoDBShopRepository)(nil)
