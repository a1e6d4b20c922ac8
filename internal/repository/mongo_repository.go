package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrCartNotFound = errors.New("cart not found")

const cartTTL = 90 * 24 * time.Hour

type cartDocument struct {
	SessionID       string                     `bson:"session_id"`
	Items           []domain.CartLineItem      `bson:"items"`
	Discount        *domain.DiscountDescriptor `bson:"discount"`
	LastValidatedAt *time.Time                 `bson:"last_validated_at"`
	CreatedAt       time.Time                  `bson:"created_at"`
	UpdatedAt       time.Time                  `bson:"updated_at"`
}

type MongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, sessionID string) (*domain.CartState, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	state := domain.CartState{
		Items:           doc.Items,
		Discount:        doc.Discount,
		LastValidatedAt: doc.LastValidatedAt,
	}
	state.Normalize()
	return &state, nil
}

// UpsertCart replaces the whole document; concurrent writers resolve as last write wins.
func (m *MongoRepository) UpsertCart(ctx context.Context, sessionID string, state domain.CartState) error {
	now := m.now()

	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		"$set": bson.M{
			"items":             state.Items,
			"discount":          state.Discount,
			"last_validated_at": state.LastValidatedAt,
			"updated_at":        now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, sessionID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
