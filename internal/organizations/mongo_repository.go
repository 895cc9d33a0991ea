package organizations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/pkg/mongodb"
)

// CollectionOrganizations is the MongoDB collection holding organizations.
const CollectionOrganizations = "ngos"

// MongoRepository handles organization persistence in MongoDB.
type MongoRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoRepository creates a MongoDB-backed organizations repository and ensures its indexes.
func NewMongoRepository(ctx context.Context, client *mongodb.Client) (*MongoRepository, error) {
	if err := client.EnsureIndex(ctx, CollectionOrganizations, bson.D{{Key: "api_key", Value: 1}}, true); err != nil {
		return nil, err
	}
	return &MongoRepository{coll: client.DB.Collection(CollectionOrganizations), timeout: client.OpTimeout}, nil
}

// Create inserts org, assigning its id when empty.
func (r *MongoRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, org)
	return err
}

// GetByID returns an organization by ID.
func (r *MongoRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// GetByAPIKey returns the organization holding apiKey.
func (r *MongoRepository) GetByAPIKey(ctx context.Context, apiKey string) (*models.Organization, error) {
	return r.findOne(ctx, bson.D{{Key: "api_key", Value: apiKey}})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*models.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var org models.Organization
	if err := r.coll.FindOne(ctx, filter).Decode(&org); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// UpdateTemplates replaces the organization's template configuration.
func (r *MongoRepository) UpdateTemplates(ctx context.Context, id string, templates models.Templates) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "templates", Value: templates},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
