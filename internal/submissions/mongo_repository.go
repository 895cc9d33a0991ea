package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/pkg/mongodb"
)

// MongoDB collections, one per submission kind.
const (
	CollectionDonors     = "donors"
	CollectionRecipients = "recipients"
)

// MongoRepository records submissions in MongoDB.
type MongoRepository struct {
	donors     *mongo.Collection
	recipients *mongo.Collection
	timeout    time.Duration
}

// NewMongoRepository creates a MongoDB-backed submissions repository and ensures the listing index
// on both collections.
func NewMongoRepository(ctx context.Context, client *mongodb.Client) (*MongoRepository, error) {
	keys := bson.D{{Key: "ngo_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	for _, name := range []string{CollectionDonors, CollectionRecipients} {
		if err := client.EnsureIndex(ctx, name, keys, false); err != nil {
			return nil, err
		}
	}
	return newMongoRepository(client.DB, client.OpTimeout), nil
}

func newMongoRepository(db *mongo.Database, timeout time.Duration) *MongoRepository {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MongoRepository{
		donors:     db.Collection(CollectionDonors),
		recipients: db.Collection(CollectionRecipients),
		timeout:    timeout,
	}
}

func (r *MongoRepository) collection(kind models.SubmissionKind) (*mongo.Collection, error) {
	switch kind {
	case models.KindDonor:
		return r.donors, nil
	case models.KindRecipient:
		return r.recipients, nil
	}
	return nil, fmt.Errorf("unknown submission kind %q", kind)
}

// Insert writes sub as a single document.
func (r *MongoRepository) Insert(ctx context.Context, sub *models.Submission) error {
	coll, err := r.collection(sub.Kind)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := coll.InsertOne(ctx, sub); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Get returns a submission by ID from either collection.
func (r *MongoRepository) Get(ctx context.Context, id string) (*models.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	for _, coll := range []*mongo.Collection{r.donors, r.recipients} {
		var sub models.Submission
		err := coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&sub)
		if err == nil {
			return &sub, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// List returns up to limit submissions of kind for the organization, newest first.
func (r *MongoRepository) List(ctx context.Context, organizationID string, kind models.SubmissionKind, limit int) ([]models.Submission, error) {
	coll, err := r.collection(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := coll.Find(ctx, bson.D{{Key: "ngo_id", Value: organizationID}}, opts)
	if err != nil {
		return nil, err
	}
	var out []models.Submission
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDelivery sets the delivery status of a recorded submission.
func (r *MongoRepository) UpdateDelivery(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "delivery_status", Value: status}}}}
	for _, coll := range []*mongo.Collection{r.donors, r.recipients} {
		res, err := coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}
	}
	return ErrNotFound
}
