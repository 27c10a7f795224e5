package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/elsbrock/putioarr/internal/domain"
)

const defaultListLimit = 500

// FailedTransferRepository keeps dead-lettered transfers, one document per
// transfer id.
type FailedTransferRepository struct {
	collection *mongo.Collection
}

type failedTransferDoc struct {
	ID       int64    `bson:"_id"`
	Name     string   `bson:"name"`
	Hash     string   `bson:"hash,omitempty"`
	Attempts int      `bson:"attempts"`
	Reason   string   `bson:"reason"`
	Targets  []string `bson:"failedTargets,omitempty"`
	FailedAt int64    `bson:"failedAt"`
}

func NewFailedTransferRepository(client *mongo.Client, dbName, collectionName string) *FailedTransferRepository {
	return &FailedTransferRepository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *FailedTransferRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "failedAt", Value: -1}},
	})
	return err
}

// Record stores f, replacing an earlier record for the same transfer.
func (r *FailedTransferRepository) Record(ctx context.Context, f domain.FailedTransfer) error {
	doc := toDoc(f)
	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

// List returns the most recent failures first.
func (r *FailedTransferRepository) List(ctx context.Context) ([]domain.FailedTransfer, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "failedAt", Value: -1}}).
		SetLimit(defaultListLimit)
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []failedTransferDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.FailedTransfer, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out, nil
}

func toDoc(f domain.FailedTransfer) failedTransferDoc {
	return failedTransferDoc{
		ID:       int64(f.TransferID),
		Name:     f.Name,
		Hash:     f.Hash,
		Attempts: f.Attempts,
		Reason:   f.Reason,
		Targets:  f.Targets,
		FailedAt: f.FailedAt.UTC().Unix(),
	}
}

func fromDoc(d failedTransferDoc) domain.FailedTransfer {
	return domain.FailedTransfer{
		TransferID: domain.TransferID(d.ID),
		Name:       d.Name,
		Hash:       d.Hash,
		Attempts:   d.Attempts,
		Reason:     d.Reason,
		Targets:    d.Targets,
		FailedAt:   time.Unix(d.FailedAt, 0).UTC(),
	}
}
