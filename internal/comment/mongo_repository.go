package comment

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CommentsCollection is the MongoDB collection backing comments.
const CommentsCollection = "comments"

type commentDoc struct {
	ID        string `bson:"_id"`
	SignalID  string `bson:"signalId"`
	AuthorID  string `bson:"userId,omitempty"`
	Content   string `bson:"content"`
	CreatedAt int64  `bson:"createdAt"`
}

// MongoRepository implements Repository backed by MongoDB.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a MongoDB-backed comment repository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(CommentsCollection)}
}

// ListBySignal returns the newest comments for a signal.
func (r *MongoRepository) ListBySignal(ctx context.Context, signalID string, limit int) ([]*Comment, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{"signalId": signalID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer cur.Close(ctx)

	var comments []*Comment
	for cur.Next(ctx) {
		var doc commentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding comment: %w", err)
		}
		comments = append(comments, docToComment(&doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}

	return comments, nil
}

// Insert stores a new comment.
func (r *MongoRepository) Insert(ctx context.Context, c *Comment) error {
	doc := commentDoc{
		ID:        c.ID,
		SignalID:  c.SignalID,
		AuthorID:  c.AuthorID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt.UnixMilli(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting comment: %w", err)
	}
	return nil
}

func docToComment(doc *commentDoc) *Comment {
	return &Comment{
		ID:        doc.ID,
		SignalID:  doc.SignalID,
		AuthorID:  doc.AuthorID,
		Content:   doc.Content,
		CreatedAt: time.UnixMilli(doc.CreatedAt),
	}
}
