package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/citysignal/citysignal/internal/geo"
)

// SubscriptionsCollection is the Mongo collection holding push
// subscriptions.
const SubscriptionsCollection = "push_subscriptions"

// MongoRepository is a MongoDB implementation of Repository backed by a
// 2dsphere index on the geo field and a unique index on endpoint.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a new MongoDB subscription repository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(SubscriptionsCollection)}
}

type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type keysDoc struct {
	P256dh string `bson:"p256dh"`
	Auth   string `bson:"auth"`
}

type zoneDoc struct {
	Key string `bson:"key,omitempty"`
	Sub string `bson:"sub,omitempty"`
}

type subscriptionDoc struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"userId,omitempty"`
	Endpoint  string    `bson:"endpoint"`
	Keys      keysDoc   `bson:"keys"`
	Geo       *geoPoint `bson:"geo,omitempty"`
	Zone      *zoneDoc  `bson:"zone,omitempty"`
	RadiusKM  float64   `bson:"radiusKm"`
	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func fromDoc(d *subscriptionDoc) *Subscription {
	s := &Subscription{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Endpoint:  d.Endpoint,
		Keys:      Keys{P256dh: d.Keys.P256dh, Auth: d.Keys.Auth},
		RadiusKM:  d.RadiusKM,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Geo != nil && len(d.Geo.Coordinates) == 2 {
		s.Location = &Point{Lat: d.Geo.Coordinates[1], Lng: d.Geo.Coordinates[0]}
	}
	if d.Zone != nil {
		s.Zone = &Zone{Key: d.Zone.Key, Sub: d.Zone.Sub}
	}
	return s
}

// Get retrieves a subscription by ID.
func (r *MongoRepository) Get(ctx context.Context, id string) (*Subscription, error) {
	var doc subscriptionDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return fromDoc(&doc), nil
}

// UpsertByEndpoint creates or updates the subscription for an endpoint.
func (r *MongoRepository) UpsertByEndpoint(ctx context.Context, sub *Subscription) (*Subscription, error) {
	now := time.Now()

	set := bson.M{
		"endpoint":  sub.Endpoint,
		"keys":      keysDoc{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		"radiusKm":  sub.RadiusKM,
		"active":    true,
		"updatedAt": now,
	}
	if sub.OwnerID != "" {
		set["userId"] = sub.OwnerID
	}
	if sub.Location != nil {
		set["geo"] = geoPoint{Type: "Point", Coordinates: []float64{sub.Location.Lng, sub.Location.Lat}}
	}
	if sub.Zone != nil {
		set["zone"] = zoneDoc{Key: sub.Zone.Key, Sub: sub.Zone.Sub}
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"_id": sub.ID, "createdAt": now},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc subscriptionDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"endpoint": sub.Endpoint}, update, opts).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return fromDoc(&doc), nil
}

// FindCandidatesNear returns active subscriptions stored within maxRadiusKM
// of the point. $near returns results ordered nearest-first, so the limit
// keeps the closest subscribers when the candidate set overflows.
func (r *MongoRepository) FindCandidatesNear(ctx context.Context, lat, lng, maxRadiusKM float64, limit int) ([]*Subscription, error) {
	filter := bson.M{
		"active": true,
		"geo": bson.M{"$near": bson.M{
			"$geometry":    geoPoint{Type: "Point", Coordinates: []float64{lng, lat}},
			"$maxDistance": geo.Meters(maxRadiusKM),
		}},
	}

	cur, err := r.coll.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer cur.Close(ctx)

	var subs []*Subscription
	for cur.Next(ctx) {
		var doc subscriptionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		subs = append(subs, fromDoc(&doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return subs, nil
}

// Deactivate sets active=false.
func (r *MongoRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"active":    false,
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Ensure MongoRepository implements Repository.
var _ Repository = (*MongoRepository)(nil)
