package signal

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

// SignalsCollection is the Mongo collection holding signals.
const SignalsCollection = "signals"

// MongoRepository is a MongoDB implementation of Repository backed by a
// 2dsphere index on the geo field.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a new MongoDB signal repository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(SignalsCollection)}
}

// geoPoint is a GeoJSON point stored as [lng, lat].
type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type zoneDoc struct {
	Key string `bson:"key,omitempty"`
	Sub string `bson:"sub,omitempty"`
}

type locationDoc struct {
	Lat     float64 `bson:"lat"`
	Lng     float64 `bson:"lng"`
	Address string  `bson:"address,omitempty"`
}

type signalDoc struct {
	ID          string      `bson:"_id"`
	OwnerID     string      `bson:"userId,omitempty"`
	Title       string      `bson:"title"`
	Description string      `bson:"description,omitempty"`
	Level       int         `bson:"level"`
	Category    string      `bson:"category,omitempty"`
	Location    locationDoc `bson:"location"`
	Geo         geoPoint    `bson:"geo"`
	Zone        *zoneDoc    `bson:"zone,omitempty"`
	Tags        []string    `bson:"tags,omitempty"`
	Score       int         `bson:"score"`
	Status      string      `bson:"status"`
	Source      string      `bson:"source"`
	Dist        float64     `bson:"dist,omitempty"`
	CreatedAt   time.Time   `bson:"createdAt"`
	UpdatedAt   time.Time   `bson:"updatedAt"`
}

func toDoc(s *Signal) *signalDoc {
	doc := &signalDoc{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		Title:       s.Title,
		Description: s.Description,
		Level:       s.Severity,
		Category:    s.Category,
		Location:    locationDoc{Lat: s.Location.Lat, Lng: s.Location.Lng, Address: s.Location.Address},
		Geo:         geoPoint{Type: "Point", Coordinates: []float64{s.Location.Lng, s.Location.Lat}},
		Tags:        s.Tags,
		Score:       s.Score,
		Status:      string(s.Status),
		Source:      string(s.Source),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Zone != nil {
		doc.Zone = &zoneDoc{Key: s.Zone.Key, Sub: s.Zone.Sub}
	}
	return doc
}

func fromDoc(d *signalDoc) *Signal {
	s := &Signal{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		Title:          d.Title,
		Description:    d.Description,
		Severity:       d.Level,
		Category:       d.Category,
		Location:       Location{Lat: d.Location.Lat, Lng: d.Location.Lng, Address: d.Location.Address},
		Tags:           d.Tags,
		Score:          d.Score,
		Status:         Status(d.Status),
		Source:         Source(d.Source),
		DistanceMeters: d.Dist,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.Zone != nil {
		s.Zone = &Zone{Key: d.Zone.Key, Sub: d.Zone.Sub}
	}
	return s
}

// Get retrieves a signal by ID.
func (r *MongoRepository) Get(ctx context.Context, id string) (*Signal, error) {
	var doc signalDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSignalNotFound
		}
		return nil, wrapStoreErr("find signal", err)
	}
	return fromDoc(&doc), nil
}

// FindNearby executes a planned feed query.
func (r *MongoRepository) FindNearby(ctx context.Context, q *FeedQuery) (*FeedResult, error) {
	if q.Sort.DistanceRanked() {
		return r.findByDistance(ctx, q)
	}
	return r.findBySort(ctx, q)
}

// findByDistance runs a $geoNear aggregation. Distance ordering depends on
// the query center, so pagination is offset-based with a pageSize+1 probe.
func (r *MongoRepository) findByDistance(ctx context.Context, q *FeedQuery) (*FeedResult, error) {
	since := time.Now().Add(-time.Duration(q.WindowDays) * 24 * time.Hour)
	skip := (q.Page.Page - 1) * q.Page.PageSize

	sortSpec := bson.D{{Key: "dist", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	if q.Sort == SortSeverityDistance {
		sortSpec = append(bson.D{{Key: "level", Value: -1}}, sortSpec...)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.M{
			"near":          bson.M{"type": "Point", "coordinates": []float64{q.Center.Lng, q.Center.Lat}},
			"distanceField": "dist",
			"maxDistance":   geo.Meters(q.RadiusKM),
			"spherical":     true,
		}}},
		{{Key: "$match", Value: bson.M{
			"createdAt": bson.M{"$gte": since},
			"status":    bson.M{"$ne": string(StatusResolved)},
		}}},
		{{Key: "$sort", Value: sortSpec}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: q.Page.PageSize + 1}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapStoreErr("geo near aggregate", err)
	}
	defer cur.Close(ctx)

	items, err := decodeAll(ctx, cur)
	if err != nil {
		return nil, err
	}

	result := &FeedResult{Items: items}
	if len(items) > q.Page.PageSize {
		result.Items = items[:q.Page.PageSize]
		result.NextPage = q.Page.Page + 1
	}
	return result, nil
}

// findBySort runs a filtered find with the mode's sort order and either a
// cursor predicate or an offset window.
func (r *MongoRepository) findBySort(ctx context.Context, q *FeedQuery) (*FeedResult, error) {
	since := time.Now().Add(-time.Duration(q.WindowDays) * 24 * time.Hour)

	filter := bson.M{
		"createdAt": bson.M{"$gte": since},
		"status":    bson.M{"$ne": string(StatusResolved)},
	}
	if !q.Global {
		filter["geo"] = bson.M{"$geoWithin": bson.M{"$centerSphere": bson.A{
			bson.A{q.Center.Lng, q.Center.Lat},
			geo.KMToAngularRadius(q.RadiusKM),
		}}}
	}

	sortSpec := sortSpecFor(q.Sort)

	if q.Page.Mode == PaginateOffset {
		skip := int64((q.Page.Page - 1) * q.Page.PageSize)
		opts := options.Find().
			SetSort(sortSpec).
			SetSkip(skip).
			SetLimit(int64(q.Page.PageSize + 1))
		cur, err := r.coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, wrapStoreErr("feed find", err)
		}
		defer cur.Close(ctx)

		items, err := decodeAll(ctx, cur)
		if err != nil {
			return nil, err
		}

		result := &FeedResult{Items: items}
		if len(items) > q.Page.PageSize {
			result.Items = items[:q.Page.PageSize]
			result.NextPage = q.Page.Page + 1
		}
		return result, nil
	}

	if c := q.Page.Cursor; c != nil {
		filter = bson.M{"$and": bson.A{filter, cursorFilter(q.Sort, c)}}
	}

	opts := options.Find().SetSort(sortSpec).SetLimit(int64(q.Limit + 1))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapStoreErr("feed find", err)
	}
	defer cur.Close(ctx)

	items, err := decodeAll(ctx, cur)
	if err != nil {
		return nil, err
	}

	result := &FeedResult{Items: items}
	if len(items) > q.Limit {
		result.Items = items[:q.Limit]
		result.NextCursor = EncodeCursor(q.Sort, items[q.Limit-1])
	}
	return result, nil
}

// sortSpecFor returns the Mongo sort document with full tie-breaks for a
// non-distance sort mode.
func sortSpecFor(mode SortMode) bson.D {
	switch mode {
	case SortSeverity, SortMixed:
		return bson.D{{Key: "level", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	case SortRecommended:
		return bson.D{{Key: "score", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	}
}

// cursorFilter builds the strictly-after predicate for a decoded cursor in
// the descending sort order of the mode.
func cursorFilter(mode SortMode, c *Cursor) bson.M {
	timePredicate := bson.M{"$or": bson.A{
		bson.M{"createdAt": bson.M{"$lt": c.CreatedAt}},
		bson.M{"createdAt": c.CreatedAt, "_id": bson.M{"$lt": c.ID}},
	}}
	if mode == SortSeverity && c.HasSeverity {
		return bson.M{"$or": bson.A{
			bson.M{"level": bson.M{"$lt": c.Severity}},
			bson.M{"$and": bson.A{bson.M{"level": c.Severity}, timePredicate}},
		}}
	}
	return timePredicate
}

// Insert persists a new signal.
func (r *MongoRepository) Insert(ctx context.Context, s *Signal) error {
	if _, err := r.coll.InsertOne(ctx, toDoc(s)); err != nil {
		return wrapStoreErr("insert signal", err)
	}
	return nil
}

// UpdateStatus transitions a signal's status.
func (r *MongoRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":    string(status),
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return wrapStoreErr("update status", err)
	}
	if res.MatchedCount == 0 {
		return ErrSignalNotFound
	}
	return nil
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]*Signal, error) {
	var items []*Signal
	for cur.Next(ctx) {
		var doc signalDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode signal: %w", err)
		}
		items = append(items, fromDoc(&doc))
	}
	if err := cur.Err(); err != nil {
		return nil, wrapStoreErr("iterate signals", err)
	}
	return items, nil
}

// wrapStoreErr tags connectivity failures as ErrStoreUnavailable so read
// paths can decide whether to serve the degraded fallback. Other errors are
// passed through with context.
func wrapStoreErr(op string, err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %s", op, ErrStoreUnavailable, err.Error())
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Ensure MongoRepository implements Repository.
var _ Repository = (*MongoRepository)(nil)
