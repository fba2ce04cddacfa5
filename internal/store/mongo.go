package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoPollInterval = 3 * time.Second

// MongoStore implements Store for MongoDB. Live queries are driven by a
// collection change stream: every event re-runs the filtered find and emits
// the full current result set, which coalesces rapid changes naturally. On
// deployments without change streams it degrades to polling.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a new MongoStore.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// Subscribe opens a live query and synchronously emits the current set.
func (s *MongoStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	docs, err := s.find(ctx, q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)
	sub.publish(docs)

	go s.listen(ctx, q, sub)
	return sub, nil
}

func (s *MongoStore) listen(ctx context.Context, q Query, sub *Subscription) {
	coll := s.db.Collection(q.Collection)
	for {
		stream, err := coll.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("mongo: change stream unavailable for %s, polling instead: %v", q.Collection, err)
			s.poll(ctx, q, sub)
			return
		}

		for stream.Next(ctx) {
			docs, err := s.find(ctx, q)
			if err != nil {
				log.Printf("mongo: re-running query for %s: %v", q.Collection, err)
				continue
			}
			sub.publish(docs)
		}
		stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}

		// Connection dropped; resume silently with a fresh stream and a
		// full re-emission so consumers catch up on anything missed.
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
		if docs, err := s.find(ctx, q); err == nil {
			sub.publish(docs)
		}
	}
}

func (s *MongoStore) poll(ctx context.Context, q Query, sub *Subscription) {
	ticker := time.NewTicker(mongoPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			docs, err := s.find(ctx, q)
			if err != nil {
				continue
			}
			sub.publish(docs)
		}
	}
}

func (s *MongoStore) find(ctx context.Context, q Query) ([]Document, error) {
	findOptions := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		findOptions = findOptions.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, mongoFilter(q.Filters), findOptions)
	if err != nil {
		return nil, mapMongoError(err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err = cursor.All(ctx, &raw); err != nil {
		return nil, mapMongoError(err)
	}

	docs := make([]Document, len(raw))
	for i, fields := range raw {
		docs[i] = mongoDocument(fields)
	}
	return docs, nil
}

// Get performs a point read of one record.
func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var fields bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&fields)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, mapMongoError(err)
	}
	return mongoDocument(fields), nil
}

// Set writes the record wholesale, overwriting any existing one.
func (s *MongoStore) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	replacement := mongoFields(fields)
	replacement["_id"] = id
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, replacement, options.Replace().SetUpsert(true))
	return mapMongoError(err)
}

// Add writes a new record under a store-assigned id.
func (s *MongoStore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := primitive.NewObjectID().Hex()
	insert := mongoFields(fields)
	insert["_id"] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, insert); err != nil {
		return "", mapMongoError(err)
	}
	return id, nil
}

// Update applies field-level operations to an existing record.
func (s *MongoStore) Update(ctx context.Context, collection, id string, ops []UpdateOp) error {
	sets := bson.M{}
	unions := bson.M{}
	removals := bson.M{}
	for _, op := range ops {
		switch op.Kind {
		case UpdateArrayUnion:
			unions[op.Field] = op.Value
		case UpdateArrayRemove:
			removals[op.Field] = op.Value
		default:
			sets[op.Field] = mongoValue(op.Value)
		}
	}

	update := bson.M{}
	if len(sets) > 0 {
		update["$set"] = sets
	}
	if len(unions) > 0 {
		update["$addToSet"] = unions
	}
	if len(removals) > 0 {
		update["$pull"] = removals
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Delete removes the record; deleting a missing record is a no-op.
func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return mapMongoError(err)
}

// mongoFilter translates query predicates. Equality against an array field
// is MongoDB's membership test, so both operators map to the same shape.
func mongoFilter(filters []Filter) bson.M {
	filter := bson.M{}
	for _, f := range filters {
		filter[f.Field] = f.Value
	}
	return filter
}

func mongoDocument(fields bson.M) Document {
	doc := Document{Fields: make(map[string]interface{}, len(fields))}
	for k, v := range fields {
		if k == "_id" {
			doc.ID = mongoID(v)
			continue
		}
		doc.Fields[k] = mongoValue(v)
	}
	return doc
}

func mongoID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

func mongoValue(v interface{}) interface{} {
	switch value := v.(type) {
	case ServerTimestamp:
		// MongoDB assigns no insert timestamps; the driver-side clock is
		// the closest equivalent.
		return time.Now().UTC()
	case primitive.DateTime:
		return value.Time().UTC()
	case primitive.A:
		out := make([]interface{}, len(value))
		for i, member := range value {
			out[i] = mongoValue(member)
		}
		return out
	default:
		return v
	}
}

func mongoFields(fields map[string]interface{}) bson.M {
	out := bson.M{}
	for k, v := range fields {
		out[k] = mongoValue(v)
	}
	return out
}

func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 13 {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}
