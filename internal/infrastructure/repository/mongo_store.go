package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adlign-personalization-layer/internal/infrastructure/repository/entity"
	"adlign-personalization-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoUpdateAttempts = 10

// MongoStore implements KVStore with one collection per bucket. Each
// document carries a version used for optimistic read-modify-write.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a MongoDB-backed store
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// ConnectMongoStore connects to uri and returns a store on database
func ConnectMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return NewMongoStore(client.Database(database)), nil
}

func (s *MongoStore) collection(bucket string) *mongo.Collection {
	return s.db.Collection(bucket)
}

func (s *MongoStore) find(ctx context.Context, bucket, key string) (*entity.MongoKVDoc, error) {
	var doc entity.MongoKVDoc
	err := s.collection(bucket).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	return &doc, nil
}

func (s *MongoStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	doc, err := s.find(ctx, bucket, key)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Bytes(), nil
}

func (s *MongoStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	opts := options.Update().SetUpsert(true)
	update := bson.M{
		"$set": bson.M{"value": string(value), "updatedAt": time.Now()},
		"$inc": bson.M{"version": 1},
	}
	if _, err := s.collection(bucket).UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, bucket, key string, fn ports.UpdateFunc) error {
	coll := s.collection(bucket)

	for attempt := 0; attempt < mongoUpdateAttempts; attempt++ {
		doc, err := s.find(ctx, bucket, key)
		if err != nil {
			return err
		}

		var current []byte
		if doc != nil {
			current = doc.Bytes()
		}
		next, err := fn(current)
		if err != nil {
			return err
		}

		switch {
		case doc == nil && next == nil:
			return nil

		case doc == nil:
			_, err := coll.InsertOne(ctx, entity.NewMongoKVDoc(key, next))
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to insert %s/%s: %w", bucket, key, err)
			}
			return nil

		case next == nil:
			res, err := coll.DeleteOne(ctx, bson.M{"_id": key, "version": doc.Version})
			if err != nil {
				return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
			}
			if res.DeletedCount == 0 {
				continue
			}
			return nil

		default:
			update := bson.M{"$set": bson.M{
				"value":     string(next),
				"version":   doc.Version + 1,
				"updatedAt": time.Now(),
			}}
			res, err := coll.UpdateOne(ctx, bson.M{"_id": key, "version": doc.Version}, update)
			if err != nil {
				return fmt.Errorf("failed to update %s/%s: %w", bucket, key, err)
			}
			if res.MatchedCount == 0 {
				continue
			}
			return nil
		}
	}
	return errors.New("failed to update " + bucket + "/" + key + ": too much contention")
}

func (s *MongoStore) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.collection(bucket).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *MongoStore) Keys(ctx context.Context, bucket string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1})
	cursor, err := s.collection(bucket).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	defer cursor.Close(ctx)

	var keys []string
	for cursor.Next(ctx) {
		var doc entity.MongoKVDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s key: %w", bucket, err)
		}
		keys = append(keys, doc.Key)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return keys, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}
