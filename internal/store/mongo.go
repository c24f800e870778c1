package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoEntity struct {
	Table     string    `bson:"tbl"`
	Key       string    `bson:"key"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore mirrors the device store into a MongoDB collection, for
// deployments where the data layer runs server side (kiosk, web shell).
type MongoStore struct {
	collection *mongo.Collection
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("entities")}
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tbl", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoStore) Upsert(ctx context.Context, table, key string, data []byte) error {
	filter := bson.M{"tbl": table, "key": key}
	update := bson.M{"$set": mongoEntity{Table: table, Key: key, Data: data, UpdatedAt: time.Now().UTC()}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", table, key, err)
	}
	return nil
}

func (m *MongoStore) UpsertBatch(ctx context.Context, table string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"tbl": table, "key": r.Key}).
			SetUpdate(bson.M{"$set": mongoEntity{Table: table, Key: r.Key, Data: r.Data, UpdatedAt: now}}).
			SetUpsert(true))
	}

	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to upsert batch into %s: %w", table, err)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, table, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"tbl": table, "key": key}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (m *MongoStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	var e mongoEntity
	err := m.collection.FindOne(ctx, bson.M{"tbl": table, "key": key}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return e.Data, nil
}

func (m *MongoStore) ScanAll(ctx context.Context, table string) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "key", Value: 1}})
	cur, err := m.collection.Find(ctx, bson.M{"tbl": table}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer cur.Close(ctx)

	var records []Record
	for cur.Next(ctx) {
		var e mongoEntity
		if err := cur.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", table, err)
		}
		records = append(records, Record{Key: e.Key, Data: e.Data})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return records, nil
}

func (m *MongoStore) Clear(ctx context.Context, table string) error {
	if _, err := m.collection.DeleteMany(ctx, bson.M{"tbl": table}); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.collection.Database().Client().Disconnect(ctx)
}
