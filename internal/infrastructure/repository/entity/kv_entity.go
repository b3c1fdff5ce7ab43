package entity

import "time"

// MongoKVDoc represents one key of a bucket in MongoDB
type MongoKVDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewMongoKVDoc creates the first version of a key
func NewMongoKVDoc(key string, value []byte) *MongoKVDoc {
	return &MongoKVDoc{
		Key:       key,
		Value:     string(value),
		Version:   1,
		UpdatedAt: time.Now(),
	}
}

// Bytes returns the stored JSON value
func (d *MongoKVDoc) Bytes() []byte {
	return []byte(d.Value)
}
