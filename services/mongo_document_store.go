package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dd-copilot/internal/telemetry"
	"dd-copilot/models"
	"dd-copilot/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// storedArtifact keeps the artifact JSON verbatim so rows and fields of any
// shape round-trip without BSON type conversion.
type storedArtifact struct {
	Key         string    `bson:"_id"`
	Doc         string    `bson:"doc"`
	Status      string    `bson:"status"`
	TablesCount int       `bson:"tables_count"`
	Payload     string    `bson:"payload"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// MongoDocumentStore keeps artifacts in a MongoDB collection keyed by ArtifactKey
type MongoDocumentStore struct {
	collection *mongo.Collection
	metrics    *telemetry.Metrics
}

func NewMongoDocumentStore(collection *mongo.Collection, metrics *telemetry.Metrics) *MongoDocumentStore {
	return &MongoDocumentStore{collection: collection, metrics: metrics}
}

func (s *MongoDocumentStore) Backend() string { return "mongo" }

func (s *MongoDocumentStore) Save(ctx context.Context, doc *models.NormalizedDocument) (string, error) {
	key := ArtifactKey(doc.Doc)
	if key == "" {
		return "", fmt.Errorf("invalid document name %q", doc.Doc)
	}

	data, err := MarshalNormalized(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", doc.Doc, err)
	}
	if err := ValidateNormalized(data); err != nil {
		return "", fmt.Errorf("refusing to store %s: %w", doc.Doc, err)
	}

	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	artifact := storedArtifact{
		Key:         key,
		Doc:         doc.Doc,
		Status:      doc.Status,
		TablesCount: len(doc.Tables),
		Payload:     string(data),
		UpdatedAt:   time.Now().UTC(),
	}
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": key}, artifact, options.Replace().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("failed to upsert %s: %w", key, err)
	}

	s.metrics.RecordDocumentStored(s.Backend(), doc.Status)
	return fmt.Sprintf("%s/%s/%s.json", s.collection.Database().Name(), s.collection.Name(), key), nil
}

func (s *MongoDocumentStore) Load(ctx context.Context, name string) (*models.NormalizedDocument, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	for _, key := range lookupKeys(name) {
		var artifact storedArtifact
		err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&artifact)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", key, err)
		}
		return decodeArtifact(key, []byte(artifact.Payload))
	}
	return nil, ErrDocumentNotFound
}

func (s *MongoDocumentStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	names := []string{}
	for cursor.Next(ctx) {
		var row struct {
			Key string `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode document key: %w", err)
		}
		names = append(names, row.Key)
	}
	return names, cursor.Err()
}
