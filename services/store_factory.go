package services

import (
	"context"
	"time"

	"dd-copilot/internal/config"
	"dd-copilot/internal/telemetry"
)

// OpenDocumentStore builds the backend selected by cfg.DocumentStore. The
// returned func releases its connections.
func OpenDocumentStore(cfg *config.Config, metrics *telemetry.Metrics) (DocumentStore, func(), error) {
	if cfg.DocumentStore != "mongo" {
		return NewFileDocumentStore(cfg.ADEJSONDir, metrics), func() {}, nil
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	collection := mongoClient.Database(cfg.DBName).Collection(config.DocumentsCollection)

	return NewMongoDocumentStore(collection, metrics), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}, nil
}
