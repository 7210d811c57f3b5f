package main

import (
	"context"
	"fmt"
	"time"

	"postkeeper/internal/config"
	"postkeeper/internal/model"
	"postkeeper/internal/store"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"
)

// openStore connects the configured backend and wraps it with metrics.
// The bare *HybridStore is returned too (nil for mongo) for the worker.
func openStore(ctx context.Context) (store.Store, *store.HybridStore, error) {
	switch cfg.StoreDriver {
	case config.DriverHybrid:
		hs, err := store.NewHybridStore(cfg.RedisAddr, cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Store ready",
			zap.String("driver", cfg.StoreDriver),
			zap.String("redis", cfg.RedisAddr),
			zap.String("badger", cfg.BadgerPath))
		return store.WithMetrics(hs, config.DriverHybrid), hs, nil

	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		ms, err := store.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Store ready",
			zap.String("driver", cfg.StoreDriver),
			zap.String("database", cfg.MongoDatabase))
		return store.WithMetrics(ms, config.DriverMongo), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

var seedCategories = []string{"Tech", "Travel", "Food", "Science", "Culture"}

func fakePost(faker *gofakeit.Faker) model.Post {
	tags := make([]string, faker.Number(0, 3))
	for i := range tags {
		tags[i] = faker.Word()
	}
	return model.NewPost(
		faker.Sentence(5),
		faker.Paragraph(2, 4, 12, "\n\n"),
		faker.RandomString(seedCategories),
		tags,
	)
}
