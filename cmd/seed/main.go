package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"crimepatrol/internal/config"
	"crimepatrol/internal/logger"
	"crimepatrol/internal/model"
	"crimepatrol/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Demo sessions scattered around Bacolod City
var offsets = []struct {
	dLat, dLng float64
	status     model.SessionStatus
}{
	{0.000, 0.000, model.SessionPending},
	{0.004, -0.003, model.SessionPending},
	{-0.006, 0.005, model.SessionActive},
	{0.011, 0.009, model.SessionActive},
	{-0.020, -0.015, model.SessionResolved},
}

func main() {
	lat := flag.Float64("lat", 10.6765, "center latitude")
	lng := flag.Float64("lng", 122.9509, "center longitude")
	flag.Parse()

	cfg, cfgErr := config.Load()
	log, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if cfgErr != nil {
		log.Fatal("invalid configuration", zap.Error(cfgErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer client.Disconnect(context.Background())

	repo := repository.NewSessionRepo(client.Database(cfg.MongoDatabase))
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}

	now := time.Now().UTC()
	for i, o := range offsets {
		ts := now.Add(-time.Duration(len(offsets)-i) * time.Minute)
		session := &model.EmergencySession{
			ID:        uuid.NewString(),
			Latitude:  *lat + o.dLat,
			Longitude: *lng + o.dLng,
			Timestamp: ts,
			LastPing:  ts,
			UserID:    fmt.Sprintf("seed-user-%d", i+1),
			Status:    o.status,
		}
		if o.status != model.SessionPending {
			session.RespondedBy = "op_seed"
			session.RespondedAt = &ts
		}
		if o.status == model.SessionResolved {
			session.ResolvedBy = "op_seed"
			session.ResolvedAt = &now
		}
		if err := repo.Create(ctx, session); err != nil {
			log.Fatal("failed to insert session", zap.Error(err))
		}
		log.Info("seeded session",
			zap.String("id", session.ID),
			zap.String("status", string(session.Status)))
	}

	fmt.Printf("Seeded %d emergency sessions around %.4f,%.4f\n", len(offsets), *lat, *lng)
}
