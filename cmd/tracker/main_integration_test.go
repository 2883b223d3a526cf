package main

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	redisMod "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/fsd-connector/internal/db"
	"github.com/saviobatista/fsd-connector/internal/db/migrations"
	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/redis"
	"github.com/saviobatista/fsd-connector/internal/testutils"
)

type testContainers struct {
	postgres *postgres.PostgresContainer
	redis    *redisMod.RedisContainer
}

func setupTestContainers(t *testing.T) *testContainers {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "timescale/timescaledb:latest-pg14",
		postgres.WithDatabase("fsd_data"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start TimescaleDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := postgresContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate TimescaleDB container: %v", err)
		}
	})

	redisContainer, err := redisMod.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := redisContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	return &testContainers{postgres: postgresContainer, redis: redisContainer}
}

func TestStateTracker_Integration(t *testing.T) {
	if testing.Short() || !testutils.IsIntegrationTest() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	containers := setupTestContainers(t)

	dbConnStr, err := containers.postgres.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get database connection string: %v", err)
	}
	dbClient, err := db.New(dbConnStr)
	if err != nil {
		t.Fatalf("Failed to create database client: %v", err)
	}
	defer dbClient.Close()

	migrator := migrations.New(dbClient.DB(), logging.Discard())
	if _, err := migrator.Migrate([]*migrations.Migration{migrations.InitialSchema}); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	redisAddr, err := containers.redis.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}
	redisClient, err := redis.New(redisAddr)
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}
	defer redisClient.Close()

	trackerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	tracker := NewStateTracker(dbClient, redisClient, logging.Discard())
	if err := tracker.Start(trackerCtx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i, raw := range []string{
		testutils.SampleAddPilot,
		testutils.SamplePilotPosition,
		"%EGLL_TWR:18500:4:50:5:51.4700000:-0.4600000:0",
	} {
		if err := tracker.ProcessPacket(packet(raw, now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("ProcessPacket(%q) failed: %v", raw, err)
		}
	}

	state, err := redisClient.GetPilotState(ctx, "DAL123")
	if err != nil || state == nil {
		t.Fatalf("Expected cached pilot state, got %v / %v", state, err)
	}
	if state.TrueAltitude != 35000 {
		t.Errorf("Expected altitude 35000, got %d", state.TrueAltitude)
	}

	sessions, err := dbClient.GetActivePilotSessions()
	if err != nil {
		t.Fatalf("GetActivePilotSessions() failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].CID != "1234567" {
		t.Fatalf("Expected one open session for 1234567, got %+v", sessions)
	}

	if err := tracker.ProcessPacket(packet(testutils.SampleDeletePilot, now.Add(time.Minute))); err != nil {
		t.Fatalf("ProcessPacket(#DP) failed: %v", err)
	}
	sessions, err = dbClient.GetActivePilotSessions()
	if err != nil {
		t.Fatalf("GetActivePilotSessions() failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected no open sessions, got %d", len(sessions))
	}

	var positions int
	if err := dbClient.DB().QueryRow("SELECT COUNT(*) FROM pilot_positions").Scan(&positions); err != nil {
		t.Fatalf("Failed to count positions: %v", err)
	}
	if positions != 1 {
		t.Errorf("Expected 1 stored position, got %d", positions)
	}

	if err := tracker.Stats().Persist(); err != nil {
		t.Errorf("Persist() failed: %v", err)
	}
}
