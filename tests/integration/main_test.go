//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Carine01/agenda-courier/internal/app"
	"github.com/Carine01/agenda-courier/internal/config"
	"github.com/Carine01/agenda-courier/internal/testutil"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator

	// gateway is the fake delivery endpoint the queue dispatches to.
	gateway *gatewayStub
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

// newTestClient creates a new test client with OpenAPI validation enabled.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	migrator, err := migrate.New(
		"file://../../migrations",
		pgContainer.ConnectionString,
	)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("run migrations: %v", err)
	}

	gateway = newGatewayStub()
	defer gateway.Close()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			MetricsPort:  "0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: config.DatabaseConfig{
			URL:             pgContainer.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		Delivery: config.DeliveryConfig{
			Strategy: "webhook",
			Webhook: config.WebhookConfig{
				Endpoint: gateway.URL(),
				Token:    "test-token",
				Timeout:  5 * time.Second,
			},
		},
		// Short intervals so dispatch and retries complete within test
		// timeouts.
		Queue: config.QueueConfig{
			TickInterval:  200 * time.Millisecond,
			BatchSize:     50,
			MaxAttempts:   3,
			BaseDelay:     200 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			StuckAfter:    time.Minute,
			RetainSentFor: 24 * time.Hour,
			MaintainEvery: time.Minute,
		},
		Schedule: config.ScheduleConfig{
			OpenMinute:     8 * 60,
			CloseMinute:    18 * 60,
			HalfDayWeekday: -1,
		},
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	testServer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
