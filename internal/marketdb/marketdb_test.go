package marketdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"plinkoengine/internal/config"
)

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func startMarketRegistry(t *testing.T) string {
	t.Helper()
	if os.Getenv("SKIP_INTEGRATION") != "" || !isDockerAvailable() {
		t.Skip("docker unavailable, skipping marketdb integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("plinko"),
		postgres.WithUsername("plinko"),
		postgres.WithPassword("plinko"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	return fmt.Sprintf("postgres://plinko:plinko@%s:%s/plinko?sslmode=disable", host, port.Port())
}

func TestRegistry_MigrateAndGet(t *testing.T) {
	dsn := startMarketRegistry(t)

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer sqlDB.Close()

	if err := RunMigrations(sqlDB, "../../migrations"); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	version, dirty, err := GetMigrationVersion(sqlDB, "../../migrations")
	if err != nil {
		t.Fatalf("GetMigrationVersion: %v", err)
	}
	if dirty || version == 0 {
		t.Fatalf("unexpected migration state: version=%d dirty=%v", version, dirty)
	}

	reg, err := New(context.Background(), config.PostgresConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer reg.Close()

	cfg, err := reg.Get(context.Background(), "CryptoStream")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected seeded CryptoStream row")
	}
	if len(cfg.Multipliers) != 9 {
		t.Fatalf("multipliers len = %d, want 9", len(cfg.Multipliers))
	}
	if !cfg.Enabled {
		t.Fatal("expected CryptoStream to be enabled")
	}

	all, err := reg.ListEnabled(context.Background())
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(ListEnabled) = %d, want 1", len(all))
	}

	if err := RollbackMigration(sqlDB, "../../migrations"); err != nil {
		t.Fatalf("RollbackMigration: %v", err)
	}
}
