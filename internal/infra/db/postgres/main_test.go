//go:build integration

package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

var testPool *pgxpool.Pool

// testDSNEnv points the suite at an existing database instead of a throwaway container.
const testDSNEnv = "SPEECHFLOW_TEST_DATABASE_URL"

func TestMain(m *testing.M) {
	os.Exit(runSuite(m))
}

func runSuite(m *testing.M) int {
	ctx := context.Background()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("suite", "postgres").Logger()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		containerID, containerDSN, err := startPostgres()
		if err != nil {
			logger.Error().Err(err).Msg("could not start postgres container, is Docker running?")
			return 1
		}
		defer func() {
			logger.Info().Str("container", containerID).Msg("stopping test container")
			if err := exec.Command("docker", "stop", containerID).Run(); err != nil {
				logger.Warn().Err(err).Msg("could not stop postgres container")
			}
		}()
		dsn = containerDSN
	}

	pool, err := connectWithRetry(ctx, dsn, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("test database unreachable")
		return 1
	}
	testPool = pool
	defer testPool.Close()

	if err := applySchema(ctx, testPool); err != nil {
		logger.Error().Err(err).Msg("could not apply schema")
		return 1
	}
	logger.Info().Msg("test database is ready")
	return m.Run()
}

func startPostgres() (id, dsn string, err error) {
	const (
		dbName     = "speechflow-test"
		dbUser     = "user"
		dbPassword = "password"
		dbPort     = "5432"
	)
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"--network", "host",
		"-e", "POSTGRES_DB="+dbName,
		"-e", "POSTGRES_USER="+dbUser,
		"-e", "POSTGRES_PASSWORD="+dbPassword,
		"postgres:16-alpine",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", "", err
	}
	id = strings.TrimSpace(out.String())
	if len(id) > 12 {
		id = id[:12]
	}
	dsn = fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable", dbUser, dbPassword, dbPort, dbName)
	return id, dsn, nil
}

// connectWithRetry waits for a fresh container to accept connections.
func connectWithRetry(ctx context.Context, dsn string, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	quiet := zerolog.New(io.Discard)
	const maxRetries = 15
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		pool, err := NewPgxPool(ctx, dsn, &quiet)
		if err == nil {
			return pool, nil
		}
		lastErr = err
		logger.Debug().Int("attempt", i+1).Msg("waiting for database")
		time.Sleep(2 * time.Second)
	}
	return nil, lastErr
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := findProjectRoot()
	if err != nil {
		return err
	}
	schema, err := os.ReadFile(filepath.Join(root, "deploy", "postgres", "init.sql"))
	if err != nil {
		return fmt.Errorf("read init.sql: %w", err)
	}
	_, err = pool.Exec(ctx, string(schema))
	return err
}

// findProjectRoot walks up to the directory holding go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root containing go.mod")
}

func cleanup(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE users, vocabulary, error_logs RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("Failed to clean up database: %v", err)
	}
}
