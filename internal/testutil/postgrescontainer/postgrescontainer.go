// Package postgrescontainer runs a throwaway PostgreSQL for integration
// tests. Set QACACHE_TEST_DATABASE_URL to reuse an existing server instead.
package postgrescontainer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	image         = "postgres:16-alpine"
	containerName = "qacache-postgres-test"
	hostPort      = "55432"
	user          = "qacache"
	password      = "secret"
	dbName        = "qacache_test"

	dsnEnv = "QACACHE_TEST_DATABASE_URL"
)

// ErrDockerUnavailable is returned by Setup when no docker binary is found
// and no external database was configured.
var ErrDockerUnavailable = errors.New("postgrescontainer: docker executable not found")

var (
	mu       sync.Mutex
	started  bool
	external bool
)

// Addr returns host:port of the container started by Setup.
func Addr() string { return "127.0.0.1:" + hostPort }

// DSN returns a lib/pq connection string for the test database.
func DSN() string {
	if dsn := os.Getenv(dsnEnv); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, Addr(), dbName)
}

// Setup starts the container unless one is already running for this
// process. It is safe to call from several tests.
func Setup() error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}
	if os.Getenv(dsnEnv) != "" {
		external = true
	} else {
		if _, err := exec.LookPath("docker"); err != nil {
			return fmt.Errorf("%w: %v", ErrDockerUnavailable, err)
		}
		_ = stopContainer()
		if err := runDocker(
			"run", "-d", "--rm",
			"--name", containerName,
			"-e", "POSTGRES_USER="+user,
			"-e", "POSTGRES_PASSWORD="+password,
			"-e", "POSTGRES_DB="+dbName,
			"-p", hostPort+":5432",
			image,
		); err != nil {
			return err
		}
	}
	if err := waitForPostgres(DSN(), 20*time.Second); err != nil {
		return err
	}
	started = true
	return nil
}

// Teardown stops the container launched by Setup. External databases are
// left alone.
func Teardown() error {
	mu.Lock()
	defer mu.Unlock()
	if !started {
		return nil
	}
	started = false
	if external {
		return nil
	}
	return stopContainer()
}

func stopContainer() error {
	output, err := exec.Command("docker", "stop", containerName).CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "No such container") {
			return nil
		}
		return fmt.Errorf("docker stop failed: %w: %s", err, output)
	}
	return nil
}

func runDocker(args ...string) error {
	output, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s failed: %w: %s", args[0], err, output)
	}
	return nil
}

func waitForPostgres(dsn string, timeout time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := db.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("postgres container did not become ready in time")
}
