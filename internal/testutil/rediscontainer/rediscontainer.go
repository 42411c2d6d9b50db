// Package rediscontainer runs a throwaway Redis for integration tests. Set
// QACACHE_TEST_REDIS_ADDR to reuse an existing server instead.
package rediscontainer

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	image         = "redis:7-alpine"
	containerName = "qacache-redis-test"
	hostPort      = "6390"

	addrEnv = "QACACHE_TEST_REDIS_ADDR"
)

var ErrDockerUnavailable = errors.New("rediscontainer: docker executable not found")

var (
	mu       sync.Mutex
	started  bool
	external bool
)

// Addr exposes the Redis host:port used by integration tests.
func Addr() string {
	if addr := os.Getenv(addrEnv); addr != "" {
		return addr
	}
	return "127.0.0.1:" + hostPort
}

// Setup runs the container and waits until it answers PING.
func Setup() error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}
	if os.Getenv(addrEnv) != "" {
		external = true
	} else {
		if _, err := exec.LookPath("docker"); err != nil {
			return fmt.Errorf("%w: %v", ErrDockerUnavailable, err)
		}
		_ = stopContainer()
		if err := runDocker("run", "-d", "--rm", "--name", containerName, "-p", hostPort+":6379", image); err != nil {
			return err
		}
	}
	if err := waitForRedis(Addr(), 10*time.Second); err != nil {
		return err
	}
	started = true
	return nil
}

// Teardown stops the container if Setup started one.
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

func waitForRedis(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	payload := []byte("*1\r\n$4\r\nPING\r\n")
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			if _, err := conn.Write(payload); err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err == nil && strings.Contains(line, "PONG") {
					_ = conn.Close()
					return nil
				}
			}
			_ = conn.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("redis container did not respond to ping")
}
