package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/adeilh/qacache/cache"
)

// Store implements cache.Store over the Redis RESP protocol. Connections are
// pooled in a buffered channel and dropped on I/O failure.
type Store struct {
	opts Options
	dial dialFunc
	pool chan *conn
}

type dialFunc func(context.Context, Options) (net.Conn, error)

type conn struct {
	net.Conn
	r *bufio.Reader
}

// NewStore builds a Redis-backed cache store. No connection is opened until
// the first command.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	return &Store{opts: cfg, dial: defaultDial, pool: make(chan *conn, cfg.PoolSize)}
}

// WithDial overrides the dialer (useful for tests).
func (s *Store) WithDial(fn dialFunc) {
	if fn != nil {
		s.dial = fn
	}
}

func (s *Store) key(k string) string { return s.opts.KeyPrefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := s.do(ctx, "GET", s.key(key))
	if err != nil {
		return nil, err
	}
	switch v := reply.(type) {
	case nil:
		return nil, cache.ErrNotFound
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("redis: unexpected GET reply %T", reply)
	}
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{"SET", s.key(key), string(value)}
	if ttl > 0 {
		ms := ttl.Milliseconds()
		if ms == 0 {
			ms = 1
		}
		args = append(args, "PX", strconv.FormatInt(ms, 10))
	}
	reply, err := s.do(ctx, args...)
	if err != nil {
		return err
	}
	return expectOK("SET", reply)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	reply, err := s.do(ctx, "DEL", s.key(key))
	if err != nil {
		return err
	}
	n, ok := reply.(int64)
	if !ok {
		return fmt.Errorf("redis: unexpected DEL reply %T", reply)
	}
	if n == 0 {
		return cache.ErrNotFound
	}
	return nil
}

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	reply, err := s.do(ctx, "PING")
	if err != nil {
		return err
	}
	if msg, _ := reply.(string); !strings.EqualFold(msg, "PONG") {
		return fmt.Errorf("redis: unexpected PING reply %v", reply)
	}
	return nil
}

// Close drains and closes pooled connections.
func (s *Store) Close() error {
	for {
		select {
		case c := <-s.pool:
			_ = c.Close()
		default:
			return nil
		}
	}
}

func (s *Store) do(ctx context.Context, parts ...string) (any, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	c, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	reply, err := s.roundTrip(ctx, c, parts...)
	var replyErr errorReply
	broken := err != nil && !errors.As(err, &replyErr)
	s.release(c, broken)
	return reply, err
}

func (s *Store) roundTrip(ctx context.Context, c *conn, parts ...string) (any, error) {
	deadline := time.Now().Add(s.opts.IOTimeout)
	if ctx != nil {
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
	}
	if err := c.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := c.Write(appendCommand(nil, parts...)); err != nil {
		return nil, err
	}
	return readReply(c.r)
}

func (s *Store) acquire(ctx context.Context) (*conn, error) {
	select {
	case c := <-s.pool:
		return c, nil
	default:
	}

	nc, err := s.dial(ctx, s.opts)
	if err != nil {
		return nil, fmt.Errorf("redis: dial: %w", err)
	}
	c := &conn{Conn: nc, r: bufio.NewReader(nc)}
	if err := s.handshake(ctx, c); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return c, nil
}

func (s *Store) handshake(ctx context.Context, c *conn) error {
	if s.opts.Password != "" {
		reply, err := s.roundTrip(ctx, c, "AUTH", s.opts.Password)
		if err != nil {
			return err
		}
		if err := expectOK("AUTH", reply); err != nil {
			return err
		}
	}
	if s.opts.DB > 0 {
		reply, err := s.roundTrip(ctx, c, "SELECT", strconv.Itoa(s.opts.DB))
		if err != nil {
			return err
		}
		if err := expectOK("SELECT", reply); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) release(c *conn, broken bool) {
	if broken {
		_ = c.Close()
		return
	}
	select {
	case s.pool <- c:
	default:
		_ = c.Close()
	}
}

func expectOK(cmd string, reply any) error {
	if msg, ok := reply.(string); ok && strings.EqualFold(msg, "OK") {
		return nil
	}
	return fmt.Errorf("redis: %s failed: %v", cmd, reply)
}

func defaultDial(ctx context.Context, opts Options) (net.Conn, error) {
	d := &net.Dialer{Timeout: opts.DialTimeout}
	return d.DialContext(ctx, "tcp", opts.Addr)
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
