package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/corner4world/deepdetect/internal/config"
)

// Defaults applied by NewClient to zero fields.
const (
	DefaultHost             = "localhost"
	DefaultPort             = 6334
	DefaultCollectionPrefix = "dd_"
	DefaultTimeout          = 30 * time.Second
	DefaultBatchSize        = 100
)

var errClosed = errors.New("qdrant client is closed")

// Config holds the connection settings.
type Config struct {
	Host   string
	Port   int // gRPC port
	APIKey string
	UseTLS bool

	// Prefix namespaces the collections owned by the connector.
	Prefix  string
	Timeout time.Duration
}

// ConfigFrom converts the application settings.
func ConfigFrom(c config.QdrantConfig) Config {
	return Config{
		Host:    c.Host,
		Port:    c.Port,
		APIKey:  c.APIKey,
		UseTLS:  c.UseTLS,
		Prefix:  c.CollectionPrefix,
		Timeout: c.Timeout,
	}
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Prefix == "" {
		c.Prefix = DefaultCollectionPrefix
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client is a Qdrant connection shared by every index of an engine.
type Client struct {
	conn *qdrant.Client
	cfg  Config

	mu     sync.RWMutex
	closed bool
}

// NewClient opens a connection. The gRPC dial is lazy, so an unreachable
// server surfaces on the first call.
func NewClient(cfg Config) (*Client, error) {
	cfg.setDefaults()
	conn, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Client{conn: conn, cfg: cfg}, nil
}

// Close closes the connection. Later calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Ping checks the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, func(ctx context.Context) error {
		reply, err := c.conn.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if reply.GetVersion() == "" {
			return errors.New("unexpected health check response")
		}
		return nil
	})
}

// call runs fn under the read lock with the operation timeout.
func (c *Client) call(ctx context.Context, fn func(context.Context) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errClosed
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return fn(ctx)
}

func (c *Client) collection(index string) string {
	return c.cfg.Prefix + index
}
