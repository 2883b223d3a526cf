package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saviobatista/fsd-connector/internal/types"
)

// Key lifetimes
const (
	PositionTTL = 1 * time.Hour
	SessionTTL  = 24 * time.Hour
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func pilotKey(callsign string) string      { return "pilot:" + strings.ToUpper(callsign) }
func controllerKey(callsign string) string { return "atc:" + strings.ToUpper(callsign) }
func sessionKey(callsign string) string    { return "session:" + strings.ToUpper(callsign) }

// setData marshals value and stores it under key
func (c *Client) setData(ctx context.Context, key string, value interface{}, ttl time.Duration, dataType string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", dataType, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", dataType, err)
	}
	return nil
}

// getData retrieves data from Redis and unmarshals it into the target.
// It returns false when the key does not exist.
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}

// StorePilotState stores the latest pilot state
func (c *Client) StorePilotState(ctx context.Context, state *types.PilotState) error {
	return c.setData(ctx, pilotKey(state.Callsign), state, PositionTTL, "pilot state")
}

// GetPilotState returns the latest pilot state, or nil when unknown
func (c *Client) GetPilotState(ctx context.Context, callsign string) (*types.PilotState, error) {
	var state types.PilotState
	found, err := c.getData(ctx, pilotKey(callsign), &state, "pilot state")
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// DeletePilotState removes a pilot state
func (c *Client) DeletePilotState(ctx context.Context, callsign string) error {
	return c.client.Del(ctx, pilotKey(callsign)).Err()
}

// StoreControllerState stores the latest ATC state
func (c *Client) StoreControllerState(ctx context.Context, state *types.ControllerState) error {
	return c.setData(ctx, controllerKey(state.Callsign), state, PositionTTL, "controller state")
}

// GetControllerState returns the latest ATC state, or nil when unknown
func (c *Client) GetControllerState(ctx context.Context, callsign string) (*types.ControllerState, error) {
	var state types.ControllerState
	found, err := c.getData(ctx, controllerKey(callsign), &state, "controller state")
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// DeleteControllerState removes an ATC state
func (c *Client) DeleteControllerState(ctx context.Context, callsign string) error {
	return c.client.Del(ctx, controllerKey(callsign)).Err()
}

// StorePilotSession stores the open session of a pilot
func (c *Client) StorePilotSession(ctx context.Context, session *types.PilotSession) error {
	return c.setData(ctx, sessionKey(session.Callsign), session, SessionTTL, "pilot session")
}

// GetPilotSession returns the open session of a pilot, or nil when there is none
func (c *Client) GetPilotSession(ctx context.Context, callsign string) (*types.PilotSession, error) {
	var session types.PilotSession
	found, err := c.getData(ctx, sessionKey(callsign), &session, "pilot session")
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// DeletePilotSession removes the open session of a pilot
func (c *Client) DeletePilotSession(ctx context.Context, callsign string) error {
	return c.client.Del(ctx, sessionKey(callsign)).Err()
}
