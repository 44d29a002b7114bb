package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/onurcolak/event-automation-service/environments"
	"github.com/onurcolak/event-automation-service/internal/domain"
	"github.com/onurcolak/event-automation-service/pkg/logger"
)

type Client struct {
	client valkey.Client
}

const (
	dispatchKeyPrefix = "automation_dispatch:"
	dispatchTTL       = 24 * time.Hour
)

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

// CacheDispatch stores the latest dispatch for a rule, replacing the previous one.
func (c *Client) CacheDispatch(ctx context.Context, dispatch domain.CachedDispatch) error {
	data, err := json.Marshal(dispatch)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := dispatchKeyPrefix + dispatch.Result.AutomationID

	err = c.client.Do(ctx, c.client.B().Set().Key(key).Value(string(data)).Ex(dispatchTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache dispatch: %w", err)
	}

	logger.Debugf("Cached dispatch for automation %s (status: %s)", dispatch.Result.AutomationID, dispatch.Result.Status)

	return nil
}

// GetCachedDispatch returns nil without error when nothing is cached.
func (c *Client) GetCachedDispatch(ctx context.Context, automationID string) (*domain.CachedDispatch, error) {
	result := c.client.Do(ctx, c.client.B().Get().Key(dispatchKeyPrefix+automationID).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached dispatch: %w", result.Error())
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached dispatch: %w", err)
	}

	var cached domain.CachedDispatch
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &cached, nil
}

func (c *Client) GetAllCachedDispatches(ctx context.Context) (map[string]*domain.CachedDispatch, error) {
	pattern := dispatchKeyPrefix + "*"

	var keys []string
	var cursor uint64
	for {
		result := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build())
		if result.Error() != nil {
			return nil, fmt.Errorf("failed to scan cache keys: %w", result.Error())
		}

		scanResult, err := result.AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to parse scan result: %w", err)
		}

		keys = append(keys, scanResult.Elements...)
		cursor = scanResult.Cursor

		if cursor == 0 {
			break
		}
	}

	out := make(map[string]*domain.CachedDispatch, len(keys))

	for _, key := range keys {
		automationID := strings.TrimPrefix(key, dispatchKeyPrefix)

		cached, err := c.GetCachedDispatch(ctx, automationID)
		if err != nil {
			logger.Warnf("failed to read cached dispatch %q: %v", key, err)
			continue
		}
		if cached == nil {
			continue
		}

		out[automationID] = cached
	}

	return out, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
