// Package cache keeps the most recent enriched record per device in Redis so
// new push subscribers start with current values.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"SmartWater.influxDB/internal/models"
	"github.com/go-redis/redis/v8"
)

const keyPrefix = "latest:"

// LatestCache stores one record per device with a TTL.
type LatestCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLatestCache creates the Redis client. Connect with Ping.
func NewLatestCache(addr, password string, db int, ttl time.Duration) *LatestCache {
	return &LatestCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Ping tests the Redis connection.
func (c *LatestCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("could not connect to Redis: %w", err)
	}
	log.Println("Connected to Redis successfully!")
	return nil
}

// SaveLatest replaces the cached record for rec.Device.
func (c *LatestCache) SaveLatest(ctx context.Context, rec models.EnrichedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("error encoding record for %s: %w", rec.Device, err)
	}
	if err := c.client.Set(ctx, deviceKey(rec.Device), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("error caching record for %s: %w", rec.Device, err)
	}
	return nil
}

// Latest returns every cached record ordered by device.
func (c *LatestCache) Latest(ctx context.Context) ([]models.EnrichedRecord, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning cached records: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading cached records: %w", err)
	}
	return decodeRecords(values), nil
}

// Close releases the Redis connection pool.
func (c *LatestCache) Close() error {
	return c.client.Close()
}

func deviceKey(device string) string {
	return keyPrefix + device
}

// decodeRecords skips expired (nil) and undecodable entries.
func decodeRecords(values []interface{}) []models.EnrichedRecord {
	records := make([]models.EnrichedRecord, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.EnrichedRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			log.Printf("Skipping undecodable cached record: %v", err)
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Device < records[j].Device })
	return records
}
