package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceKey(t *testing.T) {
	assert.Equal(t, "latest:node-01", deviceKey("node-01"))
}

func TestDecodeRecords(t *testing.T) {
	values := []interface{}{
		`{"device":"node-b","timestamp":"2025-03-01T10:00:00.000Z","sensors":{"temperature":30}}`,
		nil,
		`not json`,
		`{"device":"node-a","timestamp":"2025-03-01T09:00:00.000Z"}`,
	}

	records := decodeRecords(values)

	assert.Len(t, records, 2)
	assert.Equal(t, "node-a", records[0].Device)
	assert.Equal(t, "node-b", records[1].Device)
	assert.Equal(t, 30.0, records[1].Sensors.Temperature)
}

func TestPingUnreachable(t *testing.T) {
	c := NewLatestCache("127.0.0.1:1", "", 0, time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, c.Ping(ctx))
}
