// Package telemetry turns raw MQTT sensor payloads into typed records and
// time-series points. Everything here is pure; no I/O happens in this package.
package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"time"

	"SmartWater.influxDB/internal/models"
)

// ErrMalformedPayload is returned when a payload is not a JSON object.
var ErrMalformedPayload = errors.New("malformed telemetry payload")

const unknownDevice = "unknown"

// maxTimestampMs keeps TimestampMs*1e6 inside int64.
const maxTimestampMs = math.MaxInt64 / 1_000_000

// Parser decodes telemetry payloads. Now supplies the receipt time used when a
// payload carries no usable timestamp.
type Parser struct {
	Now func() time.Time
}

// NewParser returns a Parser using the wall clock.
func NewParser() *Parser {
	return &Parser{Now: time.Now}
}

// Parse decodes payload received on topic into a TelemetryRecord.
func (p *Parser) Parse(topic string, payload []byte) (models.TelemetryRecord, error) {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return models.TelemetryRecord{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if doc == nil {
		return models.TelemetryRecord{}, fmt.Errorf("%w: payload is null", ErrMalformedPayload)
	}
	if _, err := dec.Token(); err != io.EOF {
		return models.TelemetryRecord{}, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedPayload)
	}

	record := models.TelemetryRecord{
		Device:      resolveDevice(doc, topic),
		TimestampMs: p.resolveTimestamp(doc),
	}

	if dht, ok := group(doc, "dht11", "temperature", "humidity"); ok {
		record.Temperature = dht["temperature"]
		record.Humidity = dht["humidity"]
	}
	if ldr, ok := group(doc, "ldr", "value"); ok {
		record.LightLevel = ldr["value"]
	}
	if soil, ok := group(doc, "soil", "value"); ok {
		record.SoilMoisture = soil["value"]
	}
	return record, nil
}

// DeviceFromTopic returns the second segment of a <prefix>/<device>/... topic.
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return unknownDevice
}

func resolveDevice(doc map[string]any, topic string) string {
	if device, ok := doc["device"].(string); ok && device != "" {
		return device
	}
	return DeviceFromTopic(topic)
}

func (p *Parser) resolveTimestamp(doc map[string]any) int64 {
	raw := doc["timestamp"]
	num, ok := raw.(json.Number)
	if !ok {
		return p.Now().UnixMilli()
	}
	ms, err := num.Float64()
	if err != nil || ms < 0 || ms > maxTimestampMs {
		log.Printf("warning: timestamp %v out of range, using receipt time", raw)
		return p.Now().UnixMilli()
	}
	return int64(ms)
}

// group returns doc[name] when it is an object holding at least one of keys.
// Any other shape is treated as an absent group.
func group(doc map[string]any, name string, keys ...string) (map[string]any, bool) {
	obj, ok := doc[name].(map[string]any)
	if !ok {
		return nil, false
	}
	for _, k := range keys {
		if _, found := obj[k]; found {
			return obj, true
		}
	}
	return nil, false
}
