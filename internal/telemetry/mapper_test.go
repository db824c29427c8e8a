package telemetry

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartWater.influxDB/internal/models"
)

func TestMapPoints_AllSensors(t *testing.T) {
	payload := `{"device":"node-01","timestamp":1000,"dht11":{"temperature":27.5,"humidity":72},"ldr":{"value":450},"soil":{"value":512}}`
	record, err := newTestParser().Parse("sensors/node-01/telemetry", []byte(payload))
	require.NoError(t, err)

	points := MapPoints("", record)
	require.Len(t, points, 4)

	want := []models.SensorPoint{
		{Measurement: "sensor_data", Device: "node-01", SensorType: "dht11", FieldKey: "temperature", FieldValue: 27.5, TimestampNs: 1_000_000_000},
		{Measurement: "sensor_data", Device: "node-01", SensorType: "dht11", FieldKey: "humidity", FieldValue: 72, TimestampNs: 1_000_000_000},
		{Measurement: "sensor_data", Device: "node-01", SensorType: "ldr", FieldKey: "value", FieldValue: 450, TimestampNs: 1_000_000_000},
		{Measurement: "sensor_data", Device: "node-01", SensorType: "soil_moisture", FieldKey: "value", FieldValue: 512, TimestampNs: 1_000_000_000},
	}
	assert.Equal(t, want, points)
}

func TestMapPoints_SkipsNonNumericSiblings(t *testing.T) {
	payload := `{"dht11":{"temperature":"hot","humidity":55},"soil":{"value":null}}`
	record, err := newTestParser().Parse("sensors/n/t", []byte(payload))
	require.NoError(t, err)

	points := MapPoints("sensor_data", record)
	require.Len(t, points, 1)
	assert.Equal(t, "humidity", points[0].FieldKey)
	assert.Equal(t, 55.0, points[0].FieldValue)
}

func TestMapPoints_OnlyLDR(t *testing.T) {
	record, err := newTestParser().Parse("sensors/n/t", []byte(`{"ldr":{"value":300}}`))
	require.NoError(t, err)

	points := MapPoints("sensor_data", record)
	require.Len(t, points, 1)
	assert.Equal(t, models.SensorLDR, points[0].SensorType)
	assert.Equal(t, 300.0, points[0].FieldValue)
}

func TestMapPoints_Idempotent(t *testing.T) {
	record := models.TelemetryRecord{
		Device:      "node-02",
		TimestampMs: 42,
		Temperature: json.Number("21"),
		LightLevel:  "300",
	}
	assert.Equal(t, MapPoints("m", record), MapPoints("m", record))
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		raw  any
		want float64
		ok   bool
	}{
		{json.Number("12.5"), 12.5, true},
		{float64(3), 3, true},
		{" 7 ", 7, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{math.NaN(), 0, false},
		{nil, 0, false},
		{true, 0, false},
		{map[string]any{}, 0, false},
	}
	for _, tt := range tests {
		got, ok := Coerce(tt.raw)
		assert.Equal(t, tt.ok, ok, "raw %#v", tt.raw)
		if tt.ok {
			assert.Equal(t, tt.want, got)
		}
	}
}
