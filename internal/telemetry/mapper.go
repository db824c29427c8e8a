package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"SmartWater.influxDB/internal/models"
)

// DefaultMeasurement is the measurement raw sensor points are written to.
const DefaultMeasurement = "sensor_data"

// MapPoints converts a record into one point per numeric sensor field.
// Fields whose value does not coerce to a finite number are skipped.
func MapPoints(measurement string, record models.TelemetryRecord) []models.SensorPoint {
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	ts := record.TimestampNs()

	fields := []struct {
		sensorType string
		key        string
		raw        any
	}{
		{models.SensorDHT11, "temperature", record.Temperature},
		{models.SensorDHT11, "humidity", record.Humidity},
		{models.SensorLDR, "value", record.LightLevel},
		{models.SensorSoilMoisture, "value", record.SoilMoisture},
	}

	var points []models.SensorPoint
	for _, f := range fields {
		value, ok := Coerce(f.raw)
		if !ok {
			continue
		}
		points = append(points, models.SensorPoint{
			Measurement: measurement,
			Device:      record.Device,
			SensorType:  f.sensorType,
			FieldKey:    f.key,
			FieldValue:  value,
			TimestampNs: ts,
		})
	}
	return points
}

// Coerce converts a decoded JSON value to a finite float64. Numbers and
// numeric strings convert; nil, booleans, objects and arrays do not.
func Coerce(raw any) (float64, bool) {
	var (
		v   float64
		err error
	)
	switch t := raw.(type) {
	case json.Number:
		v, err = t.Float64()
	case float64:
		v = t
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case string:
		v, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
