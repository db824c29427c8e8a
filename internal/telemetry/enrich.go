package telemetry

import (
	"time"

	"SmartWater.influxDB/internal/models"
)

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Inputs are the four readings required before enrichment may run.
type Inputs struct {
	Temperature  float64
	Humidity     float64
	SoilMoisture float64
	LightLevel   float64
}

// EnrichmentInputs reports whether all four enrichment fields are numeric.
func EnrichmentInputs(record models.TelemetryRecord) (Inputs, bool) {
	temp, ok1 := Coerce(record.Temperature)
	hum, ok2 := Coerce(record.Humidity)
	soil, ok3 := Coerce(record.SoilMoisture)
	light, ok4 := Coerce(record.LightLevel)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Inputs{}, false
	}
	return Inputs{Temperature: temp, Humidity: hum, SoilMoisture: soil, LightLevel: light}, true
}

// Assemble combines a record's readings with both prediction results.
func Assemble(record models.TelemetryRecord, in Inputs, class models.ClassificationResult, amount models.RegressionResult) models.EnrichedRecord {
	return models.EnrichedRecord{
		Device:    record.Device,
		Timestamp: time.UnixMilli(record.TimestampMs).UTC().Format(isoMillis),
		Sensors: models.SensorReadings{
			Temperature:  in.Temperature,
			Humidity:     in.Humidity,
			SoilMoisture: in.SoilMoisture,
			LightLevel:   in.LightLevel,
		},
		Prediction: models.Prediction{
			WaterClass:  class,
			WaterAmount: amount,
		},
	}
}

// PredictionPoint builds the time-series point storing both predictions.
func PredictionPoint(measurement string, record models.TelemetryRecord, class models.ClassificationResult, amount models.RegressionResult) models.PredictionPoint {
	return models.PredictionPoint{
		Measurement:   measurement,
		Device:        record.Device,
		ShouldWater:   class.Prediction,
		WaterAmountMl: amount.Prediction,
		TimestampNs:   record.TimestampNs(),
	}
}
