package models

// ClassificationResult is the binary watering decision from the inference service.
type ClassificationResult struct {
	Prediction int    `json:"prediction"`
	Label      string `json:"label"`
}

// RegressionResult is the predicted watering amount in millilitres.
type RegressionResult struct {
	Prediction float64 `json:"prediction"`
	Label      string  `json:"label"`
}

type Prediction struct {
	WaterClass  ClassificationResult `json:"water_class"`
	WaterAmount RegressionResult     `json:"water_amount"`
}

type SensorReadings struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soil_moisture"`
	LightLevel   float64 `json:"light_level"`
}

// EnrichedRecord is what gets broadcast to push subscribers.
type EnrichedRecord struct {
	Device     string         `json:"device"`
	Timestamp  string         `json:"timestamp"` // ISO-8601, millisecond precision, UTC
	Sensors    SensorReadings `json:"sensors"`
	Prediction Prediction     `json:"prediction"`
}
