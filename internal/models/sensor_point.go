package models

// SensorPoint is a single raw sensor field destined for the time-series store.
type SensorPoint struct {
	Measurement string
	Device      string
	SensorType  string
	FieldKey    string
	FieldValue  float64
	TimestampNs int64
}

// PredictionPoint stores both inference results for one enriched record.
type PredictionPoint struct {
	Measurement   string
	Device        string
	ShouldWater   int
	WaterAmountMl float64
	TimestampNs   int64
}
