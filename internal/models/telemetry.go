package models

// Sensor groups as they appear in the sensor_type tag.
const (
	SensorDHT11        = "dht11"
	SensorLDR          = "ldr"
	SensorSoilMoisture = "soil_moisture"
)

// TelemetryRecord is one validated inbound sensor payload.
// Sensor values hold the raw decoded JSON value; nil means absent or null.
type TelemetryRecord struct {
	Device       string
	TimestampMs  int64
	Temperature  any
	Humidity     any
	LightLevel   any
	SoilMoisture any
}

// TimestampNs returns the record time in nanoseconds since the epoch.
func (r TelemetryRecord) TimestampNs() int64 {
	return r.TimestampMs * 1_000_000
}
