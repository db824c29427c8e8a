// Package prediction calls the external watering inference service.
package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SmartWater.influxDB/internal/metrics"
	"SmartWater.influxDB/internal/models"
	"github.com/go-resty/resty/v2"
)

// ErrUnexpectedStatus is returned for any non-2xx inference response.
var ErrUnexpectedStatus = errors.New("unexpected inference response status")

// ErrInvalidPrediction is returned when the service answers with a result
// outside its contract.
var ErrInvalidPrediction = errors.New("invalid prediction")

const (
	KindWaterClass  = "water_class"
	KindWaterAmount = "water_amount"

	waterClassPath  = "/predict/water-class"
	waterAmountPath = "/predict/water-amount"
)

// DefaultTimeout bounds a single inference call.
const DefaultTimeout = 30 * time.Second

type waterClassRequest struct {
	Temperature  float64 `json:"temperature"`
	SoilMoisture float64 `json:"soil_moisture"`
}

type waterAmountRequest struct {
	Temperature  float64 `json:"temperature"`
	SoilMoisture float64 `json:"soil_moisture"`
	Humidity     float64 `json:"humidity"`
	LightLevel   float64 `json:"light_level"`
}

// Client talks to the inference service. It performs no input validation and
// no retries; callers pass only numeric readings.
type Client struct {
	http    *resty.Client
	metrics *metrics.Metrics
}

// NewClient creates a client for the service at baseURL. A zero timeout
// falls back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		metrics: m,
	}
}

// WaterClass asks whether the plant should be watered.
func (c *Client) WaterClass(ctx context.Context, temperature, soilMoisture float64) (models.ClassificationResult, error) {
	var result models.ClassificationResult
	err := c.post(ctx, KindWaterClass, waterClassPath, waterClassRequest{
		Temperature:  temperature,
		SoilMoisture: soilMoisture,
	}, &result)
	if err != nil {
		return models.ClassificationResult{}, err
	}
	if result.Prediction != 0 && result.Prediction != 1 {
		return models.ClassificationResult{}, fmt.Errorf("%w: water class %d", ErrInvalidPrediction, result.Prediction)
	}
	return result, nil
}

// WaterAmount asks how many millilitres to water.
func (c *Client) WaterAmount(ctx context.Context, temperature, soilMoisture, humidity, lightLevel float64) (models.RegressionResult, error) {
	var result models.RegressionResult
	err := c.post(ctx, KindWaterAmount, waterAmountPath, waterAmountRequest{
		Temperature:  temperature,
		SoilMoisture: soilMoisture,
		Humidity:     humidity,
		LightLevel:   lightLevel,
	}, &result)
	if err != nil {
		return models.RegressionResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, kind, path string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		c.metrics.Prediction(kind, outcome, time.Since(start).Seconds())
	}()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("error calling %s: %w", path, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: %s returned %s", ErrUnexpectedStatus, path, resp.Status())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("error parsing %s response: %w", path, err)
	}
	return nil
}
