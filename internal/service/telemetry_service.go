package service

import (
	"context"
	"log"
	"sync"
	"time"

	"SmartWater.influxDB/internal/metrics"
	"SmartWater.influxDB/internal/models"
	"SmartWater.influxDB/internal/repository"
	"SmartWater.influxDB/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Outcome is the terminal state of one inbound message.
type Outcome int

const (
	// OutcomeDropped means the payload could not be parsed.
	OutcomeDropped Outcome = iota
	// OutcomeEnrichmentSkipped means raw points were stored but at least one
	// enrichment input was missing.
	OutcomeEnrichmentSkipped
	// OutcomeEnrichmentFailed means an inference call failed.
	OutcomeEnrichmentFailed
	// OutcomeBroadcast means the enriched record was stored and pushed.
	OutcomeBroadcast
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDropped:
		return "dropped"
	case OutcomeEnrichmentSkipped:
		return "enrichment_skipped"
	case OutcomeEnrichmentFailed:
		return "enrichment_failed"
	case OutcomeBroadcast:
		return "broadcast"
	}
	return "unknown"
}

// Predictor is the inference service.
type Predictor interface {
	WaterClass(ctx context.Context, temperature, soilMoisture float64) (models.ClassificationResult, error)
	WaterAmount(ctx context.Context, temperature, soilMoisture, humidity, lightLevel float64) (models.RegressionResult, error)
}

// Broadcaster pushes enriched records to live subscribers.
type Broadcaster interface {
	Broadcast(record models.EnrichedRecord) int
}

// LatestStore remembers the last enriched record per device.
type LatestStore interface {
	SaveLatest(ctx context.Context, record models.EnrichedRecord) error
}

// TelemetryConfig names the measurements and bounds inference latency.
type TelemetryConfig struct {
	SensorMeasurement     string
	PredictionMeasurement string
	PredictionTimeout     time.Duration
}

// TelemetryService runs the ingestion, enrichment and fan-out pipeline for
// each inbound MQTT message.
type TelemetryService struct {
	cfg         TelemetryConfig
	parser      *telemetry.Parser
	repo        repository.Repository
	predictor   Predictor
	broadcaster Broadcaster
	latest      LatestStore
	metrics     *metrics.Metrics

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// NewTelemetryService creates a new TelemetryService. latest may be nil.
func NewTelemetryService(cfg TelemetryConfig, repo repository.Repository, predictor Predictor, broadcaster Broadcaster, latest LatestStore, m *metrics.Metrics) *TelemetryService {
	if cfg.SensorMeasurement == "" {
		cfg.SensorMeasurement = telemetry.DefaultMeasurement
	}
	if cfg.PredictionMeasurement == "" {
		cfg.PredictionMeasurement = "prediction"
	}
	return &TelemetryService{
		cfg:         cfg,
		parser:      telemetry.NewParser(),
		repo:        repo,
		predictor:   predictor,
		broadcaster: broadcaster,
		latest:      latest,
		metrics:     m,
	}
}

// HandleMessage is the MQTT handler entry point. It tracks the message so
// Wait can drain in-flight work on shutdown. Messages arriving once Wait has
// been called are dropped.
func (s *TelemetryService) HandleMessage(topic string, payload []byte) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		log.Printf("warning: shutting down, dropping message on %s", topic)
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	s.Process(context.Background(), topic, payload)
}

// Wait stops accepting messages and blocks until in-flight ones finish or
// ctx is done.
func (s *TelemetryService) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs one message through the pipeline and reports where it ended.
func (s *TelemetryService) Process(ctx context.Context, topic string, payload []byte) Outcome {
	s.metrics.MessageReceived()

	record, err := s.parser.Parse(topic, payload)
	if err != nil {
		log.Printf("warning: dropping message on %s: %v", topic, err)
		s.metrics.MessageDropped(metrics.ReasonMalformed)
		return OutcomeDropped
	}

	points := telemetry.MapPoints(s.cfg.SensorMeasurement, record)
	if err := s.repo.WriteSensorPoints(ctx, points); err != nil {
		log.Printf("Error writing %d sensor points for %s: %v", len(points), record.Device, err)
	}

	in, ok := telemetry.EnrichmentInputs(record)
	if !ok {
		s.metrics.Enrichment(metrics.OutcomeSkipped)
		return OutcomeEnrichmentSkipped
	}

	enriched, err := s.enrich(ctx, record, in)
	if err != nil {
		return OutcomeEnrichmentFailed
	}

	if s.latest != nil {
		if err := s.latest.SaveLatest(ctx, enriched); err != nil {
			log.Printf("Error caching latest record for %s: %v", record.Device, err)
		}
	}
	n := s.broadcaster.Broadcast(enriched)
	log.Printf("Sensor + prediction for %s broadcast to %d subscriber(s)", record.Device, n)
	return OutcomeBroadcast
}

// enrich issues both inference calls concurrently, joins them and stores the
// prediction point. Nothing is stored unless both calls succeed.
func (s *TelemetryService) enrich(ctx context.Context, record models.TelemetryRecord, in telemetry.Inputs) (models.EnrichedRecord, error) {
	reqID := uuid.NewString()
	if s.cfg.PredictionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PredictionTimeout)
		defer cancel()
	}

	var (
		class  models.ClassificationResult
		amount models.RegressionResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		class, err = s.predictor.WaterClass(gctx, in.Temperature, in.SoilMoisture)
		return err
	})
	g.Go(func() error {
		var err error
		amount, err = s.predictor.WaterAmount(gctx, in.Temperature, in.SoilMoisture, in.Humidity, in.LightLevel)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("Enrichment %s failed for %s: %v", reqID, record.Device, err)
		s.metrics.Enrichment(metrics.OutcomeFailure)
		return models.EnrichedRecord{}, err
	}

	point := telemetry.PredictionPoint(s.cfg.PredictionMeasurement, record, class, amount)
	if err := s.repo.WritePrediction(ctx, point); err != nil {
		log.Printf("Error writing prediction point for %s: %v", record.Device, err)
	}
	s.metrics.Enrichment(metrics.OutcomeSuccess)

	return telemetry.Assemble(record, in, class, amount), nil
}
