package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"SmartWater.influxDB/internal/metrics"
	"SmartWater.influxDB/internal/models"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
)

// ErrSinkClosed is returned for writes after Close.
var ErrSinkClosed = errors.New("storage sink closed")

// Repository is the time-series sink used by the telemetry pipeline.
type Repository interface {
	WriteSensorPoints(ctx context.Context, points []models.SensorPoint) error
	WritePrediction(ctx context.Context, point models.PredictionPoint) error
}

// Options configures an InfluxDBRepository.
type Options struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	AppTag        string        // added to every point as the "app" tag
	FlushInterval time.Duration // 0 keeps the client default
	RetryInterval time.Duration // first retry delay after a failed flush, 0 keeps the client default
}

// InfluxDBRepository buffers points and writes them to InfluxDB in the
// background. Writes from concurrent handlers are safe.
type InfluxDBRepository struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

// NewInfluxDBRepository creates a new InfluxDBRepository. Nothing is sent to
// the server until the first flush.
func NewInfluxDBRepository(opts Options, m *metrics.Metrics) *InfluxDBRepository {
	clientOpts := influxdb2.DefaultOptions().SetPrecision(time.Nanosecond)
	if opts.FlushInterval > 0 {
		clientOpts.SetFlushInterval(uint(opts.FlushInterval.Milliseconds()))
	}
	if opts.RetryInterval > 0 {
		clientOpts.SetRetryInterval(uint(opts.RetryInterval.Milliseconds()))
	}
	if opts.AppTag != "" {
		clientOpts.AddDefaultTag("app", opts.AppTag)
	}

	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token, clientOpts)
	r := &InfluxDBRepository{
		client:   client,
		writeAPI: client.WriteAPI(opts.Org, opts.Bucket),
		org:      opts.Org,
		bucket:   opts.Bucket,
		metrics:  m,
	}
	go r.logWriteErrors(r.writeAPI.Errors())
	return r
}

// logWriteErrors drains asynchronous flush failures. The client keeps failed
// batches in its retry buffer and tries again on the next flush.
func (r *InfluxDBRepository) logWriteErrors(errs <-chan error) {
	for err := range errs {
		r.metrics.StorageError()
		log.Printf("Error writing to InfluxDB bucket %s: %v", r.bucket, err)
	}
}

// Ping checks the connection health.
func (r *InfluxDBRepository) Ping(ctx context.Context) error {
	health, err := r.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != domain.HealthCheckStatusPass {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", msg)
	}
	log.Println("Successfully connected to InfluxDB!")
	return nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
func (r *InfluxDBRepository) EnsureBucket(ctx context.Context) error {
	exists, err := r.BucketExists(ctx, r.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	log.Printf("Bucket '%s' does not exist, creating it.", r.bucket)
	return r.CreateBucket(ctx, r.bucket)
}

// BucketExists checks if a bucket exists in InfluxDB.
func (r *InfluxDBRepository) BucketExists(ctx context.Context, name string) (bool, error) {
	buckets, err := r.client.BucketsAPI().FindBucketsByOrgName(ctx, r.org, api.PagingWithLimit(100))
	if err != nil {
		return false, fmt.Errorf("error checking bucket existence: %w", err)
	}
	if buckets == nil {
		return false, nil
	}
	for _, b := range *buckets {
		if b.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateBucket creates a new bucket in InfluxDB.
func (r *InfluxDBRepository) CreateBucket(ctx context.Context, name string) error {
	org, err := r.client.OrganizationsAPI().FindOrganizationByName(ctx, r.org)
	if err != nil {
		return fmt.Errorf("error finding organization '%s': %w", r.org, err)
	}
	if org == nil {
		return fmt.Errorf("organization '%s' not found", r.org)
	}

	if _, err := r.client.BucketsAPI().CreateBucketWithName(ctx, org, name); err != nil {
		return fmt.Errorf("error creating bucket '%s': %w", name, err)
	}
	log.Printf("Bucket '%s' created successfully.", name)
	return nil
}

// WriteSensorPoints appends raw sensor points to the write buffer.
func (r *InfluxDBRepository) WriteSensorPoints(_ context.Context, points []models.SensorPoint) error {
	if len(points) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrSinkClosed
	}

	for _, p := range points {
		r.writeAPI.WritePoint(newSensorPoint(p))
	}
	r.metrics.PointsWritten(points[0].Measurement, len(points))
	return nil
}

// WritePrediction appends a prediction point to the write buffer.
func (r *InfluxDBRepository) WritePrediction(_ context.Context, p models.PredictionPoint) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrSinkClosed
	}

	r.writeAPI.WritePoint(newPredictionPoint(p))
	r.metrics.PointsWritten(p.Measurement, 1)
	return nil
}

// Flush forces buffered points out to the server.
func (r *InfluxDBRepository) Flush() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.writeAPI.Flush()
}

// Close flushes pending writes and releases the client. Later writes fail
// with ErrSinkClosed.
func (r *InfluxDBRepository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.writeAPI.Flush()
	r.client.Close()
	log.Printf("InfluxDB write buffer flushed, bucket: %s", r.bucket)
}

func newSensorPoint(p models.SensorPoint) *write.Point {
	return influxdb2.NewPoint(
		p.Measurement,
		map[string]string{"device": p.Device, "sensor_type": p.SensorType},
		map[string]interface{}{p.FieldKey: p.FieldValue},
		time.Unix(0, p.TimestampNs),
	)
}

func newPredictionPoint(p models.PredictionPoint) *write.Point {
	return influxdb2.NewPoint(
		p.Measurement,
		map[string]string{"device": p.Device},
		map[string]interface{}{
			"should_water":    p.ShouldWater,
			"water_amount_ml": p.WaterAmountMl,
		},
		time.Unix(0, p.TimestampNs),
	)
}
