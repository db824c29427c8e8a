package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartWater.influxDB/internal/metrics"
	"SmartWater.influxDB/internal/models"
)

// fakeInflux records line protocol bodies posted to /api/v2/write and serves
// just enough of the bucket and organization APIs.
type fakeInflux struct {
	mu            sync.Mutex
	lines         []string
	health        string
	failWrites    int // number of write requests answered with 503
	writeRequests int
	buckets       []string
	created       []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/health":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"influxdb","message":"ready","status":"`+f.health+`","checks":[]}`)
	case r.URL.Path == "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.writeRequests++
		if f.writeRequests <= f.failWrites {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"code":"unavailable","message":"storage engine busy"}`)
			return
		}
		for _, l := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if l != "" {
				f.lines = append(f.lines, l)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api/v2/orgs" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"orgs": []map[string]any{{"id": "0a1b2c3d4e5f6a7b", "name": r.URL.Query().Get("org")}},
		})
	case r.URL.Path == "/api/v2/buckets" && r.Method == http.MethodGet:
		list := []map[string]any{}
		for _, name := range f.buckets {
			list = append(list, map[string]any{"name": name, "retentionRules": []any{}})
		}
		writeJSON(w, http.StatusOK, map[string]any{"buckets": list})
	case r.URL.Path == "/api/v2/buckets" && r.Method == http.MethodPost:
		var req struct {
			Name  string `json:"name"`
			OrgID string `json:"orgID"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.buckets = append(f.buckets, req.Name)
		f.created = append(f.created, req.Name+"@"+req.OrgID)
		writeJSON(w, http.StatusCreated, map[string]any{"id": "b1", "name": req.Name, "orgID": req.OrgID, "retentionRules": []any{}})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) createdBuckets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeInflux) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeRequests
}

func newTestRepository(t *testing.T, health string) (*InfluxDBRepository, *fakeInflux) {
	t.Helper()
	return newRepositoryWith(t, &fakeInflux{health: health}, Options{FlushInterval: time.Hour}, nil)
}

func newRepositoryWith(t *testing.T, fake *fakeInflux, opts Options, m *metrics.Metrics) (*InfluxDBRepository, *fakeInflux) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	opts.URL = srv.URL
	opts.Token = "token"
	opts.Org = "org"
	opts.Bucket = "bucket"
	opts.AppTag = "iot-mqtt-influx-backend"
	return NewInfluxDBRepository(opts, m), fake
}

func TestPing(t *testing.T) {
	repo, _ := newTestRepository(t, "pass")
	defer repo.Close()
	assert.NoError(t, repo.Ping(context.Background()))

	failing, _ := newTestRepository(t, "fail")
	defer failing.Close()
	assert.Error(t, failing.Ping(context.Background()))
}

func TestWriteSensorPointsAndFlush(t *testing.T) {
	repo, fake := newTestRepository(t, "pass")
	defer repo.Close()

	points := []models.SensorPoint{
		{Measurement: "sensor_data", Device: "node-01", SensorType: "dht11", FieldKey: "temperature", FieldValue: 27.5, TimestampNs: 1_000_000_000},
		{Measurement: "sensor_data", Device: "node-01", SensorType: "ldr", FieldKey: "value", FieldValue: 450, TimestampNs: 1_000_000_000},
	}
	require.NoError(t, repo.WriteSensorPoints(context.Background(), points))
	require.NoError(t, repo.WritePrediction(context.Background(), models.PredictionPoint{
		Measurement: "prediction", Device: "node-01", ShouldWater: 1, WaterAmountMl: 150, TimestampNs: 1_000_000_000,
	}))
	assert.Empty(t, fake.written(), "nothing is sent before a flush")

	require.Eventually(t, func() bool {
		repo.Flush()
		return len(fake.written()) == 3
	}, 5*time.Second, 20*time.Millisecond)
	lines := fake.written()
	assert.Equal(t, "sensor_data,app=iot-mqtt-influx-backend,device=node-01,sensor_type=dht11 temperature=27.5 1000000000", lines[0])
	assert.Equal(t, "sensor_data,app=iot-mqtt-influx-backend,device=node-01,sensor_type=ldr value=450 1000000000", lines[1])
	assert.Equal(t, "prediction,app=iot-mqtt-influx-backend,device=node-01 should_water=1i,water_amount_ml=150 1000000000", lines[2])
}

func TestCloseFlushesAndRejectsLaterWrites(t *testing.T) {
	repo, fake := newTestRepository(t, "pass")

	require.NoError(t, repo.WriteSensorPoints(context.Background(), []models.SensorPoint{
		{Measurement: "sensor_data", Device: "d", SensorType: "soil_moisture", FieldKey: "value", FieldValue: 512, TimestampNs: 1},
	}))
	repo.Close()

	require.Eventually(t, func() bool { return len(fake.written()) == 1 }, 5*time.Second, 20*time.Millisecond)

	err := repo.WritePrediction(context.Background(), models.PredictionPoint{Measurement: "prediction", Device: "d"})
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.ErrorIs(t, repo.WriteSensorPoints(context.Background(), []models.SensorPoint{{Measurement: "m"}}), ErrSinkClosed)

	repo.Close()
}

func TestWriteSensorPointsEmptyIsNoop(t *testing.T) {
	repo, _ := newTestRepository(t, "pass")
	defer repo.Close()
	assert.NoError(t, repo.WriteSensorPoints(context.Background(), nil))
}

func TestFlushesOnInterval(t *testing.T) {
	repo, fake := newRepositoryWith(t, &fakeInflux{health: "pass"}, Options{FlushInterval: 50 * time.Millisecond}, nil)
	defer repo.Close()

	require.NoError(t, repo.WriteSensorPoints(context.Background(), []models.SensorPoint{
		{Measurement: "sensor_data", Device: "node-01", SensorType: "ldr", FieldKey: "value", FieldValue: 300, TimestampNs: 1},
		{Measurement: "sensor_data", Device: "node-01", SensorType: "soil_moisture", FieldKey: "value", FieldValue: 512, TimestampNs: 1},
	}))

	// No Flush or Close: the background ticker alone must deliver the points.
	require.Eventually(t, func() bool { return len(fake.written()) == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestFailedFlushIsCountedAndRetried(t *testing.T) {
	m := metrics.New()
	repo, fake := newRepositoryWith(t, &fakeInflux{health: "pass", failWrites: 1},
		Options{FlushInterval: 50 * time.Millisecond, RetryInterval: 10 * time.Millisecond}, m)
	defer repo.Close()

	require.NoError(t, repo.WriteSensorPoints(context.Background(), []models.SensorPoint{
		{Measurement: "sensor_data", Device: "node-01", SensorType: "ldr", FieldKey: "value", FieldValue: 300, TimestampNs: 1},
	}))
	require.Eventually(t, func() bool { return fake.attempts() >= 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, m), "smartwater_influxdb_write_errors_total 1")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, fake.written(), "rejected batch is not recorded")

	// The client retries on the next write once the retry delay (at most
	// twice RetryInterval) has passed.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, repo.WritePrediction(context.Background(), models.PredictionPoint{
		Measurement: "prediction", Device: "node-01", ShouldWater: 1, WaterAmountMl: 150, TimestampNs: 1,
	}))
	require.Eventually(t, func() bool { return len(fake.written()) == 2 }, 5*time.Second, 10*time.Millisecond)

	lines := fake.written()
	assert.Contains(t, lines, "sensor_data,app=iot-mqtt-influx-backend,device=node-01,sensor_type=ldr value=300 1")
	assert.Contains(t, lines, "prediction,app=iot-mqtt-influx-backend,device=node-01 should_water=1i,water_amount_ml=150 1")
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestEnsureBucketExisting(t *testing.T) {
	fake := &fakeInflux{health: "pass", buckets: []string{"_monitoring", "bucket"}}
	repo, _ := newRepositoryWith(t, fake, Options{FlushInterval: time.Hour}, nil)
	defer repo.Close()

	exists, err := repo.BucketExists(context.Background(), "bucket")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.EnsureBucket(context.Background()))
	assert.Empty(t, fake.createdBuckets())
}

func TestEnsureBucketCreatesMissing(t *testing.T) {
	fake := &fakeInflux{health: "pass", buckets: []string{"_tasks"}}
	repo, _ := newRepositoryWith(t, fake, Options{FlushInterval: time.Hour}, nil)
	defer repo.Close()

	exists, err := repo.BucketExists(context.Background(), "bucket")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.EnsureBucket(context.Background()))
	assert.Equal(t, []string{"bucket@0a1b2c3d4e5f6a7b"}, fake.createdBuckets())

	exists, err = repo.BucketExists(context.Background(), "bucket")
	require.NoError(t, err)
	assert.True(t, exists)
}
