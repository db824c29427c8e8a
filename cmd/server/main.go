package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/pflag"

	"SmartWater.influxDB/internal/cache"
	"SmartWater.influxDB/internal/config"
	"SmartWater.influxDB/internal/controller"
	"SmartWater.influxDB/internal/metrics"
	"SmartWater.influxDB/internal/middleware"
	"SmartWater.influxDB/internal/prediction"
	"SmartWater.influxDB/internal/repository"
	"SmartWater.influxDB/internal/routes"
	"SmartWater.influxDB/internal/service"
	"SmartWater.influxDB/internal/transport"
	"SmartWater.influxDB/internal/websocket"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path to an env file")
	pflag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Storage sink
	repo := repository.NewInfluxDBRepository(repository.Options{
		URL:           cfg.Influx.URL,
		Token:         cfg.Influx.Token,
		Org:           cfg.Influx.Org,
		Bucket:        cfg.Influx.Bucket,
		AppTag:        cfg.Influx.AppTag,
		FlushInterval: cfg.Influx.FlushInterval,
	}, m)
	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := repo.Ping(startupCtx); err != nil {
		log.Fatalf("Error connecting to InfluxDB: %v", err)
	}
	if cfg.Influx.CreateBucket {
		if err := repo.EnsureBucket(startupCtx); err != nil {
			log.Fatalf("Error preparing bucket: %v", err)
		}
	}
	cancel()

	// Latest-record cache
	var (
		latest   service.LatestStore
		snapshot websocket.Snapshotter
		redis    *cache.LatestCache
	)
	if cfg.Redis.Addr != "" {
		redis = cache.NewLatestCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LatestTTL)
		if err := redis.Ping(ctx); err != nil {
			log.Printf("warning: %v, latest-record replay unavailable until Redis is reachable", err)
		}
		latest, snapshot = redis, redis
	}

	hub := websocket.NewHub(snapshot, m)
	predictor := prediction.NewClient(cfg.MLServiceURL, cfg.MLTimeout, m)
	telemetrySvc := service.NewTelemetryService(service.TelemetryConfig{
		SensorMeasurement:     cfg.Influx.Measurement,
		PredictionMeasurement: "prediction",
		PredictionTimeout:     cfg.MLTimeout,
	}, repo, predictor, hub, latest, m)

	// Broker
	broker := transport.NewMQTTClient(transport.Options{
		BrokerURL:      cfg.MQTT.URL,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ConnectTimeout: 10 * time.Second,
	})
	if err := broker.Subscribe(cfg.MQTT.Topic, telemetrySvc.HandleMessage); err != nil {
		log.Fatalf("Error subscribing to %s: %v", cfg.MQTT.Topic, err)
	}
	if err := broker.Connect(10 * time.Second); err != nil {
		log.Fatalf("Error connecting to MQTT broker: %v", err)
	}

	// HTTP API
	auth, err := middleware.NewAuth0Middleware(middleware.Auth0Config{
		Issuer:   cfg.Auth0.Issuer,
		Audience: cfg.Auth0.Audience,
		JWKSURL:  cfg.Auth0.JWKSURL,
	})
	if err != nil {
		log.Fatalf("Error configuring authentication: %v", err)
	}
	router := mux.NewRouter()
	routes.RegisterRoutes(router, routes.Deps{
		Command: controller.NewCommandController(service.NewCommandService(broker, cfg.MQTT.CommandTopic, m)),
		Live:    hub.ServeWS,
		Metrics: m,
		Auth:    auth,
	})
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Server is running at: http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdown(cfg.ShutdownTimeout, broker, cfg.MQTT.Topic, server, hub, telemetrySvc, repo, redis)
	log.Println("Shutdown complete")
}

// shutdown stops intake first, then drains in-flight work, flushes the
// write buffer and finally closes the connections it depended on.
func shutdown(timeout time.Duration, broker *transport.MQTTClient, topic string, server *http.Server,
	hub *websocket.Hub, svc *service.TelemetryService, repo *repository.InfluxDBRepository, redis *cache.LatestCache) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := broker.Unsubscribe(topic); err != nil {
		log.Printf("Error unsubscribing from %s: %v", topic, err)
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	hub.CloseAll()

	if err := svc.Wait(ctx); err != nil {
		log.Printf("Gave up waiting for in-flight messages: %v", err)
	}

	repo.Close()
	broker.Disconnect(250 * time.Millisecond)

	if redis != nil {
		if err := redis.Close(); err != nil {
			log.Printf("Error closing Redis: %v", err)
		}
	}
}
