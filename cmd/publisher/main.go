package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"SmartWater.influxDB/internal/config"
	"SmartWater.influxDB/internal/simulator"
	"SmartWater.influxDB/internal/transport"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path to an env file")
	interval := pflag.Int("interval", 5, "seconds between published payloads (minimum 1)")
	device := pflag.String("device", simulator.DefaultDevice, "device name carried in payloads")
	pflag.Parse()

	cfg, err := config.LoadPublisherConfig(*envFile)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if *interval < 1 {
		*interval = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := transport.NewMQTTClient(transport.Options{
		BrokerURL: cfg.URL,
		ClientID:  cfg.ClientID,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err := client.Connect(10 * time.Second); err != nil {
		log.Fatalf("Error connecting to MQTT broker: %v", err)
	}

	log.Printf("Publishing to topic %s every %ds", cfg.PublishTopic, *interval)
	simulator.Run(ctx, simulator.NewGenerator(*device), client, cfg.PublishTopic, time.Duration(*interval)*time.Second)

	log.Println("Stopping publisher...")
	client.Disconnect(250 * time.Millisecond)
}
