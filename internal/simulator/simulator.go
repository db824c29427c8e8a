// Package simulator publishes random sensor telemetry for exercising the
// ingestion pipeline without hardware.
package simulator

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"math/rand/v2"
	"time"
)

// DefaultDevice is the device name carried by simulated payloads.
const DefaultDevice = "node-test"

// Publisher sends a payload to an MQTT topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type dht11 struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

type reading struct {
	Value int `json:"value"`
}

// Payload is the wire shape sent by a sensor node.
type Payload struct {
	Device    string  `json:"device"`
	Timestamp int64   `json:"timestamp"`
	DHT11     dht11   `json:"dht11"`
	LDR       reading `json:"ldr"`
	Soil      reading `json:"soil"`
}

// Generator produces random payloads.
type Generator struct {
	Device string
	Rand   *rand.Rand
	Now    func() time.Time
}

// NewGenerator creates a Generator for device seeded from the runtime.
func NewGenerator(device string) *Generator {
	if device == "" {
		device = DefaultDevice
	}
	return &Generator{
		Device: device,
		Rand:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		Now:    time.Now,
	}
}

// Next returns a payload with temperature in [20,35], humidity in [40,80],
// light in [200,800] and soil moisture in [300,800].
func (g *Generator) Next() Payload {
	return Payload{
		Device:    g.Device,
		Timestamp: g.Now().UnixMilli(),
		DHT11: dht11{
			Temperature: round1(20 + g.Rand.Float64()*15),
			Humidity:    round1(40 + g.Rand.Float64()*40),
		},
		LDR:  reading{Value: int(math.Round(200 + g.Rand.Float64()*600))},
		Soil: reading{Value: int(math.Round(300 + g.Rand.Float64()*500))},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Run publishes one payload immediately and then one per interval until ctx
// is done. Publish errors are logged and do not stop the loop.
func Run(ctx context.Context, gen *Generator, pub Publisher, topic string, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		publishOnce(ctx, gen, pub, topic)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func publishOnce(ctx context.Context, gen *Generator, pub Publisher, topic string) {
	p := gen.Next()
	body, err := json.Marshal(p)
	if err != nil {
		log.Printf("Error encoding payload: %v", err)
		return
	}
	if err := pub.Publish(ctx, topic, body); err != nil {
		log.Printf("Publish error: %v", err)
		return
	}
	log.Printf("Published to %s: temperature=%.1f humidity=%.1f ldr=%d soil=%d",
		topic, p.DHT11.Temperature, p.DHT11.Humidity, p.LDR.Value, p.Soil.Value)
}
