// Package transport wraps the MQTT broker connection used for telemetry
// ingestion and device commands.
package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// QoSAtLeastOnce is used for both inbound telemetry and outbound commands.
const QoSAtLeastOnce byte = 1

// Handler processes one inbound message. Handlers for different messages run
// concurrently.
type Handler func(topic string, payload []byte)

// Options configures the broker connection.
type Options struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// MQTTClient keeps subscriptions alive across reconnects.
type MQTTClient struct {
	client mqtt.Client
	qos    byte

	mu   sync.Mutex
	subs map[string]Handler
}

// NewMQTTClient builds a client; call Connect to dial the broker.
func NewMQTTClient(opts Options) *MQTTClient {
	c := &MQTTClient{
		qos:  QoSAtLeastOnce,
		subs: make(map[string]Handler),
	}

	o := mqtt.NewClientOptions().AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		o.SetPassword(opts.Password)
	}
	if opts.ConnectTimeout > 0 {
		o.SetConnectTimeout(opts.ConnectTimeout)
	}
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(5 * time.Second)
	o.SetOrderMatters(false)
	o.SetOnConnectHandler(c.onConnect)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})
	o.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("Reconnecting to MQTT broker...")
	})

	c.client = mqtt.NewClient(o)
	return c
}

// Connect dials the broker and waits up to wait for the first connection.
// The client keeps retrying in the background after wait elapses.
func (c *MQTTClient) Connect(wait time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(wait) {
		log.Printf("MQTT broker not reachable within %s, retrying in background", wait)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("error connecting to MQTT broker: %w", err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is (re)issued on
// every successful connect.
func (c *MQTTClient) Subscribe(topic string, handler Handler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(topic, handler)
}

// Unsubscribe stops delivery for the given topics.
func (c *MQTTClient) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timed out unsubscribing from %v", topics)
	}
	return token.Error()
}

// Publish sends payload to topic and waits for the broker acknowledgement.
func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, c.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("error publishing to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("error publishing to %s: %w", topic, ctx.Err())
	}
}

// Disconnect waits up to quiesce for in-flight work, then closes.
func (c *MQTTClient) Disconnect(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce.Milliseconds()))
	log.Println("MQTT connection closed")
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("Connected to MQTT broker")

	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		if err := c.subscribe(topic, handler); err != nil {
			log.Printf("Subscribe error on %s: %v", topic, err)
		}
	}
}

func (c *MQTTClient) subscribe(topic string, handler Handler) error {
	token := c.client.Subscribe(topic, c.qos, messageHandler(handler))
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out subscribing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("error subscribing to %s: %w", topic, err)
	}
	log.Printf("Subscribed to %s (qos %d)", topic, c.qos)
	return nil
}

func messageHandler(handler Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}
}
