package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"SmartWater.influxDB/internal/metrics"
	"SmartWater.influxDB/internal/models"
)

// ErrInvalidCommand is returned for anything other than "ON" or "OFF".
var ErrInvalidCommand = errors.New(`invalid command, use "ON" or "OFF"`)

// Publisher sends a payload to an MQTT topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// CommandService relays device commands to the command topic.
type CommandService struct {
	publisher Publisher
	topic     string
	metrics   *metrics.Metrics
}

// NewCommandService creates a new CommandService.
func NewCommandService(publisher Publisher, topic string, m *metrics.Metrics) *CommandService {
	return &CommandService{publisher: publisher, topic: topic, metrics: m}
}

// Relay validates raw and publishes it verbatim. Nothing is published for an
// invalid command.
func (s *CommandService) Relay(ctx context.Context, raw string) (models.Command, error) {
	cmd, ok := models.ParseCommand(raw)
	if !ok {
		s.metrics.Command("", metrics.OutcomeInvalid)
		return "", ErrInvalidCommand
	}

	if err := s.publisher.Publish(ctx, s.topic, []byte(cmd)); err != nil {
		s.metrics.Command(string(cmd), metrics.OutcomeFailure)
		return "", fmt.Errorf("failed to publish command %s to %s: %w", cmd, s.topic, err)
	}

	s.metrics.Command(string(cmd), metrics.OutcomeSuccess)
	log.Printf("Command %s sent to %s", cmd, s.topic)
	return cmd, nil
}
