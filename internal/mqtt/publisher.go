package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aqua-backend/internal/models"
)

// Sender is the publish side of the adapter
type Sender interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Publisher sends actuator commands to the tank controller
type Publisher struct {
	sender       Sender
	commandTopic string
	now          func() time.Time
	logger       *zap.Logger
}

// NewPublisher creates a publisher that writes to commandTopic
func NewPublisher(sender Sender, commandTopic string, logger *zap.Logger) *Publisher {
	return &Publisher{
		sender:       sender,
		commandTopic: commandTopic,
		now:          time.Now,
		logger:       logger.Named("publisher"),
	}
}

// Feed asks the feeder to dispense one portion
func (p *Publisher) Feed(ctx context.Context) error {
	if err := p.sender.Publish(ctx, p.commandTopic, []byte(models.FeedPayload)); err != nil {
		return fmt.Errorf("failed to publish feed command: %w", err)
	}

	p.logger.Info("feed command sent", zap.String("topic", p.commandTopic))
	return nil
}

// SendCommand publishes a JSON command envelope on the command topic
func (p *Publisher) SendCommand(ctx context.Context, command string, value any) error {
	if command == "" {
		return errors.New("command is required")
	}

	payload, err := json.Marshal(models.Command{
		Command:   command,
		Value:     value,
		Timestamp: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	if err := p.sender.Publish(ctx, p.commandTopic, payload); err != nil {
		return fmt.Errorf("failed to publish command %s: %w", command, err)
	}

	p.logger.Info("command sent", zap.String("command", command), zap.String("topic", p.commandTopic))
	return nil
}
