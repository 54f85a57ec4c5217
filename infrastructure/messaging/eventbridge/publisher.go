// Package eventbridge publishes domain events to an EventBridge bus.
// Publishing is best effort: ingestion and status changes never fail
// because an event could not be emitted.
package eventbridge

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	apperrors "meterhub-backend/pkg/errors"
)

const eventSource = "meterhub.backend"

// Client is the subset of the EventBridge API the publisher uses.
type Client interface {
	PutEvents(ctx context.Context, params *awseventbridge.PutEventsInput, optFns ...func(*awseventbridge.Options)) (*awseventbridge.PutEventsOutput, error)
}

// Publisher emits events onto the configured bus.
type Publisher struct {
	client  Client
	busName string
	logger  *zap.Logger
}

// NewPublisher creates an EventBridge publisher.
func NewPublisher(client Client, busName string, logger *zap.Logger) ports.EventPublisher {
	return &Publisher{client: client, busName: busName, logger: logger}
}

// Publish sends one event with a JSON detail payload.
func (p *Publisher) Publish(ctx context.Context, detailType string, detail any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal event detail")
	}

	out, err := p.client.PutEvents(ctx, &awseventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(eventSource),
				DetailType:   aws.String(detailType),
				Detail:       aws.String(string(payload)),
			},
		},
	})
	if err != nil {
		return apperrors.NewExternalError("eventbridge", err)
	}
	if out.FailedEntryCount > 0 {
		p.logger.Warn("Event entry rejected by bus",
			zap.String("detailType", detailType),
			zap.Int32("failedEntries", out.FailedEntryCount),
		)
	}

	p.logger.Debug("Event published", zap.String("detailType", detailType))
	return nil
}
