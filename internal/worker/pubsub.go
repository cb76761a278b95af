package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/gate"
	"github.com/windgrid/windgrid/internal/wind"
)

// Control job types.
const (
	JobForceRefresh = "force_refresh"
	JobHealthCheck  = "health_check"
)

// ErrUnknownJob is returned for control messages with an unrecognised job type.
var ErrUnknownJob = errors.New("unknown job type")

// ControlMessage is the JSON body of a worker control message.
type ControlMessage struct {
	JobType string `json:"job_type"`
}

// Controller applies control messages to a running scheduler.
type Controller struct {
	scheduler *Scheduler
	logger    zerolog.Logger
}

// NewController creates a controller for s.
func NewController(s *Scheduler, logger zerolog.Logger) *Controller {
	return &Controller{scheduler: s, logger: logger}
}

// Handle executes one control message.
func (c *Controller) Handle(ctx context.Context, msg ControlMessage) error {
	switch msg.JobType {
	case JobForceRefresh:
		if !c.scheduler.ForceRefresh() {
			c.logger.Info().Msg("forced refresh already pending")
		}
		return nil
	case JobHealthCheck:
		return c.healthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// healthCheck samples the first grid tile through the shared gate.
func (c *Controller) healthCheck(ctx context.Context) error {
	tiles := c.scheduler.Tiles()
	if len(tiles) == 0 {
		return errors.New("empty grid")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := gate.Run(ctx, c.scheduler.gate, func(ctx context.Context) (wind.Summary, error) {
		return c.scheduler.sampler.Sample(ctx, tiles[0])
	})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	c.logger.Debug().Msg("health check passed")
	return nil
}

// PubSubHandler receives control messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	controller       *Controller
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Controller       *Controller
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		controller:       cfg.Controller,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, h.handleMessage)
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	start := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	var ctrl ControlMessage
	if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Ack() // malformed messages never succeed on redelivery
		return
	}

	err := h.controller.Handle(ctx, ctrl)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", ctrl.JobType).Msg("unknown job type")
		msg.Ack()
		return
	case err != nil:
		logger.Error().Err(err).Str("job_type", ctrl.JobType).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("job_type", ctrl.JobType).
		Dur("duration", time.Since(start)).
		Msg("job completed")
	msg.Ack()
}
