package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// CreateAccountSchedule creates a new Temporal schedule for synchronizing
// an account.
func (c *Client) CreateAccountSchedule(ctx context.Context, address string, interval time.Duration) error {
	id := scheduleID(address)

	c.logger.Debug("creating account schedule",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)

	scheduleSpec := client.ScheduleSpec{
		Intervals: []client.ScheduleIntervalSpec{
			{
				Every: interval,
			},
		},
	}

	// Schedule action executes one SyncAccountWorkflow run per trigger.
	workflowAction := client.ScheduleWorkflowAction{
		ID:        fmt.Sprintf("sync-account-%s", address),
		Workflow:  "SyncAccountWorkflow",
		TaskQueue: c.taskQueue,
		Args: []interface{}{SyncAccountInput{
			Address: address,
		}},
	}

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:     id,
		Spec:   scheduleSpec,
		Action: &workflowAction,
		Memo: map[string]interface{}{
			"account_address": address,
			"created_by":      "solsync",
		},
	})

	if err != nil {
		c.logger.Error("failed to create schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("account schedule created",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)

	return nil
}

// UpsertAccountSchedule creates or updates a Temporal schedule for
// synchronizing an account. If the schedule already exists, it updates the
// sync interval. Otherwise, it creates a new schedule.
func (c *Client) UpsertAccountSchedule(ctx context.Context, address string, interval time.Duration) error {
	id := scheduleID(address)

	c.logger.Debug("upserting account schedule",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)

	// Try to get existing schedule
	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	desc, err := handle.Describe(ctx)

	if err != nil {
		// Schedule doesn't exist or error getting it - create new one
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.CreateAccountSchedule(ctx, address, interval)
	}

	// Schedule exists - update the interval
	c.logger.Debug("schedule exists, updating interval",
		"schedule_id", id,
		"old_interval", desc.Schedule.Spec.Intervals[0].Every,
		"new_interval", interval,
	)

	err = handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})

	if err != nil {
		c.logger.Error("failed to update schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("account schedule updated",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)

	return nil
}

// DeleteAccountSchedule deletes the Temporal schedule for an account.
func (c *Client) DeleteAccountSchedule(ctx context.Context, address string) error {
	id := scheduleID(address)

	c.logger.Debug("deleting account schedule",
		"address", address,
		"schedule_id", id,
	)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("account schedule deleted",
		"address", address,
		"schedule_id", id,
	)

	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow
// operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
