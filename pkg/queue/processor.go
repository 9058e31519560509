// Package queue runs the import pipeline's background jobs off a Redis
// Streams work queue. Stage services enqueue jobs (optionally delayed)
// and register handlers per job type; the processor owns consumption,
// retries via pending-claim, and dropping jobs that expired while they
// waited.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/sedum/pkg/context"
	"github.com/Ramsey-B/sedum/pkg/redis"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// Job types handled by the pipeline.
const (
	JobTypeSaveRawData     = "save_raw_data"
	JobTypeMapData         = "map_data"
	JobTypeMatchBuildings  = "match_buildings"
	JobTypeRemapData       = "remap_data"
	JobTypeDeleteBuildings = "delete_organization_buildings"
)

const (
	// DefaultBatchSize is the default number of messages to consume at once
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of retries for a job
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to claim stale pending messages
	DefaultClaimInterval = 30 * time.Second

	// DefaultClaimMinIdle is the minimum idle time before claiming a message
	DefaultClaimMinIdle = 60 * time.Second
)

// ErrUnknownJobType is returned for job types with no registered handler.
var ErrUnknownJobType = errors.New("unknown job type")

// Handler processes one job.
type Handler func(ctx context.Context, job *redis.JobMessage) error

// ProcessorConfig holds configuration for the job processor.
type ProcessorConfig struct {
	// Stream name for the job queue
	Stream string

	// Consumer group name
	ConsumerGroup string

	// Consumer name (unique per instance)
	ConsumerName string

	// Number of messages to fetch per batch
	BatchSize int64

	// How long to block waiting for new messages
	BlockTimeout time.Duration

	// Maximum number of retries for a job
	MaxRetries int

	// How often to check for and claim stale pending messages
	ClaimInterval time.Duration

	// Minimum idle time before claiming a pending message
	ClaimMinIdle time.Duration

	// Number of worker goroutines
	WorkerCount int
}

// DefaultProcessorConfig returns the default processor configuration.
func DefaultProcessorConfig() ProcessorConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return ProcessorConfig{
		Stream:        "sedum:jobs",
		ConsumerGroup: "sedum-workers",
		ConsumerName:  hostname,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		MaxRetries:    DefaultMaxRetries,
		ClaimInterval: DefaultClaimInterval,
		ClaimMinIdle:  DefaultClaimMinIdle,
		WorkerCount:   1,
	}
}

// Queue publishes jobs to the stream.
type Queue struct {
	streams *redis.Streams
	stream  string
}

// NewQueue creates a publisher for the given stream.
func NewQueue(streams *redis.Streams, stream string) *Queue {
	return &Queue{
		streams: streams,
		stream:  stream,
	}
}

// Enqueue publishes a job for immediate processing.
func (q *Queue) Enqueue(ctx context.Context, job *redis.JobMessage) error {
	_, err := q.streams.Publish(ctx, q.stream, job)
	return err
}

// EnqueueIn publishes a job that must not run before countdown has
// elapsed and is dropped entirely once expiry has passed. The stage
// services use this to requeue themselves while a prerequisite stage
// is still running.
func (q *Queue) EnqueueIn(ctx context.Context, job *redis.JobMessage, countdown, expiry time.Duration) error {
	now := time.Now()
	job.ScheduledAt = now.Add(countdown)
	if expiry > 0 {
		job.ExpiresAt = now.Add(expiry)
	}
	_, err := q.streams.Publish(ctx, q.stream, job)
	return err
}

// Processor processes jobs from a Redis Streams queue.
type Processor struct {
	streams  *redis.Streams
	queue    *Queue
	config   ProcessorConfig
	logger   ectologger.Logger
	handlers map[string]Handler

	stopCh   chan struct{}
	stoppedC chan struct{}
	jobsCh   chan jobItem

	running bool
	mu      sync.RWMutex
}

type jobItem struct {
	message redis.StreamMessage
	job     *redis.JobMessage
}

// NewProcessor creates a new job processor.
func NewProcessor(streams *redis.Streams, config ProcessorConfig, logger ectologger.Logger) *Processor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultBlockTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.ClaimInterval <= 0 {
		config.ClaimInterval = DefaultClaimInterval
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = DefaultClaimMinIdle
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	return &Processor{
		streams:  streams,
		queue:    NewQueue(streams, config.Stream),
		config:   config,
		logger:   logger,
		handlers: make(map[string]Handler),
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
		jobsCh:   make(chan jobItem, config.BatchSize*2),
	}
}

// Register binds a handler to a job type. Registration must happen
// before Start.
func (p *Processor) Register(jobType string, handler Handler) {
	p.handlers[jobType] = handler
}

// Start starts the processor.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	p.running = true
	p.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Processor.Start")
	defer span.End()

	p.logger.WithContext(ctx).Infof("Starting job processor: stream=%s group=%s consumer=%s workers=%d",
		p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.WorkerCount)

	if err := p.streams.CreateConsumerGroup(ctx, p.config.Stream, p.config.ConsumerGroup); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to create consumer group")
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, i)
	}

	wg.Add(1)
	go p.consumeLoop(ctx, &wg)

	wg.Add(1)
	go p.claimLoop(ctx, &wg)

	go func() {
		<-p.stopCh
		close(p.jobsCh)
		wg.Wait()
		close(p.stoppedC)
	}()

	p.logger.WithContext(ctx).Info("Job processor started")
	return nil
}

// Stop stops the processor gracefully.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.WithContext(ctx).Info("Stopping job processor...")

	close(p.stopCh)

	select {
	case <-p.stoppedC:
		p.logger.WithContext(ctx).Info("Job processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Job processor shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the processor is running.
func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// consumeLoop continuously consumes messages from the stream.
func (p *Processor) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debug("Consumer loop started")

	for {
		select {
		case <-p.stopCh:
			p.logger.WithContext(ctx).Debug("Consumer loop stopping")
			return
		default:
		}

		messages, err := p.streams.Consume(
			ctx,
			p.config.Stream,
			p.config.ConsumerGroup,
			p.config.ConsumerName,
			p.config.BatchSize,
			p.config.BlockTimeout,
		)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to consume messages")
			time.Sleep(time.Second) // Back off on error
			continue
		}

		for _, msg := range messages {
			job, err := parseJobMessage(msg)
			if err != nil {
				p.logger.WithContext(ctx).WithError(err).Warnf("Failed to parse job message %s", msg.ID)
				// Acknowledge invalid messages to prevent reprocessing
				if ackErr := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, msg.ID); ackErr != nil {
					p.logger.WithContext(ctx).WithError(ackErr).Warnf("Failed to ack invalid message %s", msg.ID)
				}
				continue
			}

			select {
			case p.jobsCh <- jobItem{message: msg, job: job}:
			case <-p.stopCh:
				return
			}
		}
	}
}

// claimLoop periodically claims stale pending messages.
func (p *Processor) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.config.ClaimInterval)
	defer ticker.Stop()

	p.logger.WithContext(ctx).Debug("Claim loop started")

	for {
		select {
		case <-p.stopCh:
			p.logger.WithContext(ctx).Debug("Claim loop stopping")
			return
		case <-ticker.C:
			p.claimPendingMessages(ctx)
		}
	}
}

// claimPendingMessages claims stale pending messages from other consumers.
func (p *Processor) claimPendingMessages(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Processor.claimPendingMessages")
	defer span.End()

	pending, err := p.streams.Pending(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.BatchSize)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to get pending messages")
		return
	}

	if len(pending) == 0 {
		return
	}

	var staleIDs []string
	for _, msg := range pending {
		if msg.Idle >= p.config.ClaimMinIdle {
			if msg.RetryCount <= int64(p.config.MaxRetries) {
				staleIDs = append(staleIDs, msg.ID)
			} else {
				p.logger.WithContext(ctx).Warnf("Message %s exceeded max retries (%d), dropping", msg.ID, msg.RetryCount)
				if ackErr := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, msg.ID); ackErr != nil {
					p.logger.WithContext(ctx).WithError(ackErr).Warnf("Failed to ack dropped message %s", msg.ID)
				}
			}
		}
	}

	if len(staleIDs) == 0 {
		return
	}

	p.logger.WithContext(ctx).Infof("Claiming %d stale pending messages", len(staleIDs))

	claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, staleIDs...)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim pending messages")
		return
	}

	for _, msg := range claimed {
		job, err := parseJobMessage(msg)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warnf("Failed to parse claimed job message %s", msg.ID)
			continue
		}

		select {
		case p.jobsCh <- jobItem{message: msg, job: job}:
		case <-p.stopCh:
			return
		default:
			// Channel full, skip for now
		}
	}
}

// worker processes jobs from the channel.
func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debugf("Worker %d started", id)

	for item := range p.jobsCh {
		if done := p.processJob(ctx, item); done {
			if err := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, item.message.ID); err != nil {
				p.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s", item.message.ID)
			}
		}
	}

	p.logger.WithContext(ctx).Debugf("Worker %d stopped", id)
}

// processJob runs one job. The return value reports whether the
// message should be acknowledged; failed jobs stay pending so the
// claim loop retries them.
func (p *Processor) processJob(ctx context.Context, item jobItem) bool {
	ctx, span := tracing.StartSpan(ctx, "Processor.processJob")
	defer span.End()

	job := item.job
	now := time.Now()

	// A job whose wait outlived its purpose is dropped, not retried.
	// This is what bounds the self-requeue dance between stages.
	if !job.ExpiresAt.IsZero() && now.After(job.ExpiresAt) {
		p.logger.WithContext(ctx).Warnf("Job %s (%s) expired at %s, dropping", job.ID, job.Type, job.ExpiresAt.Format(time.RFC3339))
		return true
	}

	// Not due yet: put it back on the stream and ack this delivery.
	if !job.ScheduledAt.IsZero() && now.Before(job.ScheduledAt) {
		wait := time.Until(job.ScheduledAt)
		if wait > time.Second {
			wait = time.Second
		}
		time.Sleep(wait)
		if time.Now().Before(job.ScheduledAt) {
			if _, err := p.streams.Publish(ctx, p.config.Stream, job); err != nil {
				p.logger.WithContext(ctx).WithError(err).Warnf("Failed to requeue delayed job %s", job.ID)
				return false
			}
			return true
		}
	}

	ctx = appctx.SetOrgID(ctx, job.OrgID)
	ctx = appctx.SetRequestID(ctx, job.ID)
	if job.UserID != "" {
		ctx = appctx.SetUserID(ctx, job.UserID)
	}

	handler, ok := p.handlers[job.Type]
	if !ok {
		p.logger.WithContext(ctx).Warnf("Job %s has unknown type %s, dropping", job.ID, job.Type)
		return true
	}

	start := time.Now()
	p.logger.WithContext(ctx).Infof("Processing job %s: type=%s org=%s", job.ID, job.Type, job.OrgID)

	if err := handler(ctx, job); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Job %s failed after %s, will be retried", job.ID, time.Since(start))
		return false
	}

	p.logger.WithContext(ctx).Infof("Job %s completed successfully in %s", job.ID, time.Since(start))
	return true
}

func parseJobMessage(msg redis.StreamMessage) (*redis.JobMessage, error) {
	job := &redis.JobMessage{}

	if id, ok := msg.Payload["id"].(string); ok {
		job.ID = id
	}
	if orgID, ok := msg.Payload["org_id"].(string); ok {
		job.OrgID = orgID
	}
	if userID, ok := msg.Payload["user_id"].(string); ok {
		job.UserID = userID
	}
	if jobType, ok := msg.Payload["type"].(string); ok {
		job.Type = jobType
	}
	if payload, ok := msg.Payload["payload"].(map[string]interface{}); ok {
		job.Payload = payload
	}
	if createdAt, ok := msg.Payload["created_at"].(string); ok {
		job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	}
	if scheduledAt, ok := msg.Payload["scheduled_at"].(string); ok {
		job.ScheduledAt, _ = time.Parse(time.RFC3339Nano, scheduledAt)
	}
	if expiresAt, ok := msg.Payload["expires_at"].(string); ok {
		job.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
	}
	if attempts, ok := msg.Payload["attempts"].(float64); ok {
		job.Attempts = int(attempts)
	}

	if job.Type == "" {
		return nil, ErrUnknownJobType
	}
	return job, nil
}
