package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/queue"
	"github.com/noah-isme/gradeflow-api/internal/service"
)

// Pool runs a fixed set of workers over the pipeline queue. Each worker
// takes one message at a time and processes that submission to completion
// before taking the next; there is no interleaving of stages for a single
// submission.
type Pool struct {
	consumer queue.Consumer
	pipeline service.PipelineService
	workers  int
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewPool constructs the worker pool.
func NewPool(consumer queue.Consumer, pipeline service.PipelineService, workers int, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}

	return &Pool{
		consumer: consumer,
		pipeline: pipeline,
		workers:  workers,
		logger:   logger.With().Str("component", "pipeline_worker").Logger(),
	}
}

// Start subscribes to the queue and launches the workers. It returns once
// the subscription is established; workers drain when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) error {
	messages, err := p.consumer.Messages(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i, messages)
	}

	p.logger.Info().Int("workers", p.workers).Msg("pipeline worker pool started")

	return nil
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int, messages <-chan queue.Message) {
	defer p.wg.Done()

	for msg := range messages {
		p.handle(ctx, id, msg)
	}

	p.logger.Debug().Int("worker_id", id).Msg("worker stopped")
}

// handle shields the pool from panics in a single submission: a failure must
// never take a worker down and leave messages unconsumed.
func (p *Pool) handle(ctx context.Context, id int, msg queue.Message) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker_id", id).
				Str("submission_id", msg.SubmissionID).
				Interface("panic", r).
				Msg("worker recovered from panic")
		}
	}()

	if err := p.pipeline.Process(ctx, msg); err != nil {
		p.logger.Error().
			Int("worker_id", id).
			Str("submission_id", msg.SubmissionID).
			Err(err).
			Msg("pipeline processing failed")
	}
}
