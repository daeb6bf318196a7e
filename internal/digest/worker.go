package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lmsportal/internal/logsvc"
	"lmsportal/internal/metrics"
	"lmsportal/internal/queue"
)

// ErrBadJob means a queued digest job could not be decoded.
var ErrBadJob = errors.New("digest: malformed job")

// Worker delivers queued digest jobs.
type Worker struct {
	api Sender
	log *logsvc.Logger
}

func NewWorker(api Sender, log *logsvc.Logger) *Worker {
	return &Worker{api: api, log: log}
}

// Handle delivers one message. Messages of other types are ignored.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != JobType {
		return nil
	}
	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil || job.StudentID == "" {
		// the body carries the student's bearer token
		return fmt.Errorf("%w: %s job, %d bytes", ErrBadJob, msg.Type, len(msg.Body))
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := w.api.SendEmailDigest(sendCtx, job.Token, job.request()); err != nil {
		metrics.DigestTriggers.WithLabelValues("send_failed").Inc()
		return fmt.Errorf("digest: send to %s: %w", job.StudentID, err)
	}
	metrics.DigestTriggers.WithLabelValues("sent").Inc()
	return nil
}

// Run consumes q until ctx is done. A failed job is logged and dropped.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("digest: consume: %w", err)
	}
	w.log.Printf("digest: worker started, waiting for jobs")
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			w.log.Errorf("digest: job failed: %w", err)
			continue
		}
	}
	w.log.Printf("digest: worker stopped")
	return nil
}
