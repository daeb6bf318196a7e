package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lmsportal/internal/logsvc"
	"lmsportal/internal/metrics"
	"lmsportal/internal/queue"
)

const sendTimeout = 15 * time.Second

// Direct sends the digest from the calling process in the background.
type Direct struct {
	api Sender
	log *logsvc.Logger
	wg  sync.WaitGroup
}

func NewDirect(api Sender, log *logsvc.Logger) *Direct {
	return &Direct{api: api, log: log}
}

// Dispatch starts the send and returns at once. The send outlives ctx.
func (d *Direct) Dispatch(ctx context.Context, job Job) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := d.api.SendEmailDigest(sendCtx, job.Token, job.request()); err != nil {
			metrics.DigestTriggers.WithLabelValues("send_failed").Inc()
			d.log.Errorf("digest: send to %s: %w", job.StudentID, err)
			return
		}
		metrics.DigestTriggers.WithLabelValues("sent").Inc()
	}()
	return nil
}

// Wait blocks until every started send has finished.
func (d *Direct) Wait() { d.wg.Wait() }

// Queued hands jobs to the worker through the job queue.
type Queued struct {
	q queue.Queue
}

func NewQueued(q queue.Queue) *Queued {
	return &Queued{q: q}
}

func (d *Queued) Dispatch(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("digest: encode job: %w", err)
	}
	if err := d.q.Publish(ctx, queue.Message{Type: JobType, Body: body}); err != nil {
		return fmt.Errorf("digest: publish job: %w", err)
	}
	return nil
}
