// Package digest asks the LMS API to email a student their notification feed.
//
// The dashboard calls Trigger.Notify every time it recomputes a non-empty
// feed. A (user, feed fingerprint) pair already sent inside the window is
// suppressed; a zero window sends on every recompute.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/metrics"
	"lmsportal/internal/model"
)

// JobType marks digest jobs on the queue.
const JobType = "digest.send"

// Job is one digest delivery.
type Job struct {
	StudentID    string `json:"studentId"`
	StudentEmail string `json:"studentEmail"`
	Token        string `json:"token"`
	Fingerprint  string `json:"fingerprint"`
}

func (j Job) request() lmsapi.DigestRequest {
	return lmsapi.DigestRequest{StudentID: j.StudentID, StudentEmail: j.StudentEmail}
}

// Sender is the gateway call that emails the digest.
type Sender interface {
	SendEmailDigest(ctx context.Context, token string, in lmsapi.DigestRequest) error
}

// Dispatcher delivers a job, now or later.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Fingerprint identifies a feed by its entries, ignoring their order.
func Fingerprint(feed []model.Notification) string {
	keys := make([]string, 0, len(feed))
	for _, n := range feed {
		keys = append(keys, strings.Join([]string{n.ID, n.Type, n.Title, n.Message}, "\x1f"))
	}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(strings.Join(keys, "\x1e")))
	return hex.EncodeToString(sum[:16])
}

// Trigger decides whether a feed is worth a digest and dispatches it.
type Trigger struct {
	ledger   Ledger
	dispatch Dispatcher
	window   time.Duration
	log      *logsvc.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewTrigger creates a trigger. A nil ledger disables suppression.
func NewTrigger(ledger Ledger, dispatch Dispatcher, window time.Duration, log *logsvc.Logger) *Trigger {
	if window < 0 {
		window = 0
	}
	return &Trigger{ledger: ledger, dispatch: dispatch, window: window, log: log, now: time.Now}
}

// Notify implements the dashboard's notifier. Failures are logged.
func (t *Trigger) Notify(ctx context.Context, token string, user model.User, feed []model.Notification) {
	if _, err := t.Fire(ctx, token, user, feed); err != nil {
		t.log.Errorf("digest: notify %s: %w", user.ID, err)
	}
}

// Fire dispatches a digest for feed unless it was sent inside the window.
// It reports whether a job was dispatched.
func (t *Trigger) Fire(ctx context.Context, token string, user model.User, feed []model.Notification) (bool, error) {
	if len(feed) == 0 || user.ID == "" {
		return false, nil
	}
	fp := Fingerprint(feed)
	now := t.now().UTC()

	// The lock spans check, dispatch and record so that two refreshes of the
	// same feed cannot both get past the window.
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ledger != nil && t.window > 0 {
		recent, err := t.ledger.Recent(ctx, user.ID, fp, now.Add(-t.window))
		if err != nil {
			metrics.DigestTriggers.WithLabelValues("failed").Inc()
			return false, err
		}
		if recent != nil {
			metrics.DigestTriggers.WithLabelValues("suppressed").Inc()
			return false, nil
		}
	}

	job := Job{StudentID: user.ID, StudentEmail: user.Email, Token: token, Fingerprint: fp}
	if err := t.dispatch.Dispatch(ctx, job); err != nil {
		metrics.DigestTriggers.WithLabelValues("failed").Inc()
		return false, err
	}
	// Only a dispatched digest enters the ledger, so a failed one is retried
	// on the next recompute.
	if t.ledger != nil {
		if _, err := t.ledger.Record(ctx, Entry{UserID: user.ID, Fingerprint: fp, Items: len(feed), SentAt: now}); err != nil {
			metrics.DigestTriggers.WithLabelValues("failed").Inc()
			return true, err
		}
	}
	metrics.DigestTriggers.WithLabelValues("dispatched").Inc()
	return true, nil
}
