package digest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsportal/internal/lmsapi"
	"lmsportal/internal/lmsapi/lmsapitest"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/model"
	"lmsportal/internal/queue"
	"lmsportal/internal/store"
)

type captured struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (c *captured) Dispatch(_ context.Context, job Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, job)
	return nil
}

var (
	alice = model.User{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: model.RoleStudent}
	feedA = []model.Notification{{ID: "n1", Title: "Graded", Message: "HW1"}, {ID: "a1", Title: "Upcoming Assignment", Message: "soon", Type: "deadline"}}
	feedB = []model.Notification{{ID: "n2", Title: "New course", Message: "Art"}}
)

func TestFingerprintIgnoresOrder(t *testing.T) {
	reversed := []model.Notification{feedA[1], feedA[0]}
	assert.Equal(t, Fingerprint(feedA), Fingerprint(reversed))
	assert.NotEqual(t, Fingerprint(feedA), Fingerprint(feedB))
	assert.Len(t, Fingerprint(feedA), 32)
}

func TestTriggerSuppressesInsideWindow(t *testing.T) {
	ledgers := map[string]func(t *testing.T) Ledger{
		"memory": func(t *testing.T) Ledger { return NewMemoryLedger() },
		"sqlite": func(t *testing.T) Ledger {
			db, err := store.NewDB("sqlite://" + filepath.Join(t.TempDir(), "digest.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewRepository(db.Client)
		},
	}
	for name, newLedger := range ledgers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			out := &captured{}
			now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
			tr := NewTrigger(newLedger(t), out, time.Hour, logsvc.Discard())
			tr.now = func() time.Time { return now }

			sent, err := tr.Fire(ctx, "tk", alice, feedA)
			require.NoError(t, err)
			assert.True(t, sent)

			now = now.Add(30 * time.Minute)
			sent, err = tr.Fire(ctx, "tk", alice, feedA)
			require.NoError(t, err)
			assert.False(t, sent, "same feed inside the window")

			sent, err = tr.Fire(ctx, "tk", alice, feedB)
			require.NoError(t, err)
			assert.True(t, sent, "different feed")

			now = now.Add(31 * time.Minute)
			sent, err = tr.Fire(ctx, "tk", alice, feedA)
			require.NoError(t, err)
			assert.True(t, sent, "window elapsed")

			require.Len(t, out.jobs, 3)
			assert.Equal(t, Job{StudentID: "u1", StudentEmail: "alice@example.com", Token: "tk", Fingerprint: Fingerprint(feedA)}, out.jobs[0])

			hist, err := tr.ledger.List(ctx, "u1", 10)
			require.NoError(t, err)
			require.Len(t, hist, 3)
			assert.Equal(t, Fingerprint(feedA), hist[0].Fingerprint)
			assert.Equal(t, 2, hist[0].Items)
		})
	}
}

func TestTriggerZeroWindowAlwaysFires(t *testing.T) {
	out := &captured{}
	tr := NewTrigger(NewMemoryLedger(), out, 0, logsvc.Discard())
	for i := 0; i < 3; i++ {
		tr.Notify(context.Background(), "tk", alice, feedA)
	}
	assert.Len(t, out.jobs, 3)
}

func TestTriggerSkipsEmptyFeed(t *testing.T) {
	out := &captured{}
	tr := NewTrigger(nil, out, time.Hour, logsvc.Discard())
	sent, err := tr.Fire(context.Background(), "tk", alice, nil)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, out.jobs)
}

func TestTriggerDispatchFailure(t *testing.T) {
	out := &captured{err: errors.New("queue down")}
	ledger := NewMemoryLedger()
	tr := NewTrigger(ledger, out, time.Hour, logsvc.Discard())
	sent, err := tr.Fire(context.Background(), "tk", alice, feedA)
	assert.EqualError(t, err, "queue down")
	assert.False(t, sent)

	entries, err := ledger.List(context.Background(), alice.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed dispatch is not recorded")

	out.mu.Lock()
	out.err = nil
	out.mu.Unlock()
	sent, err = tr.Fire(context.Background(), "tk", alice, feedA)
	require.NoError(t, err)
	assert.True(t, sent, "the same feed is retried once the dispatcher recovers")
	assert.Len(t, out.jobs, 1)
}

func TestDirectSendsThroughAPI(t *testing.T) {
	srv := lmsapitest.New(t)
	u := srv.AddUser("Alice", "alice@example.com", "pw", model.RoleStudent)
	d := NewDirect(srv.Client(), logsvc.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Dispatch(ctx, Job{StudentID: u.ID, StudentEmail: u.Email, Token: srv.TokenFor(u.ID)}))
	cancel()
	d.Wait()

	assert.Equal(t, []lmsapi.DigestRequest{{StudentID: u.ID, StudentEmail: u.Email}}, srv.Digests())
}

func TestQueuedJobReachesWorker(t *testing.T) {
	srv := lmsapitest.New(t)
	u := srv.AddUser("Alice", "alice@example.com", "pw", model.RoleStudent)
	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := NewTrigger(NewMemoryLedger(), NewQueued(q), time.Hour, logsvc.Discard())
	sent, err := tr.Fire(ctx, srv.TokenFor(u.ID), u, feedA)
	require.NoError(t, err)
	require.True(t, sent)

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	w := NewWorker(srv.Client(), logsvc.Discard())
	select {
	case msg := <-msgs:
		require.NoError(t, w.Handle(ctx, msg))
	case <-time.After(time.Second):
		t.Fatal("job not queued")
	}
	assert.Equal(t, []lmsapi.DigestRequest{{StudentID: u.ID, StudentEmail: u.Email}}, srv.Digests())
}

func TestWorkerHandle(t *testing.T) {
	srv := lmsapitest.New(t)
	w := NewWorker(srv.Client(), logsvc.Discard())
	ctx := context.Background()

	assert.NoError(t, w.Handle(ctx, queue.Message{Type: "other", Body: []byte("x")}))
	assert.ErrorIs(t, w.Handle(ctx, queue.Message{Type: JobType, Body: []byte("{")}), ErrBadJob)

	err := w.Handle(ctx, queue.Message{Type: JobType, Body: []byte(`{"token":"secret-bearer"}`)})
	require.ErrorIs(t, err, ErrBadJob)
	assert.NotContains(t, err.Error(), "secret-bearer")
	assert.Contains(t, err.Error(), "25 bytes")

	err = w.Handle(ctx, queue.Message{Type: JobType, Body: []byte(`{"studentId":"u1","token":"revoked"}`)})
	assert.ErrorIs(t, err, lmsapi.ErrUnauthorized)
	assert.Empty(t, srv.Digests())
}
