package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuedSubmitterEnqueues(t *testing.T) {
	reg := NewRegistry()
	done := make(chan *Job, 1)
	reg.Register("extract_text", func(_ context.Context, job *Job) error {
		done <- job
		return nil
	})

	r := startRunner(t, fastConfig(), reg, nil)
	sub := NewQueuedSubmitter(r)

	id, err := sub.Enqueue(context.Background(), "extract_text", []byte(`{"doc":"x"}`), PriorityHigh)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	select {
	case job := <-done:
		assert.Equal(t, id, job.ID)
		assert.Equal(t, PriorityHigh, job.Priority)
		assert.Equal(t, []byte(`{"doc":"x"}`), job.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("job never executed")
	}
}

func TestQueuedSubmitterRejectsUnknownType(t *testing.T) {
	r := startRunner(t, fastConfig(), NewRegistry(), nil)
	sub := NewQueuedSubmitter(r)

	_, err := sub.Enqueue(context.Background(), "mystery", nil, PriorityDefault)
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestSyncSubmitterRunsInline(t *testing.T) {
	reg := NewRegistry()
	ran := false
	reg.Register("extract_text", func(_ context.Context, _ *Job) error {
		ran = true
		return nil
	})

	sub := NewSyncSubmitter(reg, time.Second, testLogger())
	id, err := sub.Enqueue(context.Background(), "extract_text", nil, PriorityDefault)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	// No goroutine hop: the handler has already run when Enqueue returns.
	assert.True(t, ran)
}

func TestSyncSubmitterPropagatesHandlerError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("ocr engine offline")
	reg.Register("extract_text", func(_ context.Context, _ *Job) error { return boom })

	sub := NewSyncSubmitter(reg, time.Second, testLogger())
	_, err := sub.Enqueue(context.Background(), "extract_text", nil, PriorityDefault)
	assert.ErrorIs(t, err, boom)
}

func TestSyncSubmitterFeedsHealthStats(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("renderer crashed")
	reg.Register("ok", func(_ context.Context, _ *Job) error { return nil })
	reg.Register("bad", func(_ context.Context, _ *Job) error { return boom })

	sub := NewSyncSubmitter(reg, time.Second, testLogger())
	var hooked []error
	sub.SetErrorHook(func(_ *Job, err error) { hooked = append(hooked, err) })

	_, err := sub.Enqueue(context.Background(), "ok", nil, PriorityDefault)
	require.NoError(t, err)
	_, err = sub.Enqueue(context.Background(), "bad", nil, PriorityDefault)
	require.ErrorIs(t, err, boom)

	// Inline failures must surface through the same stats and hook shape
	// the runner exposes, or readiness checks go blind in fallback mode.
	s := sub.Stats()
	assert.Equal(t, int64(1), s.Completed)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(0), s.Active)
	assert.Equal(t, 1, sub.WorkerCount())
	require.Len(t, hooked, 1)
	assert.ErrorIs(t, hooked[0], boom)
}

func TestSyncSubmitterEnforcesTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register("slow", func(ctx context.Context, _ *Job) error {
		<-ctx.Done()
		return ctx.Err()
	})

	sub := NewSyncSubmitter(reg, 20*time.Millisecond, testLogger())
	_, err := sub.Enqueue(context.Background(), "slow", nil, PriorityDefault)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
