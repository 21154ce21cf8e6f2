package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobValidation(t *testing.T) {
	t.Run("valid job starts waiting with zero attempts", func(t *testing.T) {
		job, err := NewJob("extract_text", []byte("p"), PriorityHigh, 3)
		require.NoError(t, err)
		assert.Equal(t, StatusWaiting, job.Status)
		assert.Equal(t, 0, job.Attempts)
		assert.False(t, job.EnqueuedAt.IsZero())
	})

	t.Run("empty type rejected", func(t *testing.T) {
		_, err := NewJob("", nil, PriorityDefault, 3)
		assert.Error(t, err)
	})

	t.Run("zero max attempts rejected", func(t *testing.T) {
		_, err := NewJob("extract_text", nil, PriorityDefault, 0)
		assert.Error(t, err)
	})
}

func TestPriorityRoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityDefault, PriorityHigh} {
		assert.Equal(t, p, ParsePriority(p.String()))
	}
	assert.Equal(t, PriorityDefault, ParsePriority("garbage"))
}
