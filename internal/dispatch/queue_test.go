package dispatch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

func task(id string, priority int) domain.WorkerTask {
	return domain.WorkerTask{
		ID:       id,
		Type:     domain.TaskExecute,
		Priority: priority,
		Status:   domain.TaskPending,
	}
}

func TestQueue_PriorityOrder(t *testing.T) {
	q := NewQueue()
	q.Push(task("low", domain.PriorityLow))
	q.Push(task("critical", domain.PriorityCritical))
	q.Push(task("normal", domain.PriorityNormal))
	q.Push(task("high", domain.PriorityHigh))

	var got []string
	for {
		tk, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, tk.ID)
	}
	assert.Equal(t, []string{"critical", "high", "normal", "low"}, got)
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Push(task(fmt.Sprintf("t%d", i), domain.PriorityNormal))
	}

	for i := 0; i < 5; i++ {
		tk, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("t%d", i), tk.ID)
	}
}

func TestQueue_Empty(t *testing.T) {
	q := NewQueue()
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Zero(t, q.Len())

	q.Push(task("a", domain.PriorityNormal))
	assert.Equal(t, 1, q.Len())
	q.Pop()
	assert.Zero(t, q.Len())
}
