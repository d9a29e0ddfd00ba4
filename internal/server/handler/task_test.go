package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// fakeStreamBus serves canned stream messages.
type fakeStreamBus struct {
	domain.SignalBus
	msgs []domain.StreamMessage

	stream, after string
	count         int
}

func (f *fakeStreamBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	f.stream, f.after, f.count = stream, lastID, count
	return f.msgs, nil
}

func TestTaskHandler_ListTaskEvents(t *testing.T) {
	t.Run("replays the durable stream", func(t *testing.T) {
		bus := &fakeStreamBus{msgs: []domain.StreamMessage{
			{ID: "1-0", Payload: []byte(`{"event":"task_submitted","task_id":"t1"}`)},
			{ID: "2-0", Payload: []byte(`{"event":"task_assigned","task_id":"t1"}`)},
		}}
		h := NewTaskHandler(nil, nil, bus, discardLogger())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/events?after=0&limit=10", nil)
		h.ListTaskEvents(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
		assert.Contains(t, rec.Body.String(), "task_assigned")
		assert.Equal(t, domain.TaskEventStream, bus.stream)
		assert.Equal(t, "0", bus.after)
		assert.Equal(t, 10, bus.count)
	})

	t.Run("defaults to reading from the start", func(t *testing.T) {
		bus := &fakeStreamBus{}
		h := NewTaskHandler(nil, nil, bus, discardLogger())

		rec := httptest.NewRecorder()
		h.ListTaskEvents(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/events", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0", bus.after)
	})

	t.Run("reports 501 without a bus", func(t *testing.T) {
		h := NewTaskHandler(nil, nil, nil, discardLogger())

		rec := httptest.NewRecorder()
		h.ListTaskEvents(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/events", nil))
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}
