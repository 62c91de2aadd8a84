package log

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(connID string, dir Direction, cat Category) Event {
	return Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerTransport,
		Category:     cat,
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	logger.Log(testEvent("a", DirectionIn, CategoryMessage))
	logger.Log(testEvent("b", DirectionOut, CategoryControl))
	logger.Log(testEvent("a", DirectionOut, CategoryState))
	require.NoError(t, logger.Close())

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	events, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].ConnectionID)
	assert.Equal(t, CategoryControl, events[1].Category)
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	// Logging after close is silently ignored.
	logger.Log(testEvent("x", DirectionIn, CategoryMessage))
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(testEvent("c", DirectionIn, CategoryMessage))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, logger.Close())

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	events, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, events, 200)
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	logger.Log(testEvent("a", DirectionIn, CategoryMessage))
	logger.Log(testEvent("b", DirectionIn, CategoryMessage))
	logger.Log(testEvent("a", DirectionOut, CategoryControl))
	require.NoError(t, logger.Close())

	out := DirectionOut
	reader, err := NewFilteredReader(path, Filter{ConnectionID: "a", Direction: &out})
	require.NoError(t, err)
	defer reader.Close()

	events, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, CategoryControl, events[0].Category)
}

func TestMultiLogger(t *testing.T) {
	var recorded []Event
	capture := loggerFunc(func(e Event) { recorded = append(recorded, e) })

	multi := NewMultiLogger(NoopLogger{}, capture, capture)
	multi.Log(testEvent("m", DirectionIn, CategoryMessage))

	assert.Len(t, recorded, 2)
}

// loggerFunc adapts a function to the Logger interface for tests.
type loggerFunc func(Event)

func (f loggerFunc) Log(e Event) { f(e) }
