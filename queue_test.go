package actionpipe_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/queue/file"
	"github.com/farwydi/actionpipe/queue/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackEvent(frame int) *actionpipe.TrackEvent {
	return &actionpipe.TrackEvent{
		RunID:    "test-run",
		Millis:   int64(frame) * 40,
		FrameIdx: frame,
		TrackID:  1,
		Class:    "person",
		Box:      actionpipe.Box{Left: 10, Top: 20, Right: 110, Bottom: 220},
		Score:    0.9,
	}
}

func TestQueueLimit(t *testing.T) {
	var tempFiles []*os.File

	defer func() {
		for _, tempFile := range tempFiles {
			assert.NoError(t, tempFile.Close())
			assert.NoError(t, os.Remove(tempFile.Name()))
		}
	}()

	testsType := []struct {
		name string
		Type func() actionpipe.Queue
	}{
		{
			name: "Memory",
			Type: func() actionpipe.Queue {
				return memory.NewQueue()
			},
		},
		{
			name: "File",
			Type: func() actionpipe.Queue {
				tempFile, err := os.CreateTemp("", "test")
				require.NoError(t, err)
				tempFiles = append(tempFiles, tempFile)
				q, err := file.NewQueue(tempFile, &actionpipe.TrackEvent{})
				require.NoError(t, err)
				return q
			},
		},
	}
	for _, testType := range testsType {
		t.Run(testType.name, func(t *testing.T) {
			testsLimit := []struct {
				limit int
			}{
				{limit: 0},
				{limit: 1},
				{limit: 2},
				{limit: 3},
			}
			for _, testLimit := range testsLimit {
				t.Run(fmt.Sprintf("Limit=%d", testLimit.limit), func(t *testing.T) {
					q := testType.Type()
					err := q.Push(trackEvent(1))
					assert.NoError(t, err)
					err = q.Push(trackEvent(2))
					assert.NoError(t, err)
					events, err := q.Eject(testLimit.limit)
					assert.NoError(t, err)
					assert.LessOrEqual(t, len(events), testLimit.limit)

					if testLimit.limit > 0 {
						require.NotZero(t, len(events))

						e1, ok := events[0].(*actionpipe.TrackEvent)
						assert.True(t, ok)
						require.NotNil(t, e1)
						assert.Equal(t, 1, e1.FrameIdx)
						assert.Equal(t, int64(40), e1.Millis)
						assert.Equal(t, "person", e1.Class)
						assert.Equal(t, actionpipe.Box{Left: 10, Top: 20, Right: 110, Bottom: 220}, e1.Box)
					}
				})
			}
		})
	}
}

func TestBaseQueue(t *testing.T) {
	tempFile, err := os.CreateTemp("", "test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, tempFile.Close())
		assert.NoError(t, os.Remove(tempFile.Name()))
	}()
	fileQueue, err := file.NewQueue(tempFile, &actionpipe.TrackEvent{})
	require.NoError(t, err)

	testsType := []struct {
		name string
		Type actionpipe.Queue
	}{
		{
			name: "Memory",
			Type: memory.NewQueue(),
		},
		{
			name: "File",
			Type: fileQueue,
		},
	}
	for _, testType := range testsType {
		t.Run(testType.name, func(t *testing.T) {
			q := testType.Type

			err = q.Push(trackEvent(1))
			assert.NoError(t, err)
			err = q.Push(trackEvent(2))
			assert.NoError(t, err)

			_, err = q.Eject(100)
			assert.NoError(t, err)

			err = q.Push(trackEvent(3))
			assert.NoError(t, err)
			err = q.Push(trackEvent(4))
			assert.NoError(t, err)

			events, err := q.Eject(100)
			assert.NoError(t, err)

			require.Equal(t, 2, len(events))
			assert.Equal(t, 3, events[0].(*actionpipe.TrackEvent).FrameIdx)
			assert.Equal(t, 4, events[1].(*actionpipe.TrackEvent).FrameIdx)
		})
	}
}
