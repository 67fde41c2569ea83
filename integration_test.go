//go:build integration

package actionpipe_test

import (
	"context"
	"database/sql"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/ClickHouse/clickhouse-go"
	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/sender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a local ClickHouse with the track_events and action_events tables
// from store/sqlite/migrations applied to the test database.
func TestSenderInRealDatabase(t *testing.T) {
	time.Local = time.UTC

	conn, err := sql.Open("clickhouse",
		"tcp://localhost:9000?&database=test&read_timeout=10&write_timeout=20")
	require.NoError(t, err)
	if err := conn.Ping(); err != nil {
		t.Skipf("no ClickHouse server reachable: %v", err)
	}

	s := sender.NewSender(conn, sender.Config{
		UseMemoryFallback: true,
		SpoolDir:          t.TempDir(),
	})

	s.RunPusher(100*time.Millisecond, 1000)

	var it int32
	var wg sync.WaitGroup
	for n := 0; n < 10; n++ {
		wg.Add(1)
		go func() {
			var err error
			defer wg.Done()

			for i := 0; i < 2000; i++ {
				frame := int(atomic.LoadInt32(&it))
				err = s.Push(&actionpipe.TrackEvent{
					RunID:    "integration-run",
					Millis:   int64(frame) * 40,
					FrameIdx: frame,
					TrackID:  rand.Intn(16),
					Class:    "person",
					Box:      actionpipe.Box{Left: 10, Top: 20, Right: 110, Bottom: 220},
					Score:    rand.Float64(),
				})
				assert.NoError(t, err)
				err = s.Push(&actionpipe.ActionEvent{
					RunID:     "integration-run",
					Timestamp: frame / 25,
					Millis:    int64(frame) * 40,
					TrackID:   rand.Intn(16),
					Box:       actionpipe.Box{Left: 10, Top: 20, Right: 110, Bottom: 220},
					ActionID:  1 + rand.Intn(80),
					Action:    "stand",
					Score:     rand.Float64(),
				})
				assert.NoError(t, err)
				atomic.AddInt32(&it, 1)

				if atomic.LoadInt32(&it)%500 == 0 {
					time.Sleep(50 * time.Millisecond)
					t.Logf("insert: %d", atomic.LoadInt32(&it))
				}
			}
		}()
	}

	wg.Wait()
	s.Stop(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var count int
	err = conn.QueryRowContext(ctx,
		`SELECT count(1) FROM track_events WHERE run_id = 'integration-run'`).Scan(&count)
	assert.NoError(t, err)
	assert.EqualValues(t, count, it)

	err = conn.QueryRowContext(ctx,
		`SELECT count(1) FROM action_events WHERE run_id = 'integration-run'`).Scan(&count)
	assert.NoError(t, err)
	assert.EqualValues(t, count, it)
}
