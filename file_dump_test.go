package actionpipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDumper_DirShouldBeMake(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "test", "test")
	_, err := NewFileDumper(tmpDir, nil, nil)
	assert.NoError(t, err)

	assert.DirExists(t, tmpDir)
	os.RemoveAll(tmpDir)
}

func TestFileDumper_DumpReturn(t *testing.T) {
	d := &FileDumper{
		basePath: t.TempDir(),
		failSaveFunc: func(query string, rows [][]interface{}, err error) {
			t.Errorf("Dump() failed: %v", err)
		},
		failOpenFunc: func(err error) {
			t.Errorf("Return() failed: %v", err)
		},
	}

	query := "INSERT INTO track_events " +
		"(run_id, millis, frame_idx, track_id, class, box_left, box_top, box_right, box_bottom, score) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	rows := [][]interface{}{
		{"run-1", int64(40), 1, 3, "person", 10, 20, 110, 220, 0.9},
		{"run-1", int64(80), 2, 3, "person", 12, 20, 112, 220, 0.85},
	}

	d.Dump(query, rows)

	gotExist, gotQuery, gotRows := d.Return()
	require.True(t, gotExist)
	assert.Equal(t, query, gotQuery)
	assert.Equal(t, rows, gotRows)

	// The returned batch leaves the dumper.
	gotExist, gotQuery, gotRows = d.Return()
	assert.False(t, gotExist)
	assert.Equal(t, "", gotQuery)
	assert.Nil(t, gotRows)
}

func TestFileDumper_ReturnOneBatchAtATime(t *testing.T) {
	d := &FileDumper{
		basePath:     t.TempDir(),
		failSaveFunc: func(string, [][]interface{}, error) {},
		failOpenFunc: func(error) {},
	}

	d.Dump("INSERT INTO track_events", [][]interface{}{{"run-1", 1}})
	d.Dump("INSERT INTO action_events", [][]interface{}{{"run-1", 2}})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		exist, query, rows := d.Return()
		require.True(t, exist)
		require.Len(t, rows, 1)
		seen[query] = true
	}
	assert.Len(t, seen, 2)

	exist, _, _ := d.Return()
	assert.False(t, exist)
}

func TestNullDumper(t *testing.T) {
	d := NewNullDumper()
	d.Dump("INSERT INTO track_events", [][]interface{}{{"run-1"}})
	exist, query, rows := d.Return()
	assert.False(t, exist)
	assert.Equal(t, "", query)
	assert.Nil(t, rows)
}
