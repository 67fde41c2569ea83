package action

import (
	"sort"

	"github.com/farwydi/actionpipe"
)

// Entry holds the features extracted at one timestamp: one feature vector
// per tracked person plus one per detected object, with the person boxes
// and track IDs the features belong to.
type Entry struct {
	TrackIDs       []int
	Boxes          []actionpipe.Box
	PersonFeatures [][]float32
	ObjectFeatures [][]float32
}

// WindowEntry is a pool entry tagged with its timestamp for the
// classification window.
type WindowEntry struct {
	Timestamp int
	Entry     Entry
}

// MemoryPool keeps per-timestamp features of each movie. The classifier
// reads a window of neighboring timestamps around the one being scored.
// The pool is not safe for concurrent use; the prediction worker owns it.
type MemoryPool struct {
	movies map[string]map[int]Entry
}

func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		movies: map[string]map[int]Entry{},
	}
}

func (p *MemoryPool) Put(movieID string, timestamp int, entry Entry) {
	movie, ok := p.movies[movieID]
	if !ok {
		movie = map[int]Entry{}
		p.movies[movieID] = movie
	}
	movie[timestamp] = entry
}

func (p *MemoryPool) Get(movieID string, timestamp int) (Entry, bool) {
	entry, ok := p.movies[movieID][timestamp]
	return entry, ok
}

// Window returns the entries at timestamps [timestamp-before,
// timestamp+after] in ascending order. Timestamps never seen are skipped.
func (p *MemoryPool) Window(movieID string, timestamp int, before int, after int) []WindowEntry {
	movie := p.movies[movieID]
	if movie == nil {
		return nil
	}

	var window []WindowEntry
	for ts := timestamp - before; ts <= timestamp+after; ts++ {
		entry, ok := movie[ts]
		if !ok {
			continue
		}
		window = append(window, WindowEntry{Timestamp: ts, Entry: entry})
	}
	return window
}

// Trim drops every entry older than the given timestamp. Realtime runs call
// it to keep a webcam session from growing without bound.
func (p *MemoryPool) Trim(movieID string, oldest int) {
	for ts := range p.movies[movieID] {
		if ts < oldest {
			delete(p.movies[movieID], ts)
		}
	}
}

func (p *MemoryPool) Len(movieID string) int {
	return len(p.movies[movieID])
}

// Timestamps lists the stored timestamps of a movie in ascending order.
func (p *MemoryPool) Timestamps(movieID string) []int {
	movie := p.movies[movieID]
	out := make([]int, 0, len(movie))
	for ts := range movie {
		out = append(out, ts)
	}
	sort.Ints(out)
	return out
}
