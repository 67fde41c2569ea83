package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ClickHouse/clickhouse-go"
	"go.uber.org/multierr"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/config"
	"github.com/farwydi/actionpipe/pipeline"
	"github.com/farwydi/actionpipe/sender"
	storesqlite "github.com/farwydi/actionpipe/store/sqlite"
)

// sinkMeta identifies the run the sinks record. Width and Height are the
// coordinate space event boxes are expressed in.
type sinkMeta struct {
	RunID  string
	Source string
	Width  int
	Height int
	FPS    float64
}

type jsonFrame struct {
	FrameIdx   int                    `json:"frame_idx"`
	Millis     int64                  `json:"millis"`
	Detections []actionpipe.Detection `json:"detections"`
}

type jsonResults struct {
	RunID       string                   `json:"run_id"`
	Source      string                   `json:"source"`
	Width       int                      `json:"width"`
	Height      int                      `json:"height"`
	FPS         float64                  `json:"fps"`
	Frames      []jsonFrame              `json:"frames"`
	Predictions []*actionpipe.Prediction `json:"predictions"`
}

// sinks fans pipeline results out to the optional JSON file, SQLite store
// and ClickHouse sender. Sink failures are logged, never fatal to the run.
type sinks struct {
	logger pipeline.Logger
	meta   sinkMeta
	scale  func(actionpipe.Box) actionpipe.Box

	results  *jsonResults
	jsonPath string

	store *storesqlite.Store

	events   *sender.Sender
	eventsDB *sql.DB
}

func newSinks(ctx context.Context, cfg config.Config, logger pipeline.Logger,
	meta sinkMeta, scale func(actionpipe.Box) actionpipe.Box) (*sinks, error) {

	s := &sinks{logger: logger, meta: meta, scale: scale}

	if cfg.OutputJSON != "" {
		s.jsonPath = cfg.OutputJSON
		s.results = &jsonResults{
			RunID:  meta.RunID,
			Source: meta.Source,
			Width:  meta.Width,
			Height: meta.Height,
			FPS:    meta.FPS,
		}
	}

	if cfg.DBPath != "" {
		store, err := storesqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := store.CreateRun(ctx, storesqlite.Run{
			ID:        meta.RunID,
			Source:    meta.Source,
			Width:     meta.Width,
			Height:    meta.Height,
			FPS:       meta.FPS,
			StartedAt: time.Now(),
		}); err != nil {
			return nil, multierr.Append(err, store.Close())
		}
		s.store = store
	}

	if cfg.EventsDSN != "" {
		db, err := sql.Open("clickhouse", cfg.EventsDSN)
		if err != nil {
			return nil, multierr.Append(err, s.store.Close())
		}
		dumper, err := actionpipe.NewFileDumper(filepath.Join(cfg.SpoolDir, "dump"),
			func(query string, rows [][]interface{}, dumpErr error) {
				logger.Errorw("data lost! dumping a dead batch failed",
					"query", query, "rows", len(rows), "error", dumpErr)
			},
			func(openErr error) {
				logger.Warnw("reading dumped batches failed", "error", openErr)
			})
		if err != nil {
			return nil, multierr.Append(multierr.Append(err, db.Close()), s.store.Close())
		}
		s.eventsDB = db
		s.events = sender.NewSender(db, sender.Config{
			Logger:            logger,
			SpoolDir:          cfg.SpoolDir,
			UseMemoryFallback: true,
			Dumper:            dumper,
		})
		s.events.Run()
	}

	return s, nil
}

// PushTracked records one tracked frame on every configured sink.
func (s *sinks) PushTracked(ctx context.Context, frame pipeline.Frame) {
	if s.results != nil {
		detections := make([]actionpipe.Detection, len(frame.Persons))
		for i, d := range frame.Persons {
			d.Box = s.scale(d.Box)
			detections[i] = d
		}
		s.results.Frames = append(s.results.Frames, jsonFrame{
			FrameIdx:   frame.FrameIdx,
			Millis:     frame.Millis,
			Detections: detections,
		})
	}

	if s.store == nil && s.events == nil {
		return
	}

	events := make([]actionpipe.Event, 0, len(frame.Persons))
	for _, d := range frame.Persons {
		if d.TrackID == nil {
			continue
		}
		events = append(events, &actionpipe.TrackEvent{
			RunID:    s.meta.RunID,
			Millis:   frame.Millis,
			FrameIdx: frame.FrameIdx,
			TrackID:  *d.TrackID,
			Class:    d.Class,
			Box:      s.scale(d.Box),
			Score:    d.Score,
		})
	}
	s.pushEvents(ctx, events, "track")
}

// PushPrediction records one action prediction on every configured sink.
func (s *sinks) PushPrediction(ctx context.Context, p *actionpipe.Prediction) {
	if p == nil {
		return
	}

	if s.results != nil {
		scaled := *p
		scaled.Persons = make([]actionpipe.PersonActions, len(p.Persons))
		for i, person := range p.Persons {
			person.Box = s.scale(person.Box)
			scaled.Persons[i] = person
		}
		s.results.Predictions = append(s.results.Predictions, &scaled)
	}

	if s.store == nil && s.events == nil {
		return
	}

	var events []actionpipe.Event
	for _, person := range p.Persons {
		for _, score := range person.Scores {
			events = append(events, &actionpipe.ActionEvent{
				RunID:     s.meta.RunID,
				Timestamp: p.Timestamp,
				Millis:    p.Millis,
				TrackID:   person.TrackID,
				Box:       s.scale(person.Box),
				ActionID:  score.ActionID,
				Action:    score.Action,
				Score:     score.Score,
			})
		}
	}
	s.pushEvents(ctx, events, "action")
}

func (s *sinks) pushEvents(ctx context.Context, events []actionpipe.Event, kind string) {
	if len(events) == 0 {
		return
	}

	if s.store != nil {
		if err := s.store.SaveEvents(ctx, events); err != nil {
			s.logger.Warnw("saving events", "kind", kind, "error", err)
		}
	}
	if s.events != nil {
		for _, event := range events {
			if err := s.events.Push(event); err != nil {
				s.logger.Warnw("pushing event", "kind", kind, "error", err)
			}
		}
	}
}

// Finish closes out the run record with its processed frame count.
func (s *sinks) Finish(ctx context.Context, frames int) {
	if s.store == nil {
		return
	}
	if err := s.store.FinishRun(ctx, s.meta.RunID, frames); err != nil {
		s.logger.Warnw("finishing run", "error", err)
	}
}

// Close drains the event sender, closes the store and writes the JSON
// results file.
func (s *sinks) Close() error {
	var err error

	if s.events != nil {
		s.events.Stop(true)
	}
	if s.eventsDB != nil {
		err = multierr.Append(err, s.eventsDB.Close())
	}
	err = multierr.Append(err, s.store.Close())
	if s.results != nil {
		err = multierr.Append(err, s.writeResults())
	}
	return err
}

func (s *sinks) writeResults() error {
	data, err := json.MarshalIndent(s.results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.jsonPath, data, 0644)
}
