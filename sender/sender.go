package sender

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/queue/file"
	"github.com/farwydi/actionpipe/queue/memory"
)

// NewSender builds a buffered database writer. Events pushed into it are
// spooled on disk, grouped by insert statement and flushed in transactions
// by the goroutine started with Run.
func NewSender(connect *sql.DB, config ...Config) *Sender {
	cfg := configDefault(config...)

	logger, _ := NewStdLogger()
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	return &Sender{
		cfg: cfg,
		filePool: NewPool(
			func(event actionpipe.Event) (actionpipe.Queue, error) {
				return file.NewQueueByEvent(event, file.Config{
					Workspace:  cfg.SpoolDir,
					MaxHistory: cfg.SpoolMaxHistory,
				})
			},
		),
		memoryPool: NewPool(func(_ actionpipe.Event) (actionpipe.Queue, error) {
			return memory.NewQueue(), nil
		}),
		stopSig: make(chan bool),
		connect: connect,
		logger:  logger,
	}
}

type Sender struct {
	cfg Config

	logger Logger

	filePool   actionpipe.Pool
	memoryPool actionpipe.Pool

	stopSig  chan bool
	connect  *sql.DB
	shutdown int32
}

// Stop halts the flush loop started by Run. With sendTail the remaining
// events are published before returning, otherwise they are parked in the
// file spool for the next start.
func (s *Sender) Stop(sendTail bool) {
	atomic.StoreInt32(&s.shutdown, 1)
	s.stopSig <- sendTail
	<-s.stopSig
}

func (s *Sender) Push(event actionpipe.Event) error {
	if atomic.LoadInt32(&s.shutdown) == 0 {
		err := s.filePool.Push(event)
		if err != nil {
			if s.cfg.UseMemoryFallback {
				s.logger.Warnw("writing to disk failed", "error", err)

				// the memory queue does not return an error
				_ = s.memoryPool.Push(event)
				return nil
			}
			return fmt.Errorf("writing to disk failed: %v", err)
		}
		return nil
	}

	return errors.New("sender shutdown")
}

func (s *Sender) publishRows(query string, rows [][]interface{}) error {
	panicked := true
	tx, err := s.connect.Begin()
	if err != nil {
		return err
	}
	defer func() {
		// Make sure to rollback when panic, Block error or Commit error
		if panicked || err != nil {
			if err := tx.Rollback(); err != nil {
				s.logger.Errorw("problem when rolling back a transaction", "error", err)
			}
		}
	}()

	err = func() error {
		stmt, err := tx.Prepare(query)
		if err != nil {
			return err
		}

		for _, args := range rows {
			_, err := stmt.Exec(args...)
			if err != nil {
				return err
			}
		}

		err = stmt.Close()
		if err != nil {
			return err
		}

		return nil
	}()

	if err == nil {
		err = tx.Commit()
	}

	panicked = false

	return err
}

func (s *Sender) publish(query string, events []actionpipe.Event) error {
	rows := make([][]interface{}, 0, len(events))
	for _, event := range events {
		rows = append(rows, event.ToExec())
	}
	return s.publishRows(query, rows)
}

func (s *Sender) fallback(events []actionpipe.Event, memorySafe bool) {
	if err := s.filePool.Append(events); err != nil {
		if memorySafe {
			_ = s.memoryPool.Append(events)
			s.logger.Warnw("error when fallback a write to disk", "error", err)
			return
		}

		for _, event := range events {
			s.cfg.Dumper.Dump(event.SQL(), [][]interface{}{event.ToExec()})
		}
		s.logger.Errorw("fatal error when fallback a write to disk, events dumped",
			"error", err,
			"dumped", len(events),
		)
	}
}

// replayDumped publishes batches parked in the dumper. A batch that fails
// again goes back to the dumper untouched.
func (s *Sender) replayDumped() {
	for {
		exist, query, rows := s.cfg.Dumper.Return()
		if !exist {
			return
		}

		if err := s.publishRows(query, rows); err != nil {
			s.cfg.Dumper.Dump(query, rows)
			s.logger.Warnw("dumped batch still not publishable", "error", err)
			return
		}
	}
}

func (s *Sender) flush(limit int, memorySafe bool) {
	s.replayDumped()

	extractSize := 0
	safes := map[string][]actionpipe.Event{}
	ejected, _ := s.memoryPool.Eject(limit)
	extractSize += len(ejected)
	for _, event := range ejected {
		query := event.SQL()
		safes[query] = append(safes[query], event)
	}

	extractCount := limit - extractSize
	if extractCount > 0 || limit < 0 {
		ejected, err := s.filePool.Eject(extractCount)
		if err != nil {
			s.logger.Warnw("problem ejecting queue from disk", "error", err)
		}
		for _, event := range ejected {
			query := event.SQL()
			safes[query] = append(safes[query], event)
		}
	}

	for query, events := range safes {
		err := s.publish(query, events)
		if err != nil {
			s.logger.Warnw("publication ended with an error", "error", err)
			s.fallback(events, memorySafe)
		} else {
			if s.cfg.ShowSuccessfulInfo {
				s.logger.Infow("successfully sent", "count", len(events))
			}
		}
	}
}

// Run starts the flush goroutine using the configured interval and limit.
func (s *Sender) Run() {
	s.RunPusher(s.cfg.SendInterval, s.cfg.SendLimit)
}

func (s *Sender) RunPusher(period time.Duration, limit int) {
	if period < time.Millisecond {
		period = time.Millisecond
	}

	t := time.NewTicker(period)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.flush(limit, s.cfg.UseMemoryFallback)
			case sendTail := <-s.stopSig:
				if !sendTail {
					ejected, _ := s.memoryPool.Eject(-1)
					if len(ejected) > 0 {
						if err := s.filePool.Append(ejected); err != nil {
							s.logger.Errorw("data lost! fatal error writing to disk when stopping sender",
								"error", err,
								"lost", len(ejected),
							)
						}
					}
					close(s.stopSig)
					return
				}

				s.flush(-1, false)

				close(s.stopSig)
				return
			}
		}
	}()
}
