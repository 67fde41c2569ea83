package file

import (
	"errors"
	"fmt"
	"hash/adler32"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/farwydi/actionpipe"
)

// NewQueueByEvent opens the spool file backing the event's insert statement.
// Corrupt files are quarantined and a fresh spool is started in their place.
func NewQueueByEvent(event actionpipe.Event, config ...Config) (*Queue, error) {
	// Set default config
	cfg := configDefault(config...)

	return (&queueLoader{
		cfg:               cfg,
		fileNameExtractor: regexp.MustCompile(`^(\d+)_(\d+)\.(spool|corrupt)$`),
	}).load(event)
}

type queueLoader struct {
	cfg               Config
	fileNameExtractor *regexp.Regexp
}

func (q *queueLoader) load(event actionpipe.Event) (*Queue, error) {
	h := adler32.New()
	_, _ = h.Write([]byte(event.SQL()))

	fName := fmt.Sprintf("%d_0.spool", h.Sum32())
	fPath := filepath.Join(q.cfg.Workspace, fName)
	f, err := os.OpenFile(fPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueue(f, event)
	if err == nil {
		return queue, nil
	}
	if !errors.Is(err, ErrInvalidFile) {
		return nil, err
	}

	if err := q.quarantine(f); err != nil {
		return nil, err
	}

	f, err = os.OpenFile(fPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return NewQueue(f, event)
}

func (q *queueLoader) quarantine(f *os.File) error {
	err := f.Close()
	if err != nil {
		return err
	}

	name, _, n, err := q.extractName(filepath.Base(f.Name()))
	if err != nil {
		return err
	}
	quarantinePath := filepath.Join(q.cfg.Workspace, q.buildName(name, "corrupt", n))

	return q.move(f.Name(), quarantinePath)
}

func (q *queueLoader) buildName(name, t string, n int) string {
	return fmt.Sprintf("%s_%d.%s", name, n, t)
}

func (q *queueLoader) extractName(fileName string) (name, t string, n int, err error) {
	fne := q.fileNameExtractor.FindStringSubmatch(fileName)
	if len(fne) != 4 {
		return "", "", 0, fmt.Errorf("bad name: '%s'", fileName)
	}

	n, err = strconv.Atoi(fne[2])
	if err != nil {
		return "", "", 0, err
	}

	return fne[1], fne[3], n, nil
}

func (q *queueLoader) move(prev, next string) error {
	if exists(next) {
		name, t, n, err := q.extractName(filepath.Base(next))
		if err != nil {
			return err
		}

		err = q.move(next, filepath.Join(q.cfg.Workspace, q.buildName(name, t, n+1)))
		if err != nil {
			return err
		}
	}

	_, _, n, err := q.extractName(filepath.Base(prev))
	if err != nil {
		return err
	}

	if n >= q.cfg.MaxHistory {
		return os.Remove(prev)
	}

	return os.Rename(prev, next)
}
