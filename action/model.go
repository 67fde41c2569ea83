package action

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/video"
)

// Model talks to the action model child process in two phases. Extract feeds
// a sampled clip with person and object boxes and receives one feature
// vector per box; Classify feeds pooled features around a timestamp and
// receives per-person scores over the action vocabulary.
//
// Each request is one JSON header line; extract requests append the raw
// RGB24 clip frames after the header. Responses arrive on a "json"-prefixed
// line.
type Model struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	rd    *bufio.Reader
	mu    sync.Mutex
}

// NewModel launches the action model process with the weights path appended
// to command.
func NewModel(command []string, weights string) (*Model, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty action model command")
	}

	args := append([]string{}, command[1:]...)
	args = append(args, weights)

	cmd := exec.Command(command[0], args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &Model{
		cmd:   cmd,
		stdin: stdin,
		rd:    bufio.NewReader(stdout),
	}, nil
}

type extractRequest struct {
	Op        string           `json:"op"`
	Timestamp int              `json:"timestamp"`
	Frames    int              `json:"frames"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Persons   []actionpipe.Box `json:"persons"`
	Objects   []actionpipe.Box `json:"objects"`
}

type extractResponse struct {
	Persons []string `json:"persons"`
	Objects []string `json:"objects"`
}

type memoryBlock struct {
	Timestamp int      `json:"timestamp"`
	Persons   []string `json:"persons"`
}

type classifyRequest struct {
	Op        string        `json:"op"`
	Timestamp int           `json:"timestamp"`
	Persons   []string      `json:"persons"`
	Objects   []string      `json:"objects"`
	Memory    []memoryBlock `json:"memory"`
}

type classifyResponse struct {
	Scores [][]float64 `json:"scores"`
}

// Extract runs the feature half of the model over one clip. It returns one
// feature vector per person box and one per object box.
func (m *Model) Extract(timestamp int, clip []video.Image, persons []actionpipe.Box, objects []actionpipe.Box) ([][]float32, [][]float32, error) {
	if len(clip) == 0 {
		return nil, nil, fmt.Errorf("empty clip")
	}
	width, height := clip[0].Width, clip[0].Height
	for _, im := range clip {
		if im.Width != width || im.Height != height {
			return nil, nil, fmt.Errorf("clip mixes %dx%d and %dx%d frames",
				width, height, im.Width, im.Height)
		}
	}

	header, err := json.Marshal(extractRequest{
		Op:        "extract",
		Timestamp: timestamp,
		Frames:    len(clip),
		Width:     width,
		Height:    height,
		Persons:   persons,
		Objects:   objects,
	})
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	payload, err := func() ([]byte, error) {
		if _, err := m.stdin.Write(append(header, '\n')); err != nil {
			return nil, fmt.Errorf("writing extract header: %w", err)
		}
		for _, im := range clip {
			if _, err := m.stdin.Write(im.Bytes); err != nil {
				return nil, fmt.Errorf("writing clip frame: %w", err)
			}
		}
		return awaitJSON(m.rd)
	}()
	m.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	var resp extractResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, fmt.Errorf("decoding extract response: %w", err)
	}
	if len(resp.Persons) != len(persons) {
		return nil, nil, fmt.Errorf("model answered %d person features, want %d",
			len(resp.Persons), len(persons))
	}

	personFeatures, err := decodeFeatures(resp.Persons)
	if err != nil {
		return nil, nil, err
	}
	objectFeatures, err := decodeFeatures(resp.Objects)
	if err != nil {
		return nil, nil, err
	}
	return personFeatures, objectFeatures, nil
}

// Classify runs the scoring half of the model for one timestamp using the
// surrounding memory window. It returns one score per action class for each
// person in the current entry.
func (m *Model) Classify(timestamp int, current Entry, memory []WindowEntry) ([][]float64, error) {
	blocks := make([]memoryBlock, 0, len(memory))
	for _, w := range memory {
		blocks = append(blocks, memoryBlock{
			Timestamp: w.Timestamp,
			Persons:   encodeFeatures(w.Entry.PersonFeatures),
		})
	}

	header, err := json.Marshal(classifyRequest{
		Op:        "classify",
		Timestamp: timestamp,
		Persons:   encodeFeatures(current.PersonFeatures),
		Objects:   encodeFeatures(current.ObjectFeatures),
		Memory:    blocks,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	payload, err := func() ([]byte, error) {
		if _, err := m.stdin.Write(append(header, '\n')); err != nil {
			return nil, fmt.Errorf("writing classify header: %w", err)
		}
		return awaitJSON(m.rd)
	}()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var resp classifyResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding classify response: %w", err)
	}
	if len(resp.Scores) != len(current.PersonFeatures) {
		return nil, fmt.Errorf("model answered %d score rows, want %d",
			len(resp.Scores), len(current.PersonFeatures))
	}
	return resp.Scores, nil
}

// Close stops the model process by closing its stdin.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.stdin.Close(); err != nil {
		return err
	}
	return m.cmd.Wait()
}

// awaitJSON skips model chatter until the response line arrives.
func awaitJSON(rd *bufio.Reader) ([]byte, error) {
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "json") {
			continue
		}
		return []byte(line[4:]), nil
	}
}
