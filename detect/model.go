package detect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/video"
)

// Config defines the config for the object detector client.
type Config struct {
	// BatchSize is the fixed batch the model process expects. Short
	// batches are padded with zero frames.
	BatchSize int
	// InputWidth and InputHeight are the model input dimensions. Frames
	// handed to Detect must match them.
	InputWidth  int
	InputHeight int
	// FrameWidth and FrameHeight are the dimensions detections are
	// rescaled to. Zero keeps model coordinates.
	FrameWidth  int
	FrameHeight int
	// Threshold drops detections scored below it.
	Threshold float64
	// Classes keeps only the listed classes. Empty keeps everything.
	Classes []string
}

// ConfigDefault is the default config
var ConfigDefault = Config{
	BatchSize:   1,
	InputWidth:  640,
	InputHeight: 352,
	Threshold:   0.25,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = ConfigDefault.BatchSize
	}

	if cfg.InputWidth <= 0 {
		cfg.InputWidth = ConfigDefault.InputWidth
	}

	if cfg.InputHeight <= 0 {
		cfg.InputHeight = ConfigDefault.InputHeight
	}

	if cfg.Threshold <= 0 {
		cfg.Threshold = ConfigDefault.Threshold
	}

	return cfg
}

// Model talks to a detector child process. The process reads raw RGB24
// frames in fixed batches from stdin and answers one line per batch,
// prefixed with "json", holding a detection list per frame.
type Model struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	rd    *bufio.Reader
	mu    sync.Mutex

	cfg       Config
	zeroImage []byte
}

// NewModel launches the detector process. The protocol arguments are
// appended to command: weights path, batch size, input width, input height,
// threshold and the class list.
func NewModel(command []string, weights string, config ...Config) (*Model, error) {
	cfg := configDefault(config...)

	if len(command) == 0 {
		return nil, fmt.Errorf("empty detector command")
	}

	args := append([]string{}, command[1:]...)
	args = append(args,
		weights,
		strconv.Itoa(cfg.BatchSize),
		strconv.Itoa(cfg.InputWidth), strconv.Itoa(cfg.InputHeight),
		strconv.FormatFloat(cfg.Threshold, 'f', -1, 64),
		strings.Join(cfg.Classes, ","),
	)

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
		cmd:       cmd,
		stdin:     stdin,
		rd:        bufio.NewReader(stdout),
		cfg:       cfg,
		zeroImage: make([]byte, cfg.InputWidth*cfg.InputHeight*3),
	}, nil
}

// Detect runs the model over the given frames, chunking into the configured
// batch size. The returned lists are rescaled, thresholded, filtered and
// clipped.
func (m *Model) Detect(images []video.Image) ([][]actionpipe.Detection, error) {
	out := make([][]actionpipe.Detection, 0, len(images))
	for start := 0; start < len(images); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(images) {
			end = len(images)
		}
		batch, err := m.detectBatch(images[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// DetectOne runs the model over a single frame.
func (m *Model) DetectOne(im video.Image) ([]actionpipe.Detection, error) {
	batch, err := m.detectBatch([]video.Image{im})
	if err != nil {
		return nil, err
	}
	return batch[0], nil
}

func (m *Model) detectBatch(images []video.Image) ([][]actionpipe.Detection, error) {
	for _, im := range images {
		if im.Width != m.cfg.InputWidth || im.Height != m.cfg.InputHeight {
			return nil, fmt.Errorf("frame is %dx%d, model expects %dx%d",
				im.Width, im.Height, m.cfg.InputWidth, m.cfg.InputHeight)
		}
	}

	m.mu.Lock()
	for _, im := range images {
		if _, err := m.stdin.Write(im.Bytes); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("writing frame to detector: %w", err)
		}
	}
	for i := len(images); i < m.cfg.BatchSize; i++ {
		if _, err := m.stdin.Write(m.zeroImage); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("writing frame to detector: %w", err)
		}
	}
	payload, err := awaitJSON(m.rd)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("reading detector response: %w", err)
	}

	var detections [][]actionpipe.Detection
	if err := json.Unmarshal(payload, &detections); err != nil {
		return nil, fmt.Errorf("decoding detector response: %w", err)
	}
	if len(detections) < len(images) {
		return nil, fmt.Errorf("detector answered %d frames, want %d",
			len(detections), len(images))
	}

	return m.postprocess(detections[:len(images)]), nil
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

func (m *Model) postprocess(detections [][]actionpipe.Detection) [][]actionpipe.Detection {
	keep := map[string]bool{}
	for _, cls := range m.cfg.Classes {
		keep[cls] = true
	}

	out := make([][]actionpipe.Detection, len(detections))
	for i, dlist := range detections {
		for _, d := range dlist {
			if d.Score < m.cfg.Threshold {
				continue
			}
			if len(keep) > 0 && !keep[d.Class] {
				continue
			}
			if m.cfg.FrameWidth > 0 && m.cfg.FrameHeight > 0 {
				d.Box = d.Box.Rescale(
					[2]int{m.cfg.InputWidth, m.cfg.InputHeight},
					[2]int{m.cfg.FrameWidth, m.cfg.FrameHeight},
				)
				d.Box = d.Box.Clip(m.cfg.FrameWidth, m.cfg.FrameHeight)
			} else {
				d.Box = d.Box.Clip(m.cfg.InputWidth, m.cfg.InputHeight)
			}
			out[i] = append(out[i], d)
		}
	}
	return out
}
