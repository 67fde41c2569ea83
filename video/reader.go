package video

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// Reader yields decoded RGB frames until the stream ends with io.EOF.
type Reader interface {
	Read() (Image, error)
	Close() error
}

// FileConfig defines the config for reading a video file.
type FileConfig struct {
	// Start seeks before decoding begins.
	Start time.Duration
	// Duration limits how much of the stream is decoded. Zero means the
	// whole stream.
	Duration time.Duration
	Threads  int
}

// FileConfigDefault is the default config
var FileConfigDefault = FileConfig{
	Threads: 2,
}

func fileConfigDefault(config ...FileConfig) FileConfig {
	if len(config) < 1 {
		return FileConfigDefault
	}

	cfg := config[0]

	if cfg.Threads <= 0 {
		cfg.Threads = FileConfigDefault.Threads
	}

	return cfg
}

// FFmpegReader decodes frames from an ffmpeg child process writing rawvideo
// to its stdout.
type FFmpegReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	width  int
	height int

	// Skip makes Read consume this many frames per call, returning only
	// the first.
	Skip int

	skipBuf []byte
}

// OpenFile starts decoding the video at path, rescaled to width x height.
func OpenFile(path string, width int, height int, config ...FileConfig) (*FFmpegReader, error) {
	cfg := fileConfigDefault(config...)

	args := []string{
		"-threads", strconv.Itoa(cfg.Threads),
	}
	if cfg.Start > 0 {
		args = append(args, "-ss", formatSeconds(cfg.Start))
	}
	if cfg.Duration > 0 {
		args = append(args, "-t", formatSeconds(cfg.Duration))
	}
	args = append(args,
		"-i", path,
		"-c:v", "rawvideo", "-pix_fmt", "rgb24", "-f", "rawvideo",
		"-vf", fmt.Sprintf("scale=%dx%d", width, height),
		"-",
	)

	return startReader(exec.Command("ffmpeg", args...), width, height)
}

// WebcamConfig defines the config for capturing from a v4l2 device.
type WebcamConfig struct {
	// FPS is the capture rate requested from the device.
	FPS int
	// CaptureWidth and CaptureHeight are the dimensions requested from
	// the device before rescaling. Zero means capture at the output size.
	CaptureWidth  int
	CaptureHeight int
}

// WebcamConfigDefault is the default config
var WebcamConfigDefault = WebcamConfig{
	FPS: 30,
}

func webcamConfigDefault(config ...WebcamConfig) WebcamConfig {
	if len(config) < 1 {
		return WebcamConfigDefault
	}

	cfg := config[0]

	if cfg.FPS <= 0 {
		cfg.FPS = WebcamConfigDefault.FPS
	}

	return cfg
}

// OpenWebcam starts capturing from a v4l2 device such as /dev/video0,
// rescaled to width x height.
func OpenWebcam(device string, width int, height int, config ...WebcamConfig) (*FFmpegReader, error) {
	cfg := webcamConfigDefault(config...)

	captureWidth, captureHeight := cfg.CaptureWidth, cfg.CaptureHeight
	if captureWidth <= 0 || captureHeight <= 0 {
		captureWidth, captureHeight = width, height
	}

	cmd := exec.Command(
		"ffmpeg",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(cfg.FPS),
		"-video_size", fmt.Sprintf("%dx%d", captureWidth, captureHeight),
		"-i", device,
		"-c:v", "rawvideo", "-pix_fmt", "rgb24", "-f", "rawvideo",
		"-vf", fmt.Sprintf("scale=%dx%d", width, height),
		"-",
	)

	return startReader(cmd, width, height)
}

func startReader(cmd *exec.Cmd, width int, height int) (*FFmpegReader, error) {
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &FFmpegReader{
		cmd:     cmd,
		stdout:  stdout,
		width:   width,
		height:  height,
		Skip:    1,
		skipBuf: make([]byte, width*height*3),
	}, nil
}

// Read returns the next frame. A stream that ends mid-frame still reports
// io.EOF.
func (rd *FFmpegReader) Read() (Image, error) {
	buf := make([]byte, rd.width*rd.height*3)
	if _, err := io.ReadFull(rd.stdout, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return Image{}, err
	}

	// Skip over rd.Skip-1 more frames.
	for i := 1; i < rd.Skip; i++ {
		io.ReadFull(rd.stdout, rd.skipBuf)
	}

	return ImageFromBytes(rd.width, rd.height, buf), nil
}

func (rd *FFmpegReader) ReadInto(im Image) error {
	if _, err := io.ReadFull(rd.stdout, im.Bytes); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return err
	}

	for i := 1; i < rd.Skip; i++ {
		io.ReadFull(rd.stdout, rd.skipBuf)
	}

	return nil
}

// Close stops the child process. The decode error, if any, was already
// visible as a short read, so the exit status is not reported.
func (rd *FFmpegReader) Close() error {
	rd.stdout.Close()
	rd.cmd.Wait()
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
