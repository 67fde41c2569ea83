package video

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// FFmpegWriter encodes RGB frames into an H.264 file through an ffmpeg
// child process.
type FFmpegWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	width  int
	height int
}

func CreateFile(path string, width int, height int, fps float64) (*FFmpegWriter, error) {
	cmd := exec.Command(
		"ffmpeg",
		"-f", "rawvideo", "-pix_fmt", "rgb24",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264", "-preset", "fast", "-pix_fmt", "yuv420p",
		"-y", path,
	)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &FFmpegWriter{
		cmd:    cmd,
		stdin:  stdin,
		width:  width,
		height: height,
	}, nil
}

func (w *FFmpegWriter) Write(im Image) error {
	if im.Width != w.width || im.Height != w.height {
		return fmt.Errorf("frame is %dx%d, writer expects %dx%d",
			im.Width, im.Height, w.width, w.height)
	}
	_, err := w.stdin.Write(im.Bytes)
	return err
}

// Close finishes the encode. The file is not valid until Close returns nil.
func (w *FFmpegWriter) Close() error {
	if err := w.stdin.Close(); err != nil {
		return err
	}
	return w.cmd.Wait()
}
