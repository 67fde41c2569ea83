package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/video"
)

// Frame is one tracked frame entering the prediction worker: the decoded
// image plus the tracked person detections found on it.
type Frame struct {
	Image    video.Image
	FrameIdx int
	Millis   int64
	Persons  []actionpipe.Detection
}

// Output is one result leaving the worker. Done marks the end of the
// deferred prediction drain.
type Output struct {
	Prediction *actionpipe.Prediction
	Done       bool
}

// Detector is the keyframe object detector the worker runs once per
// interval.
type Detector interface {
	DetectOne(im video.Image) ([]actionpipe.Detection, error)
}

// Predictor is the action predictor surface the worker drives.
type Predictor interface {
	UpdateFeatures(timestamp int, clip []video.Image, persons []actionpipe.Detection, objects []actionpipe.Detection) error
	Predict(timestamp int) (*actionpipe.Prediction, error)
	Expire(timestamp int)
}

// Config defines the config for the prediction worker.
type Config struct {
	Logger Logger

	// FrameCount frames, one every FrameStride, form the clip handed to
	// feature extraction. The worker buffers FrameCount*FrameStride
	// frames and predicts on the buffer's center frame.
	FrameCount  int
	FrameStride int

	// Interval is the minimum gap between predictions in stream
	// milliseconds.
	Interval int64

	// Realtime scores each tick immediately. Otherwise ticks are
	// recorded and scored in order during the drain started by Finish.
	Realtime bool

	// InputQueueSize bounds the frames waiting for the worker.
	InputQueueSize int
	// OutputQueueSize bounds the results waiting for the consumer.
	OutputQueueSize int
}

// ConfigDefault is the default config
var ConfigDefault = Config{
	FrameCount:      32,
	FrameStride:     2,
	Interval:        1000,
	InputQueueSize:  512,
	OutputQueueSize: 1024,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.FrameCount <= 0 {
		cfg.FrameCount = ConfigDefault.FrameCount
	}

	if cfg.FrameStride <= 0 {
		cfg.FrameStride = ConfigDefault.FrameStride
	}

	if cfg.Interval <= 0 {
		cfg.Interval = ConfigDefault.Interval
	}

	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = ConfigDefault.InputQueueSize
	}

	if cfg.OutputQueueSize <= 0 {
		cfg.OutputQueueSize = ConfigDefault.OutputQueueSize
	}

	return cfg
}

type frameExtra struct {
	millis  int64
	persons []actionpipe.Detection
}

type deferredTick struct {
	millis int64
}

type input struct {
	frame Frame
	done  bool
}

// Worker buffers tracked frames, runs keyframe object detection and feature
// extraction once per interval, and emits action predictions. Push feeds it
// from the tracking loop; ReadTrack republishes every frame to the render
// loop with cap-1 backpressure.
type Worker struct {
	cfg       Config
	logger    Logger
	detector  Detector
	predictor Predictor

	inputQueue  chan input
	trackQueue  chan Frame
	outputQueue chan Output
	errs        chan error
	stopCh      chan struct{}
	finishCh    chan struct{}

	frameStack []video.Image
	extraStack []frameExtra

	lastMillis int64
	deferred   []deferredTick
	drainReady bool

	stopped  int32
	taskDone int32
	finished int32
}

func NewWorker(detector Detector, predictor Predictor, config ...Config) *Worker {
	cfg := configDefault(config...)

	logger := cfg.Logger
	if logger == nil {
		logger, _ = NewStdLogger()
	}

	return &Worker{
		cfg:         cfg,
		logger:      logger,
		detector:    detector,
		predictor:   predictor,
		inputQueue:  make(chan input, cfg.InputQueueSize),
		trackQueue:  make(chan Frame, 1),
		outputQueue: make(chan Output, cfg.OutputQueueSize),
		errs:        make(chan error, 1),
		stopCh:      make(chan struct{}),
		finishCh:    make(chan struct{}),
	}
}

// Run starts the prediction loop goroutine.
func (w *Worker) Run() {
	go w.run()
}

// Push hands a tracked frame to the worker and republishes it on the track
// queue. It blocks when the render loop falls behind. The prediction loop
// buffers its own copy of the image; the caller's pixels stay free to
// annotate once the frame comes back out of ReadTrack.
func (w *Worker) Push(frame Frame) bool {
	if atomic.LoadInt32(&w.stopped) != 0 {
		return false
	}

	buffered := frame
	buffered.Image = frame.Image.Copy()

	select {
	case w.inputQueue <- input{frame: buffered}:
	case <-w.stopCh:
		return false
	}

	select {
	case w.trackQueue <- frame:
		return true
	case <-w.stopCh:
		return false
	}
}

// Finish signals that no more frames will arrive. In deferred mode the
// worker then scores every recorded tick in order and emits them followed
// by a done output.
func (w *Worker) Finish() {
	if !atomic.CompareAndSwapInt32(&w.finished, 0, 1) {
		return
	}
	atomic.StoreInt32(&w.taskDone, 1)
	select {
	case w.inputQueue <- input{done: true}:
	case <-w.stopCh:
	}
	close(w.finishCh)
}

// Terminate stops the worker without draining.
func (w *Worker) Terminate() {
	if atomic.CompareAndSwapInt32(&w.stopped, 0, 1) {
		close(w.stopCh)
	}
}

// Read polls for the next prediction without blocking.
func (w *Worker) Read() (Output, bool) {
	select {
	case out := <-w.outputQueue:
		return out, true
	default:
		return Output{}, false
	}
}

// ReadTrack blocks until the next tracked frame is available for rendering.
// It reports false once the worker is terminated, or once Finish was called
// and every pushed frame has been consumed.
func (w *Worker) ReadTrack() (Frame, bool) {
	select {
	case frame := <-w.trackQueue:
		return frame, true
	case <-w.stopCh:
		return Frame{}, false
	case <-w.finishCh:
		// Frames pushed before Finish are already queued.
		select {
		case frame := <-w.trackQueue:
			return frame, true
		default:
			return Frame{}, false
		}
	}
}

// Errors reports fatal pipeline errors.
func (w *Worker) Errors() <-chan error {
	return w.errs
}

func (w *Worker) bufferSize() int {
	return w.cfg.FrameCount * w.cfg.FrameStride
}

func (w *Worker) run() {
	for {
		if atomic.LoadInt32(&w.stopped) != 0 {
			return
		}

		if atomic.LoadInt32(&w.taskDone) != 0 && w.drainReady {
			w.drain()
		}

		select {
		case in := <-w.inputQueue:
			if in.done {
				w.drainReady = true
				continue
			}
			w.process(in.frame)
		case <-w.stopCh:
			return
		case <-time.After(time.Second):
		}
	}
}

func (w *Worker) process(frame Frame) {
	w.frameStack = append(w.frameStack, frame.Image)
	w.extraStack = append(w.extraStack, frameExtra{millis: frame.Millis, persons: frame.Persons})
	if n := w.bufferSize(); len(w.frameStack) > n {
		copy(w.frameStack, w.frameStack[len(w.frameStack)-n:])
		w.frameStack = w.frameStack[:n]
		copy(w.extraStack, w.extraStack[len(w.extraStack)-n:])
		w.extraStack = w.extraStack[:n]
	}

	if len(w.frameStack) < w.bufferSize() || frame.Millis <= w.lastMillis+w.cfg.Interval {
		return
	}
	// The tick is consumed even when nothing is predicted on it.
	w.lastMillis = frame.Millis

	center := w.bufferSize() / 2
	centerMillis := w.extraStack[center].millis
	persons := w.extraStack[center].persons
	if len(persons) == 0 {
		return
	}

	keyframe := w.frameStack[center]
	clip := w.sampleClip()
	timestamp := int(centerMillis / w.cfg.Interval)

	detections, err := w.detector.DetectOne(keyframe)
	if err != nil {
		w.fail(err)
		return
	}
	_, objects := actionpipe.SplitPersons(detections)

	if err := w.predictor.UpdateFeatures(timestamp, clip, persons, objects); err != nil {
		w.fail(err)
		return
	}

	if w.cfg.Realtime {
		prediction, err := w.predictor.Predict(timestamp)
		if err != nil {
			w.fail(err)
			return
		}
		prediction.Millis = centerMillis
		w.emit(Output{Prediction: prediction})
		w.predictor.Expire(timestamp)
		return
	}

	w.deferred = append(w.deferred, deferredTick{millis: centerMillis})
}

// sampleClip picks FrameCount frames, one per stride, from the buffer.
func (w *Worker) sampleClip() []video.Image {
	clip := make([]video.Image, w.cfg.FrameCount)
	for i := range clip {
		clip[i] = w.frameStack[i*w.cfg.FrameStride]
	}
	return clip
}

func (w *Worker) drain() {
	w.logger.Infow("input exhausted, scoring recorded ticks", "ticks", len(w.deferred))

	for _, tick := range w.deferred {
		if atomic.LoadInt32(&w.stopped) != 0 {
			return
		}
		timestamp := int(tick.millis / w.cfg.Interval)
		prediction, err := w.predictor.Predict(timestamp)
		if err != nil {
			w.fail(err)
			continue
		}
		prediction.Millis = tick.millis
		w.emit(Output{Prediction: prediction})
	}

	w.emit(Output{Done: true})
	w.deferred = nil
	w.drainReady = false
	atomic.StoreInt32(&w.taskDone, 0)
}

func (w *Worker) emit(out Output) {
	select {
	case w.outputQueue <- out:
	case <-w.stopCh:
	}
}

func (w *Worker) fail(err error) {
	w.logger.Errorw("prediction tick failed", "error", err)
	select {
	case w.errs <- err:
	default:
	}
}
