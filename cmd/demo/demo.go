package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/action"
	"github.com/farwydi/actionpipe/config"
	"github.com/farwydi/actionpipe/detect"
	"github.com/farwydi/actionpipe/pipeline"
	"github.com/farwydi/actionpipe/track"
	"github.com/farwydi/actionpipe/video"
	"github.com/farwydi/actionpipe/visual"
)

// Run wires the whole pipeline for one invocation and blocks until the
// input is exhausted or ctx is cancelled. Cancellation drains the sinks and
// finalizes the output video before returning.
func Run(ctx context.Context, cfg config.Config) (err error) {
	logger, err := pipeline.NewStdLogger()
	if err != nil {
		return err
	}

	mc, err := config.LoadModelConfig(cfg.ModelConfig)
	if err != nil {
		return err
	}
	if missing := mc.MissingWeights(cfg.WeightsDir); len(missing) > 0 {
		return fmt.Errorf("missing model weights, place them first:\n  %s",
			strings.Join(missing, "\n  "))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	procW, procH := mc.Process.Width, mc.Process.Height

	var (
		rd     video.Reader
		meta   video.Metadata
		source string
		outFPS float64
	)
	if cfg.Webcam {
		source = cfg.WebcamDevice
		outFPS = float64(video.WebcamConfigDefault.FPS)
		rd, err = video.OpenWebcam(cfg.WebcamDevice, procW, procH)
	} else {
		source = cfg.VideoPath
		meta, err = video.Probe(cfg.VideoPath)
		if err != nil {
			return err
		}
		if meta.FPS <= 0 {
			return fmt.Errorf("%s: could not determine the frame rate", cfg.VideoPath)
		}
		outFPS = meta.FPS
		rd, err = video.OpenFile(cfg.VideoPath, procW, procH, video.FileConfig{
			Start:    cfg.Start,
			Duration: cfg.Duration,
		})
	}
	if err != nil {
		return err
	}
	go func() {
		// Closing the child process is what unblocks a stuck Read.
		<-runCtx.Done()
		_ = rd.Close()
	}()

	detector, err := detect.NewModel(mc.Detector.Command,
		filepath.Join(cfg.WeightsDir, mc.Detector.Weights), detect.Config{
			BatchSize:   mc.Detector.BatchSize,
			InputWidth:  procW,
			InputHeight: procH,
			Threshold:   mc.Detector.Threshold,
			Classes:     mc.Detector.Classes,
		})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, detector.Close()) }()

	actionModel, err := action.NewModel(mc.Action.Command,
		filepath.Join(cfg.WeightsDir, mc.Action.Weights))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, actionModel.Close()) }()

	predictor := action.NewPredictor(actionModel, action.Config{
		Window:     mc.Action.MemoryWindow,
		Threshold:  mc.Action.Threshold,
		MaxObjects: mc.Action.MaxObjects,
		Exclude:    cfg.ExcludeActions,
		Labels:     mc.Action.Labels,
	})

	worker := pipeline.NewWorker(detector, predictor, pipeline.Config{
		Logger:      logger,
		FrameCount:  mc.Action.FrameCount,
		FrameStride: mc.Action.FrameStride,
		Interval:    cfg.Interval(),
		Realtime:    cfg.Realtime,
	})
	worker.Run()
	defer worker.Terminate()

	runID := "run-" + time.Now().UTC().Format("20060102-150405")

	// Event boxes leave in source coordinates for files, processing
	// coordinates for webcam streams.
	eventScale := func(b actionpipe.Box) actionpipe.Box { return b }
	eventW, eventH := procW, procH
	if !cfg.Webcam {
		eventW, eventH = meta.Width, meta.Height
		eventScale = func(b actionpipe.Box) actionpipe.Box {
			return b.Rescale([2]int{procW, procH}, [2]int{eventW, eventH})
		}
	}

	sinks, err := newSinks(ctx, cfg, logger, sinkMeta{
		RunID:  runID,
		Source: source,
		Width:  eventW,
		Height: eventH,
		FPS:    outFPS,
	}, eventScale)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sinks.Close()) }()

	logger.Infow("demo starting",
		"run_id", runID,
		"source", source,
		"realtime", cfg.Realtime,
		"interval_ms", cfg.Interval(),
	)

	tracker := track.NewTracker()
	started := time.Now()
	millisOf := func(frameIdx int) int64 {
		if cfg.Webcam {
			return time.Since(started).Milliseconds()
		}
		return int64(float64(frameIdx) * 1000.0 / meta.FPS)
	}

	// Ingestion loop: decode, detect persons, track, feed the worker.
	ingestErr := make(chan error, 1)
	go func() {
		frameIdx := 0
		for {
			select {
			case <-runCtx.Done():
				worker.Terminate()
				ingestErr <- runCtx.Err()
				return
			default:
			}

			im, readErr := rd.Read()
			if readErr == io.EOF {
				worker.Finish()
				ingestErr <- nil
				return
			}
			if readErr != nil {
				worker.Terminate()
				if runCtx.Err() != nil {
					ingestErr <- runCtx.Err()
				} else {
					ingestErr <- fmt.Errorf("reading frame %d: %w", frameIdx, readErr)
				}
				return
			}

			detections, detectErr := detector.DetectOne(im)
			if detectErr != nil {
				worker.Terminate()
				ingestErr <- fmt.Errorf("detecting on frame %d: %w", frameIdx, detectErr)
				return
			}
			persons, _ := actionpipe.SplitPersons(detections)

			if !worker.Push(pipeline.Frame{
				Image:    im,
				FrameIdx: frameIdx,
				Millis:   millisOf(frameIdx),
				Persons:  tracker.Update(frameIdx, persons),
			}) {
				if runCtx.Err() != nil {
					ingestErr <- runCtx.Err()
				} else {
					ingestErr <- errors.New("pipeline terminated before the input ended")
				}
				return
			}
			frameIdx++
		}
	}()

	var writer *video.FFmpegWriter
	if cfg.Realtime {
		writer, err = video.CreateFile(cfg.OutputPath, procW, procH, outFPS)
		if err != nil {
			cancel()
			return err
		}
		defer func() { err = multierr.Append(err, writer.Close()) }()
	}

	renderer := visual.NewRenderer()
	var predictions []*actionpipe.Prediction
	observe := func(p *actionpipe.Prediction) {
		if cfg.Realtime {
			renderer.Observe(p)
		} else {
			predictions = append(predictions, p)
		}
		sinks.PushPrediction(ctx, p)
	}

	// Render loop: consume tracked frames, poll predictions as they come.
	var frameMillis []int64
	frames := 0
	doneSeen := false
	for {
		frame, ok := worker.ReadTrack()
		if !ok {
			break
		}
		frames++

		for {
			out, ok := worker.Read()
			if !ok {
				break
			}
			if out.Done {
				doneSeen = true
				continue
			}
			observe(out.Prediction)
		}

		sinks.PushTracked(ctx, frame)

		if cfg.Realtime {
			renderer.Draw(frame.Image, frame.Persons)
			if writeErr := writer.Write(frame.Image); writeErr != nil {
				cancel()
				return fmt.Errorf("writing frame %d: %w", frame.FrameIdx, writeErr)
			}
		} else {
			frameMillis = append(frameMillis, frame.Millis)
		}
	}

	if ingested := <-ingestErr; ingested != nil {
		if errors.Is(ingested, context.Canceled) {
			logger.Infow("interrupted, draining sinks", "frames", frames)
			return nil
		}
		return ingested
	}

	if !doneSeen {
		if drainErr := awaitDone(runCtx, worker, observe); drainErr != nil {
			if errors.Is(drainErr, context.Canceled) {
				logger.Infow("interrupted during prediction drain", "frames", frames)
				return nil
			}
			return drainErr
		}
	}

	sinks.Finish(ctx, frames)

	if cfg.Realtime {
		logger.Infow("demo finished", "run_id", runID, "frames", frames)
		return nil
	}

	logger.Infow("predictions complete, rendering output",
		"run_id", runID,
		"frames", frames,
		"predictions", len(predictions),
	)
	return renderDeferred(runCtx, cfg, meta, procW, procH, tracker, predictions, frameMillis)
}

// awaitDone polls the worker until the done output arrives, handing every
// remaining prediction to observe.
func awaitDone(ctx context.Context, worker *pipeline.Worker, observe func(*actionpipe.Prediction)) error {
	for {
		select {
		case werr := <-worker.Errors():
			worker.Terminate()
			return werr
		default:
		}

		out, ok := worker.Read()
		if ok {
			if out.Done {
				return nil
			}
			observe(out.Prediction)
			continue
		}

		select {
		case <-ctx.Done():
			worker.Terminate()
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// renderDeferred replays the source at its native resolution and draws the
// smoothed tracks with the predictions assigned to their frames.
func renderDeferred(ctx context.Context, cfg config.Config, meta video.Metadata,
	procW int, procH int, tracker *track.Tracker,
	predictions []*actionpipe.Prediction, frameMillis []int64) error {

	tracks := tracker.Tracks()
	for _, tr := range tracks {
		tr.Detections = track.Interpolate(tr.Detections)
	}
	byFrame := track.ByFrame(tracks)
	actionpipe.RescaleDetections(byFrame, [2]int{procW, procH}, [2]int{meta.Width, meta.Height})

	predByFrame := make(map[int]*actionpipe.Prediction, len(predictions))
	for _, p := range predictions {
		if idx := frameIndexFor(frameMillis, p.Millis); idx < len(frameMillis) {
			predByFrame[idx] = p
		}
	}

	rd, err := video.OpenFile(cfg.VideoPath, meta.Width, meta.Height, video.FileConfig{
		Start:    cfg.Start,
		Duration: cfg.Duration,
	})
	if err != nil {
		return err
	}
	defer rd.Close()
	go func() {
		<-ctx.Done()
		_ = rd.Close()
	}()

	writer, err := video.CreateFile(cfg.OutputPath, meta.Width, meta.Height, meta.FPS)
	if err != nil {
		return err
	}

	renderer := visual.NewRenderer()
	if err := visual.RenderPass(rd, writer, renderer, byFrame, func(frameIdx int) *actionpipe.Prediction {
		return predByFrame[frameIdx]
	}); err != nil {
		return multierr.Append(err, writer.Close())
	}
	return writer.Close()
}

// frameIndexFor maps a prediction's millis to the first frame at or after
// it.
func frameIndexFor(frameMillis []int64, millis int64) int {
	return sort.Search(len(frameMillis), func(i int) bool {
		return frameMillis[i] >= millis
	})
}
