package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/olbboy/streviz-engine/internal/credentials"
	"github.com/olbboy/streviz-engine/internal/encodeargs"
	"github.com/olbboy/streviz-engine/internal/ffmpeg"
	"github.com/olbboy/streviz-engine/internal/models"
	"github.com/olbboy/streviz-engine/internal/scheduler"
	"github.com/olbboy/streviz-engine/internal/supervisor"
	"github.com/olbboy/streviz-engine/internal/util"
)

var (
	streamMode      string
	streamProtocol  string
	streamBitrate   int
	streamPriority  uint8
	streamPinned    bool
	streamVideoKbps int
	streamAudioKbps int
)

// streamCmd exercises the scheduler and supervisor together against one
// ad-hoc source file: the single-stream manual-operation path the CLI
// offers in place of the full request surface (out of scope per §1).
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Run and watch a single stream through the scheduler and supervisor",
}

var streamRunCmd = &cobra.Command{
	Use:   "run <source-file> <stream-name>",
	Short: "Request admission for one stream and, once started, run its encoder until interrupted",
	Long: `run registers a single stream with an in-process scheduler under the
configured capacity limits, requests its start, and — if the scheduler
admits it immediately rather than queuing it — spawns the real FFmpeg
encoder through the supervisor and blocks until SIGINT/SIGTERM, at which
point it stops the stream and releases its capacity.

This is a manual/debugging entry point, not the production request
surface: a queued stream is reported and the command exits rather than
waiting on a slot, since there is nothing else competing for capacity in
this process to eventually free one.`,
	Args: cobra.ExactArgs(2),
	RunE: runStream,
}

func init() {
	streamRunCmd.Flags().StringVar(&streamMode, "mode", string(models.ModeCopy), "resource mode: copy, cpu, nvenc")
	streamRunCmd.Flags().StringVar(&streamProtocol, "protocol", string(models.ProtocolRTSP), "publish protocol: rtsp, srt")
	streamRunCmd.Flags().IntVar(&streamBitrate, "bitrate-mbps", 5, "egress bitrate estimate in Mbps, for bandwidth accounting")
	streamRunCmd.Flags().Uint8Var(&streamPriority, "priority", 100, "priority 0-255, higher is more urgent")
	streamRunCmd.Flags().BoolVar(&streamPinned, "pinned", false, "pin this stream ahead of all unpinned streams in the queue")
	streamRunCmd.Flags().IntVar(&streamVideoKbps, "video-kbps", 2500, "target video bitrate for cpu/nvenc modes")
	streamRunCmd.Flags().IntVar(&streamAudioKbps, "audio-kbps", 128, "target audio bitrate for cpu/nvenc modes")

	streamCmd.AddCommand(streamRunCmd)
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	sourcePath, streamName := args[0], args[1]
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	mode := models.Mode(streamMode)
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q: must be copy, cpu, or nvenc", streamMode)
	}
	protocol := models.Protocol(streamProtocol)

	binary, err := util.FindBinary(cfg.Encoder.BinaryName, "STREVIZ_FFMPEG_BINARY")
	if err != nil {
		return fmt.Errorf("locating encoder binary: %w", err)
	}

	streamID := models.NewULID().String()
	sched := scheduler.New(models.Settings{
		MaxTotalStreams:     cfg.Scheduler.MaxTotalStreams,
		MaxTranscodeCPU:     cfg.Scheduler.MaxCPUTranscode,
		MaxTranscodeNVENC:   cfg.Scheduler.MaxNVENCTranscode,
		MaxTotalBitrateMbps: cfg.Scheduler.MaxTotalBitrateMbps,
	}, logger)

	sched.RegisterStream(models.StreamDescriptor{
		ID:          streamID,
		Mode:        mode,
		BitrateMbps: streamBitrate,
		Priority:    streamPriority,
		Pinned:      streamPinned,
	})
	defer sched.UnregisterStream(streamID)

	result := sched.RequestStart(streamID)
	fmt.Printf("schedule result: status=%s queued=%v message=%q\n", result.Status, result.Queued, result.Message)
	if result.Status != scheduler.StatusStarting {
		return nil
	}

	auth, err := credentials.Generate(streamID)
	if err != nil {
		sched.OnStreamError(streamID, err.Error())
		return fmt.Errorf("generating stream credentials: %w", err)
	}

	media := models.MediaFile{ID: streamID, Path: sourcePath, Compatibility: string(mode)}
	profile := models.Profile{
		Protocol:     protocol,
		Mode:         mode,
		VideoKbps:    streamVideoKbps,
		AudioKbps:    streamAudioKbps,
		GOPSize:      50,
		WANOptimized: cfg.MediaServer.WANMode,
	}
	encoderArgs, publishURL := encodeargs.Build(media, profile, encodeargs.Options{
		StreamName: streamName,
		Auth:       &auth,
		WANMode:    cfg.MediaServer.WANMode,
	})
	fmt.Printf("publish url: %s\n", publishURL)

	events := make(chan supervisor.Event, 32)
	super := supervisor.New(ffmpeg.NewExecRunner(), events, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pid, err := super.StartStream(ctx, streamID, binary, encoderArgs)
	if err != nil {
		sched.OnStreamError(streamID, err.Error())
		return fmt.Errorf("starting encoder: %w", err)
	}
	sched.OnProcessStarted(streamID, pid)
	fmt.Printf("encoder started: pid=%d\n", pid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for ev := range events {
			switch ev.Kind {
			case supervisor.EventProgress:
				logger.Info("progress", "stream_id", ev.StreamID, "frame", ev.Progress.Frame, "fps", ev.Progress.FPS, "speed", ev.Progress.Speed)
			case supervisor.EventError:
				logger.Warn("encoder error line", "stream_id", ev.StreamID, "message", ev.Message)
			}
		}
	}()

	<-sigCh
	fmt.Println("stopping stream")

	if err := super.StopStream(streamID); err != nil && !errors.Is(err, models.ErrStreamNotTracked) {
		logger.Warn("error stopping encoder", "error", err)
	}
	sched.OnStreamStopped(streamID)
	close(events)

	return nil
}
