package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olbboy/streviz-engine/internal/ffmpeg"
	"github.com/olbboy/streviz-engine/internal/gpu"
	"github.com/olbboy/streviz-engine/internal/models"
)

var encoderCmd = &cobra.Command{
	Use:   "encoder",
	Short: "Inspect the available FFmpeg binary and GPU encoder capacity",
}

var encoderDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Probe the configured FFmpeg binary and NVENC GPU sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		caps, err := ffmpeg.NewProber().Probe(ctx)
		if err != nil {
			return fmt.Errorf("probing encoder binary: %w", err)
		}
		fmt.Println(caps.JSON())

		for _, mode := range []models.Mode{models.ModeCopy, models.ModeCPU, models.ModeNVENC} {
			fmt.Printf("mode %-5s supported=%v\n", mode, caps.SupportsMode(mode))
		}
		for _, protocol := range []models.Protocol{models.ProtocolRTSP, models.ProtocolSRT} {
			fmt.Printf("protocol %-4s supported=%v\n", protocol, caps.CanPublish(protocol))
		}
		if !caps.NVENC.Available && caps.NVENC.Reason != "" {
			fmt.Printf("nvenc unavailable: %s\n", caps.NVENC.Reason)
		}

		gpuDetector := gpu.NewDetector()
		if gpuDetector.Available(ctx) {
			max := gpuDetector.DetectMaxSessions(ctx)
			fmt.Printf("nvidia-smi available: max_nvenc_sessions=%d\n", max)
		} else {
			fmt.Println("nvidia-smi not available: no NVENC GPU detected")
		}

		return nil
	},
}

func init() {
	encoderCmd.AddCommand(encoderDetectCmd)
	rootCmd.AddCommand(encoderCmd)
}
