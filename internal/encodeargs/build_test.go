package encodeargs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/olbboy/streviz-engine/internal/models"
)

func copyProfile() models.Profile {
	return models.Profile{ID: "p1", Protocol: models.ProtocolRTSP, Mode: models.ModeCopy, GOPSize: 30}
}

func TestBuild_CopyMode(t *testing.T) {
	media := models.MediaFile{Path: "/test/video.mp4", Compatibility: "copy"}
	args, url := Build(media, copyProfile(), Options{StreamName: "test-stream"})

	assert.Contains(t, args, "copy")
	assert.Contains(t, args, "-c:v")
	assert.Equal(t, "rtsp://localhost:8554/test-stream", url)
}

func TestBuild_CopyFallsBackToCPUWhenIncompatible(t *testing.T) {
	media := models.MediaFile{Path: "/test/video.mp4", Compatibility: "transcode"}
	args, _ := Build(media, copyProfile(), Options{StreamName: "test-stream"})

	assert.Contains(t, args, "libx264")
	assert.NotContains(t, args, "copy")
}

func TestBuild_NVENCMode(t *testing.T) {
	media := models.MediaFile{Path: "/test/video.mp4", Compatibility: "transcode"}
	profile := models.Profile{ID: "p1", Protocol: models.ProtocolSRT, Mode: models.ModeNVENC, GOPSize: 60, VideoKbps: 4000}
	args, url := Build(media, profile, Options{StreamName: "s1"})

	assert.Contains(t, args, "h264_nvenc")
	assert.Contains(t, args, "4000k")
	assert.Contains(t, args, "mpegts")
	assert.Contains(t, url, "srt://")
}

func TestBuild_WANModeAffectsPublishHost(t *testing.T) {
	media := models.MediaFile{Path: "/a.mp4", Compatibility: "copy"}
	_, url := Build(media, copyProfile(), Options{StreamName: "s1", WANMode: true})
	assert.Contains(t, url, "0.0.0.0")
}
