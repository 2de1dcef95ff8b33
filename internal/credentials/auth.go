// Package credentials generates per-stream publish/read credentials and
// builds the RTSP/SRT URLs the encoder and downstream clients use against
// the media-server sidecar.
package credentials

import (
	"crypto/rand"
	"fmt"

	"github.com/olbboy/streviz-engine/internal/models"
)

const (
	passwordLength      = 16
	srtPassphraseLength = 24
	usernamePrefixLen   = 8

	defaultRTSPPort = 8554
	defaultSRTPort  = 8890
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// StreamAuth holds the generated credentials for one stream.
type StreamAuth struct {
	StreamID      string
	Username      string
	Password      string
	SRTPassphrase string
}

// Generate creates credentials for a stream: username is "s_" followed by
// the first 8 characters of the stream id, password is a 16-character
// random string, and the SRT passphrase is a 24-character random string
// (SRT requires 10-79 characters).
func Generate(streamID string) (StreamAuth, error) {
	prefixLen := usernamePrefixLen
	if len(streamID) < prefixLen {
		prefixLen = len(streamID)
	}

	password, err := randomString(passwordLength)
	if err != nil {
		return StreamAuth{}, fmt.Errorf("generating password: %w", err)
	}
	passphrase, err := randomString(srtPassphraseLength)
	if err != nil {
		return StreamAuth{}, fmt.Errorf("generating srt passphrase: %w", err)
	}

	return StreamAuth{
		StreamID:      streamID,
		Username:      "s_" + streamID[:prefixLen],
		Password:      password,
		SRTPassphrase: passphrase,
	}, nil
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = charset[int(b)%len(charset)]
	}
	return string(out), nil
}

// BuildRTSPURL embeds auth (if any) into an rtsp:// URL.
func BuildRTSPURL(host string, port int, streamName string, auth *StreamAuth) string {
	if auth != nil {
		return fmt.Sprintf("rtsp://%s:%s@%s:%d/%s", auth.Username, auth.Password, host, port, streamName)
	}
	return fmt.Sprintf("rtsp://%s:%d/%s", host, port, streamName)
}

// BuildSRTURL builds an srt:// URL for either "publish" or "read" mode,
// attaching the passphrase when auth carries one.
func BuildSRTURL(host string, port int, streamName, mode string, auth *StreamAuth) string {
	url := fmt.Sprintf("srt://%s:%d?streamid=%s:%s&pkt_size=1316", host, port, mode, streamName)
	if auth != nil && auth.SRTPassphrase != "" {
		url += fmt.Sprintf("&passphrase=%s&pbkeylen=32", auth.SRTPassphrase)
	}
	return url
}

// BuildPublishURL builds the URL the encoder pushes to. In WAN mode the
// media server binds 0.0.0.0 so it publishes against the wildcard
// interface rather than localhost.
func BuildPublishURL(protocol models.Protocol, streamName string, auth *StreamAuth, wanMode bool) string {
	host := "localhost"
	if wanMode {
		host = "0.0.0.0"
	}
	if protocol == models.ProtocolSRT {
		return BuildSRTURL(host, defaultSRTPort, streamName, "publish", auth)
	}
	return BuildRTSPURL(host, defaultRTSPPort, streamName, auth)
}

// BuildReaderURL builds the URL clients pull from, against the given
// public-facing host.
func BuildReaderURL(protocol models.Protocol, streamName string, auth *StreamAuth, host string) string {
	if protocol == models.ProtocolSRT {
		return BuildSRTURL(host, defaultSRTPort, streamName, "read", auth)
	}
	return BuildRTSPURL(host, defaultRTSPPort, streamName, auth)
}
