// Package audio re-encodes synthesized speech into Telegram voice notes.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/ports/adapter"
)

var _ adapter.AudioConverter = (*FFmpegConverter)(nil)

const stderrTail = 300

type FFmpegOptions struct {
	Path       string
	SampleRate int
	Bitrate    string
	Timeout    time.Duration
}

// FFmpegConverter pipes WAV through ffmpeg and returns OGG/Opus tuned for speech.
type FFmpegConverter struct {
	opts FFmpegOptions
	log  *zerolog.Logger
}

func NewFFmpegConverter(opts FFmpegOptions, log *zerolog.Logger) *FFmpegConverter {
	if opts.Path == "" {
		opts.Path = "ffmpeg"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 24000
	}
	if opts.Bitrate == "" {
		opts.Bitrate = "32k"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FFmpegConverter{opts: opts, log: log}
}

func (c *FFmpegConverter) args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-c:a", "libopus",
		"-b:a", c.opts.Bitrate,
		"-ar", strconv.Itoa(c.opts.SampleRate),
		"-application", "voip",
		"-frame_duration", "60",
		"-packet_loss", "1",
		"-f", "ogg",
		"pipe:1",
	}
}

func (c *FFmpegConverter) ToVoice(ctx context.Context, wav []byte) ([]byte, error) {
	if len(wav) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrAudioConversion)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.opts.Path, c.args()...)
	cmd.Stdin = bytes.NewReader(wav)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > stderrTail {
			msg = msg[len(msg)-stderrTail:]
		}
		return nil, fmt.Errorf("%w: %v: %s", domain.ErrAudioConversion, err, msg)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no output", domain.ErrAudioConversion)
	}
	c.log.Debug().
		Int("wav_bytes", len(wav)).
		Int("ogg_bytes", stdout.Len()).
		Dur("took", time.Since(start)).
		Msg("converted voice")
	return stdout.Bytes(), nil
}
