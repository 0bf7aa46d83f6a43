package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrFFmpegNotFound is returned when the ffmpeg or ffprobe binary is not on PATH
var ErrFFmpegNotFound = errors.New("ffmpeg binaries not found in PATH")

// FFmpegBinary and FFprobeBinary may be overridden for tests or custom installs
var (
	FFmpegBinary  = "ffmpeg"
	FFprobeBinary = "ffprobe"
)

// ProbeStream is one stream as reported by ffprobe
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Channels  int    `json:"channels,omitempty"`
}

// ProbeResult is the subset of ffprobe output the capture pipeline needs
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Duration returns the container duration, zero when unknown
func (p *ProbeResult) Duration() time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// StreamsOf returns the streams of one codec type ("video" or "audio")
func (p *ProbeResult) StreamsOf(codecType string) []ProbeStream {
	var out []ProbeStream
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			out = append(out, s)
		}
	}
	return out
}

// CheckFFmpeg verifies that both ffmpeg and ffprobe can be executed
func CheckFFmpeg() error {
	for _, bin := range []string{FFmpegBinary, FFprobeBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %s", ErrFFmpegNotFound, bin)
		}
	}
	return nil
}

// RunFFmpegCommand executes an FFmpeg command
func RunFFmpegCommand(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, FFmpegBinary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

// ProbeMedia runs ffprobe on path and decodes its JSON report
func ProbeMedia(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, FFprobeBinary,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe error: %w, stderr: %s", err, lastLines(stderr.String(), 5))
	}

	return ParseProbeOutput(output)
}

// ParseProbeOutput decodes ffprobe JSON output
func ParseProbeOutput(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(result.Streams) == 0 {
		return nil, errors.New("no decodable streams found")
	}
	return &result, nil
}

// StreamMap selects one stream of one input for muxing
type StreamMap struct {
	Input int
	Index int
	Video bool
}

// WebmRecordArgs builds the arguments for a live webm recording of the mapped streams.
// Inputs are read at their native rate so the output grows as playback progresses.
// The container is written to stdout.
func WebmRecordArgs(inputs []string, maps []StreamMap) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}
	for _, in := range inputs {
		args = append(args, "-re", "-i", in)
	}
	for _, m := range maps {
		args = append(args, "-map", fmt.Sprintf("%d:%d", m.Input, m.Index))
	}
	args = append(args,
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", "2M",
		"-c:a", "libopus",
		"-b:a", "128k",
		"-f", "webm",
		"pipe:1",
	)
	return args
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
