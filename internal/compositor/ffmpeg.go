// Package compositor muxes a narration track onto a generated clip with
// ffmpeg.
package compositor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
)

// Runner executes an external binary and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs binaries with os/exec, folding stderr into errors.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, lastLines(stderr.String(), 5))
	}
	return stdout.Bytes(), nil
}

// Options configures the compositor.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string
	Runner      Runner
	Logger      *infra.Logger
}

// FFmpeg replaces a clip's audio with narration and re-encodes to H.264/AAC
// MP4. The output is exactly as long as the clip: longer narration is cut,
// shorter narration is padded with silence.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	tempDir string
	runner  Runner
	logger  *infra.Logger
}

// Info is what ffprobe reports about a media file.
type Info struct {
	Duration float64
	HasVideo bool
	HasAudio bool
}

// New constructs a compositor.
func New(opts Options) *FFmpeg {
	ffmpeg := strings.TrimSpace(opts.FFmpegPath)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := strings.TrimSpace(opts.FFprobePath)
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &FFmpeg{ffmpeg: ffmpeg, ffprobe: ffprobe, tempDir: opts.TempDir, runner: runner, logger: logger}
}

// Mux combines video and audio into a new video artifact. Any undecodable
// input or encoder failure wraps domain.ErrComposition.
func (f *FFmpeg) Mux(ctx context.Context, video, audio *domain.MediaArtifact) (*domain.MediaArtifact, error) {
	if video == nil || video.Empty() || video.Kind != domain.MediaKindVideo {
		return nil, domain.Composition(errors.New("video input is missing"))
	}
	if audio == nil || audio.Empty() || audio.Kind != domain.MediaKindAudio {
		return nil, domain.Composition(errors.New("audio input is missing"))
	}

	dir, err := os.MkdirTemp(f.tempDir, "reel-mux-*")
	if err != nil {
		return nil, domain.Composition(fmt.Errorf("create work dir: %w", err))
	}
	defer os.RemoveAll(dir)

	videoPath := filepath.Join(dir, "clip"+video.Extension())
	audioPath := filepath.Join(dir, "voice"+audio.Extension())
	outPath := filepath.Join(dir, "reel.mp4")
	if err := os.WriteFile(videoPath, video.Bytes(), 0o600); err != nil {
		return nil, domain.Composition(fmt.Errorf("write video: %w", err))
	}
	if err := os.WriteFile(audioPath, audio.Bytes(), 0o600); err != nil {
		return nil, domain.Composition(fmt.Errorf("write audio: %w", err))
	}

	vinfo, err := f.Inspect(ctx, videoPath)
	if err != nil {
		return nil, domain.Composition(fmt.Errorf("inspect video: %w", err))
	}
	if !vinfo.HasVideo || vinfo.Duration <= 0 {
		return nil, domain.Composition(errors.New("video input has no decodable video stream"))
	}
	ainfo, err := f.Inspect(ctx, audioPath)
	if err != nil {
		return nil, domain.Composition(fmt.Errorf("inspect audio: %w", err))
	}
	if !ainfo.HasAudio {
		return nil, domain.Composition(errors.New("audio input has no decodable audio stream"))
	}

	f.logger.Debug().
		Float64("video_seconds", vinfo.Duration).
		Float64("audio_seconds", ainfo.Duration).
		Msg("compositor: muxing")

	if _, err := f.runner.Run(ctx, f.ffmpeg, muxArgs(videoPath, audioPath, outPath, vinfo.Duration)...); err != nil {
		if domain.IsTimeout(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.Composition(fmt.Errorf("encode: %w", err))
	}
	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, domain.Composition(fmt.Errorf("read output: %w", err))
	}
	if len(out) == 0 {
		return nil, domain.Composition(errors.New("encoder produced an empty file"))
	}
	return domain.NewArtifact(domain.MediaKindVideo, "video/mp4", out), nil
}

// Inspect reads duration and stream kinds of the file at path.
func (f *FFmpeg) Inspect(ctx context.Context, path string) (Info, error) {
	out, err := f.runner.Run(ctx, f.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type",
		"-of", "json",
		path,
	)
	if err != nil {
		return Info{}, err
	}
	return parseStreams(out)
}

type streamsOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseStreams(raw []byte) (Info, error) {
	var decoded streamsOutput
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Info{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	var info Info
	for _, s := range decoded.Streams {
		switch s.CodecType {
		case "video":
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}
	if d := strings.TrimSpace(decoded.Format.Duration); d != "" && d != "N/A" {
		v, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return Info{}, fmt.Errorf("parse duration %q: %w", d, err)
		}
		info.Duration = v
	}
	return info, nil
}

func muxArgs(videoPath, audioPath, outPath string, seconds float64) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-af", "apad",
		"-t", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-movflags", "+faststart",
		outPath,
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
