package media

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
)

// ToolError reports a failed external media subprocess. Tool invocations are
// never retried; the owning stage decides whether a fallback applies.
type ToolError struct {
	Tool    string
	Timeout bool
	Stderr  string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out", e.Tool)
	}
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if e.Stderr != "" {
		msg += ", stderr: " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// FFmpeg wraps ffmpeg/ffprobe operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Info holds media metadata extracted from ffprobe
type Info struct {
	Duration   float64
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	AudioCodec string
	SampleRate int
	Channels   int
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// ProbeMedia extracts stream and duration metadata from a media file
func (f *FFmpeg) ProbeMedia(ctx context.Context, inputPath string) (*Info, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ToolError{Tool: "ffprobe", Timeout: isTimeout(ctx, err), Stderr: stderr.String(), Err: err}
	}

	var probed probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &probed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{}
	if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	for _, stream := range probed.Streams {
		switch stream.CodecType {
		case "video":
			info.HasVideo = true
			if info.VideoCodec == "" {
				info.VideoCodec = stream.CodecName
			}
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
				if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
					info.SampleRate = sr
				}
				info.Channels = stream.Channels
			}
		}
	}

	return info, nil
}

// ProbeAudioFormat returns the sample rate and channel count of the first
// audio stream in the file.
func (f *FFmpeg) ProbeAudioFormat(ctx context.Context, inputPath string) (int, int, error) {
	info, err := f.ProbeMedia(ctx, inputPath)
	if err != nil {
		return 0, 0, err
	}
	if !info.HasAudio || info.SampleRate == 0 || info.Channels == 0 {
		return 0, 0, fmt.Errorf("no usable audio stream in %s", inputPath)
	}
	return info.SampleRate, info.Channels, nil
}

// ExtractAudio extracts the audio track of a video as stereo 44.1 kHz PCM WAV
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "2",
		"-ar", "44100",
		"-y",
		outputPath,
	}
	return f.run(ctx, args)
}

// Silence writes a silent PCM WAV track of the given duration and format
func (f *FFmpeg) Silence(ctx context.Context, outputPath string, duration float64, sampleRate, channels int) error {
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d", channelLayout(channels), sampleRate),
		"-t", fmt.Sprintf("%.3f", duration),
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-y",
		outputPath,
	}
	return f.run(ctx, args)
}

// ConcatAudio joins the inputs sequentially into one PCM WAV file using the
// concat demuxer. The temporary list file lives next to the output.
func (f *FFmpeg) ConcatAudio(ctx context.Context, inputs []string, outputPath string, sampleRate, channels int) error {
	if len(inputs) == 0 {
		return errors.New("no inputs to concatenate")
	}

	listPath := outputPath + ".concat.txt"
	var list strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("failed to resolve input path: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-y",
		outputPath,
	}
	return f.run(ctx, args)
}

// DelayedClip is one input to DelayMix, placed DelayMS milliseconds into the
// output track.
type DelayedClip struct {
	Path    string
	DelayMS int
}

// DelayMix renders all clips onto a silent base track of totalDuration in a
// single mixing pass. Each clip is delayed to its own offset and every input
// contributes with equal weight; the output lasts as long as the longest
// contributing input.
func (f *FFmpeg) DelayMix(ctx context.Context, clips []DelayedClip, outputPath string, totalDuration float64, sampleRate, channels int) error {
	if len(clips) == 0 {
		return errors.New("no clips to mix")
	}

	args := []string{
		"-f", "lavfi",
		"-t", fmt.Sprintf("%.3f", totalDuration),
		"-i", fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d", channelLayout(channels), sampleRate),
	}
	for _, clip := range clips {
		args = append(args, "-i", clip.Path)
	}

	args = append(args,
		"-filter_complex", delayMixFilter(clips),
		"-map", "[out]",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-y",
		outputPath,
	)
	return f.run(ctx, args)
}

// delayMixFilter builds the filter graph for DelayMix: input 0 is the silent
// base, inputs 1..n are the clips.
func delayMixFilter(clips []DelayedClip) string {
	var parts []string
	for i, clip := range clips {
		if clip.DelayMS > 0 {
			parts = append(parts, fmt.Sprintf("[%d:a]adelay=%d|%d[delayed%d]", i+1, clip.DelayMS, clip.DelayMS, i))
		} else {
			parts = append(parts, fmt.Sprintf("[%d:a]acopy[delayed%d]", i+1, i))
		}
	}

	var mix strings.Builder
	mix.WriteString("[0:a]")
	for i := range clips {
		fmt.Fprintf(&mix, "[delayed%d]", i)
	}
	fmt.Fprintf(&mix, "amix=inputs=%d:duration=longest:dropout_transition=0[out]", len(clips)+1)
	parts = append(parts, mix.String())

	return strings.Join(parts, ";")
}

// GainMix blends two tracks after applying independent volume gains. The
// output lasts as long as the longer input.
func (f *FFmpeg) GainMix(ctx context.Context, vocalsPath, musicPath, outputPath string, vocalGain, musicGain float64, sampleRate, channels int) error {
	filter := fmt.Sprintf(
		"[0:a]volume=%.4f[v];[1:a]volume=%.4f[m];[v][m]amix=inputs=2:duration=longest:dropout_transition=0[out]",
		vocalGain, musicGain)

	args := []string{
		"-i", vocalsPath,
		"-i", musicPath,
		"-filter_complex", filter,
		"-map", "[out]",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-y",
		outputPath,
	}
	return f.run(ctx, args)
}

// ReplaceAudio copies the video stream unmodified and replaces the audio
// stream with the given track.
func (f *FFmpeg) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-y",
		outputPath,
	}
	return f.run(ctx, args)
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &ToolError{Tool: "ffmpeg", Timeout: isTimeout(ctx, err), Stderr: tail(stderr.String(), 2000), Err: err}
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
}

func channelLayout(channels int) string {
	if channels == 1 {
		return "mono"
	}
	return "stereo"
}

// tail keeps only the last n bytes of subprocess output for error messages.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
