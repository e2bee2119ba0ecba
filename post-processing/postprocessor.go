package postprocessing

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/common"
	"github.com/Kim-Ziho/doorbell-camera/config"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
	"github.com/Kim-Ziho/doorbell-camera/resolution"
	"github.com/xfrr/goffmpeg/transcoder"
)

type PostProcessor interface {
	// ProcessVideo transcodes a closed clip and returns the processed clip.
	ProcessVideo(clip *recording.ClipSummary) (*VideoClip, error)
}

type FfmpegPostProcessor struct {
	settingsProvider config.SettingsProvider[PostProcessingSettings]
	codecProvider    common.CodecProvider
	logger           logging.Logger
}

func NewFfmpegPostProcessor(
	settingsProvider config.SettingsProvider[PostProcessingSettings],
	codecProvider common.CodecProvider,
	logger logging.Logger,
) *FfmpegPostProcessor {
	if logger == nil {
		logger = logging.NopLogger
	}
	return &FfmpegPostProcessor{
		settingsProvider: settingsProvider,
		codecProvider:    codecProvider,
		logger:           logger,
	}
}

func (p *FfmpegPostProcessor) ProcessVideo(clip *recording.ClipSummary) (*VideoClip, error) {
	// Get the latest settings for this operation.
	settings := p.settingsProvider.GetSettings()

	codec, err := p.resolveCodec(settings.OutputCodec)
	if err != nil {
		return nil, err
	}

	outputPath := OutputPath(clip.Path, settings.OutputFormat)
	if outputPath == clip.Path {
		// ffmpeg cannot transcode a file onto itself
		outputPath = strings.TrimSuffix(clip.Path, filepath.Ext(clip.Path)) + "_processed" + filepath.Ext(clip.Path)
	}

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(clip.Path, outputPath); err != nil {
		return nil, fmt.Errorf("failed to initialize transcoder: %w", err)
	}

	trans.MediaFile().SetVideoCodec(codec)
	trans.MediaFile().SetOutputFormat(settings.OutputFormat)
	trans.MediaFile().SetSkipAudio(true)
	if filters := VideoFilters(settings); filters != "" {
		trans.MediaFile().SetVideoFilter(filters)
	}
	if settings.VideoBitRate != "" {
		trans.MediaFile().SetVideoBitRate(settings.VideoBitRate)
	}

	done := trans.Run(false)

	// the input was probed during Initialize, so no second ffprobe is needed
	duration, err := parseDuration(trans.MediaFile().Metadata().Format.Duration)
	if err != nil {
		duration = clip.Duration()
	}

	if err := <-done; err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("failed to process video: %w", err)
	}

	if !settings.KeepRaw {
		if err := os.Remove(clip.Path); err != nil {
			p.logger.Warn("failed to remove raw clip", "path", clip.Path, "error", err)
		}
	}

	p.logger.Info("clip transcoded", "clip_id", clip.ID, "output", outputPath, "codec", codec)
	return &VideoClip{
		Path:     outputPath,
		Codec:    codec,
		Format:   settings.OutputFormat,
		MimeType: common.VideoFormatToMimeType(settings.OutputFormat),
		OpenedAt: clip.OpenedAt,
		Duration: duration,
	}, nil
}

func (p *FfmpegPostProcessor) resolveCodec(requested string) (string, error) {
	if p.codecProvider == nil || requested == "" {
		return requested, nil
	}
	codec, err := p.codecProvider.GetFallbackCodec(requested)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output codec: %w", err)
	}
	return codec, nil
}

// OutputPath swaps the extension of rawPath for the configured output format
func OutputPath(rawPath, format string) string {
	format = strings.TrimLeft(format, ".")
	if format == "" {
		return rawPath
	}
	return strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + "." + format
}

// VideoFilters builds the ffmpeg filter chain for the settings, empty when none apply
func VideoFilters(settings PostProcessingSettings) string {
	var filters []string
	if settings.Grayscale {
		filters = append(filters, "format=gray")
	}
	if !settings.DownscaleResolution.IsEmpty() {
		filters = append(filters, "scale="+resolution.Format(settings.DownscaleResolution, "w:h"))
	}
	return strings.Join(filters, ",")
}

func parseDuration(durationStr string) (time.Duration, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration in video metadata")
	}

	durationSeconds, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %w", durationStr, err)
	}
	if durationSeconds <= 0 {
		return 0, fmt.Errorf("invalid or zero duration: %f seconds", durationSeconds)
	}

	return time.Duration(durationSeconds * float64(time.Second)), nil
}
