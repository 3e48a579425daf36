package engine

import (
	"encoding/json"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"sceneforge/internal/pkg/errors"
)

// MediaInfo is the subset of probe output the worker cares about.
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

type probeDocument struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a media file. The duration is taken from the video
// stream when present, with the container duration as fallback.
func Probe(path string) (*MediaInfo, error) {
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "engine.probe", "ffprobe failed")
	}
	return parseProbe(raw)
}

func parseProbe(raw string) (*MediaInfo, error) {
	var doc probeDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.Wrap(err, "engine.probe", "malformed probe output")
	}

	info := &MediaInfo{}
	for _, s := range doc.Streams {
		switch s.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
				if d := parseSeconds(s.Duration); d > 0 {
					info.Duration = d
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if info.Duration == 0 {
		info.Duration = parseSeconds(doc.Format.Duration)
	}
	if info.Width == 0 && !info.HasAudio {
		return nil, errors.Validation("no usable streams in media file")
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return d
}
