// Package job defines the immutable render-job model consumed by the
// filter-graph compiler, and the parser for the external job-spec
// document. Validation happens once at construction; the compiler
// assumes an already-valid job.
package job

import (
	"sceneforge/internal/pkg/errors"
)

// Mode selects how segments are turned into the output video.
type Mode string

const (
	// ModeImageMontage renders still images with simulated camera motion.
	ModeImageMontage Mode = "ken_burns"
	// ModeClipConcat joins pre-rendered video clips end to end.
	ModeClipConcat Mode = "concatenate"
)

// AudioSource selects which audio a video segment contributes.
type AudioSource string

const (
	AudioOriginal  AudioSource = "original"
	AudioVoiceover AudioSource = "voiceover"
	AudioMuted     AudioSource = "muted"
)

// Anchor names the reference point used to resolve an overlay's pixel
// position from its logical coordinate.
type Anchor string

const (
	AnchorTopLeft      Anchor = "top-left"
	AnchorTopCenter    Anchor = "top-center"
	AnchorCenter       Anchor = "center"
	AnchorBottomLeft   Anchor = "bottom-left"
	AnchorBottomCenter Anchor = "bottom-center"
	AnchorBottomRight  Anchor = "bottom-right"
)

// KenBurns holds the motion parameters for one image segment.
// PanX/PanY scale the available headroom: negative pans left/up,
// positive right/down.
type KenBurns struct {
	ZoomStart float64
	ZoomEnd   float64
	PanX      float64
	PanY      float64
}

// ImageSegment is a still image shown for Duration seconds with motion.
type ImageSegment struct {
	SourceRef string
	Duration  float64
	KenBurns  KenBurns
}

// Voiceover is a slice of a separate narration asset.
type Voiceover struct {
	SourceRef string
	StartTime float64
	Duration  float64
}

// VideoSegment is a pre-rendered clip concatenated into the output.
type VideoSegment struct {
	SourceRef   string
	Duration    float64
	AudioSource AudioSource
	AudioVolume float64
	Voiceover   *Voiceover
}

// AudioClip is an overlay audio track (music, SFX), distinct from
// segment-embedded audio.
type AudioClip struct {
	SourceRef string
	StartTime float64
	Duration  float64
	Volume    float64
}

// TextOverlay describes one timed text layer. Duration < 0 means the
// overlay stays visible until the end of the video.
type TextOverlay struct {
	Text              string
	X                 int
	Y                 int
	Anchor            Anchor
	FontFamily        string
	FontSize          int
	FontWeight        int
	Color             string
	BackgroundColor   string
	BackgroundOpacity float64
	TextShadow        bool
	StartTime         float64
	Duration          float64
	FadeInMs          int
	FadeOutMs         int
}

// RenderJob is the immutable input to the compiler.
type RenderJob struct {
	JobID        string
	ProjectID    string
	Mode         Mode
	Resolution   string
	FPS          int
	Images       []ImageSegment
	Videos       []VideoSegment
	AudioClips   []AudioClip
	TextOverlays []TextOverlay
	OutputPath   string
	// CallbackURL, when set, receives progress notifications while the
	// job runs.
	CallbackURL string
}

// Validate checks structural invariants once, so the compiler and its
// sub-generators never see a malformed job. Errors identify the
// offending segment or clip by index.
func (j *RenderJob) Validate() error {
	switch j.Mode {
	case ModeImageMontage, ModeClipConcat:
	default:
		return errors.Validationf("unsupported render mode: %q", string(j.Mode))
	}

	if j.FPS <= 0 {
		return errors.Validation("fps must be positive")
	}

	if j.Mode == ModeImageMontage {
		if len(j.Images) == 0 {
			return errors.Validation("ken_burns job has no image segments")
		}
		for i, seg := range j.Images {
			if seg.SourceRef == "" {
				return errors.Validationf("image segment %d missing source reference", i)
			}
			if seg.Duration <= 0 {
				return errors.Validationf("image segment %d has non-positive duration %v", i, seg.Duration)
			}
			// Pan scales the zoom headroom; outside [-1,1] the crop
			// window would leave the image.
			if seg.KenBurns.PanX < -1 || seg.KenBurns.PanX > 1 {
				return errors.Validationf("image segment %d has pan x %v outside [-1,1]", i, seg.KenBurns.PanX)
			}
			if seg.KenBurns.PanY < -1 || seg.KenBurns.PanY > 1 {
				return errors.Validationf("image segment %d has pan y %v outside [-1,1]", i, seg.KenBurns.PanY)
			}
		}
	} else {
		if len(j.Videos) == 0 {
			return errors.Validation("concatenate job has no video segments")
		}
		for i, seg := range j.Videos {
			if seg.SourceRef == "" {
				return errors.Validationf("video segment %d missing source reference", i)
			}
			if seg.Duration <= 0 {
				return errors.Validationf("video segment %d has non-positive duration %v", i, seg.Duration)
			}
			if seg.AudioVolume < 0 {
				return errors.Validationf("video segment %d has negative audio volume", i)
			}
			switch seg.AudioSource {
			case AudioOriginal, AudioMuted:
			case AudioVoiceover:
				if seg.Voiceover == nil || seg.Voiceover.SourceRef == "" {
					return errors.Validationf("video segment %d uses voiceover audio but has no voiceover source", i)
				}
				if seg.Voiceover.Duration <= 0 {
					return errors.Validationf("video segment %d voiceover has non-positive duration", i)
				}
				if seg.Voiceover.StartTime < 0 {
					return errors.Validationf("video segment %d voiceover has negative start time", i)
				}
			default:
				return errors.Validationf("video segment %d has unknown audio source: %q", i, string(seg.AudioSource))
			}
		}
	}

	for i, clip := range j.AudioClips {
		if clip.SourceRef == "" {
			return errors.Validationf("audio clip %d missing source reference", i)
		}
		if clip.Duration <= 0 {
			return errors.Validationf("audio clip %d has non-positive duration %v", i, clip.Duration)
		}
		// Negative delays are rejected rather than clamped: a clip that
		// should start before the timeline has no defined meaning here.
		if clip.StartTime < 0 {
			return errors.Validationf("audio clip %d has negative start time %v", i, clip.StartTime)
		}
		if clip.Volume < 0 {
			return errors.Validationf("audio clip %d has negative volume", i)
		}
	}

	for i, ov := range j.TextOverlays {
		if ov.Text == "" {
			return errors.Validationf("text overlay %d has empty text", i)
		}
		if ov.FontWeight < 100 || ov.FontWeight > 900 {
			return errors.Validationf("text overlay %d has font weight %d outside [100,900]", i, ov.FontWeight)
		}
		if ov.StartTime < 0 {
			return errors.Validationf("text overlay %d has negative start time", i)
		}
		if ov.FadeInMs < 0 || ov.FadeOutMs < 0 {
			return errors.Validationf("text overlay %d has negative fade duration", i)
		}
	}

	return nil
}
