package job

import (
	"encoding/json"

	"sceneforge/internal/pkg/errors"
)

// Defaults applied while parsing the external job-spec document.
const (
	DefaultFPS             = 24
	DefaultResolution      = "1080p"
	defaultSegmentDuration = 5.0
	defaultClipDuration    = 10.0
	defaultZoomStart       = 1.0
	defaultZoomEnd         = 1.05
	defaultFontFamily      = "Roboto"
	defaultFontSize        = 48
	defaultFontWeight      = 400
	defaultFontColor       = "#FFFFFF"
)

// specDocument mirrors the external job specification wire format.
type specDocument struct {
	JobID               string            `json:"jobId"`
	ProjectID           string            `json:"projectId"`
	RenderMode          string            `json:"renderMode"`
	Resolution          string            `json:"resolution"`
	FPS                 int               `json:"fps"`
	Segments            []imageSpec       `json:"segments"`
	VideoSegments       []videoSpec       `json:"videoSegments"`
	AudioClips          []clipSpec        `json:"audioClips"`
	TextOverlays        []textOverlaySpec `json:"textOverlays"`
	OutputPath          string            `json:"outputPath"`
	CallbackURL         string            `json:"callbackUrl"`
	IncludeSegmentAudio *bool             `json:"includeSegmentAudio"`
	SegmentAudioVolume  *float64          `json:"segmentAudioVolume"`
}

type kenBurnsSpec struct {
	ZoomStart *float64 `json:"zoomStart"`
	ZoomEnd   *float64 `json:"zoomEnd"`
	PanX      float64  `json:"panX"`
	PanY      float64  `json:"panY"`
}

type imageSpec struct {
	ImageURL string        `json:"imageUrl"`
	Duration *float64      `json:"duration"`
	KenBurns *kenBurnsSpec `json:"kenBurns"`
}

type voiceoverSpec struct {
	URL       string  `json:"url"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

type videoSpec struct {
	VideoURL    string         `json:"videoUrl"`
	Duration    *float64       `json:"duration"`
	AudioSource string         `json:"audioSource"`
	AudioVolume *float64       `json:"audioVolume"`
	Voiceover   *voiceoverSpec `json:"voiceover"`
}

type clipSpec struct {
	URL       string   `json:"url"`
	StartTime float64  `json:"startTime"`
	Duration  *float64 `json:"duration"`
	Volume    *float64 `json:"volume"`
}

type textOverlaySpec struct {
	Text              string  `json:"text"`
	X                 int     `json:"x"`
	Y                 int     `json:"y"`
	Anchor            string  `json:"anchor"`
	FontFamily        string  `json:"fontFamily"`
	FontSize          int     `json:"fontSize"`
	FontWeight        int     `json:"fontWeight"`
	Color             string  `json:"color"`
	BackgroundColor   string  `json:"backgroundColor"`
	BackgroundOpacity float64 `json:"backgroundOpacity"`
	TextShadow        bool    `json:"textShadow"`
	StartTime         float64 `json:"startTime"`
	Duration          float64 `json:"duration"`
	FadeInMs          int     `json:"fadeInMs"`
	FadeOutMs         int     `json:"fadeOutMs"`
}

// ParseSpec decodes an external job-spec document into a validated
// RenderJob, applying the documented defaults (fps 24, 1080p, 5s image
// segments, unit volume). includeSegmentAudio=false forces every video
// segment to muted embedded audio; segmentAudioVolume sets the default
// embedded-audio volume.
func ParseSpec(data []byte) (*RenderJob, error) {
	var doc specDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "job.parse", "invalid job spec document")
	}

	mode := Mode(doc.RenderMode)
	if doc.RenderMode == "" {
		mode = ModeImageMontage
	}

	j := &RenderJob{
		JobID:       doc.JobID,
		ProjectID:   doc.ProjectID,
		Mode:        mode,
		Resolution:  doc.Resolution,
		FPS:         doc.FPS,
		OutputPath:  doc.OutputPath,
		CallbackURL: doc.CallbackURL,
	}
	if j.Resolution == "" {
		j.Resolution = DefaultResolution
	}
	if j.FPS == 0 {
		j.FPS = DefaultFPS
	}

	for _, s := range doc.Segments {
		seg := ImageSegment{
			SourceRef: s.ImageURL,
			Duration:  floatOr(s.Duration, defaultSegmentDuration),
			KenBurns:  KenBurns{ZoomStart: defaultZoomStart, ZoomEnd: defaultZoomEnd},
		}
		if s.KenBurns != nil {
			seg.KenBurns = KenBurns{
				ZoomStart: floatOr(s.KenBurns.ZoomStart, defaultZoomStart),
				ZoomEnd:   floatOr(s.KenBurns.ZoomEnd, defaultZoomEnd),
				PanX:      s.KenBurns.PanX,
				PanY:      s.KenBurns.PanY,
			}
		}
		j.Images = append(j.Images, seg)
	}

	includeAudio := true
	if doc.IncludeSegmentAudio != nil {
		includeAudio = *doc.IncludeSegmentAudio
	}
	segmentVolume := 1.0
	if doc.SegmentAudioVolume != nil {
		segmentVolume = *doc.SegmentAudioVolume
	}

	for _, s := range doc.VideoSegments {
		seg := VideoSegment{
			SourceRef:   s.VideoURL,
			Duration:    floatOr(s.Duration, defaultSegmentDuration),
			AudioSource: AudioSource(s.AudioSource),
			AudioVolume: floatOr(s.AudioVolume, segmentVolume),
		}
		if s.AudioSource == "" {
			seg.AudioSource = AudioOriginal
		}
		if !includeAudio {
			seg.AudioSource = AudioMuted
		}
		if s.Voiceover != nil {
			seg.Voiceover = &Voiceover{
				SourceRef: s.Voiceover.URL,
				StartTime: s.Voiceover.StartTime,
				Duration:  s.Voiceover.Duration,
			}
		}
		j.Videos = append(j.Videos, seg)
	}

	for _, c := range doc.AudioClips {
		j.AudioClips = append(j.AudioClips, AudioClip{
			SourceRef: c.URL,
			StartTime: c.StartTime,
			Duration:  floatOr(c.Duration, defaultClipDuration),
			Volume:    floatOr(c.Volume, 1.0),
		})
	}

	for _, o := range doc.TextOverlays {
		ov := TextOverlay{
			Text:              o.Text,
			X:                 o.X,
			Y:                 o.Y,
			Anchor:            Anchor(o.Anchor),
			FontFamily:        o.FontFamily,
			FontSize:          o.FontSize,
			FontWeight:        o.FontWeight,
			Color:             o.Color,
			BackgroundColor:   o.BackgroundColor,
			BackgroundOpacity: o.BackgroundOpacity,
			TextShadow:        o.TextShadow,
			StartTime:         o.StartTime,
			Duration:          o.Duration,
			FadeInMs:          o.FadeInMs,
			FadeOutMs:         o.FadeOutMs,
		}
		if ov.Anchor == "" {
			ov.Anchor = AnchorTopLeft
		}
		if ov.FontFamily == "" {
			ov.FontFamily = defaultFontFamily
		}
		if ov.FontSize == 0 {
			ov.FontSize = defaultFontSize
		}
		if ov.FontWeight == 0 {
			ov.FontWeight = defaultFontWeight
		}
		if ov.Color == "" {
			ov.Color = defaultFontColor
		}
		j.TextOverlays = append(j.TextOverlays, ov)
	}

	if err := j.Validate(); err != nil {
		return nil, err
	}
	return j, nil
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
