package compiler

import "sceneforge/internal/render/job"

// Resolution is one output canvas preset.
type Resolution struct {
	Width  int
	Height int
}

// ResolutionCatalog maps preset names to canvas sizes. The catalog is
// injected into the compiler so tests can substitute alternates.
type ResolutionCatalog map[string]Resolution

// DefaultResolutions returns the built-in presets.
func DefaultResolutions() ResolutionCatalog {
	return ResolutionCatalog{
		"720p":  {Width: 1280, Height: 720},
		"1080p": {Width: 1920, Height: 1080},
		"4K":    {Width: 3840, Height: 2160},
	}
}

// Lookup resolves a preset name, silently falling back to 1080p for
// unknown names. Unknown resolutions are recoverable by design.
func (c ResolutionCatalog) Lookup(name string) Resolution {
	if r, ok := c[name]; ok {
		return r
	}
	if r, ok := c[job.DefaultResolution]; ok {
		return r
	}
	return Resolution{Width: 1920, Height: 1080}
}

// CodecSettings are the fixed encoder parameters attached to a compiled
// command. They are selected by render mode, never derived per job.
type CodecSettings struct {
	VideoCodec   string
	Preset       string
	CRF          int
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
}

var codecPresets = map[job.Mode]CodecSettings{
	job.ModeImageMontage: {
		VideoCodec:   "libx264",
		Preset:       "medium",
		CRF:          23,
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
	},
	job.ModeClipConcat: {
		VideoCodec:   "libx264",
		Preset:       "medium",
		CRF:          23,
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
	},
}
