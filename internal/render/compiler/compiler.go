// Package compiler turns a validated render job into a single executable
// filter-graph command for ffmpeg. Compilation is a pure function of the
// job, the injected catalogs and the asset resolution map: identical
// inputs yield identical commands, and the compiler performs no I/O of
// its own (font probing goes through the injected resolver).
package compiler

import (
	"fmt"

	"sceneforge/internal/pkg/errors"
	"sceneforge/internal/render/graph"
	"sceneforge/internal/render/job"
)

// AssetMap resolves a segment/clip source reference to a local file
// path. It is supplied by the orchestrator after asset download; the
// compiler never mutates the job to attach paths.
type AssetMap map[string]string

// Input is one demuxer input of the compiled command. Loop marks still
// images that must be looped for their whole display duration.
type Input struct {
	Path string
	Loop bool
}

// CompiledCommand is the complete, engine-ready description of one
// render: ordered inputs, an ordered filter-stage list, the two output
// mappings and fixed codec parameters.
type CompiledCommand struct {
	Inputs      []Input
	Stages      []graph.Stage
	VideoOutput graph.Label
	AudioOutput graph.Label // empty when the job has no audio at all
	Codec       CodecSettings
	// ForceDuration caps the output to the declared total duration, in
	// seconds. Zero leaves the duration to the concatenated streams.
	ForceDuration float64
	OutputPath    string
}

// FilterComplex renders the stage list in filter_complex syntax.
func (c *CompiledCommand) FilterComplex() string {
	return graph.Serialize(c.Stages)
}

// Config carries the injected lookup structures.
type Config struct {
	Resolutions ResolutionCatalog
	Fonts       *FontResolver
}

// Compiler compiles render jobs. It holds no per-job state and is safe
// for concurrent use.
type Compiler struct {
	resolutions ResolutionCatalog
	fonts       *FontResolver
}

func New(cfg Config) *Compiler {
	c := &Compiler{
		resolutions: cfg.Resolutions,
		fonts:       cfg.Fonts,
	}
	if c.resolutions == nil {
		c.resolutions = DefaultResolutions()
	}
	if c.fonts == nil {
		c.fonts = NewFontResolver("/usr/share/fonts/truetype")
	}
	return c
}

// Compile validates the job and produces the compiled command, writing
// the output to outputPath.
func (c *Compiler) Compile(j *job.RenderJob, assets AssetMap, outputPath string) (*CompiledCommand, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}

	res := c.resolutions.Lookup(j.Resolution)

	switch j.Mode {
	case job.ModeImageMontage:
		return c.compileMontage(j, assets, res, outputPath)
	case job.ModeClipConcat:
		return c.compileConcat(j, assets, res, outputPath)
	default:
		return nil, errors.Validationf("unsupported render mode: %q", string(j.Mode))
	}
}

func (c *Compiler) compileMontage(j *job.RenderJob, assets AssetMap, res Resolution, outputPath string) (*CompiledCommand, error) {
	g := graph.New()
	cmd := &CompiledCommand{
		Codec:      codecPresets[job.ModeImageMontage],
		OutputPath: outputPath,
	}

	// Still images loop for their whole display window.
	motion := make([]graph.Label, 0, len(j.Images))
	total := 0.0
	for i, seg := range j.Images {
		path, err := resolveAsset(assets, seg.SourceRef, "image segment", i)
		if err != nil {
			return nil, err
		}
		cmd.Inputs = append(cmd.Inputs, Input{Path: path, Loop: true})

		label, err := kenBurnsStage(g, i, seg, j.FPS, res.Width, res.Height)
		if err != nil {
			return nil, err
		}
		motion = append(motion, label)
		total += seg.Duration
	}

	video, err := concatVideo(g, motion)
	if err != nil {
		return nil, err
	}

	clipStreams, err := c.addAudioClips(g, cmd, j.AudioClips, assets)
	if err != nil {
		return nil, err
	}
	audio, err := mixAudio(g, clipStreams)
	if err != nil {
		return nil, err
	}

	cmd.Stages = g.Stages()
	cmd.VideoOutput = video
	cmd.AudioOutput = audio
	cmd.ForceDuration = total
	return cmd, nil
}

func (c *Compiler) compileConcat(j *job.RenderJob, assets AssetMap, res Resolution, outputPath string) (*CompiledCommand, error) {
	g := graph.New()
	cmd := &CompiledCommand{
		Codec:      codecPresets[job.ModeClipConcat],
		OutputPath: outputPath,
	}

	for i, seg := range j.Videos {
		path, err := resolveAsset(assets, seg.SourceRef, "video segment", i)
		if err != nil {
			return nil, err
		}
		cmd.Inputs = append(cmd.Inputs, Input{Path: path})
	}

	// Voiceover assets become extra inputs after the video segments.
	voiceoverIdx := make(map[int]int)
	for i, seg := range j.Videos {
		if seg.AudioSource != job.AudioVoiceover {
			continue
		}
		path, err := resolveAsset(assets, seg.Voiceover.SourceRef, "voiceover for segment", i)
		if err != nil {
			return nil, err
		}
		voiceoverIdx[i] = len(cmd.Inputs)
		cmd.Inputs = append(cmd.Inputs, Input{Path: path})
	}

	// Every clip is normalized to the target canvas and frame rate so
	// concat sees uniform streams: scale preserving aspect ratio,
	// centered padding, fixed fps and square pixels.
	normalized := make([]graph.Label, 0, len(j.Videos))
	for i := range j.Videos {
		expr := fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,fps=%d,setsar=1",
			res.Width, res.Height, res.Width, res.Height, j.FPS,
		)
		in := g.Input(i, "v")
		out := g.Next("v")
		if err := g.AddStage([]graph.Label{in}, expr, []graph.Label{out}); err != nil {
			return nil, err
		}
		normalized = append(normalized, out)
	}

	video, err := concatVideo(g, normalized)
	if err != nil {
		return nil, err
	}

	if len(j.TextOverlays) > 0 {
		final, err := g.Reserve("outv")
		if err != nil {
			return nil, err
		}
		if err := overlayChain(g, video, final, j.TextOverlays, c.fonts); err != nil {
			return nil, err
		}
		video = final
	}

	// Per-segment embedded audio, concatenated in segment order, then
	// mixed with overlay clips.
	segmentStreams := make([]graph.Label, 0, len(j.Videos))
	for i, seg := range j.Videos {
		label, err := segmentAudioStage(g, seg, i, voiceoverIdx[i])
		if err != nil {
			return nil, err
		}
		segmentStreams = append(segmentStreams, label)
	}

	var mixInputs []graph.Label
	if len(segmentStreams) > 0 {
		source, err := concatSegmentAudio(g, segmentStreams)
		if err != nil {
			return nil, err
		}
		mixInputs = append(mixInputs, source)
	}

	clipStreams, err := c.addAudioClips(g, cmd, j.AudioClips, assets)
	if err != nil {
		return nil, err
	}
	mixInputs = append(mixInputs, clipStreams...)

	audio, err := mixAudio(g, mixInputs)
	if err != nil {
		return nil, err
	}

	cmd.Stages = g.Stages()
	cmd.VideoOutput = video
	cmd.AudioOutput = audio
	// Declared durations may not match the actual assets, so the output
	// duration is left to the concatenated streams.
	cmd.ForceDuration = 0
	return cmd, nil
}

// addAudioClips appends the overlay-clip inputs and their delay/volume
// stages, returning the per-clip stream labels in clip order.
func (c *Compiler) addAudioClips(g *graph.Graph, cmd *CompiledCommand, clips []job.AudioClip, assets AssetMap) ([]graph.Label, error) {
	labels := make([]graph.Label, 0, len(clips))
	for i, clip := range clips {
		path, err := resolveAsset(assets, clip.SourceRef, "audio clip", i)
		if err != nil {
			return nil, err
		}
		inputIdx := len(cmd.Inputs)
		cmd.Inputs = append(cmd.Inputs, Input{Path: path})

		label, err := audioClipStage(g, inputIdx, clip)
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// concatVideo joins motion/normalized streams in order. A single stream
// is the output directly, with no concat stage.
func concatVideo(g *graph.Graph, labels []graph.Label) (graph.Label, error) {
	if len(labels) == 1 {
		return labels[0], nil
	}
	out, err := g.Reserve("vcat")
	if err != nil {
		return "", err
	}
	expr := fmt.Sprintf("concat=n=%d:v=1:a=0", len(labels))
	if err := g.AddStage(labels, expr, []graph.Label{out}); err != nil {
		return "", err
	}
	return out, nil
}

func resolveAsset(assets AssetMap, ref, what string, index int) (string, error) {
	if path, ok := assets[ref]; ok && path != "" {
		return path, nil
	}
	return "", errors.Validationf("no local asset resolved for %s %d (source %q)", what, index, ref)
}
