package compiler

import (
	"reflect"
	"strings"
	"testing"

	"sceneforge/internal/pkg/errors"
	"sceneforge/internal/render/graph"
	"sceneforge/internal/render/job"
)

func testCompiler() *Compiler {
	return New(Config{Fonts: fallbackFonts()})
}

func montageJob(n int) *job.RenderJob {
	j := &job.RenderJob{
		JobID:      "job-1",
		Mode:       job.ModeImageMontage,
		Resolution: "1080p",
		FPS:        24,
	}
	for i := 0; i < n; i++ {
		j.Images = append(j.Images, job.ImageSegment{
			SourceRef: "img" + string(rune('a'+i)),
			Duration:  5,
			KenBurns:  job.KenBurns{ZoomStart: 1.0, ZoomEnd: 1.1},
		})
	}
	return j
}

func montageAssets(j *job.RenderJob) AssetMap {
	m := AssetMap{}
	for i, seg := range j.Images {
		m[seg.SourceRef] = "/tmp/assets/image_" + string(rune('a'+i)) + ".jpg"
	}
	return m
}

func stageByOutput(t *testing.T, stages []graph.Stage, out graph.Label) graph.Stage {
	t.Helper()
	for _, s := range stages {
		for _, o := range s.Outputs {
			if o == out {
				return s
			}
		}
	}
	t.Fatalf("no stage produces %s", out)
	return graph.Stage{}
}

func TestCompileMontageTwoImages(t *testing.T) {
	j := montageJob(2)
	cmd, err := testCompiler().Compile(j, montageAssets(j), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if len(cmd.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(cmd.Inputs))
	}
	for i, in := range cmd.Inputs {
		if !in.Loop {
			t.Errorf("input %d: still images must loop", i)
		}
	}

	// Two motion stages and exactly one concatenation joining them.
	if len(cmd.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d:\n%s", len(cmd.Stages), cmd.FilterComplex())
	}
	for i := 0; i < 2; i++ {
		if !strings.Contains(cmd.Stages[i].Expr, ":d=120:") {
			t.Errorf("segment %d: expected 120 frames for 5s at 24fps, expr: %s", i, cmd.Stages[i].Expr)
		}
	}
	concat := stageByOutput(t, cmd.Stages, cmd.VideoOutput)
	if concat.Expr != "concat=n=2:v=1:a=0" {
		t.Errorf("unexpected concat expr: %s", concat.Expr)
	}

	// The zoom rate covers 1.0 -> 1.1 across the 120 frames.
	_, rate := extractRate(t, cmd.Stages[0].Expr, "z")
	if got := rate * 120; got < 0.1-1e-9 || got > 0.1+1e-9 {
		t.Errorf("expected total zoom delta 0.1, got %v", got)
	}

	if cmd.ForceDuration != 10 {
		t.Errorf("expected forced duration 10s, got %v", cmd.ForceDuration)
	}
	if cmd.AudioOutput != "" {
		t.Errorf("montage without clips must have no audio output, got %s", cmd.AudioOutput)
	}
	if cmd.Codec.VideoCodec != "libx264" || cmd.Codec.PixelFormat != "yuv420p" {
		t.Errorf("unexpected codec settings: %+v", cmd.Codec)
	}
	if cmd.OutputPath != "/tmp/out.mp4" {
		t.Errorf("unexpected output path: %s", cmd.OutputPath)
	}
}

func TestCompileMontageSingleImageSkipsConcat(t *testing.T) {
	j := montageJob(1)
	cmd, err := testCompiler().Compile(j, montageAssets(j), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(cmd.Stages) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(cmd.Stages))
	}
	if cmd.VideoOutput != cmd.Stages[0].Outputs[0] {
		t.Errorf("video output %s is not the motion stage's label", cmd.VideoOutput)
	}
	if strings.Contains(cmd.FilterComplex(), "concat") {
		t.Errorf("single segment must not be concatenated:\n%s", cmd.FilterComplex())
	}
}

func concatJob() *job.RenderJob {
	return &job.RenderJob{
		JobID:      "job-2",
		Mode:       job.ModeClipConcat,
		Resolution: "1080p",
		FPS:        30,
		Videos: []job.VideoSegment{
			{SourceRef: "clip0", Duration: 4, AudioSource: job.AudioMuted, AudioVolume: 1},
			{SourceRef: "clip1", Duration: 6, AudioSource: job.AudioOriginal, AudioVolume: 1},
			{
				SourceRef:   "clip2",
				Duration:    5,
				AudioSource: job.AudioVoiceover,
				AudioVolume: 1,
				Voiceover:   &job.Voiceover{SourceRef: "narration", StartTime: 2, Duration: 5},
			},
		},
	}
}

func concatAssets() AssetMap {
	return AssetMap{
		"clip0":     "/tmp/assets/video_000.mp4",
		"clip1":     "/tmp/assets/video_001.mp4",
		"clip2":     "/tmp/assets/video_002.mp4",
		"narration": "/tmp/assets/audio_000.mp3",
	}
}

func TestCompileConcatMixedAudioSources(t *testing.T) {
	cmd, err := testCompiler().Compile(concatJob(), concatAssets(), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// Voiceover assets are appended after the video segments.
	if len(cmd.Inputs) != 4 {
		t.Fatalf("expected 4 inputs, got %d", len(cmd.Inputs))
	}
	if cmd.Inputs[3].Path != "/tmp/assets/audio_000.mp3" {
		t.Errorf("expected narration as input 3, got %s", cmd.Inputs[3].Path)
	}

	// 3 normalizations, 1 video concat, 3 segment audio stages, 1 audio
	// concat.
	if len(cmd.Stages) != 8 {
		t.Fatalf("expected 8 stages, got %d:\n%s", len(cmd.Stages), cmd.FilterComplex())
	}

	// Per-segment audio policies are all distinct.
	src := stageByOutput(t, cmd.Stages, "srcaudio")
	if src.Expr != "concat=n=3:v=0:a=1" {
		t.Errorf("unexpected source-audio concat expr: %s", src.Expr)
	}
	muted := stageByOutput(t, cmd.Stages, src.Inputs[0])
	if !strings.Contains(muted.Expr, "volume=0") {
		t.Errorf("segment 0 must be silenced, expr: %s", muted.Expr)
	}
	original := stageByOutput(t, cmd.Stages, src.Inputs[1])
	if strings.Contains(original.Expr, "volume=") || strings.Contains(original.Expr, "atrim") {
		t.Errorf("segment 1 keeps its own audio untouched, expr: %s", original.Expr)
	}
	vo := stageByOutput(t, cmd.Stages, src.Inputs[2])
	if !strings.Contains(vo.Expr, "atrim=start=2:end=7") {
		t.Errorf("segment 2 voiceover trim missing, expr: %s", vo.Expr)
	}
	if vo.Inputs[0] != "3:a" {
		t.Errorf("voiceover must read the narration input, got %s", vo.Inputs[0])
	}

	// With no overlay clips the concatenated source audio is the output
	// directly, no mix stage.
	if cmd.AudioOutput != "srcaudio" {
		t.Errorf("expected srcaudio as audio output, got %s", cmd.AudioOutput)
	}
	if strings.Contains(cmd.FilterComplex(), "amix") {
		t.Errorf("single audio stream must not be mixed:\n%s", cmd.FilterComplex())
	}

	// Clip durations come from the real assets, never forced.
	if cmd.ForceDuration != 0 {
		t.Errorf("concat output duration must not be forced, got %v", cmd.ForceDuration)
	}

	// Every clip is normalized to the canvas before concatenation.
	norm := stageByOutput(t, cmd.Stages, cmd.Stages[3].Inputs[0])
	want := "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2:black,fps=30,setsar=1"
	if norm.Expr != want {
		t.Errorf("normalization mismatch:\n got: %s\nwant: %s", norm.Expr, want)
	}
}

func TestCompileConcatOverlaysWriteFinalLabel(t *testing.T) {
	j := concatJob()
	j.TextOverlays = []job.TextOverlay{
		{Text: "Title", Color: "#FFFFFF", FontSize: 48, FontWeight: 400, Duration: 3},
	}

	cmd, err := testCompiler().Compile(j, concatAssets(), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if cmd.VideoOutput != "outv" {
		t.Errorf("overlaid video must map the overlay output, got %s", cmd.VideoOutput)
	}
	ov := stageByOutput(t, cmd.Stages, "outv")
	if !strings.HasPrefix(ov.Expr, "drawtext=") {
		t.Errorf("expected a drawtext stage, got %s", ov.Expr)
	}
	if ov.Inputs[0] != "vcat" {
		t.Errorf("overlay must consume the concatenated video, got %s", ov.Inputs[0])
	}
}

func TestCompileAudioOutputCardinality(t *testing.T) {
	assets := func(j *job.RenderJob) AssetMap {
		m := montageAssets(j)
		for _, c := range j.AudioClips {
			m[c.SourceRef] = "/tmp/assets/" + c.SourceRef + ".mp3"
		}
		return m
	}

	// One clip: its own stream is the output, unmixed.
	j := montageJob(1)
	j.AudioClips = []job.AudioClip{{SourceRef: "music", StartTime: 0, Duration: 5, Volume: 0.5}}
	cmd, err := testCompiler().Compile(j, assets(j), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if cmd.AudioOutput == "" || cmd.AudioOutput == "outa" {
		t.Errorf("single clip must pass through unmixed, got %q", cmd.AudioOutput)
	}

	// Two clips: mixed into the reserved output label.
	j = montageJob(1)
	j.AudioClips = []job.AudioClip{
		{SourceRef: "music", StartTime: 0, Duration: 5, Volume: 0.5},
		{SourceRef: "sfx", StartTime: 2, Duration: 1, Volume: 1},
	}
	cmd, err = testCompiler().Compile(j, assets(j), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if cmd.AudioOutput != "outa" {
		t.Errorf("expected mixed output outa, got %s", cmd.AudioOutput)
	}
	mix := stageByOutput(t, cmd.Stages, "outa")
	if mix.Expr != "amix=inputs=2:duration=longest:normalize=0" {
		t.Errorf("unexpected mix expr: %s", mix.Expr)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	j := concatJob()
	j.AudioClips = []job.AudioClip{{SourceRef: "narration", StartTime: 1, Duration: 3, Volume: 0.8}}

	first, err := testCompiler().Compile(j, concatAssets(), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := testCompiler().Compile(j, concatAssets(), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated compilation diverged:\n%s\nvs\n%s", first.FilterComplex(), second.FilterComplex())
	}
}

func TestCompileMissingAssetFails(t *testing.T) {
	j := montageJob(2)
	assets := montageAssets(j)
	delete(assets, j.Images[1].SourceRef)

	_, err := testCompiler().Compile(j, assets, "/tmp/out.mp4")
	if err == nil {
		t.Fatal("expected error for unresolved asset")
	}
	if !errors.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "image segment 1") {
		t.Errorf("error must name the offending segment: %v", err)
	}
}

func TestCompileUnknownResolutionFallsBack(t *testing.T) {
	j := concatJob()
	j.Resolution = "8K"

	cmd, err := testCompiler().Compile(j, concatAssets(), "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !strings.Contains(cmd.Stages[0].Expr, "scale=1920:1080:") {
		t.Errorf("unknown resolution must fall back to 1080p, expr: %s", cmd.Stages[0].Expr)
	}
}

func TestCompileRejectsInvalidJob(t *testing.T) {
	j := montageJob(1)
	j.FPS = 0
	if _, err := testCompiler().Compile(j, montageAssets(j), "/tmp/out.mp4"); err == nil {
		t.Fatal("expected validation failure for zero fps")
	}
}
