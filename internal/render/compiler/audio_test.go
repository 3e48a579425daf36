package compiler

import (
	"testing"

	"sceneforge/internal/render/graph"
	"sceneforge/internal/render/job"
)

func TestAudioClipStage(t *testing.T) {
	g := graph.New()
	label, err := audioClipStage(g, 3, job.AudioClip{SourceRef: "a", StartTime: 2.5, Duration: 10, Volume: 0.8})
	if err != nil {
		t.Fatalf("audioClipStage failed: %v", err)
	}

	stage := g.Stages()[0]
	if stage.Inputs[0] != "3:a" {
		t.Errorf("expected input 3:a, got %s", stage.Inputs[0])
	}
	if stage.Expr != "adelay=2500|2500,volume=0.8" {
		t.Errorf("unexpected expr: %s", stage.Expr)
	}
	if stage.Outputs[0] != label {
		t.Errorf("stage output %s != returned label %s", stage.Outputs[0], label)
	}
}

func TestSegmentAudioStages(t *testing.T) {
	tests := []struct {
		name     string
		seg      job.VideoSegment
		wantExpr string
		wantIn   graph.Label
	}{
		{
			name:     "original audio normalized for concat",
			seg:      job.VideoSegment{AudioSource: job.AudioOriginal, AudioVolume: 1},
			wantExpr: "asetpts=PTS-STARTPTS," + audioFormat,
			wantIn:   "0:a",
		},
		{
			name:     "original audio with volume scale",
			seg:      job.VideoSegment{AudioSource: job.AudioOriginal, AudioVolume: 0.5},
			wantExpr: "asetpts=PTS-STARTPTS," + audioFormat + ",volume=0.5",
			wantIn:   "0:a",
		},
		{
			name: "voiceover trimmed then normalized",
			seg: job.VideoSegment{
				AudioSource: job.AudioVoiceover,
				AudioVolume: 1,
				Voiceover:   &job.Voiceover{SourceRef: "vo", StartTime: 2, Duration: 6},
			},
			wantExpr: "atrim=start=2:end=8,asetpts=PTS-STARTPTS," + audioFormat,
			wantIn:   "5:a",
		},
		{
			name:     "muted keeps the real stream at volume zero",
			seg:      job.VideoSegment{AudioSource: job.AudioMuted, AudioVolume: 1},
			wantExpr: "asetpts=PTS-STARTPTS," + audioFormat + ",volume=0",
			wantIn:   "0:a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New()
			if _, err := segmentAudioStage(g, tt.seg, 0, 5); err != nil {
				t.Fatalf("segmentAudioStage failed: %v", err)
			}
			stage := g.Stages()[0]
			if stage.Expr != tt.wantExpr {
				t.Errorf("expr mismatch:\n got: %s\nwant: %s", stage.Expr, tt.wantExpr)
			}
			if stage.Inputs[0] != tt.wantIn {
				t.Errorf("expected input %s, got %s", tt.wantIn, stage.Inputs[0])
			}
		})
	}
}

func TestConcatSegmentAudio(t *testing.T) {
	g := graph.New()
	a := g.Input(0, "a")
	b := g.Input(1, "a")

	// A single stream is used directly, no concat stage.
	label, err := concatSegmentAudio(g, []graph.Label{a})
	if err != nil {
		t.Fatal(err)
	}
	if label != a || len(g.Stages()) != 0 {
		t.Errorf("single stream must pass through, got %s with %d stages", label, len(g.Stages()))
	}

	label, err = concatSegmentAudio(g, []graph.Label{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if label != "srcaudio" {
		t.Errorf("expected srcaudio, got %s", label)
	}
	stage := g.Stages()[0]
	if stage.Expr != "concat=n=2:v=0:a=1" {
		t.Errorf("unexpected concat expr: %s", stage.Expr)
	}
}

func TestMixAudioRules(t *testing.T) {
	g := graph.New()
	a := g.Input(0, "a")
	b := g.Input(1, "a")
	c := g.Input(2, "a")

	// Zero streams: no audio output at all.
	label, err := mixAudio(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if label != "" {
		t.Errorf("expected empty label for zero streams, got %s", label)
	}

	// One stream: direct pass-through, no mix stage.
	label, err = mixAudio(g, []graph.Label{a})
	if err != nil {
		t.Fatal(err)
	}
	if label != a || len(g.Stages()) != 0 {
		t.Errorf("single stream must pass through, got %s with %d stages", label, len(g.Stages()))
	}

	// Three streams: exactly one mix stage referencing all of them.
	label, err = mixAudio(g, []graph.Label{a, b, c})
	if err != nil {
		t.Fatal(err)
	}
	if label != "outa" {
		t.Errorf("expected outa, got %s", label)
	}
	stage := g.Stages()[0]
	if stage.Expr != "amix=inputs=3:duration=longest:normalize=0" {
		t.Errorf("unexpected mix expr: %s", stage.Expr)
	}
	if len(stage.Inputs) != 3 {
		t.Errorf("mix stage must consume all 3 streams, got %d", len(stage.Inputs))
	}
}
