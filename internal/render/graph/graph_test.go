package graph

import (
	"strings"
	"testing"
)

func TestNextAllocatesUniqueLabels(t *testing.T) {
	g := New()

	seen := make(map[Label]bool)
	for i := 0; i < 10; i++ {
		l := g.Next("v")
		if seen[l] {
			t.Fatalf("label %s allocated twice", l)
		}
		seen[l] = true
	}

	if l := g.Next("a"); l != "a0" {
		t.Errorf("expected a0, got %s", l)
	}
}

func TestReserveRejectsDuplicates(t *testing.T) {
	g := New()

	if _, err := g.Reserve("outv"); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	if _, err := g.Reserve("outv"); err == nil {
		t.Error("expected error reserving outv twice")
	}
}

func TestNextSkipsReservedNames(t *testing.T) {
	g := New()

	if _, err := g.Reserve("v0"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if l := g.Next("v"); l != "v1" {
		t.Errorf("expected v1 after reserving v0, got %s", l)
	}
}

func TestAddStageRejectsUnknownInput(t *testing.T) {
	g := New()
	out := g.Next("v")

	err := g.AddStage([]Label{"0:v"}, "scale=1920:1080", []Label{out})
	if err == nil {
		t.Fatal("expected error for unregistered input pad")
	}
	if !strings.Contains(err.Error(), "unknown stream") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAddStageRejectsDuplicateOutput(t *testing.T) {
	g := New()
	in := g.Input(0, "v")
	out := g.Next("v")

	if err := g.AddStage([]Label{in}, "fps=24", []Label{out}); err != nil {
		t.Fatalf("first stage failed: %v", err)
	}
	if err := g.AddStage([]Label{in}, "fps=30", []Label{out}); err == nil {
		t.Error("expected error producing same label twice")
	}
}

func TestAddStageRequiresProducedBeforeConsumed(t *testing.T) {
	g := New()
	in := g.Input(0, "v")
	mid := g.Next("v")
	out := g.Next("v")

	// Consuming mid before any stage produced it must fail.
	if err := g.AddStage([]Label{mid}, "fps=24", []Label{out}); err == nil {
		t.Fatal("expected error consuming label before production")
	}

	if err := g.AddStage([]Label{in}, "scale=640:480", []Label{mid}); err != nil {
		t.Fatalf("producer stage failed: %v", err)
	}
	if err := g.AddStage([]Label{mid}, "fps=24", []Label{out}); err != nil {
		t.Fatalf("consumer stage failed: %v", err)
	}
}

func TestSerialize(t *testing.T) {
	g := New()
	v0 := g.Input(0, "v")
	v1 := g.Input(1, "v")
	s0 := g.Next("v")
	s1 := g.Next("v")
	outv, _ := g.Reserve("outv")

	if err := g.AddStage([]Label{v0}, "fps=24", []Label{s0}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddStage([]Label{v1}, "fps=24", []Label{s1}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddStage([]Label{s0, s1}, "concat=n=2:v=1:a=0", []Label{outv}); err != nil {
		t.Fatal(err)
	}

	got := g.Serialize()
	want := "[0:v]fps=24[v0];[1:v]fps=24[v1];[v0][v1]concat=n=2:v=1:a=0[outv]"
	if got != want {
		t.Errorf("serialize mismatch:\n got: %s\nwant: %s", got, want)
	}
}
