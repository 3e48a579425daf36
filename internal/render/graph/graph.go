// Package graph models an ffmpeg filter_complex as an ordered list of
// stages over symbolically labeled streams. Stages are validated as they
// are appended: every label a stage consumes must already exist, and no
// two stages may produce the same label. Serialization to the textual
// filter syntax is a separate, final step.
package graph

import (
	"fmt"
	"strings"

	"sceneforge/internal/pkg/errors"
)

// Label identifies one stream (node) in the compiled graph. Demuxer pads
// such as "0:v" and filter outputs such as "outv" share the same namespace.
type Label string

// Stage is one filter invocation: it consumes Inputs, applies Expr and
// produces Outputs.
type Stage struct {
	Inputs  []Label
	Expr    string
	Outputs []Label
}

// Graph accumulates stages in construction order, which is also the
// topological order of the resulting DAG.
type Graph struct {
	stages   []Stage
	produced map[Label]bool
	reserved map[Label]bool
	counters map[string]int
}

func New() *Graph {
	return &Graph{
		produced: make(map[Label]bool),
		reserved: make(map[Label]bool),
		counters: make(map[string]int),
	}
}

// Input registers a demuxer pad (e.g. "2:a") as an available stream and
// returns its label. Registering the same pad twice is harmless.
func (g *Graph) Input(index int, kind string) Label {
	l := Label(fmt.Sprintf("%d:%s", index, kind))
	g.produced[l] = true
	g.reserved[l] = true
	return l
}

// Next allocates the next numbered label for prefix: Next("v") yields
// v0, v1, ... The label is reserved immediately so later allocations and
// reservations cannot collide with it.
func (g *Graph) Next(prefix string) Label {
	for {
		l := Label(fmt.Sprintf("%s%d", prefix, g.counters[prefix]))
		g.counters[prefix]++
		if !g.reserved[l] {
			g.reserved[l] = true
			return l
		}
	}
}

// Reserve claims an exact label name, for well-known outputs like "outv".
func (g *Graph) Reserve(name string) (Label, error) {
	l := Label(name)
	if g.reserved[l] {
		return "", errors.Internalf("stream label already in use: %s", name)
	}
	g.reserved[l] = true
	return l, nil
}

// AddStage appends a stage. Every input must have been produced by an
// earlier stage or registered as a demuxer pad; every output must be a
// reserved label that no stage has produced yet.
func (g *Graph) AddStage(inputs []Label, expr string, outputs []Label) error {
	if expr == "" {
		return errors.Internal("filter stage has empty expression")
	}
	if len(outputs) == 0 {
		return errors.Internal("filter stage has no outputs")
	}
	for _, in := range inputs {
		if !g.produced[in] {
			return errors.Internalf("filter stage consumes unknown stream: %s", in)
		}
	}
	for _, out := range outputs {
		if g.produced[out] {
			return errors.Internalf("stream label produced twice: %s", out)
		}
		if !g.reserved[out] {
			return errors.Internalf("filter stage output was never allocated: %s", out)
		}
	}
	for _, out := range outputs {
		g.produced[out] = true
	}
	g.stages = append(g.stages, Stage{Inputs: inputs, Expr: expr, Outputs: outputs})
	return nil
}

// Produced reports whether a label has been produced (or is a demuxer pad).
func (g *Graph) Produced(l Label) bool {
	return g.produced[l]
}

// Stages returns the accumulated stages in construction order.
func (g *Graph) Stages() []Stage {
	out := make([]Stage, len(g.stages))
	copy(out, g.stages)
	return out
}

// Serialize renders the whole graph in filter_complex syntax.
func (g *Graph) Serialize() string {
	return Serialize(g.stages)
}

// Serialize renders an ordered stage list as a semicolon-joined
// filter_complex string: [in0][in1]expr[out0];...
func Serialize(stages []Stage) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		var b strings.Builder
		for _, in := range s.Inputs {
			b.WriteString("[")
			b.WriteString(string(in))
			b.WriteString("]")
		}
		b.WriteString(s.Expr)
		for _, out := range s.Outputs {
			b.WriteString("[")
			b.WriteString(string(out))
			b.WriteString("]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ";")
}
