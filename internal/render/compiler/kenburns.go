package compiler

import (
	"fmt"
	"math"
	"strconv"

	"sceneforge/internal/render/graph"
	"sceneforge/internal/render/job"
)

// Images are conceptually scaled by this factor before cropping, which
// leaves (scaleFactor-1)/2 of each dimension as pan/zoom headroom.
const scaleFactor = 2

// kenBurnsStage derives the motion stage for one image segment: a linear
// zoom from ZoomStart to ZoomEnd and a linear pan that starts exactly
// centered at frame 0. A zero frame count degrades to zero-rate motion
// instead of dividing by zero.
func kenBurnsStage(g *graph.Graph, inputIndex int, seg job.ImageSegment, fps, width, height int) (graph.Label, error) {
	frames := int(math.Round(seg.Duration * float64(fps)))

	kb := seg.KenBurns
	var zoomRate, panPerFrameX, panPerFrameY float64
	if frames > 0 {
		zoomRate = (kb.ZoomEnd - kb.ZoomStart) / float64(frames)
	}

	scaledW := width * scaleFactor
	scaledH := height * scaleFactor
	headroomX := float64(scaledW-width) / 2
	headroomY := float64(scaledH-height) / 2
	if frames > 0 {
		panPerFrameX = kb.PanX * headroomX / float64(frames)
		panPerFrameY = kb.PanY * headroomY / float64(frames)
	}

	// Pan starts at the exact center of the scaled image regardless of
	// pan magnitude.
	centerX := float64(scaledW-width) / 2
	centerY := float64(scaledH-height) / 2

	zoomExpr := fmt.Sprintf("%s+%s*on", ffNum(kb.ZoomStart), ffNum(zoomRate))
	xExpr := fmt.Sprintf("%s+%s*on", ffNum(centerX), ffNum(panPerFrameX))
	yExpr := fmt.Sprintf("%s+%s*on", ffNum(centerY), ffNum(panPerFrameY))

	expr := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		scaledW, scaledH, scaledW, scaledH, zoomExpr, xExpr, yExpr, frames, width, height, fps,
	)

	in := g.Input(inputIndex, "v")
	out := g.Next("v")
	if err := g.AddStage([]graph.Label{in}, expr, []graph.Label{out}); err != nil {
		return "", err
	}
	return out, nil
}

// ffNum formats a float for embedding in a filter expression: shortest
// exact decimal form, never scientific notation.
func ffNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
