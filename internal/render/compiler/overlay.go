package compiler

import (
	"fmt"
	"strings"

	"sceneforge/internal/pkg/errors"
	"sceneforge/internal/render/graph"
	"sceneforge/internal/render/job"
)

// Fixed styling constants for optional overlay decorations.
const (
	boxBorderWidth = 5
	shadowOffsetX  = 2
	shadowOffsetY  = 2
	shadowColor    = "0x00000080"
)

// drawtextEscaper escapes the four characters that are structurally
// significant inside a drawtext text value.
var drawtextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`:`, `\:`,
	`%`, `\%`,
)

func escapeDrawtext(s string) string {
	return drawtextEscaper.Replace(s)
}

// packColor converts a hex RGB string plus an opacity into the packed
// 0xRRGGBBAA form the engine expects. Malformed colors are an error, not
// a silent default.
func packColor(hex string, opacity float64) (string, error) {
	s := strings.TrimSpace(hex)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 6 {
		return "", errors.Validationf("malformed color %q: want 6 hex digits", hex)
	}
	for _, c := range s {
		if !isHexDigit(c) {
			return "", errors.Validationf("malformed color %q: invalid hex digit %q", hex, c)
		}
	}
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	alpha := int(opacity*255 + 0.5)
	return fmt.Sprintf("0x%s%02X", strings.ToUpper(s), alpha), nil
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// positionExprs resolves the overlay anchor into drawtext x/y
// expressions. Unrecognized anchors fall back to top-left.
func positionExprs(ov job.TextOverlay) (x, y string) {
	px := fmt.Sprintf("%d", ov.X)
	py := fmt.Sprintf("%d", ov.Y)

	switch ov.Anchor {
	case job.AnchorTopCenter:
		return px + "-text_w/2", py
	case job.AnchorCenter:
		return px + "-text_w/2", py + "-text_h/2"
	case job.AnchorBottomLeft:
		return px, py + "-text_h"
	case job.AnchorBottomCenter:
		return px + "-text_w/2", py + "-text_h"
	case job.AnchorBottomRight:
		return px + "-text_w", py + "-text_h"
	default:
		return px, py
	}
}

// visibilityExpr derives the enable predicate: a closed window when the
// overlay has a positive duration, open-ended otherwise.
func visibilityExpr(ov job.TextOverlay) string {
	if ov.Duration > 0 {
		return fmt.Sprintf("between(t,%s,%s)", ffNum(ov.StartTime), ffNum(ov.StartTime+ov.Duration))
	}
	return fmt.Sprintf("gte(t,%s)", ffNum(ov.StartTime))
}

// fadeAlphaExpr derives the piecewise fade alpha as a function of t.
// Fade-in and fade-out ramps are each clamped to [0,1] and combined with
// min() when both are present. Returns "" when no fade applies, so the
// alpha term is omitted entirely rather than emitted as a no-op.
func fadeAlphaExpr(ov job.TextOverlay) string {
	var in, out string

	if ov.FadeInMs > 0 {
		fadeIn := float64(ov.FadeInMs) / 1000
		in = fmt.Sprintf("min(1,max(0,(t-%s)/%s))", ffNum(ov.StartTime), ffNum(fadeIn))
	}
	// Fading out needs a defined end; open-ended overlays cannot fade out.
	if ov.FadeOutMs > 0 && ov.Duration > 0 {
		fadeOut := float64(ov.FadeOutMs) / 1000
		end := ov.StartTime + ov.Duration
		out = fmt.Sprintf("min(1,max(0,(%s-t)/%s))", ffNum(end), ffNum(fadeOut))
	}

	switch {
	case in != "" && out != "":
		return fmt.Sprintf("min(%s,%s)", in, out)
	case in != "":
		return in
	case out != "":
		return out
	default:
		return ""
	}
}

// drawtextExpr assembles the full drawtext filter expression for one
// overlay.
func drawtextExpr(ov job.TextOverlay, font FontSpec) (string, error) {
	fontColor, err := packColor(ov.Color, 1.0)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, 12)
	if font.File != "" {
		parts = append(parts, fmt.Sprintf("fontfile='%s'", font.File))
	} else {
		parts = append(parts, fmt.Sprintf("font=%s", font.Family))
	}
	parts = append(parts,
		fmt.Sprintf("text='%s'", escapeDrawtext(ov.Text)),
		fmt.Sprintf("fontsize=%d", ov.FontSize),
		fmt.Sprintf("fontcolor=%s", fontColor),
	)

	if alpha := fadeAlphaExpr(ov); alpha != "" {
		parts = append(parts, fmt.Sprintf("alpha='%s'", alpha))
	}

	x, y := positionExprs(ov)
	parts = append(parts, "x="+x, "y="+y)

	if ov.BackgroundColor != "" {
		boxColor, err := packColor(ov.BackgroundColor, ov.BackgroundOpacity)
		if err != nil {
			return "", err
		}
		parts = append(parts,
			"box=1",
			fmt.Sprintf("boxcolor=%s", boxColor),
			fmt.Sprintf("boxborderw=%d", boxBorderWidth),
		)
	}
	if ov.TextShadow {
		parts = append(parts,
			fmt.Sprintf("shadowcolor=%s", shadowColor),
			fmt.Sprintf("shadowx=%d", shadowOffsetX),
			fmt.Sprintf("shadowy=%d", shadowOffsetY),
		)
	}

	parts = append(parts, fmt.Sprintf("enable='%s'", visibilityExpr(ov)))

	return "drawtext=" + strings.Join(parts, ":"), nil
}

// overlayChain applies overlays sequentially: overlay i's output feeds
// overlay i+1, and only the last overlay writes the final label.
func overlayChain(g *graph.Graph, in, final graph.Label, overlays []job.TextOverlay, fonts *FontResolver) error {
	current := in
	for i, ov := range overlays {
		font := fonts.Resolve(ov.FontFamily, ov.FontWeight)
		expr, err := drawtextExpr(ov, font)
		if err != nil {
			return err
		}

		out := final
		if i < len(overlays)-1 {
			out = g.Next("ov")
		}
		if err := g.AddStage([]graph.Label{current}, expr, []graph.Label{out}); err != nil {
			return err
		}
		current = out
	}
	return nil
}
