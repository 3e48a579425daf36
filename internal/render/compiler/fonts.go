package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FallbackFontFamily is the generic family name used when no font file
// can be found on disk. drawtext resolves it through fontconfig.
const FallbackFontFamily = "Sans"

// FontSpec is a resolved font: either a concrete file path or, when no
// file could be found, a generic family name. Exactly one field is set.
type FontSpec struct {
	File   string
	Family string
}

// weightBuckets maps the numeric CSS-style weight scale to the named
// buckets used in font file names.
var weightBuckets = []struct {
	Weight int
	Name   string
}{
	{100, "Thin"},
	{200, "ExtraLight"},
	{300, "Light"},
	{400, "Regular"},
	{500, "Medium"},
	{600, "SemiBold"},
	{700, "Bold"},
	{800, "ExtraBold"},
	{900, "Black"},
}

// nearestWeightName picks the named bucket with the smallest absolute
// distance to the requested weight. Ties resolve to the lighter bucket.
func nearestWeightName(weight int) string {
	best := weightBuckets[0]
	bestDist := abs(weight - best.Weight)
	for _, b := range weightBuckets[1:] {
		if d := abs(weight - b.Weight); d < bestDist {
			best, bestDist = b, d
		}
	}
	return best.Name
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// FontResolver locates a usable font file for a family/weight pair. The
// stat function is injectable so tests can substitute a fake catalog;
// resolution never fails, falling back to a generic family name.
type FontResolver struct {
	Dir      string
	Fallback string
	Stat     func(path string) bool
}

// NewFontResolver probes real files under dir, typically a Google Fonts
// style layout: <dir>/<Family>/[static/]<Family>-<Weight>.ttf.
func NewFontResolver(dir string) *FontResolver {
	return &FontResolver{
		Dir:      dir,
		Fallback: FallbackFontFamily,
		Stat: func(path string) bool {
			st, err := os.Stat(path)
			return err == nil && !st.IsDir()
		},
	}
}

// Resolve returns a usable font for family and weight. The probe order
// is: weight-specific file in the static subfolder, weight-specific file
// in the family folder, Regular in static, Regular in the family folder,
// then the generic fallback family.
func (r *FontResolver) Resolve(family string, weight int) FontSpec {
	fallback := r.Fallback
	if fallback == "" {
		fallback = FallbackFontFamily
	}
	if strings.TrimSpace(family) == "" {
		return FontSpec{Family: fallback}
	}

	folder := strings.ReplaceAll(family, " ", "")
	weightName := nearestWeightName(weight)

	candidates := []string{
		filepath.Join(r.Dir, folder, "static", fmt.Sprintf("%s-%s.ttf", folder, weightName)),
		filepath.Join(r.Dir, folder, fmt.Sprintf("%s-%s.ttf", folder, weightName)),
		filepath.Join(r.Dir, folder, "static", fmt.Sprintf("%s-Regular.ttf", folder)),
		filepath.Join(r.Dir, folder, fmt.Sprintf("%s-Regular.ttf", folder)),
	}
	for _, c := range candidates {
		if r.Stat != nil && r.Stat(c) {
			return FontSpec{File: c}
		}
	}
	return FontSpec{Family: fallback}
}
