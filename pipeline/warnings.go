package pipeline

import (
	"fmt"
	"strings"
)

// Warning codes for degraded-but-usable conditions. Per-point anomalies never
// fail a run; they accumulate here for the caller to surface.
const (
	WarnNonFiniteDropped    = "NONFINITE_DROPPED"
	WarnRaycastMiss         = "RAYCAST_MISS"
	WarnContinuityFallback  = "CONTINUITY_FALLBACK"
	WarnArcFitFallback      = "ARC_FIT_FALLBACK"
	WarnGcodePointSkipped   = "GCODE_POINT_SKIPPED"
	WarnOutputPointsReduced = "OUTPUT_POINTS_REDUCED"
)

type WarningItem struct {
	Code    string
	Message string
	Context string
}

type Warnings []WarningItem

func (w *Warnings) add(code, context, format string, args ...interface{}) {
	*w = append(*w, WarningItem{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Context: context,
	})
}

// Summary is a one-line digest, e.g. "2 warnings: RAYCAST_MISS, ARC_FIT_FALLBACK".
func (w Warnings) Summary() string {
	if len(w) == 0 {
		return "no warnings"
	}
	var codes []string
	seen := map[string]bool{}
	for _, item := range w {
		if !seen[item.Code] {
			seen[item.Code] = true
			codes = append(codes, item.Code)
		}
	}
	return fmt.Sprintf("%d warnings: %s", len(w), strings.Join(codes, ", "))
}

// MultilineText renders one warning per line for log output.
func (w Warnings) MultilineText() string {
	var b strings.Builder
	for i, item := range w {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s", item.Code, item.Message)
		if item.Context != "" {
			fmt.Fprintf(&b, " (%s)", item.Context)
		}
	}
	return b.String()
}
