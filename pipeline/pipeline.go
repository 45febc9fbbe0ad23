// Package pipeline wires the full chain: outline points in, resolved heights,
// synthesized blade angles, resampling, arc fitting, and G-code out. It is
// the only package that knows the stage order; every stage stays
// independently usable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/lotuspc25/XYZA/config"
	"github.com/lotuspc25/XYZA/gcode"
	"github.com/lotuspc25/XYZA/toolpath"
)

// ErrEmptyOutline is the hard failure for runs with no usable input points.
var ErrEmptyOutline = errors.New("pipeline: no usable outline points")

type Meta struct {
	Elapsed      time.Duration
	InputPoints  int
	OutputPoints int
	Segments     int
}

// Result is everything one run produces. Stats are observability only;
// Warnings distinguish "degraded but usable" from failure.
type Result struct {
	Points   []toolpath.Point
	Gcode    string
	ZStats   toolpath.ResolveStats
	AStats   toolpath.AngleStats
	FitStats toolpath.FitStats
	GStats   gcode.Stats
	Warnings Warnings
	Meta     Meta
}

// Generate runs the whole chain for one outline. Hard failures are limited to
// empty input, invalid config, and cancellation; everything else degrades
// into warnings. Concurrent calls are safe as long as the caster is read-only.
func Generate(ctx context.Context, caster toolpath.Caster, outlineXY []toolpath.XY, cfg config.Config) (*Result, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pts := make([]toolpath.XY, 0, len(outlineXY))
	dropped := 0
	for _, p := range outlineXY {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			dropped++
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		return nil, ErrEmptyOutline
	}

	res := &Result{}
	if dropped > 0 {
		res.Warnings.add(WarnNonFiniteDropped, "outline",
			"%d non-finite outline points dropped", dropped)
	}

	zs, zStats, err := toolpath.ResolveHeights(ctx, caster, pts, cfg.ZMode(), cfg.ResolveParams())
	if err != nil {
		return nil, err
	}
	res.ZStats = zStats
	if zStats.Misses > 0 {
		res.Warnings.add(WarnRaycastMiss, "heights",
			"%d raycast misses resolved to the solid floor", zStats.Misses)
	}
	if zStats.Fallbacks > 0 {
		res.Warnings.add(WarnContinuityFallback, "heights",
			"%d continuity fallbacks beyond the gap threshold", zStats.Fallbacks)
	}

	angles, aStats := toolpath.SynthesizeAngles(pts, cfg.AngleParams())
	res.AStats = aStats

	assembled := toolpath.AssemblePoints(pts, zs, angles)
	points := toolpath.ResampleByStep(assembled, cfg.SampleStepMM)
	if len(points) < len(assembled) {
		res.Warnings.add(WarnOutputPointsReduced, "resample",
			"resampling reduced %d points to %d", len(assembled), len(points))
	}
	res.Points = points

	var segs []toolpath.Segment
	if cfg.ArcFit.Enabled {
		var fitStats toolpath.FitStats
		segs, fitStats = toolpath.FitSegments(points, cfg.FitParams())
		res.FitStats = fitStats
		if fb := fitStats.Fallback.Total(); fb > 0 {
			res.Warnings.add(WarnArcFitFallback, "arcfit",
				"%d arc candidates rejected (dev %d, len %d, geom %d)",
				fb, fitStats.Fallback.Dev, fitStats.Fallback.Len, fitStats.Fallback.Geom)
		}
	} else {
		for i := 0; i < len(points)-1; i++ {
			segs = append(segs, toolpath.LineSeg{P0: points[i], P1: points[i+1]})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	includeA := false
	for _, p := range points {
		if p.HasA {
			includeA = true
			break
		}
	}
	text, gStats := gcode.FromSegments(segs, cfg.GcodeConfig(), includeA, res.FitStats.Fallback.Total())
	gStats.ArcMode = cfg.ArcFit.Enabled
	gStats.PointCount = len(points)
	res.Gcode = text
	res.GStats = gStats
	if gStats.Skipped > 0 {
		res.Warnings.add(WarnGcodePointSkipped, "gcode",
			"%d points skipped by the emitter", gStats.Skipped)
	}

	res.Meta = Meta{
		Elapsed:      time.Since(start),
		InputPoints:  len(pts),
		OutputPoints: len(points),
		Segments:     len(segs),
	}
	return res, nil
}

// GenerateMany runs one Generate per outline on its own goroutine and returns
// results in input order. The first error cancels nothing already running but
// is reported after all runs settle.
func GenerateMany(ctx context.Context, caster toolpath.Caster, outlines [][]toolpath.XY, cfg config.Config) ([]*Result, error) {
	results := make([]*Result, len(outlines))
	errs := make([]error, len(outlines))

	var wg sync.WaitGroup
	for i, outline := range outlines {
		wg.Add(1)
		go func(i int, outline []toolpath.XY) {
			defer wg.Done()
			results[i], errs[i] = Generate(ctx, caster, outline, cfg)
		}(i, outline)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return results, fmt.Errorf("outline %d: %w", i, err)
		}
	}
	return results, nil
}
