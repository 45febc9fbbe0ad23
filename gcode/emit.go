package gcode

import (
	"fmt"
	"math"
	"strings"

	"github.com/lotuspc25/XYZA/toolpath"
)

// unset marks an axis word as absent from a move.
var unset = math.NaN()

func has(v float64) bool { return !math.IsNaN(v) }

type pose struct {
	x, y, z float64
	a       float64
	hasA    bool
}

type emitter struct {
	cfg      Config
	includeA bool

	lines []string
	stats Stats

	lastMotion string
	lastFeed   float64
	hasFeed    bool

	cur    pose
	hasCur bool

	// last *emitted* A, for modal suppression; distinct from cur.a, which
	// follows the toolpath whether or not the word was written.
	lastA    float64
	hasLastA bool

	prevHeading    float64
	hasPrevHeading bool

	hasBounds bool
}

// FromSegments walks line/arc segments and emits a complete program with
// header and footer bracketing. An empty segment list still produces the full
// bracket with zero cutting moves. arcFallback is carried into the stats so
// the caller sees the arc fitter's rejection count alongside the emission
// counters.
func FromSegments(segs []toolpath.Segment, cfg Config, includeA bool, arcFallback int) (string, Stats) {
	e := &emitter{cfg: cfg, includeA: includeA}
	e.stats.ArcFallback = arcFallback

	e.header()

	for _, seg := range segs {
		e.segment(seg)
	}

	e.footer()

	e.stats.LineCount = len(e.lines)
	return strings.Join(e.lines, "\n"), e.stats
}

// FromPoints is the point-list entry: non-finite points are dropped with a
// skip counter, the remainder is optionally arc-fitted, and the result is
// emitted. With arc fitting off every pair of neighbors becomes a line
// segment.
func FromPoints(points []toolpath.Point, cfg Config, arcFit bool, fit toolpath.FitParams) (string, Stats) {
	cleaned := make([]toolpath.Point, 0, len(points))
	skipped := 0
	for _, p := range points {
		if !p.Finite() {
			skipped++
			continue
		}
		cleaned = append(cleaned, p)
	}

	if len(cleaned) == 0 {
		return "", Stats{Skipped: skipped}
	}

	includeA := false
	for _, p := range cleaned {
		if p.HasA {
			includeA = true
			break
		}
	}

	var segs []toolpath.Segment
	fallback := 0
	if arcFit {
		fitted, fstats := toolpath.FitSegments(cleaned, fit)
		segs = fitted
		fallback = fstats.Fallback.Total()
	} else {
		for i := 0; i < len(cleaned)-1; i++ {
			segs = append(segs, toolpath.LineSeg{P0: cleaned[i], P1: cleaned[i+1]})
		}
	}

	text, stats := FromSegments(segs, cfg, includeA, fallback)
	stats.ArcMode = arcFit
	stats.PointCount = len(cleaned)
	stats.Skipped = skipped
	return text, stats
}

func (e *emitter) header() {
	cfg := e.cfg

	e.addRaw("(Generated by XYZA)", "")
	e.addRaw("G21", "")
	e.addRaw("G90", "")
	e.addRaw("G17", "")
	e.addRaw("G94", "")
	e.addRaw("G40", "")
	e.addRaw("G49", "")

	if cfg.Spindle.Enabled && cfg.Spindle.OnCode != "" {
		if cfg.Spindle.UseRPM {
			e.addRaw(fmt.Sprintf("%s S%.0f", cfg.Spindle.OnCode, cfg.Spindle.RPM), "")
		} else {
			e.addRaw(cfg.Spindle.OnCode, "")
		}
	}

	if cfg.Park.Enabled {
		e.park()
	}

	e.addRaw("G54", "")
	e.emitMove("G0", unset, unset, cfg.SafeZMM, unset, unset)
}

func (e *emitter) footer() {
	cfg := e.cfg

	e.emitMove("G0", unset, unset, cfg.SafeZMM, unset, unset)
	if cfg.Park.Enabled {
		e.park()
	}
	if cfg.Spindle.EmitOff && cfg.Spindle.Enabled && cfg.Spindle.OffCode != "" {
		e.addRaw(cfg.Spindle.OffCode, "")
	}
	e.addRaw("M30", "")
}

func (e *emitter) park() {
	cfg := e.cfg
	e.addRaw(fmt.Sprintf("G53 G0 Z%s", axis(cfg.Park.Z)), "G0")
	e.addRaw(fmt.Sprintf("G53 G0 X%s Y%s", axis(cfg.Park.X), axis(cfg.Park.Y)), "G0")
	if cfg.Park.HasA {
		e.addRaw(fmt.Sprintf("G53 G0 A%s", axis(cfg.Park.A)), "G0")
	}
}

func (e *emitter) segment(seg toolpath.Segment) {
	p0 := seg.Start()
	e.ensureAtStart(p0)

	switch s := seg.(type) {
	case toolpath.LineSeg:
		e.lineSegment(s)
	case toolpath.ArcSeg:
		e.arcSegment(s)
	}
}

func (e *emitter) lineSegment(s toolpath.LineSeg) {
	p1 := s.P1
	a1 := aOf(p1)
	heading, hasHeading := segmentHeading(s.P0, p1)

	retracted := e.maybeTurnRetract(a1, p1.Z, p1.X, p1.Y, heading, hasHeading)
	if !retracted {
		e.maybeALift(a1, p1.Z, p1.X, p1.Y)
		aw := unset
		if e.shouldEmitA(a1) {
			aw = a1
		}
		e.emitMove("G1", p1.X, p1.Y, p1.Z, aw, e.cfg.FeedXY)
		e.cur = poseOf(p1)
		e.hasCur = true
	}

	e.extendBounds(s.P0)
	e.extendBounds(p1)
	if hasHeading {
		e.prevHeading = heading
		e.hasPrevHeading = true
	}
}

func (e *emitter) arcSegment(s toolpath.ArcSeg) {
	p1 := s.P1
	a1 := aOf(p1)
	heading, hasHeading := segmentHeading(s.P0, p1)

	// turn-retract applies to line segments only; a retract to the arc's
	// endpoint would leave start == end and G2/G3 would cut a full circle
	e.maybeALift(a1, p1.Z, p1.X, p1.Y)

	iOff := s.CX - e.cur.x
	jOff := s.CY - e.cur.y

	cmd := "G3"
	if s.CW {
		cmd = "G2"
	}
	modeChanged := cmd != e.lastMotion

	parts := []string{cmd, "X" + axis(p1.X), "Y" + axis(p1.Y)}
	if s.ZInterp && math.Abs(s.Z1-e.cur.z) > e.cfg.ArcZEpsMM {
		parts = append(parts, "Z"+axis(s.Z1))
	}
	parts = append(parts, "I"+axis(iOff), "J"+axis(jOff))
	if e.shouldEmitA(a1) {
		parts = append(parts, "A"+axis(a1))
	}
	if modeChanged || !e.hasFeed || math.Abs(e.cfg.FeedXY-e.lastFeed) > 1e-9 {
		parts = append(parts, fmt.Sprintf("F%.2f", e.cfg.FeedXY))
		e.lastFeed = e.cfg.FeedXY
		e.hasFeed = true
	}

	e.addRaw(strings.Join(parts, " "), cmd)
	e.lastMotion = cmd
	e.stats.ArcOK++

	e.cur = poseOf(p1)
	e.hasCur = true
	e.extendBounds(s.P0)
	e.extendBounds(p1)
	if hasHeading {
		e.prevHeading = heading
		e.hasPrevHeading = true
	}
}

// ensureAtStart moves the machine to a segment's start point. The very first
// segment and any start beyond the jump threshold are reached by a safe
// reposition: rapid lift, rapid XY, linear plunge.
func (e *emitter) ensureAtStart(p toolpath.Point) bool {
	sa := aOf(p)

	if !e.hasCur {
		e.emitMove("G0", p.X, p.Y, unset, unset, unset)
		e.plunge(p.Z, sa)
		e.cur = poseOf(p)
		e.hasCur = true
		return true
	}

	gap := math.Hypot(p.X-e.cur.x, p.Y-e.cur.y)
	if gap > e.cfg.jumpThreshold() {
		e.emitMove("G0", unset, unset, e.cfg.SafeZMM, unset, unset)
		e.emitMove("G0", p.X, p.Y, unset, unset, unset)
		e.plunge(p.Z, sa)
		e.cur = poseOf(p)
		e.hasCur = true
		return true
	}
	return false
}

func (e *emitter) plunge(z, a float64) {
	aw := unset
	if e.shouldEmitA(a) {
		aw = a
	}
	e.emitMove("G1", unset, unset, z, aw, e.cfg.FeedZ)
}

// cutActive reports whether the target height is below safe Z, i.e. the
// blade will be inside material at the end of the move.
func (e *emitter) cutActive(targetZ float64) bool {
	if math.IsInf(e.cfg.SafeZMM, 0) || math.IsNaN(e.cfg.SafeZMM) {
		return false
	}
	return targetZ < e.cfg.SafeZMM-1e-6
}

// maybeTurnRetract lifts out of the material before a sharp in-plane
// direction change. A blade embedded in material cannot pivot through a hard
// corner without tearing it, so the corner is taken in the air: rapid to safe
// Z, optional A repositioning, rapid to the next start, plunge.
func (e *emitter) maybeTurnRetract(targetA, targetZ, tx, ty, heading float64, hasHeading bool) bool {
	cfg := e.cfg
	if !cfg.TurnRetract.Enabled || !e.hasPrevHeading || !hasHeading {
		return false
	}
	if !e.cutActive(targetZ) {
		return false
	}
	if math.Abs(toolpath.AngleDelta(heading, e.prevHeading)) < cfg.TurnRetract.ThresholdDeg {
		return false
	}

	e.emitMove("G0", unset, unset, cfg.SafeZMM, unset, unset)
	newA, newHasA := e.cur.a, e.cur.hasA
	if has(targetA) && e.shouldEmitA(targetA) {
		e.emitMove("G0", unset, unset, unset, targetA, unset)
		newA, newHasA = targetA, true
	}
	e.emitMove("G0", tx, ty, unset, unset, unset)
	e.emitMove("G1", unset, unset, targetZ, unset, cfg.FeedZ)

	e.cur = pose{x: tx, y: ty, z: targetZ, a: newA, hasA: newHasA}
	e.hasCur = true
	e.stats.TurnRetracts++
	return true
}

// maybeALift guards large blade rotations: when the A change is critical, or
// sharp with nearly zero lateral travel, the blade is lifted, rotated in the
// air, and plunged back. The invariant this preserves: the blade never
// rotates sharply while submerged and stationary in XY.
func (e *emitter) maybeALift(targetA, targetZ, tx, ty float64) bool {
	cfg := e.cfg
	if !e.includeA || !e.hasCur || !has(targetA) || !e.cur.hasA {
		return false
	}

	da := math.Abs(targetA - e.cur.a)
	dxy := math.Hypot(tx-e.cur.x, ty-e.cur.y)
	if da > e.stats.MaxADelta {
		e.stats.MaxADelta = da
		e.stats.MaxADeltaXY = dxy
	}

	reason := ""
	switch {
	case da >= cfg.ALift.CriticalDeg:
		reason = "A_CRITICAL"
	case da >= cfg.ALift.SharpDeg && dxy <= cfg.ALift.XYSmallMM:
		reason = "A_SHARP_XY_SMALL"
	default:
		return false
	}

	e.stats.ALiftDetected++
	if !cfg.ALift.Enabled {
		return false
	}
	if math.IsNaN(targetZ) || math.IsInf(targetZ, 0) {
		return false
	}

	e.addRaw(fmt.Sprintf("(A_LIFT reason=%s dA=%.3f dXY=%.3f)", reason, da, dxy), "")
	e.emitMove("G0", unset, unset, cfg.aLiftSafeZ(), unset, unset)
	newA := e.cur.a
	applied := false
	if e.shouldEmitA(targetA) {
		e.emitMove("G1", unset, unset, unset, targetA, cfg.feedA())
		newA = targetA
		applied = true
	}
	e.emitMove("G1", unset, unset, targetZ, unset, cfg.FeedZ)
	e.cur = pose{x: e.cur.x, y: e.cur.y, z: targetZ, a: newA, hasA: true}
	if applied {
		e.stats.ALiftApplied++
	}
	return applied
}

// shouldEmitA applies A-word modal suppression: the word is written only when
// the target differs from the last *emitted* A by at least the minimum step.
// Calling it commits the emission, so call it once per candidate word.
func (e *emitter) shouldEmitA(target float64) bool {
	if !e.includeA || !has(target) {
		return false
	}
	if !e.hasLastA {
		e.lastA = target
		e.hasLastA = true
		return true
	}
	if math.Abs(target-e.lastA) >= e.cfg.AMinStepDeg {
		e.lastA = target
		return true
	}
	return false
}

func (e *emitter) emitMove(motion string, x, y, z, a, feed float64) {
	base := motion
	if base == "" {
		base = e.lastMotion
	}
	if base == "" {
		base = "G1"
	}

	modeChanged := base != e.lastMotion
	var parts []string
	if modeChanged {
		parts = append(parts, base)
		e.lastMotion = base
	}
	if has(x) {
		parts = append(parts, "X"+axis(x))
	}
	if has(y) {
		parts = append(parts, "Y"+axis(y))
	}
	if has(z) {
		parts = append(parts, "Z"+axis(z))
	}
	if has(a) {
		parts = append(parts, "A"+axis(a))
	}
	if base != "G0" && has(feed) {
		if modeChanged || !e.hasFeed || math.Abs(feed-e.lastFeed) > 1e-9 {
			parts = append(parts, fmt.Sprintf("F%.2f", feed))
			e.lastFeed = feed
			e.hasFeed = true
		}
	}

	e.addRaw(strings.Join(parts, " "), base)
}

func (e *emitter) addRaw(line, moveCode string) {
	e.lines = append(e.lines, line)
	switch moveCode {
	case "G0":
		e.stats.MovesG0++
	case "G1":
		e.stats.MovesG1++
	case "G2":
		e.stats.MovesG2++
	case "G3":
		e.stats.MovesG3++
	}
}

func (e *emitter) extendBounds(p toolpath.Point) {
	if !e.hasBounds {
		e.stats.MinX, e.stats.MaxX = p.X, p.X
		e.stats.MinY, e.stats.MaxY = p.Y, p.Y
		e.stats.MinZ, e.stats.MaxZ = p.Z, p.Z
		e.hasBounds = true
	} else {
		e.stats.MinX = math.Min(e.stats.MinX, p.X)
		e.stats.MaxX = math.Max(e.stats.MaxX, p.X)
		e.stats.MinY = math.Min(e.stats.MinY, p.Y)
		e.stats.MaxY = math.Max(e.stats.MaxY, p.Y)
		e.stats.MinZ = math.Min(e.stats.MinZ, p.Z)
		e.stats.MaxZ = math.Max(e.stats.MaxZ, p.Z)
	}

	if e.includeA && p.HasA {
		if !e.stats.HasA {
			e.stats.MinA, e.stats.MaxA = p.A, p.A
			e.stats.HasA = true
		} else {
			e.stats.MinA = math.Min(e.stats.MinA, p.A)
			e.stats.MaxA = math.Max(e.stats.MaxA, p.A)
		}
	}
}

func aOf(p toolpath.Point) float64 {
	if p.HasA {
		return p.A
	}
	return unset
}

func poseOf(p toolpath.Point) pose {
	return pose{x: p.X, y: p.Y, z: p.Z, a: p.A, hasA: p.HasA}
}

func segmentHeading(p0, p1 toolpath.Point) (float64, bool) {
	dx := p1.X - p0.X
	dy := p1.Y - p0.Y
	if math.Abs(dx) < 1e-9 && math.Abs(dy) < 1e-9 {
		return 0, false
	}
	return math.Atan2(dy, dx) * 180.0 / math.Pi, true
}

func axis(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
