package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hschendel/stl"
	flag "github.com/spf13/pflag"

	"github.com/lotuspc25/XYZA/config"
	"github.com/lotuspc25/XYZA/mesh"
	"github.com/lotuspc25/XYZA/outline"
	"github.com/lotuspc25/XYZA/pipeline"
	"github.com/lotuspc25/XYZA/toolpath"
)

func main() {
	configPath := flag.String("config", "", "Read run configuration from a YAML file. Flags override the file.")
	output := flag.String("output", "", "Write G-code to this file instead of stdout.")

	zMode := flag.String("z-mode", "top", "Set the Z resolution mode: top, mid, bottom, top-cont, bottom-cont, score-cont, nearest3d, dual-cont.")
	sampleStep := flag.Float64("sample-step", 0.5, "Set the outline sampling step in mm.")
	offsets := flag.Float64Slice("offset", []float64{0}, "Set the contour offset in mm. Repeat the flag to cut several offsets in one program.")
	smoothPasses := flag.Int("smooth-passes", 1, "Set the number of outline smoothing passes.")

	cornerMode := flag.String("corner-mode", "blend", "Set the corner handling for the blade angle: blend or snap.")
	aOffset := flag.Float64("a-offset", 0, "Set the fixed blade mounting offset in degrees.")
	aReverse := flag.Bool("a-reverse", false, "Reverse the blade direction (adds 180 degrees).")
	aMaxStep := flag.Float64("a-max-step", 5, "Set the maximum A change per point in degrees.")

	arcFit := flag.Bool("arc-fit", true, "Compress near-circular runs into G2/G3 arcs.")
	arcDev := flag.Float64("arc-deviation", 0.03, "Set the maximum radial deviation for arc fitting in mm.")

	safeZ := flag.Float64("safe-z", 5, "Set the Z clearance above the part for rapid moves in mm.")
	xyFeed := flag.Float64("xy-feed-rate", 2000, "Set the cutting feed rate in the X/Y plane in mm/min.")
	zFeed := flag.Float64("z-feed-rate", 500, "Set the plunge feed rate in mm/min.")
	rpm := flag.Float64("speed", 0, "Set the spindle speed in RPM. 0 leaves the spindle off.")

	check := flag.Bool("check", false, "Run the toolpath QA checks and print issues to stderr.")
	quiet := flag.Bool("quiet", false, "Suppress output of dimensions, statistics, and warnings.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: xyza [options] STLFILE\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	// flags override the file only when actually given
	override := map[string]func(){
		"z-mode":        func() { cfg.Heights.ZMode = *zMode },
		"sample-step":   func() { cfg.SampleStepMM = *sampleStep },
		"smooth-passes": func() { cfg.Outline.SmoothPasses = *smoothPasses },
		"corner-mode":   func() { cfg.Angles.CornerMode = *cornerMode },
		"a-offset":      func() { cfg.Angles.OffsetDeg = *aOffset },
		"a-reverse":     func() { cfg.Angles.Reverse = *aReverse },
		"a-max-step":    func() { cfg.Angles.MaxStepDeg = *aMaxStep },
		"arc-fit":       func() { cfg.ArcFit.Enabled = *arcFit },
		"arc-deviation": func() { cfg.ArcFit.MaxDevMM = *arcDev },
		"safe-z":        func() { cfg.Motion.SafeZMM = *safeZ },
		"xy-feed-rate":  func() { cfg.Motion.FeedXY = *xyFeed },
		"z-feed-rate":   func() { cfg.Motion.FeedZ = *zFeed },
		"speed": func() {
			cfg.Motion.Spindle = *rpm > 0
			cfg.Motion.SpindleRPM = *rpm
		},
	}
	flag.Visit(func(f *flag.Flag) {
		if apply, ok := override[f.Name]; ok {
			apply()
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: xyza [options] STLFILE\n")
		os.Exit(1)
	}
	stlPath := args[0]

	stlSolid, err := stl.ReadFile(stlPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	solid, err := mesh.FromSTL(stlSolid, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if !*quiet {
		min, max := solid.Bounds()
		fmt.Fprintf(os.Stderr, "%s: %d triangles, %.1f x %.1f x %.1f mm\n",
			stlPath, len(solid.Triangles),
			max.X-min.X, max.Y-min.Y, max.Z-min.Z)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caster := mesh.NewIntersector(solid)

	outlines := make([][]toolpath.XY, 0, len(*offsets))
	for _, off := range *offsets {
		contour, err := outline.FromSolid(solid, outline.Params{
			OffsetMM:     cfg.Outline.OffsetMM + off,
			SmoothPasses: cfg.Outline.SmoothPasses,
			SampleStepMM: cfg.SampleStepMM,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		outlines = append(outlines, contour)
	}

	results, err := pipeline.GenerateMany(ctx, caster, outlines, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var programs []string
	for i, res := range results {
		programs = append(programs, res.Gcode)

		if !*quiet {
			fmt.Fprintf(os.Stderr, "offset %+.2f: %d points, %d segments (%d arcs), %s, %s\n",
				(*offsets)[i], res.Meta.OutputPoints, res.Meta.Segments,
				res.FitStats.Arcs, res.Meta.Elapsed.Round(time.Millisecond), res.Warnings.Summary())
			if len(res.Warnings) > 0 {
				fmt.Fprintln(os.Stderr, res.Warnings.MultilineText())
			}
		}

		if *check {
			issues := toolpath.Analyze(res.Points, toolpath.DefaultThresholds())
			for _, issue := range issues {
				fmt.Fprintf(os.Stderr, "check: point %d: %s: %s\n",
					issue.Index, issue.Type, issue.Message)
			}
			if !*quiet && len(issues) == 0 {
				fmt.Fprintf(os.Stderr, "check: no issues\n")
			}
		}
	}

	text := strings.Join(programs, "\n")
	if *output != "" {
		if err := os.WriteFile(*output, []byte(text+"\n"), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(text)
}
