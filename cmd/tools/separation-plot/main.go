// Separation-plot draws the predicted separation between two aircraft at a
// chosen moment of a recorded session: horizontal distance against prediction
// offset, with the separation threshold marked. Useful when tuning thresholds
// against recorded incidents.
package main

import (
	"flag"
	"image/color"
	"log"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/airfield-data/surfacewatch/internal/adsb"
	"github.com/airfield-data/surfacewatch/internal/config"
	"github.com/airfield-data/surfacewatch/internal/geo"
	"github.com/airfield-data/surfacewatch/internal/track"
)

var (
	csvDir     = flag.String("csv", "csvs", "Directory of flight-history CSV files")
	first      = flag.String("a", "", "First aircraft callsign")
	second     = flag.String("b", "", "Second aircraft callsign")
	atUnix     = flag.Int64("at", 0, "Unix timestamp to predict from")
	configFile = flag.String("config", "", "Tuning config JSON file (optional)")
	outFile    = flag.String("out", "separation.png", "Output PNG file")
)

func main() {
	flag.Parse()
	if *first == "" || *second == "" || *atUnix == 0 {
		log.Fatal("-a, -b and -at are required")
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	reports, err := adsb.LoadHistoryDir(*csvDir)
	if err != nil {
		log.Fatalf("Failed to load history: %v", err)
	}

	estimator := track.NewEstimator(track.Config{
		Smoothing:     cfg.GetSmoothingFactor(),
		HistoryLength: cfg.GetHistoryLength(),
		MaxHorizon:    cfg.GetPredictionHorizon(),
	})

	at := time.Unix(*atUnix, 0).UTC()
	for _, r := range reports {
		if r.Time.After(at) {
			break
		}
		if r.Aircraft != *first && r.Aircraft != *second {
			continue
		}
		if _, err := estimator.Update(r); err != nil {
			log.Printf("dropping report: %v", err)
		}
	}

	horizon := cfg.GetPredictionHorizon()
	ta, err := estimator.Predict(*first, horizon)
	if err != nil {
		log.Fatalf("Predicting %s: %v", *first, err)
	}
	tb, err := estimator.Predict(*second, horizon)
	if err != nil {
		log.Fatalf("Predicting %s: %v", *second, err)
	}

	step := cfg.GetSamplingStep()
	sa, sb := ta.Sampler(step), tb.Sampler(step)
	var pts plotter.XYs
	for {
		pa, okA := sa.Next()
		pb, okB := sb.Next()
		if !okA || !okB {
			break
		}
		pts = append(pts, plotter.XY{
			X: pa.Offset.Seconds(),
			Y: geo.DistanceNM(pa.Position, pb.Position),
		})
	}

	p := plot.New()
	p.Title.Text = *first + " / " + *second + " predicted separation"
	p.X.Label.Text = "prediction offset (s)"
	p.Y.Label.Text = "horizontal separation (NM)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		log.Fatalf("Failed to build line: %v", err)
	}
	line.Color = color.RGBA{B: 200, A: 255}
	p.Add(line)
	p.Legend.Add("separation", line)

	threshold := cfg.GetHorizontalSeparationNM()
	thresholdLine, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: threshold},
		{X: horizon.Seconds(), Y: threshold},
	})
	if err != nil {
		log.Fatalf("Failed to build threshold line: %v", err)
	}
	thresholdLine.Color = color.RGBA{R: 200, A: 255}
	thresholdLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(thresholdLine)
	p.Legend.Add("threshold", thresholdLine)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, *outFile); err != nil {
		log.Fatalf("Failed to save plot: %v", err)
	}
	log.Printf("Wrote %s (%d samples)", *outFile, len(pts))
}
