// Alert-report renders an HTML timeline of a persisted alert stream using
// go-echarts: one scatter row per aircraft pair or aircraft, points placed at
// emission time and coloured by severity, plus a count summary per kind.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/airfield-data/surfacewatch/internal/alert"
	"github.com/airfield-data/surfacewatch/internal/db"
)

var (
	dbFile  = flag.String("db", "surfacewatch.db", "sqlite event store to report on")
	outFile = flag.String("out", "alert-report.html", "output HTML file")
)

// subject names the row an event is plotted on.
func subject(ev alert.Event) string {
	switch ev.Kind {
	case alert.KindConflict:
		return ev.Conflict.First + " / " + ev.Conflict.Second
	case alert.KindCompliance:
		return ev.Compliance.Aircraft
	}
	return "unknown"
}

func severityOf(ev alert.Event) string {
	if ev.Kind == alert.KindConflict {
		return string(ev.Conflict.Severity)
	}
	return string(ev.Compliance.Kind)
}

func timelineChart(events []alert.Event) *charts.Scatter {
	subjects := make(map[string]int)
	var order []string
	for _, ev := range events {
		s := subject(ev)
		if _, ok := subjects[s]; !ok {
			subjects[s] = len(order)
			order = append(order, s)
		}
	}

	// one series per severity/kind label so the legend doubles as a filter
	bySeries := make(map[string][]opts.ScatterData)
	for _, ev := range events {
		label := severityOf(ev)
		bySeries[label] = append(bySeries[label], opts.ScatterData{
			Value: []interface{}{ev.Time.Format("15:04:05"), subjects[subject(ev)], ev.Seq},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Surface Alert Timeline", Width: "1200px", Height: "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Alert timeline",
			Subtitle: fmt.Sprintf("%d events, %d subjects", len(events), len(order)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time", Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "subject", Type: "value", Max: len(order)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	labels := make([]string, 0, len(bySeries))
	for label := range bySeries {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		scatter.AddSeries(label, bySeries[label])
	}
	return scatter
}

func countChart(counts map[string]int) *charts.Bar {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var data []opts.BarData
	for _, k := range kinds {
		data = append(data, opts.BarData{Value: counts[k]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Events by kind"}),
	)
	bar.SetXAxis(kinds).AddSeries("events", data)
	return bar
}

func main() {
	flag.Parse()
	ctx := context.Background()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	events, err := database.EventsSince(ctx, 0, 0)
	if err != nil {
		log.Fatalf("Failed to load events: %v", err)
	}
	if len(events) == 0 {
		log.Fatalf("No events in %s", *dbFile)
	}

	counts, err := database.CountByKind(ctx)
	if err != nil {
		log.Fatalf("Failed to count events: %v", err)
	}

	page := components.NewPage()
	page.AddCharts(timelineChart(events), countChart(counts))

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	log.Printf("Wrote %s (%d events)", *outFile, len(events))
}
