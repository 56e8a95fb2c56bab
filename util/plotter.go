package util

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"overlay-server/models"
)

// PlotLoadHistory renders an HTML geo chart of the overlay loads a session
// issued: one point per load centre and the corners of its bounding box.
func PlotLoadHistory(w io.Writer, records []models.LoadRecord) error {
	centers := make([]opts.GeoData, 0, len(records))
	corners := make([]opts.GeoData, 0, 4*len(records))
	for _, r := range records {
		bb := r.BoundingBox
		centers = append(centers, opts.GeoData{Name: r.Tag, Value: []float64{bb.Lng, bb.Lat}})
		corners = append(corners,
			opts.GeoData{Name: r.Tag + " SW", Value: []float64{bb.LngMin, bb.LatMin}},
			opts.GeoData{Name: r.Tag + " NW", Value: []float64{bb.LngMin, bb.LatMax}},
			opts.GeoData{Name: r.Tag + " NE", Value: []float64{bb.LngMax, bb.LatMax}},
			opts.GeoData{Name: r.Tag + " SE", Value: []float64{bb.LngMax, bb.LatMin}},
		)
	}

	geo := charts.NewGeo()
	geo.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Overlay Load History",
			Width:     "800px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Overlay loads",
			Subtitle: fmt.Sprintf("%d loads issued", len(records)),
		}),
		charts.WithGeoComponentOpts(opts.GeoComponent{
			Map:    "world",
			Silent: opts.Bool(true),
		}),
	)

	geo.AddSeries("Loads", types.ChartScatter, centers,
		charts.WithLabelOpts(opts.Label{
			Show:      opts.Bool(true),
			Formatter: "{b}",
		}),
	)
	geo.AddSeries("Bounds", types.ChartScatter, corners)

	if err := geo.Render(w); err != nil {
		return fmt.Errorf("failed to render load history: %w", err)
	}
	return nil
}
