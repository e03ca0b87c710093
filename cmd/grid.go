// cmd/grid.go - Water mask grid rendering command
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fogleman/gg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hydromask/internal/config"
	"hydromask/internal/dataset"
)

// gridCmd represents the grid command
var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Render the water mask over a bounding box to a PNG image",
	Long: `Sample the water mask on a regular grid and render it as a PNG image.

The bounding box is sampled at cell centers with the given step, one image
pixel per cell. Water cells are drawn blue, land cells beige, and cells with
no data (outside every source, or nodata pixels) light gray.

Examples:
  # Render Africa at 0.1 degrees per pixel
  hydromask grid --sources af_msk_3s.tif --bbox=-20,-35,55,38 --step 0.1 --output africa.png

  # Quick global preview
  hydromask grid --sources hyd_glob_msk_15s.tif --step 0.5 --output world.png`,
	RunE: runGrid,
}

func init() {
	rootCmd.AddCommand(gridCmd)

	gridCmd.Flags().Float64Slice("bbox", []float64{-180, -90, 180, 90}, "bounding box as minLon,minLat,maxLon,maxLat")
	gridCmd.Flags().Float64("step", 0.25, "grid step in query CRS units")
	gridCmd.Flags().StringP("output", "o", "mask.png", "output PNG path")
}

func runGrid(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bbox, _ := cmd.Flags().GetFloat64Slice("bbox")
	step, _ := cmd.Flags().GetFloat64("step")
	outputPath, _ := cmd.Flags().GetString("output")

	if len(bbox) != 4 {
		return fmt.Errorf("bbox must have exactly four values, got %d", len(bbox))
	}
	minX, minY, maxX, maxY := bbox[0], bbox[1], bbox[2], bbox[3]
	if minX >= maxX || minY >= maxY {
		return fmt.Errorf("bbox must satisfy minLon < maxLon and minLat < maxLat")
	}
	if step <= 0 {
		return fmt.Errorf("step must be positive")
	}

	cols := int((maxX - minX) / step)
	rows := int((maxY - minY) / step)
	if cols < 1 || rows < 1 {
		return fmt.Errorf("bbox is smaller than one grid step")
	}

	ds, err := dataset.New(cfg.Dataset.Sources, cfg.ToOptions())
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer ds.Close()

	// Sample cell centers row by row, north to south so image row 0 is the
	// northernmost row.
	xs := make([]float64, rows*cols)
	ys := make([]float64, rows*cols)
	for row := 0; row < rows; row++ {
		y := maxY - (float64(row)+0.5)*step
		for col := 0; col < cols; col++ {
			i := row*cols + col
			xs[i] = minX + (float64(col)+0.5)*step
			ys[i] = y
		}
	}

	if viper.GetBool("logging.verbose") {
		fmt.Fprintf(os.Stderr, "Sampling %dx%d grid (%d points)\n", cols, rows, len(xs))
	}

	start := time.Now()
	result, err := ds.Classify(xs, ys, cfg.Query.Threads)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if viper.GetBool("logging.verbose") {
		fmt.Fprintf(os.Stderr, "Sampled %d points in %s (%d cached tiles)\n",
			len(xs), time.Since(start), ds.CachedTiles())
	}

	dc := gg.NewContext(cols, rows)
	dc.SetRGB(0.85, 0.85, 0.85) // no data
	dc.Clear()
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			i := row*cols + col
			if !result.Valid[i] {
				continue
			}
			if result.Classes[i] == dataset.ClassWater {
				dc.SetRGB(0.25, 0.45, 0.8) // water
			} else {
				dc.SetRGB(0.93, 0.89, 0.78) // land
			}
			dc.SetPixel(col, row)
		}
	}

	if err := dc.SavePNG(outputPath); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	if viper.GetBool("logging.verbose") {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", outputPath)
	}
	return nil
}
