// cmd/query.go - Point classification command
package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hydromask/internal/config"
	"hydromask/internal/dataset"
	"hydromask/internal/query"
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [lon,lat ...]",
	Short: "Classify geographic points against the configured rasters",
	Long: `Classify a batch of geographic points as water or land.

Points are given either as positional "lon,lat" arguments or as lines of a
CSV file selected with --input ("-" reads standard input). Results are
written as "lon,lat,water" CSV lines, or as a JSON array with --format json.

Examples:
  # Classify two points
  hydromask query --sources af_msk_3s.tif 12.5,-5.25 3.0,40.0

  # Classify a CSV file of points using all cores
  hydromask query --sources af_msk_3s.tif --input points.csv --output mask.csv

  # Emit raw classifications and validity instead of the water mask
  hydromask query --sources af_msk_3s.tif --classes 12.5,-5.25`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringP("input", "i", "", "CSV file with lon,lat lines (\"-\" for stdin)")
	queryCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	queryCmd.Flags().StringP("format", "f", "csv", "output format (csv, json)")
	queryCmd.Flags().Bool("classes", false, "emit raw classification and validity instead of the water mask")
}

func runQuery(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	rawClasses, _ := cmd.Flags().GetBool("classes")

	if format != "csv" && format != "json" {
		return fmt.Errorf("invalid format %q, must be csv or json", format)
	}

	xs, ys, err := collectPoints(args, inputPath)
	if err != nil {
		return err
	}
	if len(xs) == 0 {
		return fmt.Errorf("no query points given; pass lon,lat arguments or --input")
	}

	// Open the dataset (metadata only; tiles load lazily during the query)
	ds, err := dataset.New(cfg.Dataset.Sources, cfg.ToOptions())
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer ds.Close()

	if viper.GetBool("logging.verbose") {
		fmt.Fprintf(os.Stderr, "Classifying %d points across %d sources\n", len(xs), len(ds.Sources()))
	}

	start := time.Now()
	result, err := ds.Classify(xs, ys, cfg.Query.Threads)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if viper.GetBool("logging.verbose") {
		fmt.Fprintf(os.Stderr, "Classified %d points in %s (%d cached tiles, %d point errors)\n",
			len(xs), time.Since(start), ds.CachedTiles(), len(result.Errors))
	}

	for _, pe := range result.Errors {
		fmt.Fprintf(os.Stderr, "point %d (%g, %g): %v\n", pe.Index, xs[pe.Index], ys[pe.Index], pe.Err)
	}

	out, closeOut, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeOut()

	if format == "json" {
		return writeJSONResult(out, xs, ys, result, rawClasses)
	}
	return writeCSVResult(out, xs, ys, result, rawClasses)
}

// collectPoints gathers query coordinates from positional args and the
// optional input file.
func collectPoints(args []string, inputPath string) ([]float64, []float64, error) {
	var xs, ys []float64

	for _, arg := range args {
		x, y, err := parsePoint(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid point argument %q: %w", arg, err)
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}

	if inputPath == "" {
		return xs, ys, nil
	}

	var reader io.Reader
	if inputPath == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(inputPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		reader = file
	}

	scanner := bufio.NewScanner(reader)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		x, y, err := parsePoint(text)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid point on line %d: %w", line, err)
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}

	return xs, ys, nil
}

// parsePoint parses a "lon,lat" pair
func parsePoint(text string) (float64, float64, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lon,lat")
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude: %w", err)
	}
	return x, y, nil
}

// openOutput returns a writer for path, defaulting to stdout
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, func() { file.Close() }, nil
}

// writeCSVResult writes one line per point
func writeCSVResult(out io.Writer, xs, ys []float64, result *query.Result, rawClasses bool) error {
	w := bufio.NewWriter(out)
	for i := range xs {
		var err error
		if rawClasses {
			_, err = fmt.Fprintf(w, "%g,%g,%d,%t\n", xs[i], ys[i], result.Classes[i], result.Valid[i])
		} else {
			water := result.Valid[i] && result.Classes[i] == dataset.ClassWater
			_, err = fmt.Fprintf(w, "%g,%g,%t\n", xs[i], ys[i], water)
		}
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return w.Flush()
}

// pointRecord is the JSON output shape for one point
type pointRecord struct {
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
	Water *bool   `json:"water,omitempty"`
	Class *uint8  `json:"class,omitempty"`
	Valid *bool   `json:"valid,omitempty"`
}

// writeJSONResult writes the whole batch as a JSON array
func writeJSONResult(out io.Writer, xs, ys []float64, result *query.Result, rawClasses bool) error {
	records := make([]pointRecord, len(xs))
	for i := range xs {
		records[i] = pointRecord{Lon: xs[i], Lat: ys[i]}
		if rawClasses {
			class, valid := result.Classes[i], result.Valid[i]
			records[i].Class = &class
			records[i].Valid = &valid
		} else {
			water := result.Valid[i] && result.Classes[i] == dataset.ClassWater
			records[i].Water = &water
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
