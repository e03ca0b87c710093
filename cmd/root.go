// cmd/root.go - Root command implementation
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hydromask",
	Short: "Query water/land masks from tiled GeoTIFF rasters",
	Long: `Hydromask is a point-query engine over large, tiled raster datasets
describing terrain and hydrology masks, such as the HydroSHEDS water masks.
Rasters stay on disk; only the tiles actually touched by a query are read,
and recently used tiles are kept in a bounded in-memory cache shared across
query workers.

Sources are listed in priority order: when extents overlap, the first
covering source answers the query, so a fine-resolution regional mask can
be layered in front of a coarser global fallback.

Examples:
  # Classify individual points
  hydromask query --sources af_msk_3s.tif --sources hyd_glob_msk_15s.tif 12.5,-5.25 3.0,40.0

  # Classify points from a CSV file, eight workers
  hydromask query --sources af_msk_3s.tif --input points.csv --threads 8

  # Render a 0.25-degree global water mask to PNG
  hydromask grid --sources af_msk_3s.tif --step 0.25 --output mask.png

  # Show source metadata
  hydromask info --sources af_msk_3s.tif

  # Use configuration file
  hydromask query --config hydromask.yaml 12.5,-5.25`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hydromask.yaml)")

	// Dataset configuration flags
	rootCmd.PersistentFlags().StringSlice("sources", nil, "raster source paths in priority order")
	rootCmd.PersistentFlags().Int("epsg", 4326, "EPSG code of query coordinates")
	rootCmd.PersistentFlags().Int("tile-size", 256, "tile edge length in pixels")
	rootCmd.PersistentFlags().Int("cache-size", 4096, "maximum number of cached tiles")

	// Processing flags
	rootCmd.PersistentFlags().IntP("threads", "t", 0, "number of query workers (0 = all cores, 1 = sequential)")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output")

	// Bind flags to viper
	viper.BindPFlag("dataset.sources", rootCmd.PersistentFlags().Lookup("sources"))
	viper.BindPFlag("dataset.epsg", rootCmd.PersistentFlags().Lookup("epsg"))
	viper.BindPFlag("dataset.tile_size", rootCmd.PersistentFlags().Lookup("tile-size"))
	viper.BindPFlag("dataset.max_cache_size", rootCmd.PersistentFlags().Lookup("cache-size"))
	viper.BindPFlag("query.threads", rootCmd.PersistentFlags().Lookup("threads"))
	viper.BindPFlag("logging.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".hydromask" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".hydromask")
	}

	// Environment variables
	viper.SetEnvPrefix("HYDROMASK")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("logging.verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
