package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"station-insights/internal/config"
	"station-insights/internal/models"
	"station-insights/internal/repository"
	"station-insights/internal/services"
	"station-insights/pkg/database"
	"station-insights/pkg/logging"
	"station-insights/pkg/metrics"
)

func main() {
	// Load configuration first so flags can default from it
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Parse command-line flags
	inputFile := flag.String("input", "", "Analyze a saved observation document instead of fetching from the CWA API")
	outputDir := flag.String("output-dir", cfg.Output.Dir, "Directory for JSON and map artifacts")
	refLat := flag.Float64("ref-lat", cfg.Reference.Latitude, "Reference point latitude")
	refLon := flag.Float64("ref-lon", cfg.Reference.Longitude, "Reference point longitude")
	distanceOnly := flag.Bool("distance-only", false, "Skip the HTML map, produce only the distance analysis")
	mapOnly := flag.Bool("map-only", false, "Skip the JSON exports, produce only the HTML map")
	store := flag.Bool("store", false, "Archive the run as a snapshot in PostgreSQL")
	quiet := flag.Bool("quiet", false, "Only log warnings and errors")
	flag.Parse()

	// Initialize logger
	logLevel := logging.ParseLevel(cfg.Logging.Level)
	if *quiet {
		logLevel = logging.WarnLevel
	}

	logger := logging.NewStructuredLogger("station-insights-analyzer", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[ANALYZER_START] Starting station analysis", logging.Fields{
		"version":    "1.0.0",
		"input_file": *inputFile,
		"output_dir": *outputDir,
		"ref_lat":    *refLat,
		"ref_lon":    *refLon,
		"store":      *store,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("station_insights_analyzer")

	// Connect the snapshot archive only when asked to store
	var snapshotRepo repository.SnapshotRepository
	if *store {
		dbConfig := &database.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}

		db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[ANALYZER_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()

		snapshotRepo = repository.NewSnapshotRepository(db, logger, metricsCollector)
	}

	// Initialize services
	reference := models.GeoPoint{Latitude: *refLat, Longitude: *refLon}
	if err := reference.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid reference point: %v\n", err)
		os.Exit(1)
	}

	client := services.NewCWAClient(cfg.CWA.BaseURL, cfg.CWA.APIKey, cfg.CWA.Timeout, logger, metricsCollector)
	normalizer := services.NewStationNormalizer(logger, metricsCollector)
	ranker := services.NewDistanceRanker(reference, cfg.Reference.Name, logger, metricsCollector)
	stats := services.NewStatisticsService(logger, metricsCollector)
	exporter := services.NewExporter(*outputDir, logger, metricsCollector)
	renderer := services.NewMapRenderer(*outputDir, cfg.Reference.Name, logger, metricsCollector)
	pipeline := services.NewPipelineService(client, normalizer, ranker, stats, exporter, renderer, snapshotRepo, logger, metricsCollector)

	// Load an offline document when -input is given
	opts := services.RunOptions{
		ExportJSON:      !*mapOnly,
		RenderMap:       !*distanceOnly,
		ArchiveSnapshot: *store,
	}

	source := "live CWA feed"
	if *inputFile != "" {
		data, err := os.ReadFile(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read input file: %v\n", err)
			os.Exit(1)
		}

		doc, err := models.DecodeObservationDocument(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse input file: %v\n", err)
			os.Exit(1)
		}

		opts.Document = doc
		source = *inputFile
	}

	// Run the pipeline
	result, err := pipeline.Run(ctx, opts)
	if err != nil {
		logger.Error(ctx, "[ANALYZER_ERROR] Pipeline run failed", logging.Fields{}, err)
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}

	printReport(result, source, ranker.Reference(), ranker.ReferenceName())

	logger.Info(ctx, "[ANALYZER_COMPLETE] Analysis completed successfully", logging.Fields{
		"fetched_records":     result.FetchedRecords,
		"normalized_stations": result.NormalizedStations,
		"skipped_records":     result.SkippedRecords,
		"ranked_stations":     result.RankedStations,
		"duration_seconds":    result.DurationSeconds,
	})
}

func printReport(result *services.PipelineResult, source string, reference models.GeoPoint, referenceName string) {
	rule := strings.Repeat("=", 80)

	fmt.Println(rule)
	fmt.Println("STATION OBSERVATION ANALYSIS")
	fmt.Println(rule)
	fmt.Printf("Source:              %s\n", source)
	fmt.Printf("Reference Point:     %s (%.4f, %.4f)\n", referenceName, reference.Latitude, reference.Longitude)
	fmt.Printf("Total Records:       %d\n", result.FetchedRecords)
	fmt.Printf("Normalized Stations: %d\n", result.NormalizedStations)
	fmt.Printf("Skipped Records:     %d\n", result.SkippedRecords)
	fmt.Printf("Ranked (with GPS):   %d\n", result.RankedStations)
	fmt.Printf("Duration:            %v\n", result.Duration)

	if result.Temperature != nil {
		t := result.Temperature
		fmt.Println("\n" + rule)
		fmt.Println("TEMPERATURE SUMMARY")
		fmt.Println(rule)
		fmt.Printf("Usable Readings:     %d\n", t.ReadingCount)
		fmt.Printf("Mean:                %.1f°C\n", t.MeanC)
		fmt.Printf("Max:                 %.1f°C  (%s)\n", t.MaxC, t.HottestStation)
		fmt.Printf("Min:                 %.1f°C  (%s)\n", t.MinC, t.ColdestStation)
	} else {
		fmt.Println("\nNo usable temperature readings.")
	}

	if result.Summary != nil {
		s := result.Summary
		fmt.Println("\n" + rule)
		fmt.Printf("DISTANCE SUMMARY (%d stations)\n", s.StationCount)
		fmt.Println(rule)
		fmt.Printf("Min: %.2f km    Max: %.2f km    Mean: %.2f km    Median: %.2f km\n",
			s.MinKm, s.MaxKm, s.MeanKm, s.MedianKm)

		fmt.Printf("\nNEAREST %d STATIONS\n", len(s.Nearest))
		printStationTable(s.Nearest)

		fmt.Printf("\nFARTHEST %d STATIONS (farthest last)\n", len(s.Farthest))
		printStationTable(s.Farthest)
	} else {
		fmt.Println("\nNo stations with coordinates; distance summary unavailable.")
	}

	if result.SkippedRecords > 0 {
		fmt.Printf("\nSkipped records (%d):\n", result.SkippedRecords)
		for i, recErr := range result.Skipped {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", result.SkippedRecords-10)
				break
			}
			fmt.Printf("  - %s\n", recErr.Error())
		}
	}

	if len(result.ArtifactPaths) > 0 {
		fmt.Println("\nArtifacts:")
		for _, path := range result.ArtifactPaths {
			fmt.Printf("  - %s\n", path)
		}
	}

	if result.SnapshotID > 0 {
		fmt.Printf("\nArchived as snapshot %d\n", result.SnapshotID)
	}
}

func printStationTable(stations []*models.StationWithDistance) {
	fmt.Printf("%4s  %-10s  %-24s  %-20s  %10s  %8s\n",
		"RANK", "ID", "NAME", "COUNTY/TOWN", "DISTANCE", "TEMP")

	for i, station := range stations {
		area := strings.TrimSpace(station.Location.County + " " + station.Location.Town)

		temp := "N/A"
		if v := station.WeatherElements.TemperatureValue(); v != nil {
			temp = fmt.Sprintf("%.1f°C", *v)
		}

		fmt.Printf("%4d  %-10s  %-24s  %-20s  %7.2f km  %8s\n",
			i+1, station.StationID, station.StationName, area, station.DistanceKm, temp)
	}
}
