package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/jwillz7667/CropLens/internal/delivery"
	"github.com/jwillz7667/CropLens/internal/properties"
	"github.com/jwillz7667/CropLens/internal/raster"
	"github.com/jwillz7667/CropLens/internal/sentinel"
)

func main() {
	boundary := flag.String("boundary", "", "GeoJSON FeatureCollection with plot_id properties")
	plot := flag.String("plot", "1", "plot_id to download")
	date := flag.String("date", time.Now().AddDate(0, 0, -7).Format(time.DateOnly), "Start of the imagery window (YYYY-MM-DD)")
	flag.Parse()

	if err := godotenv.Load("../../.env"); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
		fmt.Println("Make sure you have set the required environment variables:")
		fmt.Println("- COPERNICUS_CLIENT_ID")
		fmt.Println("- COPERNICUS_CLIENT_SECRET")
		fmt.Println("- COPERNICUS_TOKEN_URL")
		fmt.Println("- ROOT_PATH")
		fmt.Println()
	}
	cfg := properties.Load()

	if *boundary == "" {
		*boundary = cfg.DataPath("geojsons", "fields.geojson")
	}
	from, err := time.Parse(time.DateOnly, *date)
	if err != nil {
		log.Fatalf("Invalid date: %v", err)
	}

	fmt.Println("=== CropLens Test Scene Download ===")
	fmt.Printf("Boundary: %s\nPlot: %s\nFrom: %s\n\n", *boundary, *plot, from.Format(time.DateOnly))

	geometry, err := sentinel.LoadFieldGeometry(*boundary, *plot)
	if err != nil {
		log.Fatalf("Failed to get geometry: %v", err)
	}
	fmt.Println("✓ Geometry loaded successfully")

	ctx := context.Background()
	client, err := sentinel.NewClient(ctx, sentinel.Credentials{
		ClientIDs:     cfg.CopernicusClientID,
		ClientSecrets: cfg.CopernicusClientSecret,
		TokenURL:      cfg.CopernicusTokenURL,
		ProcessURL:    cfg.SentinelProcessURL,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	client.Retries = cfg.SentinelRetries

	scene, err := client.RequestScene(ctx, sentinel.SceneRequest{Geometry: geometry, From: from})
	if err != nil {
		log.Fatalf("Failed to get scene: %v", err)
	}

	outPath := cfg.DataPath("images", fmt.Sprintf("plot_%s_%s.tif", *plot, from.Format(time.DateOnly)))
	if err := os.MkdirAll(filepath.Dir(outPath), os.ModePerm); err != nil {
		log.Fatalf("Failed to create image folder: %v", err)
	}
	if err := os.WriteFile(outPath, scene, 0o644); err != nil {
		log.Fatalf("Failed to save scene: %v", err)
	}
	fmt.Printf("✓ Scene saved to %s (%d bytes)\n", outPath, len(scene))

	result, err := delivery.ComputeNDVI(raster.ViewBytes(scene))
	if err != nil {
		log.Fatalf("Scene did not decode: %v", err)
	}
	fmt.Printf("Size: %dx%d, mean NDVI %.3f, low vigor %.1f%%\n",
		result.Width, result.Height, result.Summary.Mean, result.Summary.LowNDVIAreaPct*100)
	fmt.Println("\n✓ Test completed successfully!")
}
