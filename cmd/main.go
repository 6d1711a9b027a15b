package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kass/go-geo-registry/pkg/geocode"
	"github.com/kass/go-geo-registry/pkg/geofence"
	"github.com/kass/go-geo-registry/pkg/models"
	"github.com/kass/go-geo-registry/pkg/postgis"
	"github.com/kass/go-geo-registry/pkg/query"
	"github.com/kass/go-geo-registry/pkg/registry"
)

var (
	registryFile string
	userAgent    string
	source       string
	credential   string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "go-geo-registry",
	Short: "Spatial registry and query engine for geocoded records",
	Long:  `Ingests addresses and coordinates, normalizes them into canonical spatial records, and answers proximity, clustering and geofence containment queries.`,
}

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Forward-geocode an address into the registry",
	Args:  cobra.ExactArgs(1),
	Run:   runGeocode,
}

var reverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Reverse-geocode coordinates into the registry",
	Run:   runReverse,
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Batch-geocode addresses from a file, one per line",
	Args:  cobra.ExactArgs(1),
	Run:   runBatch,
}

var radiusCmd = &cobra.Command{
	Use:   "radius",
	Short: "Search records within a radius of a point",
	Run:   runRadius,
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Density-cluster records around a point",
	Run:   runCluster,
}

var nearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Find the records nearest to a point",
	Run:   runNearest,
}

var fenceCmd = &cobra.Command{
	Use:   "fence",
	Short: "Manage geofences",
}

var fenceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a geofence from a closed polygon ring",
	Run:   runFenceCreate,
}

var fenceCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "List geofences containing a point",
	Run:   runFenceCheck,
}

var fenceEntriesCmd = &cobra.Command{
	Use:   "entries <fence-id>",
	Short: "List records contained by a geofence",
	Args:  cobra.ExactArgs(1),
	Run:   runFenceEntries,
}

var fenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List geofences, newest first",
	Run:   runFenceList,
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the PostGIS record store",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the record store schema and spatial indexes",
	Run:   runStoreInit,
}

var storeSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bulk-copy the registry file into the record store",
	Run:   runStoreSync,
}

var (
	lat        float64
	lon        float64
	radiusM    float64
	epsM       float64
	minPoints  int
	maxResults int
	fenceName  string
	fenceDesc  string
	polygonArg string

	dbHost     string
	dbPort     int
	dbUser     string
	dbPassword string
	dbName     string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&registryFile, "file", "f", "geo_registry.gob", "Registry file path")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "go-geo-registry/1.0", "User-Agent sent to the geocoding provider")
	rootCmd.PersistentFlags().StringVar(&credential, "credential", "", "Caller credential for ownership attribution")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	geocodeCmd.Flags().StringVar(&source, "source", "", "Provenance tag stored on the record")
	reverseCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	reverseCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	reverseCmd.Flags().StringVar(&source, "source", "", "Provenance tag stored on the record")
	batchCmd.Flags().StringVar(&source, "source", "", "Provenance tag stored on the records")

	radiusCmd.Flags().Float64Var(&lat, "lat", 0, "Center latitude")
	radiusCmd.Flags().Float64Var(&lon, "lon", 0, "Center longitude")
	radiusCmd.Flags().Float64VarP(&radiusM, "radius", "r", 5000, "Search radius in meters")
	radiusCmd.Flags().IntVarP(&maxResults, "max", "m", 20, "Maximum results")

	clusterCmd.Flags().Float64Var(&lat, "lat", 0, "Center latitude")
	clusterCmd.Flags().Float64Var(&lon, "lon", 0, "Center longitude")
	clusterCmd.Flags().Float64VarP(&radiusM, "radius", "r", 10000, "Clustering scope radius in meters")
	clusterCmd.Flags().Float64VarP(&epsM, "eps", "e", 500, "Neighborhood radius in meters")
	clusterCmd.Flags().IntVarP(&minPoints, "min-points", "p", 3, "Density threshold")

	nearestCmd.Flags().Float64Var(&lat, "lat", 0, "Query latitude")
	nearestCmd.Flags().Float64Var(&lon, "lon", 0, "Query longitude")
	nearestCmd.Flags().IntVarP(&maxResults, "neighbors", "n", 10, "Number of neighbors")

	fenceCreateCmd.Flags().StringVar(&fenceName, "name", "", "Geofence name")
	fenceCreateCmd.Flags().StringVar(&fenceDesc, "description", "", "Geofence description")
	fenceCreateCmd.Flags().StringVar(&polygonArg, "polygon", "", "Closed ring as lon,lat;lon,lat;... (first point repeated last)")
	fenceCheckCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	fenceCheckCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	fenceEntriesCmd.Flags().IntVarP(&maxResults, "max", "m", 100, "Maximum results")

	storeCmd.PersistentFlags().StringVar(&dbHost, "db-host", "localhost", "PostGIS host")
	storeCmd.PersistentFlags().IntVar(&dbPort, "db-port", 5432, "PostGIS port")
	storeCmd.PersistentFlags().StringVar(&dbUser, "db-user", "postgres", "PostGIS user")
	storeCmd.PersistentFlags().StringVar(&dbPassword, "db-password", "", "PostGIS password")
	storeCmd.PersistentFlags().StringVar(&dbName, "db-name", "geodb", "PostGIS database name")

	fenceCmd.AddCommand(fenceCreateCmd, fenceCheckCmd, fenceEntriesCmd, fenceListCmd)
	storeCmd.AddCommand(storeInitCmd, storeSyncCmd)
	rootCmd.AddCommand(geocodeCmd, reverseCmd, batchCmd, radiusCmd, clusterCmd, nearestCmd, fenceCmd, storeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRegistry loads the registry file if present; a missing file yields
// an empty registry
func loadRegistry() *registry.Registry {
	reg := registry.New()
	if _, err := os.Stat(registryFile); os.IsNotExist(err) {
		return reg
	}
	if err := reg.LoadFromFile(registryFile); err != nil {
		log.Fatalf("Failed to load registry: %v", err)
	}
	if verbose {
		fmt.Printf("Loaded %d records from %s\n", reg.Len(), registryFile)
	}
	return reg
}

func saveRegistry(reg *registry.Registry) {
	if err := reg.SaveToFile(registryFile); err != nil {
		log.Fatalf("Failed to save registry: %v", err)
	}
	if verbose {
		fmt.Printf("Saved registry to %s\n", registryFile)
	}
}

func newOrchestrator(reg *registry.Registry) *geocode.Orchestrator {
	provider := geocode.NewNominatimProvider(geocode.ProviderConfig{UserAgent: userAgent})
	return geocode.NewOrchestrator(provider, reg)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(out))
}

func runGeocode(cmd *cobra.Command, args []string) {
	reg := loadRegistry()
	orch := newOrchestrator(reg)

	rec, err := orch.ForwardGeocode(context.Background(), args[0], source, credential)
	if err != nil {
		log.Fatalf("Geocoding failed: %v", err)
	}

	saveRegistry(reg)
	printJSON(rec)
}

func runReverse(cmd *cobra.Command, args []string) {
	reg := loadRegistry()
	orch := newOrchestrator(reg)

	rec, err := orch.ReverseGeocode(context.Background(), lat, lon, source, credential)
	if err != nil {
		log.Fatalf("Reverse geocoding failed: %v", err)
	}

	saveRegistry(reg)
	printJSON(rec)
}

func runBatch(cmd *cobra.Command, args []string) {
	addresses, err := readLines(args[0])
	if err != nil {
		log.Fatalf("Failed to read address file: %v", err)
	}

	reg := loadRegistry()
	orch := newOrchestrator(reg)

	result, err := orch.BatchGeocode(context.Background(), addresses, source, credential)
	if err != nil && result == nil {
		log.Fatalf("Batch geocoding failed: %v", err)
	}
	if err != nil {
		// Storage failed after geocoding; report results with the error
		log.Printf("Warning: %v", err)
	} else {
		saveRegistry(reg)
	}

	fmt.Printf("Batch: total=%d succeeded=%d not_found=%d failed=%d inserted=%d\n",
		result.Total, result.Succeeded, result.NotFound, result.Failed, result.Inserted)
	if verbose {
		printJSON(result.Items)
	}
}

func runRadius(cmd *cobra.Command, args []string) {
	reg := loadRegistry()
	engine := query.New(reg)

	matches, err := engine.RadiusSearch(models.Point{Lat: lat, Lon: lon}, radiusM, maxResults)
	if err != nil {
		log.Fatalf("Radius search failed: %v", err)
	}

	fmt.Printf("Found %d records within %.0fm\n", len(matches), radiusM)
	for _, m := range matches {
		fmt.Printf("  %8.1fm  %s\n", m.DistanceMeters, m.Record.Address.Formatted)
	}
}

func runCluster(cmd *cobra.Command, args []string) {
	reg := loadRegistry()
	engine := query.New(reg)

	clusters, err := engine.ClusterByDensity(models.Point{Lat: lat, Lon: lon}, radiusM, epsM, minPoints)
	if err != nil {
		log.Fatalf("Clustering failed: %v", err)
	}

	fmt.Printf("Found %d clusters\n", len(clusters))
	for _, c := range clusters {
		fmt.Printf("  cluster %d: %d points, center (%.5f, %.5f), avg confidence %.2f\n",
			c.ClusterID, c.PointCount, c.Center.Lat, c.Center.Lon, c.AvgConfidence)
		if verbose {
			for _, addr := range c.MemberAddresses {
				fmt.Printf("    - %s\n", addr)
			}
		}
	}
}

func runNearest(cmd *cobra.Command, args []string) {
	reg := loadRegistry()

	recs := reg.NearestNeighbors(models.Point{Lat: lat, Lon: lon}, maxResults)
	fmt.Printf("Found %d nearest records\n", len(recs))
	for _, rec := range recs {
		fmt.Printf("  (%.5f, %.5f)  %s\n", rec.Coordinates.Lat, rec.Coordinates.Lon, rec.Address.Formatted)
	}
}

func runFenceCreate(cmd *cobra.Command, args []string) {
	ring, err := parseRing(polygonArg)
	if err != nil {
		log.Fatalf("Invalid polygon: %v", err)
	}

	reg := loadRegistry()
	mgr := geofence.New(reg)

	fence, err := mgr.Create(context.Background(), fenceName, ring, fenceDesc, nil, credential)
	if err != nil {
		log.Fatalf("Failed to create geofence: %v", err)
	}

	saveRegistry(reg)
	printJSON(fence)
}

func runFenceCheck(cmd *cobra.Command, args []string) {
	reg := loadRegistry()
	mgr := geofence.New(reg)

	fences, err := mgr.Check(models.Point{Lat: lat, Lon: lon})
	if err != nil {
		log.Fatalf("Geofence check failed: %v", err)
	}

	fmt.Printf("Point is inside %d geofences\n", len(fences))
	for _, f := range fences {
		fmt.Printf("  %s  %s\n", f.ID, f.Name)
	}
}

func runFenceEntries(cmd *cobra.Command, args []string) {
	reg := loadRegistry()
	mgr := geofence.New(reg)

	recs, err := mgr.EntriesWithin(args[0], maxResults)
	if err != nil {
		log.Fatalf("Geofence entries failed: %v", err)
	}

	fmt.Printf("Found %d records inside geofence\n", len(recs))
	for _, rec := range recs {
		fmt.Printf("  (%.5f, %.5f)  %s\n", rec.Coordinates.Lat, rec.Coordinates.Lon, rec.Address.Formatted)
	}
}

func runFenceList(cmd *cobra.Command, args []string) {
	reg := loadRegistry()
	mgr := geofence.New(reg)

	fences := mgr.List()
	fmt.Printf("%d geofences\n", len(fences))
	for _, f := range fences {
		fmt.Printf("  %s  %-20s  %d vertices  created %s\n",
			f.ID, f.Name, len(f.Polygon), f.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func openStore() *postgis.Store {
	store, err := postgis.NewStore(dbHost, dbUser, dbPassword, dbName, dbPort)
	if err != nil {
		log.Fatalf("Failed to connect to record store: %v", err)
	}
	return store
}

func runStoreInit(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}
	if err := store.CreateSpatialIndexes(); err != nil {
		log.Fatalf("Failed to create spatial indexes: %v", err)
	}
	fmt.Println("Record store schema ready")
}

func runStoreSync(cmd *cobra.Command, args []string) {
	reg := loadRegistry()
	store := openStore()
	defer store.Close()

	recs := reg.Snapshot()
	if err := store.BulkInsertRecords(recs); err != nil {
		log.Fatalf("Failed to sync records: %v", err)
	}
	fences := reg.Fences()
	for _, fence := range fences {
		if err := store.InsertFence(fence); err != nil {
			log.Fatalf("Failed to sync geofence %s: %v", fence.ID, err)
		}
	}

	fmt.Printf("Synced %d records and %d geofences to %s\n", len(recs), len(fences), dbName)
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// parseRing parses "lon,lat;lon,lat;..." into a polygon ring
func parseRing(s string) ([]models.Point, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("polygon must not be empty")
	}

	var ring []models.Point
	for _, pair := range strings.Split(s, ";") {
		var plon, plat float64
		if _, err := fmt.Sscanf(strings.TrimSpace(pair), "%f,%f", &plon, &plat); err != nil {
			return nil, fmt.Errorf("bad vertex %q: %w", pair, err)
		}
		ring = append(ring, models.Point{Lat: plat, Lon: plon})
	}
	return ring, nil
}
