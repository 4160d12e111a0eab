package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/flatscout/flatscout/internal/engine/cache"
	"github.com/flatscout/flatscout/internal/logging"
	"github.com/flatscout/flatscout/internal/model"
)

func runSearch(args []string) error {
	var cfgPath, dest, modesStr, maxStr string
	var category, excludeStr, gender, dur string
	var priceMin, priceMax, roomsMin, roomsMax float64
	var since time.Duration
	var verbose bool

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	fs.StringVar(&cfgPath, "config", "", "Path to config file (optional)")
	fs.StringVar(&dest, "dest", "", "Destination address to commute to (required)")
	fs.StringVar(&modesStr, "modes", "", "Comma-separated travel modes: walk,bike,car,transit")
	fs.StringVar(&maxStr, "max-minutes", "", "Per-mode commute ceilings, e.g. bike=20,transit=35")
	fs.StringVar(&category, "category", "", "Listing category: unit or shared-room")
	fs.Float64Var(&priceMin, "price-min", 0, "Minimum monthly price")
	fs.Float64Var(&priceMax, "price-max", 0, "Maximum monthly price")
	fs.Float64Var(&roomsMin, "rooms-min", 0, "Minimum room count")
	fs.Float64Var(&roomsMax, "rooms-max", 0, "Maximum room count")
	fs.StringVar(&excludeStr, "exclude", "", "Comma-separated keywords that disqualify a listing")
	fs.StringVar(&gender, "gender", "", "Flat-share gender preference: any, male, female")
	fs.StringVar(&dur, "duration", "", "Rental duration: permanent or temporary")
	fs.DurationVar(&since, "since", 0, "Only listings created within this window, e.g. 24h")
	fs.BoolVar(&verbose, "verbose", false, "Debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: flatscout search [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  flatscout search -dest \"ETH Zurich\" -modes bike -max-minutes bike=20 -price-max 2200\n")
		fmt.Fprintf(os.Stderr, "  flatscout search -dest \"Bern HB\" -category shared-room -since 24h\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if dest == "" {
		return fmt.Errorf("-dest is required")
	}

	criteria, err := buildCriteria(dest, modesStr, maxStr, category, excludeStr, gender, dur, priceMin, priceMax, roomsMin, roomsMax, since)
	if err != nil {
		return err
	}

	logger, err := logging.New(verbose)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	application, err := buildApp(cfgPath, logger)
	if err != nil {
		return err
	}
	defer application.Close()
	application.applyTransitToggle(criteria)

	opts, err := application.searchOptions()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cache.NewJanitor(application.store, time.Hour, logger).Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping...")
		cancel()
	}()

	startTime := time.Now()
	results := make(map[string]model.Listing)
	byPart := make(map[string]string)

	for ev := range application.engine.Search(ctx, criteria, opts) {
		switch e := ev.(type) {
		case model.ProgressEvent:
			fmt.Printf("· %s\n", e.Message)
		case model.MetadataEvent:
			printMetadata(e)
		case model.PropertiesEvent:
			for _, l := range e.Listings {
				for _, prev := range model.SupersededIDs(byPart, l.ID) {
					delete(results, prev)
				}
				results[l.ID] = l
				printListing(l)
			}
		}
	}

	duration := time.Since(startTime).Truncate(time.Second)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Search Complete\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Destination: %s\n", dest)
	fmt.Fprintf(os.Stderr, "  Results:     %d\n", len(results))
	fmt.Fprintf(os.Stderr, "  Duration:    %s\n", duration)
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	return nil
}

func buildCriteria(dest, modesStr, maxStr, category, excludeStr, gender, dur string, priceMin, priceMax, roomsMin, roomsMax float64, since time.Duration) (*model.SearchCriteria, error) {
	criteria := &model.SearchCriteria{
		Destination: dest,
		Gender:      model.Gender(gender),
		Duration:    model.Duration(dur),
		MaxMinutes:  make(map[model.TravelMode]float64),
	}

	for _, m := range splitList(modesStr) {
		mode := model.TravelMode(m)
		switch mode {
		case model.ModeWalk, model.ModeBike, model.ModeCar, model.ModeTransit:
			criteria.Modes = append(criteria.Modes, mode)
		default:
			return nil, fmt.Errorf("unknown travel mode %q", m)
		}
	}

	for _, pair := range splitList(maxStr) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("bad -max-minutes entry %q, want mode=minutes", pair)
		}
		minutes, err := strconv.ParseFloat(v, 64)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("bad minutes in %q", pair)
		}
		criteria.MaxMinutes[model.TravelMode(k)] = minutes
	}

	criteria.ExcludeKeywords = splitList(excludeStr)

	if since > 0 {
		cutoff := time.Now().Add(-since)
		criteria.CreatedAfter = &cutoff
	}

	if category != "" || priceMin > 0 || priceMax > 0 || roomsMin > 0 || roomsMax > 0 {
		bucket := model.FilterBucket{Name: "cli", Category: model.CategoryUnit}
		if category != "" {
			switch model.Category(category) {
			case model.CategoryUnit, model.CategorySharedRoom:
				bucket.Category = model.Category(category)
			default:
				return nil, fmt.Errorf("unknown category %q", category)
			}
		}
		if priceMin > 0 {
			bucket.Price.Min = &priceMin
		}
		if priceMax > 0 {
			bucket.Price.Max = &priceMax
		}
		if roomsMin > 0 {
			bucket.Rooms.Min = &roomsMin
		}
		if roomsMax > 0 {
			bucket.Rooms.Max = &roomsMax
		}
		criteria.Buckets = []model.FilterBucket{bucket}
	}

	return criteria, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printMetadata(e model.MetadataEvent) {
	if e.Destination != nil {
		fmt.Printf("  destination at %.4f, %.4f\n", e.Destination.Lat(), e.Destination.Lon())
	}
	if len(e.Polygons) > 0 {
		modes := make([]string, 0, len(e.Polygons))
		for m := range e.Polygons {
			modes = append(modes, string(m))
		}
		fmt.Printf("  reachable areas: %s\n", strings.Join(modes, ", "))
	}
	if len(e.Places) > 0 {
		fmt.Printf("  places: %s\n", strings.Join(e.Places, ", "))
	}
	if e.ResultCount > 0 {
		fmt.Printf("  %d result(s) so far\n", e.ResultCount)
	}
}

func printListing(l model.Listing) {
	line := fmt.Sprintf("%s | %d CHF | %.1f rooms", l.ID, l.Price, l.Rooms)
	if l.Address != "" {
		line += " | " + l.Address
	}
	var commutes []string
	for mode, minutes := range l.Commute {
		if minutes == nil {
			commutes = append(commutes, string(mode)+": unreachable")
			continue
		}
		commutes = append(commutes, fmt.Sprintf("%s: %.0f min", mode, *minutes))
	}
	if len(commutes) > 0 {
		line += " | " + strings.Join(commutes, ", ")
	}
	fmt.Println(line)
}
