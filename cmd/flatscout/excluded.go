package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flatscout/flatscout/internal/config"
	"github.com/flatscout/flatscout/internal/engine/storage"
)

func runExcluded(args []string) error {
	var cfgPath, dbPath, removeID, exportPath string
	var list bool

	fs := flag.NewFlagSet("excluded", flag.ExitOnError)
	fs.StringVar(&cfgPath, "config", "", "Path to config file (optional)")
	fs.StringVar(&dbPath, "db", "", "Exclusion database path (overrides config)")
	fs.BoolVar(&list, "list", false, "Print the exclusion list")
	fs.StringVar(&removeID, "remove", "", "Remove one exclusion by listing id")
	fs.StringVar(&exportPath, "export", "", "Export the exclusion list to CSV")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: flatscout excluded [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  flatscout excluded -list\n")
		fmt.Fprintf(os.Stderr, "  flatscout excluded -remove immoapi:12345\n")
		fmt.Fprintf(os.Stderr, "  flatscout excluded -export dismissed.csv\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if dbPath == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		dbPath = cfg.ExclusionDB
	}

	store, err := storage.NewExclusionStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening exclusion store: %w", err)
	}
	defer store.Close()

	switch {
	case removeID != "":
		if err := store.Remove(removeID); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Removed %s\n", removeID)
		return nil
	case exportPath != "":
		return exportExclusions(store, exportPath)
	default:
		return listExclusions(store)
	}
}

func listExclusions(store *storage.ExclusionStore) error {
	listings, err := store.All()
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		fmt.Println("no exclusions")
		return nil
	}
	for _, l := range listings {
		sources := make([]string, 0, len(l.Sources))
		for _, s := range l.Sources {
			sources = append(sources, s.Name)
		}
		fmt.Printf("%s | %d CHF | %.1f rooms | %s | %s\n",
			l.ID, l.Price, l.Rooms, l.Title, strings.Join(sources, "+"))
	}
	return nil
}

func exportExclusions(store *storage.ExclusionStore, outputPath string) error {
	listings, err := store.All()
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		return fmt.Errorf("no exclusions to export")
	}

	if filepath.Ext(outputPath) == "" {
		outputPath += ".csv"
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"id", "title", "price", "rooms", "lat", "lng", "url"})
	for _, l := range listings {
		url := ""
		if len(l.Sources) > 0 {
			url = l.Sources[0].URL
		}
		w.Write([]string{
			l.ID,
			l.Title,
			fmt.Sprintf("%d", l.Price),
			fmt.Sprintf("%.1f", l.Rooms),
			fmt.Sprintf("%.6f", l.Lat),
			fmt.Sprintf("%.6f", l.Lng),
			url,
		})
	}

	fmt.Fprintf(os.Stderr, "Exported %d exclusions to %s\n", len(listings), outputPath)
	return nil
}
