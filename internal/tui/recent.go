package tui

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const maxRecent = 10

// RecentEntry is one previously searched destination, kept so the form
// can offer it again.
type RecentEntry struct {
	Destination string    `json:"destination"`
	SearchedAt  time.Time `json:"searched_at"`
}

func recentFilePath() string {
	cfg, _ := os.UserConfigDir()
	return filepath.Join(cfg, "flatscout", "recent.json")
}

func LoadRecent() []RecentEntry {
	data, err := os.ReadFile(recentFilePath())
	if err != nil {
		return nil
	}
	var entries []RecentEntry
	json.Unmarshal(data, &entries)
	return entries
}

func SaveRecent(destination string) {
	entries := LoadRecent()

	// Remove duplicate
	filtered := make([]RecentEntry, 0, len(entries))
	for _, e := range entries {
		if e.Destination != destination {
			filtered = append(filtered, e)
		}
	}

	// Prepend
	filtered = append([]RecentEntry{{Destination: destination, SearchedAt: time.Now()}}, filtered...)
	if len(filtered) > maxRecent {
		filtered = filtered[:maxRecent]
	}

	data, _ := json.MarshalIndent(filtered, "", "  ")
	dir := filepath.Dir(recentFilePath())
	os.MkdirAll(dir, 0755)
	os.WriteFile(recentFilePath(), data, 0644)
}
