// Package observability tracks anomaly counts and stage timings across a run.
package observability

import (
	"sort"
	"sync"
	"time"
)

// AnomalyStats counts anomalies per file and per code.
type AnomalyStats struct {
	mu    sync.RWMutex
	files map[string]*FileStats
}

// FileStats holds the anomaly counts for one layout document or extract.
type FileStats struct {
	File     string
	Total    int64
	LastSeen time.Time
	Codes    map[string]int64 // code → count (e.g., "DECODE_ANOMALY" → 3)
}

// NewAnomalyStats creates an empty tracker.
func NewAnomalyStats() *AnomalyStats {
	return &AnomalyStats{files: make(map[string]*FileStats)}
}

// Record adds n occurrences of code for file. Safe for concurrent use.
func (a *AnomalyStats) Record(file, code string, n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.fileLocked(file)
	stats.Total += int64(n)
	stats.LastSeen = time.Now()
	stats.Codes[code] += int64(n)
}

// Touch registers file with zero anomalies so that clean files still appear
// in the summary.
func (a *AnomalyStats) Touch(file string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fileLocked(file)
}

func (a *AnomalyStats) fileLocked(file string) *FileStats {
	stats, exists := a.files[file]
	if !exists {
		stats = &FileStats{File: file, Codes: make(map[string]int64)}
		a.files[file] = stats
	}
	return stats
}

// Get returns a copy of the stats for one file.
func (a *AnomalyStats) Get(file string) (FileStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.files[file]
	if !ok {
		return FileStats{}, false
	}
	return copyStats(s), true
}

// Files returns a copy of every file's stats, most anomalous first and
// then by name.
func (a *AnomalyStats) Files() []FileStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := make([]FileStats, 0, len(a.files))
	for _, s := range a.files {
		stats = append(stats, copyStats(s))
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Total != stats[j].Total {
			return stats[i].Total > stats[j].Total
		}
		return stats[i].File < stats[j].File
	})
	return stats
}

// Totals returns the anomaly counts per code across all files.
func (a *AnomalyStats) Totals() map[string]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	totals := make(map[string]int64)
	for _, s := range a.files {
		for code, n := range s.Codes {
			totals[code] += n
		}
	}
	return totals
}

func copyStats(s *FileStats) FileStats {
	cp := FileStats{
		File:     s.File,
		Total:    s.Total,
		LastSeen: s.LastSeen,
		Codes:    make(map[string]int64, len(s.Codes)),
	}
	for code, n := range s.Codes {
		cp.Codes[code] = n
	}
	return cp
}
