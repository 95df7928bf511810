// Package artifacts inspects the files produced by the preprocessing program.
//
// The launcher only needs the weekly dataset to exist; this package adds the
// read-only view used by `stormview status`: which outputs are present, how big
// and how fresh they are, and the headline figures from summary_stats.json.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Known output names written by the preprocessing program.
const (
	WeeklyMerged      = "weekly_merged.parquet"
	MonthlySummary    = "monthly_summary.parquet"
	CorrelationMatrix = "correlation_matrix.parquet"
	SummaryStats      = "summary_stats.json"
)

// Expected lists the outputs in the order the preprocessing program writes them.
var Expected = []string{WeeklyMerged, MonthlySummary, CorrelationMatrix, SummaryStats}

// Artifact describes one preprocessed output file.
type Artifact struct {
	Name    string
	Path    string
	Present bool
	Size    int64
	ModTime time.Time
}

// Inspect stats every expected output in dir. The primary artifact path is
// always included even if its name is not one of the expected outputs.
func Inspect(dir string, primary string) ([]Artifact, error) {
	names := append([]string(nil), Expected...)
	if primary != "" && filepath.Dir(primary) == filepath.Clean(dir) {
		base := filepath.Base(primary)
		found := false
		for _, n := range names {
			if n == base {
				found = true
				break
			}
		}
		if !found {
			names = append([]string{base}, names...)
		}
	}

	out := make([]Artifact, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		a := Artifact{Name: name, Path: path}
		info, err := os.Stat(path)
		switch {
		case err == nil:
			a.Present = info.Mode().IsRegular()
			a.Size = info.Size()
			a.ModTime = info.ModTime()
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Complete reports whether every artifact is present.
func Complete(list []Artifact) bool {
	for _, a := range list {
		if !a.Present {
			return false
		}
	}
	return len(list) > 0
}

// Correlation is the strongest correlation recorded for one outcome.
type Correlation struct {
	Metric   string   `json:"metric"`
	Lag      string   `json:"lag"`
	PearsonR *float64 `json:"pearson_r"`
	PearsonP *float64 `json:"pearson_p"`
}

// Summary holds the headline fields of summary_stats.json. Unknown fields are ignored.
type Summary struct {
	NWeeks    int `json:"n_weeks"`
	DateRange struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"date_range"`
	Geomagnetic struct {
		MeanKp       float64 `json:"mean_Kp"`
		MaxKpOverall float64 `json:"max_Kp_overall"`
		MeanAp       float64 `json:"mean_ap"`
	} `json:"geomagnetic"`
	StormComparison struct {
		StormWeeks   int `json:"storm_weeks_count"`
		NoStormWeeks int `json:"no_storm_weeks_count"`
	} `json:"storm_comparison"`
	StrongestCorrelations map[string]struct {
		Overall *Correlation `json:"overall"`
	} `json:"strongest_correlations"`
}

// Outcomes returns the outcome names with a recorded strongest correlation, sorted.
func (s *Summary) Outcomes() []string {
	names := make([]string, 0, len(s.StrongestCorrelations))
	for name, entry := range s.StrongestCorrelations {
		if entry.Overall != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LoadSummary decodes summary_stats.json from dir.
func LoadSummary(dir string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, SummaryStats))
	if err != nil {
		return nil, err
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode %s: %w", SummaryStats, err)
	}
	return &summary, nil
}
