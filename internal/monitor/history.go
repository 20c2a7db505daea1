// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package monitor

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"
)

type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Summary aggregates one series over a window.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

func (s *Service) record(name string, value float64) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.history[name], HistoryEntry{Timestamp: now, Value: value})
	s.history[name] = trimBefore(entries, now.Add(-s.window))
}

// trimBefore drops entries older than cutoff. Entries are in time order.
func trimBefore(entries []HistoryEntry, cutoff time.Time) []HistoryEntry {
	idx := sort.Search(len(entries), func(i int) bool {
		return !entries[i].Timestamp.Before(cutoff)
	})
	if idx == 0 {
		return entries
	}
	return append([]HistoryEntry(nil), entries[idx:]...)
}

// History returns a copy of the series, oldest first.
func (s *Service) History(name string) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryEntry(nil), s.history[name]...)
}

// Summarize aggregates the entries of name recorded within the last interval.
func (s *Service) Summarize(name string, interval time.Duration) (Summary, error) {
	s.mu.RLock()
	entries := s.history[name]
	cutoff := time.Now().Add(-interval)
	var nums []float64
	for _, e := range entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		nums = append(nums, e.Value)
	}
	s.mu.RUnlock()

	if len(nums) == 0 {
		return Summary{}, fmt.Errorf("no %s readings in the last %s", name, interval)
	}

	sum := 0.0
	for _, v := range nums {
		sum += v
	}
	slices.Sort(nums)
	mid := len(nums) / 2
	median := nums[mid]
	if len(nums)%2 == 0 {
		median = (nums[mid-1] + nums[mid]) / 2
	}
	return Summary{
		Count:  len(nums),
		Min:    nums[0],
		Max:    nums[len(nums)-1],
		Mean:   sum / float64(len(nums)),
		Median: median,
	}, nil
}

// saveToDisk writes the history as gzipped JSON via a temp file and rename.
func (s *Service) saveToDisk() {
	if s.snapshotFile == "" {
		return
	}

	s.mu.RLock()
	copyMap := make(map[string][]HistoryEntry, len(s.history))
	total := 0
	for k, v := range s.history {
		copyMap[k] = append([]HistoryEntry(nil), v...)
		total += len(v)
	}
	s.mu.RUnlock()

	tmpPath := s.snapshotFile + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		s.log.Error("failed to create temp snapshot file: %v", err)
		return
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if err := json.NewEncoder(gz).Encode(copyMap); err != nil {
		s.log.Error("failed to encode snapshot: %v", err)
		gz.Close()
		return
	}
	if err := gz.Close(); err != nil {
		s.log.Error("failed to close gzip: %v", err)
		return
	}
	if err := file.Sync(); err != nil {
		s.log.Error("failed to fsync snapshot: %v", err)
	}
	file.Close()
	if err := os.Rename(tmpPath, s.snapshotFile); err != nil {
		s.log.Error("failed to rename snapshot file: %v", err)
		return
	}
	s.log.Debug("snapshot saved: %d entries", total)
}

func (s *Service) loadFromDisk() {
	file, err := os.Open(s.snapshotFile)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("failed to open history snapshot: %v", err)
		}
		return
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		s.log.Error("failed to open gzip: %v", err)
		return
	}
	defer gz.Close()

	var data map[string][]HistoryEntry
	if err := json.NewDecoder(gz).Decode(&data); err != nil {
		s.log.Error("failed to decode snapshot: %v", err)
		return
	}

	cutoff := time.Now().Add(-s.window)
	s.mu.Lock()
	for _, name := range seriesNames {
		if entries, ok := data[name]; ok {
			s.history[name] = trimBefore(entries, cutoff)
		}
	}
	s.mu.Unlock()
	s.log.Info("history restored from snapshot (%d series)", len(data))
}
