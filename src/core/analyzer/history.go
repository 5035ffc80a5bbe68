package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drawing-assistant-go/src/core/utils"
)

// HistoryStore keeps one JSON file per analyzed critique under a history
// directory. Filenames embed the unix timestamp, so lexicographic order is
// chronological. All failures are logged and swallowed; history is advisory.
type HistoryStore struct {
	dir        string
	maxEntries int
	logger     *utils.TaggedLogger
}

func NewHistoryStore(dir string, maxEntries int, logger *utils.Logger) *HistoryStore {
	h := &HistoryStore{
		dir:        dir,
		maxEntries: maxEntries,
		logger:     logger.WithTag("history"),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.logger.Error(fmt.Sprintf("creating history directory %s failed: %v", dir, err))
	}
	return h
}

// Append writes one feedback record and evicts the oldest files beyond the
// retention cap.
func (h *HistoryStore) Append(feedback Feedback) {
	data, err := json.MarshalIndent(feedback, "", "  ")
	if err != nil {
		h.logger.Error(fmt.Sprintf("encoding history record failed: %v", err))
		return
	}

	path := filepath.Join(h.dir, fmt.Sprintf("analysis_%d.json", feedback.CreatedAt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.logger.Error(fmt.Sprintf("writing history record failed: %v", err))
		return
	}

	h.prune()
}

func (h *HistoryStore) prune() {
	files, err := h.recordFiles()
	if err != nil {
		h.logger.Error(fmt.Sprintf("listing history directory failed: %v", err))
		return
	}
	if len(files) <= h.maxEntries {
		return
	}

	sort.Strings(files)
	for _, name := range files[:len(files)-h.maxEntries] {
		if err := os.Remove(filepath.Join(h.dir, name)); err != nil {
			h.logger.Warn(fmt.Sprintf("evicting history record %s failed: %v", name, err))
		}
	}
}

// Recent loads up to limit records, newest first. Unreadable records are
// skipped with a log line.
func (h *HistoryStore) Recent(limit int) []Feedback {
	files, err := h.recordFiles()
	if err != nil {
		h.logger.Error(fmt.Sprintf("listing history directory failed: %v", err))
		return nil
	}

	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	records := make([]Feedback, 0, len(files))
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(h.dir, name))
		if err != nil {
			h.logger.Error(fmt.Sprintf("loading history record %s failed: %v", name, err))
			continue
		}
		var feedback Feedback
		if err := json.Unmarshal(data, &feedback); err != nil {
			h.logger.Error(fmt.Sprintf("decoding history record %s failed: %v", name, err))
			continue
		}
		records = append(records, feedback)
	}
	return records
}

func (h *HistoryStore) recordFiles() ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "analysis_") && strings.HasSuffix(name, ".json") {
			files = append(files, name)
		}
	}
	return files, nil
}
