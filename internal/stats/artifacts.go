package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tmaze/internal/model"
)

const runIndexFile = "run_index.json"

const (
	configFile   = "config.json"
	episodesFile = "episodes.csv"
	summaryFile  = "summary.json"
)

var episodeHeader = []string{
	"worker", "episode", "seed", "active_goals", "goal_index", "return",
	"steps", "collision_steps", "final_x", "final_y", "observation_digest",
}

type RunArtifacts struct {
	Run      model.RunRecord       `json:"run"`
	Episodes []model.EpisodeRecord `json:"episodes"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Agent        string  `json:"agent"`
	Backend      string  `json:"backend"`
	Workers      int     `json:"workers"`
	Episodes     int     `json:"episodes"`
	Seed         uint64  `json:"seed"`
	MeanReturn   float64 `json:"mean_return"`
	SuccessRate  float64 `json:"success_rate"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes config.json, episodes.csv and summary.json under
// baseDir/<run id> and records the run in the base run index.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	run := artifacts.Run
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), run); err != nil {
		return "", err
	}
	if err := writeEpisodesCSV(filepath.Join(runDir, episodesFile), artifacts.Episodes); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), Summarize(artifacts.Episodes)); err != nil {
		return "", err
	}

	err := AppendRunIndex(baseDir, RunIndexEntry{
		RunID:        run.ID,
		Agent:        run.Agent,
		Backend:      run.Backend,
		Workers:      run.Workers,
		Episodes:     run.Episodes,
		Seed:         run.Config.Seed,
		MeanReturn:   run.MeanReturn,
		SuccessRate:  run.SuccessRate,
		CreatedAtUTC: run.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, episodesFile, summaryFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (model.RunRecord, bool, error) {
	path := filepath.Join(baseDir, runID, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

// ReadEpisodeReturns reads the return column of a run's episodes.csv.
func ReadEpisodeReturns(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, episodesFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	col := -1
	for i, name := range header {
		if name == "return" {
			col = i
		}
	}
	if col < 0 {
		return nil, false, fmt.Errorf("episodes header has no return column")
	}

	returns := make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		value, err := strconv.ParseFloat(record[col], 64)
		if err != nil {
			return nil, false, err
		}
		returns = append(returns, value)
	}
	return returns, true, nil
}

func writeEpisodesCSV(path string, episodes []model.EpisodeRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(episodeHeader); err != nil {
		return err
	}
	for _, ep := range episodes {
		var finalX, finalY float64
		if n := len(ep.Trajectory); n > 0 {
			finalX, finalY = ep.Trajectory[n-1][0], ep.Trajectory[n-1][1]
		}
		goals := make([]string, 0, len(ep.ActiveGoals))
		for _, g := range ep.ActiveGoals {
			goals = append(goals, strconv.Itoa(g))
		}
		if err := writer.Write([]string{
			strconv.Itoa(ep.Worker),
			strconv.Itoa(ep.Episode),
			strconv.FormatUint(ep.Seed, 10),
			strings.Join(goals, ";"),
			strconv.Itoa(ep.GoalIndex),
			strconv.FormatFloat(ep.Return, 'f', -1, 64),
			strconv.Itoa(ep.Steps),
			strconv.Itoa(ep.CollisionSteps),
			strconv.FormatFloat(finalX, 'f', 4, 64),
			strconv.FormatFloat(finalY, 'f', 4, 64),
			ep.ObservationDigest,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
