package model

import (
	"time"

	"tmaze/internal/tmaze"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarizes one collection run.
type RunRecord struct {
	VersionedRecord
	ID                string       `json:"id"`
	CreatedAt         time.Time    `json:"created_at"`
	Agent             string       `json:"agent"`
	Backend           string       `json:"backend"`
	Workers           int          `json:"workers"`
	EpisodesPerWorker int          `json:"episodes_per_worker"`
	MaxSteps          int          `json:"max_steps"`
	Config            tmaze.Config `json:"config"`
	Episodes          int          `json:"episodes"`
	MeanReturn        float64      `json:"mean_return"`
	SuccessRate       float64      `json:"success_rate"`
	CollisionSteps    int          `json:"collision_steps"`
}

// EpisodeRecord is the outcome of one episode of a run.
type EpisodeRecord struct {
	VersionedRecord
	RunID       string `json:"run_id"`
	Worker      int    `json:"worker"`
	Episode     int    `json:"episode"`
	Seed        uint64 `json:"seed"`
	ActiveGoals []int  `json:"active_goals"`
	// GoalIndex is the reached goal, -1 when the episode timed out.
	GoalIndex      int          `json:"goal_index"`
	Return         float64      `json:"return"`
	Steps          int          `json:"steps"`
	CollisionSteps int          `json:"collision_steps"`
	Trajectory     [][2]float64 `json:"trajectory"`
	// ObservationDigest is the xxhash of the final observation tensor.
	ObservationDigest string `json:"observation_digest"`
}
