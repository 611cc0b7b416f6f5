package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"tmaze/internal/model"
	"tmaze/internal/tmaze"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              "run-1",
		CreatedAt:       time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Agent:           "idle",
		Config:          tmaze.DefaultConfig(),
	}
	want := input.Config.RewardScales[0]
	if err := store.SaveRun(ctx, input); err != nil {
		t.Fatalf("save run: %v", err)
	}

	// the stored copy is detached from the caller's slices
	input.Config.RewardScales[0] = -1

	output, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if output.Agent != "idle" || output.Config.RewardScales[0] != want {
		t.Fatalf("unexpected run: %+v", output)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreListRunsOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		run := model.RunRecord{VersionedRecord: CurrentVersion(), ID: id, CreatedAt: base.Add(time.Duration(2-i) * time.Minute)}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "b" || runs[1].ID != "a" || runs[2].ID != "c" {
		t.Fatalf("unexpected run order: %+v", runs)
	}
}

func TestMemoryStoreEpisodesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.EpisodeRecord{{
		VersionedRecord: CurrentVersion(),
		RunID:           "run-1",
		GoalIndex:       0,
		Return:          1000,
		Trajectory:      [][2]float64{{0, -5}, {0, -4}},
	}}
	if err := store.SaveEpisodes(ctx, "run-1", input); err != nil {
		t.Fatalf("save episodes: %v", err)
	}
	input[0].Trajectory[0] = [2]float64{9, 9}

	output, ok, err := store.GetEpisodes(ctx, "run-1")
	if err != nil {
		t.Fatalf("get episodes: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted episodes")
	}
	if len(output) != 1 || output[0].Trajectory[0] != [2]float64{0, -5} {
		t.Fatalf("unexpected episodes: %+v", output)
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	err := store.SaveRun(context.Background(), model.RunRecord{ID: "x"})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}
