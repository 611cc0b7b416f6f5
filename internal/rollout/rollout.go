// Package rollout collects T-maze episodes in parallel. Each worker owns
// its own simulator, environment and agent; nothing is shared between
// workers except the cancellation context.
package rollout

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tmaze/internal/model"
	"tmaze/internal/scape"
	"tmaze/internal/storage"
	"tmaze/internal/tmaze"
)

// AgentFactory builds the agent driving one worker.
type AgentFactory func(worker int) (scape.StepAgent, error)

type Request struct {
	Config            tmaze.Config
	NewSimulator      scape.SimulatorFactory
	NewAgent          AgentFactory
	AgentName         string
	Backend           string
	Workers           int
	EpisodesPerWorker int
	MaxSteps          int
	Logger            *zap.Logger
	// Now stamps the run record; defaults to time.Now.
	Now func() time.Time
}

type Result struct {
	Run      model.RunRecord
	Episodes []model.EpisodeRecord
}

func (r Request) validate() error {
	if r.NewSimulator == nil {
		return errors.New("rollout requires a simulator factory")
	}
	if r.NewAgent == nil {
		return errors.New("rollout requires an agent factory")
	}
	if r.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", r.Workers)
	}
	if r.EpisodesPerWorker <= 0 {
		return fmt.Errorf("episodes per worker must be > 0, got %d", r.EpisodesPerWorker)
	}
	if r.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be > 0, got %d", r.MaxSteps)
	}
	return r.Config.Validate()
}

// Collect runs Workers x EpisodesPerWorker episodes. Worker i seeds its
// environment with Config.Seed+i. Episodes are returned in worker order.
func Collect(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	logger := req.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := req.Now
	if now == nil {
		now = time.Now
	}

	runID := uuid.NewString()
	perWorker := make([][]model.EpisodeRecord, req.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < req.Workers; i++ {
		i := i
		g.Go(func() error {
			records, err := runWorker(gctx, req, runID, i, logger)
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			perWorker[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var episodes []model.EpisodeRecord
	for _, records := range perWorker {
		episodes = append(episodes, records...)
	}
	return Result{
		Run:      summarize(req, runID, now(), episodes),
		Episodes: episodes,
	}, nil
}

func runWorker(ctx context.Context, req Request, runID string, worker int, logger *zap.Logger) ([]model.EpisodeRecord, error) {
	cfg := req.Config
	cfg.RewardScales = append([]float64(nil), req.Config.RewardScales...)
	cfg.Seed = req.Config.Seed + uint64(worker)

	agent, err := req.NewAgent(worker)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	sim, err := req.NewSimulator()
	if err != nil {
		return nil, fmt.Errorf("create simulator: %w", err)
	}
	env, err := tmaze.New(cfg, sim, tmaze.WithLogger(logger.With(zap.Int("worker", worker))))
	if err != nil {
		_ = sim.Close()
		return nil, err
	}
	defer env.Close()

	records := make([]model.EpisodeRecord, 0, req.EpisodesPerWorker)
	for episode := 0; episode < req.EpisodesPerWorker; episode++ {
		if ea, ok := agent.(scape.EpisodeAgent); ok {
			ea.StartEpisode(episode)
		}
		outcome, err := scape.RunEpisode(ctx, env, agent, tmaze.ResetOptions{}, req.MaxSteps)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", episode, err)
		}
		records = append(records, model.EpisodeRecord{
			VersionedRecord:   storage.CurrentVersion(),
			RunID:             runID,
			Worker:            worker,
			Episode:           episode,
			Seed:              cfg.Seed,
			ActiveGoals:       outcome.ActiveGoals,
			GoalIndex:         outcome.GoalIndex,
			Return:            outcome.Return,
			Steps:             outcome.Steps,
			CollisionSteps:    outcome.CollisionSteps,
			Trajectory:        outcome.Trajectory,
			ObservationDigest: ObservationDigest(outcome.Final),
		})
	}
	logger.Info("rollout worker finished",
		zap.String("run_id", runID),
		zap.Int("worker", worker),
		zap.Uint64("seed", cfg.Seed),
		zap.Int("episodes", len(records)),
	)
	return records, nil
}

func summarize(req Request, runID string, createdAt time.Time, episodes []model.EpisodeRecord) model.RunRecord {
	run := model.RunRecord{
		VersionedRecord:   storage.CurrentVersion(),
		ID:                runID,
		CreatedAt:         createdAt.UTC(),
		Agent:             req.AgentName,
		Backend:           req.Backend,
		Workers:           req.Workers,
		EpisodesPerWorker: req.EpisodesPerWorker,
		MaxSteps:          req.MaxSteps,
		Config:            req.Config,
		Episodes:          len(episodes),
	}
	if len(episodes) == 0 {
		return run
	}
	var total float64
	successes := 0
	for _, ep := range episodes {
		total += ep.Return
		if ep.GoalIndex >= 0 {
			successes++
		}
		run.CollisionSteps += ep.CollisionSteps
	}
	run.MeanReturn = total / float64(len(episodes))
	run.SuccessRate = float64(successes) / float64(len(episodes))
	return run
}

// ObservationDigest hashes the proprioceptive vector followed by the
// vision tensor as little-endian float32 bits.
func ObservationDigest(obs tmaze.Observation) string {
	d := xxhash.New()
	buf := make([]byte, 0, 4)
	write := func(v float32) {
		buf = binary.LittleEndian.AppendUint32(buf[:0], math.Float32bits(v))
		_, _ = d.Write(buf)
	}
	for _, v := range obs.Proprio {
		write(v)
	}
	if obs.Vision != nil {
		for _, v := range obs.Vision.Data {
			write(v)
		}
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
