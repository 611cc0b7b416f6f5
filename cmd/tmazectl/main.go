package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tmaze/internal/logging"
	"tmaze/internal/physics"
	"tmaze/internal/physics/planar"
	"tmaze/internal/physics/remote"
	"tmaze/internal/scape"
	"tmaze/internal/tmaze"
	tmazeapi "tmaze/pkg/tmaze"
)

const exportsDir = "exports"

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "collect":
		return runCollect(ctx, args[1:])
	case "evaluate":
		return runEvaluate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "episodes":
		return runEpisodes(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	case "serve-physics":
		return runServePhysics(ctx, args[1:])
	case "config":
		return runConfig(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := bindCommon(fs)
	agentName := fs.String("agent", "random", "agent: random|idle|forward|waypoint-left|waypoint-right")
	episodes := fs.Int("episodes", 1, "episodes to run")
	maxSteps := fs.Int("max-steps", 150, "step limit per episode")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *episodes <= 0 || *maxSteps <= 0 {
		return errors.New("episodes and max-steps must be > 0")
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	agent, err := scape.NewAgentByName(*agentName, cfg.Env.Zoom, cfg.Env.Seed)
	if err != nil {
		return err
	}
	if err := scape.CheckObservationMode(agent, cfg.Env.ObservationMode); err != nil {
		return err
	}
	env, err := client.NewEnv(ctx, cfg.Env, backendOf(cfg))
	if err != nil {
		return err
	}
	defer env.Close()

	for i := 0; i < *episodes; i++ {
		if ea, ok := agent.(scape.EpisodeAgent); ok {
			ea.StartEpisode(i)
		}
		outcome, err := scape.RunEpisode(ctx, env, agent, tmaze.ResetOptions{}, *maxSteps)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "episode=%d goals=%v goal=%d return=%.3f steps=%d collision_steps=%d\n",
			i, outcome.ActiveGoals, outcome.GoalIndex, outcome.Return, outcome.Steps, outcome.CollisionSteps)
	}
	return nil
}

func runCollect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	common := bindCommon(fs)
	agentName := fs.String("agent", "", "agent: random|idle|forward|waypoint-left|waypoint-right")
	workers := fs.Int("workers", 0, "parallel workers")
	episodes := fs.Int("episodes", 0, "episodes per worker")
	maxSteps := fs.Int("max-steps", 0, "step limit per episode")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	if *agentName != "" {
		cfg.Rollout.Agent = *agentName
	}
	if *workers > 0 {
		cfg.Rollout.Workers = *workers
	}
	if *episodes > 0 {
		cfg.Rollout.EpisodesPerWorker = *episodes
	}
	if *maxSteps > 0 {
		cfg.Rollout.MaxSteps = *maxSteps
	}

	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Collect(ctx, tmazeapi.CollectRequest{
		Env:               cfg.Env,
		Backend:           backendOf(cfg),
		Agent:             cfg.Rollout.Agent,
		Workers:           cfg.Rollout.Workers,
		EpisodesPerWorker: cfg.Rollout.EpisodesPerWorker,
		MaxSteps:          cfg.Rollout.MaxSteps,
	})
	if err != nil {
		return err
	}
	s := summary.Summary
	fmt.Fprintf(stdout, "run_id=%s episodes=%d mean_return=%.3f std_return=%.3f success_rate=%.3f left=%d right=%d timeouts=%d collision_steps=%d artifacts=%s\n",
		summary.Run.ID, s.Episodes, s.MeanReturn, s.StdReturn, s.SuccessRate, s.LeftGoalRuns, s.RightGoalRuns, s.TimeoutRuns, s.CollisionSteps, summary.ArtifactsDir)
	return nil
}

func runEvaluate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	common := bindCommon(fs)
	agentName := fs.String("agent", "random", "agent: random|idle|forward|waypoint-left|waypoint-right")
	mode := fs.String("mode", "gt", "evaluation mode: gt|validation|test|benchmark")
	jsonOut := fs.Bool("json", false, "emit evaluation trace as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Evaluate(ctx, tmazeapi.EvaluateRequest{
		Env:     cfg.Env,
		Backend: backendOf(cfg),
		Agent:   *agentName,
		Mode:    *mode,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"agent":   result.Agent,
			"mode":    result.Mode,
			"fitness": result.Fitness,
			"trace":   result.Trace,
		})
	}
	fmt.Fprintf(stdout, "agent=%s mode=%s fitness=%.3f success_runs=%v timeout_runs=%v collision_steps=%v\n",
		result.Agent, result.Mode, result.Fitness, result.Trace["success_runs"], result.Trace["timeout_runs"], result.Trace["collision_steps"])
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := bindCommon(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	entries, err := client.Runs(ctx, tmazeapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s agent=%s backend=%s workers=%d episodes=%d seed=%d mean_return=%.3f success_rate=%.3f\n",
			e.RunID, e.CreatedAtUTC, e.Agent, e.Backend, e.Workers, e.Episodes, e.Seed, e.MeanReturn, e.SuccessRate)
	}
	return nil
}

func runEpisodes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("episodes", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max episodes to show (0 = all)")
	jsonOut := fs.Bool("json", false, "emit episodes as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	episodes, err := client.Episodes(ctx, tmazeapi.EpisodesRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(episodes)
	}
	for _, ep := range episodes {
		fmt.Fprintf(stdout, "worker=%d episode=%d seed=%d goals=%v goal=%d return=%.3f steps=%d collision_steps=%d digest=%s\n",
			ep.Worker, ep.Episode, ep.Seed, ep.ActiveGoals, ep.GoalIndex, ep.Return, ep.Steps, ep.CollisionSteps, ep.ObservationDigest)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	out := fs.String("out", exportsDir, "export directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, tmazeapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *out})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runPlot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id whose episode trajectory is drawn")
	latest := fs.Bool("latest", false, "use the most recent run")
	episode := fs.Int("episode", 0, "episode position within the run")
	exitLines := fs.Bool("exit-lines", false, "draw the goal alcove exit lines")
	out := fs.String("out", "tmaze.png", "output PNG path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	err = client.Plot(ctx, tmazeapi.PlotRequest{
		Zoom:      cfg.Env.Zoom,
		RunID:     *runID,
		Latest:    *latest,
		Episode:   *episode,
		ExitLines: *exitLines,
		Out:       *out,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return nil
}

func runServePhysics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve-physics", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:8765", "listen address")
	path := fs.String("path", "/physics", "websocket endpoint path")
	logLevel := fs.String("log-level", logging.DefaultLevel, "log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := logging.New(*logLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	mux := http.NewServeMux()
	mux.Handle(*path, remote.NewServer(func() (physics.Simulator, error) {
		return planar.New(physics.ModeDirect)
	}, logger))
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("physics server listening", zap.String("addr", *addr), zap.String("path", *path))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("physics server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	common := bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: tmazectl <run|collect|evaluate|runs|episodes|export|plot|serve-physics|config> [flags]", msg)
}
