package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/sw965/texplore/agent"
	"github.com/sw965/texplore/config"
	"github.com/sw965/texplore/env"
	"github.com/sw965/texplore/logging"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/planner"
	"github.com/sw965/texplore/tree"
)

type runFlags struct {
	configPath  string
	envName     string
	gamma       float64
	epsilon     float64
	m           int
	lambda      float64
	history     int
	nmodels     int
	model       string
	trainMode   string
	freq        int
	explore     string
	actRate     float64
	seed        uint64
	filename    string
	seeds       string
	episodes    int
	steps       int
	logLevel    string
	logFormat   string
	debug       bool
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the model-based agent in an environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.config(cmd)
			if err != nil {
				return err
			}
			return runAgent(cmd.Context(), cmd, cfg, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML config file merged over the defaults")
	fs.StringVar(&f.envName, "env", "chain", "environment: chain or mountaincar")
	fs.Float64Var(&f.gamma, "gamma", 0.99, "discount factor")
	fs.Float64Var(&f.epsilon, "epsilon", 0, "exploration rate, only with --explore epsilon")
	fs.IntVar(&f.m, "m", 5, "visits before a state-action is known")
	fs.Float64Var(&f.lambda, "lambda", 0.1, "eligibility trace parameter")
	fs.IntVar(&f.history, "history", 0, "number of past actions added to the model input")
	fs.IntVar(&f.nmodels, "nmodels", 1, "number of trees per factor")
	fs.StringVar(&f.model, "model", "tree", "model type: tree, stump, m5multi, m5single, m5allmulti, m5allsingle, lstmulti, lstsingle, allm5types")
	fs.StringVar(&f.trainMode, "train-mode", "every", "tree rebuild trigger: every, onerror or everyn")
	fs.IntVar(&f.freq, "freq", 1, "experiences between rebuilds with --train-mode everyn")
	fs.StringVar(&f.explore, "explore", "greedy", "exploration: greedy, unknown or epsilon")
	fs.Float64Var(&f.actRate, "actrate", 10, "actions per second")
	fs.Uint64Var(&f.seed, "seed", 1, "random seed")
	fs.StringVar(&f.filename, "filename", "", "policy file loaded at start if present and saved at the end")
	fs.StringVar(&f.seeds, "seeds", "", "seed experience file")
	fs.IntVar(&f.episodes, "episodes", 100, "number of episodes")
	fs.IntVar(&f.steps, "steps", 1000, "maximum steps per episode")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	fs.BoolVar(&f.debug, "debug", false, "shorthand for --log-level debug")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// config は既定値、設定ファイル、明示されたフラグの順に重ねる。
func (f *runFlags) config(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			if errors.Is(err, config.ErrInvalidConfig) {
				return cfg, err
			}
			return cfg, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		cfg = loaded
	}

	fs := cmd.Flags()
	set := fs.Changed
	if set("env") {
		cfg.Env.Name = f.envName
	}
	if set("gamma") {
		cfg.Planner.Gamma = f.gamma
	}
	if set("epsilon") {
		cfg.Agent.Epsilon = f.epsilon
	}
	if set("m") {
		cfg.Model.M = f.m
	}
	if set("lambda") {
		cfg.Planner.Lambda = f.lambda
	}
	if set("history") {
		cfg.Planner.History = f.history
	}
	if set("nmodels") {
		cfg.Model.NumModels = f.nmodels
	}
	if set("model") {
		t, err := mdp.ParseModelType(f.model)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		cfg.Model.Type = t
	}
	if set("train-mode") {
		m, err := tree.ParseTrainMode(f.trainMode)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		cfg.Model.TrainMode = m
	}
	if set("freq") {
		cfg.Model.Freq = f.freq
	}
	if set("explore") {
		e, err := planner.ParseExploration(f.explore)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		cfg.Planner.Exploration = e
	}
	if set("actrate") {
		cfg.Planner.ActRate = f.actRate
	}
	if set("seed") {
		cfg.Agent.Seed = f.seed
		cfg.Env.Seed = f.seed
	}
	if set("filename") {
		cfg.Agent.PolicyFile = f.filename
	}
	if set("seeds") {
		cfg.Agent.SeedFile = f.seeds
	}
	if set("episodes") {
		cfg.Run.Episodes = f.episodes
	}
	if set("steps") {
		cfg.Run.Steps = f.steps
	}
	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func runAgent(ctx context.Context, cmd *cobra.Command, cfg config.Config, f *runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg.Log.Output = cmd.ErrOrStderr()
	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	e, err := env.New(cfg.EnvOptions())
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	ag, err := agent.New(cfg, config.TaskOf(e))
	if err != nil {
		return err
	}
	ag.WithLogger(logger, level)
	defer ag.Close()

	if f.metricsAddr != "" {
		go serveMetrics(f.metricsAddr, logger)
	}

	if err := ag.SeedExperiences(e.Seedings()); err != nil {
		return err
	}
	if cfg.Agent.SeedFile != "" {
		if err := ag.LoadSeeds(cfg.Agent.SeedFile); err != nil {
			return err
		}
	}
	if path := cfg.Agent.PolicyFile; path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := ag.LoadPolicy(path); err != nil {
				return err
			}
		}
	}

	logger.Info("run started",
		"run_id", ag.RunID(),
		"env", cfg.Env.Name,
		"model", cfg.Model.Type,
		"exploration", cfg.Planner.Exploration,
		"episodes", cfg.Run.Episodes,
	)
	sums, runErr := agent.Run(ctx, e, ag, cfg.Run.Episodes, cfg.Run.Steps)
	out := cmd.OutOrStdout()
	for i, s := range sums {
		fmt.Fprintf(out, "%d\t%g\n", i, s)
	}
	if closeErr := ag.Close(); runErr == nil {
		runErr = closeErr
	}
	if path := cfg.Agent.PolicyFile; path != "" {
		if err := ag.SavePolicy(path); err != nil && runErr == nil {
			runErr = err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		logger.Warn("run interrupted", "episodes", len(sums))
		return nil
	}
	return runErr
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "addr", addr, "error", err)
	}
}
