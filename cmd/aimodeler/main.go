package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aimodeler/internal/config"
	"aimodeler/internal/executor"
	"aimodeler/internal/export"
	"aimodeler/internal/history"
	"aimodeler/internal/logging"
	"aimodeler/internal/material"
	"aimodeler/internal/plan"
	"aimodeler/internal/planner"
	"aimodeler/internal/scene"
)

var (
	// Global flags
	verbose   bool
	workspace string
	apiKey    string
	baseURL   string
	units     string
	offline   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aimodeler",
	Short: "aimodeler - prompt-to-geometry plan engine",
	Long: `aimodeler turns a natural-language description of a simple 3D scene
into a deterministic sequence of geometry-construction steps and applies
them transactionally: either every step lands or the scene is unchanged.

Planning prefers the configured remote service and falls back to the
built-in rule engine when the service cannot deliver a valid plan.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app bundles the wired components one command invocation needs.
type app struct {
	cfg      *config.Config
	presets  *material.Registry
	rules    *planner.RulePlanner
	remote   *planner.RemotePlanner
	executor *executor.Executor
}

func buildApp() (*app, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.Planner.APIKey = apiKey
	}
	if baseURL != "" {
		cfg.Planner.BaseURL = baseURL
	}
	if units != "" {
		cfg.Units = strings.ToUpper(units)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	presets := material.NewRegistry()
	if cfg.Materials.Path != "" {
		presets, err = material.LoadRegistry(cfg.Materials.Path)
		if err != nil {
			return nil, err
		}
	}

	a := &app{
		cfg:      cfg,
		presets:  presets,
		rules:    planner.NewRulePlanner(presets),
		executor: executor.New(presets),
	}
	if cfg.Planner.BaseURL != "" {
		a.remote = planner.NewRemotePlanner(cfg.Planner.BaseURL, cfg.Planner.APIKey,
			planner.RetryConfig{
				MaxAttempts:       cfg.Planner.MaxAttempts,
				BaseDelay:         cfg.Planner.BaseDelay(),
				MaxDelay:          cfg.Planner.MaxDelay(),
				PerAttemptTimeout: cfg.Planner.AttemptTimeout(),
			}, presets)
	}
	return a, nil
}

// makePlan runs the remote-then-fallback planning flow.
func (a *app) makePlan(ctx context.Context, prompt string) (*plan.Plan, planner.Provenance) {
	if offline || a.remote == nil {
		return a.rules.Plan(prompt, a.cfg.Units), planner.ProvenanceFallback
	}
	return a.remote.Plan(ctx, prompt, a.cfg.Units)
}

var planCmd = &cobra.Command{
	Use:   "plan [prompt]",
	Short: "Print the plan for a prompt without executing it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		prompt := strings.Join(args, " ")

		p, provenance := a.makePlan(cmd.Context(), prompt)
		data, err := p.Marshal()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		if provenance == planner.ProvenanceFallback && a.remote != nil && !offline {
			fmt.Fprintln(os.Stderr, "note: remote planner unavailable, used offline fallback")
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Plan and execute a prompt against a fresh scene",
	Long: `Plans the prompt (remote service first unless --offline, rule engine as
fallback), validates the plan, and applies it to an in-memory scene with
all-or-nothing semantics. The outcome is appended to the history store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		prompt := strings.Join(args, " ")
		sc := scene.NewMemoryScene()

		_, err = runGenerate(cmd.Context(), a, prompt, sc)
		return err
	},
}

// runGenerate executes the full generate flow and records history.
func runGenerate(ctx context.Context, a *app, prompt string, sc *scene.MemoryScene) (*executor.Report, error) {
	start := time.Now()
	p, provenance := a.makePlan(ctx, prompt)
	logger.Debug("plan ready",
		zap.String("plan_id", p.ID),
		zap.Int("steps", len(p.Steps)),
		zap.String("provenance", string(provenance)))

	if provenance == planner.ProvenanceFallback && a.remote != nil && !offline {
		fmt.Fprintln(os.Stderr, "note: remote planner unavailable, used offline fallback")
	}

	report, execErr := a.executor.Execute(ctx, p, sc)
	entry := history.Entry{
		PlanID:  p.ID,
		Prompt:  prompt,
		Planner: string(provenance),
		Status:  string(report.State),
		Objects: report.Objects,
	}
	if execErr != nil {
		entry.Error = execErr.Error()
		var partial *executor.PartialRollbackError
		if errors.As(execErr, &partial) {
			entry.Status = "partial_rollback"
		}
	}
	appendHistory(a, entry)

	if execErr != nil {
		var verr *executor.ValidationError
		if errors.As(execErr, &verr) {
			fmt.Fprintf(os.Stderr, "plan rejected, scene untouched:\n")
			for _, v := range verr.Violations {
				fmt.Fprintf(os.Stderr, "  - %s\n", v)
			}
			return report, execErr
		}
		var partial *executor.PartialRollbackError
		if errors.As(execErr, &partial) {
			fmt.Fprintf(os.Stderr, "execution failed at %v and rollback left residue: %s\n",
				partial.Step, strings.Join(partial.Residue, ", "))
			return report, execErr
		}
		fmt.Fprintf(os.Stderr, "execution failed, all changes rolled back: %v\n", execErr)
		return report, execErr
	}

	fmt.Printf("plan %s committed in %s\n", p.ID, time.Since(start).Round(time.Millisecond))
	for _, obj := range report.Objects {
		fmt.Printf("  created %s\n", obj)
	}
	for _, m := range report.Mutations {
		fmt.Printf("  applied %s\n", m)
	}
	return report, nil
}

func appendHistory(a *app, entry history.Entry) {
	store, err := history.NewStore(a.cfg.HistoryPath(workspace))
	if err != nil {
		logger.Warn("history store unavailable", zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.Append(entry); err != nil {
		logger.Warn("failed to record history", zap.Error(err))
	}
}

var exportCmd = &cobra.Command{
	Use:   "export [prompt] [path]",
	Short: "Generate a scene from a prompt and export it",
	Long:  `Runs the generate flow, then writes the resulting scene to the given path. The format follows the file extension (only .obj is built in).`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		prompt, path := args[0], args[1]

		format, err := export.ParseFormat(filepath.Ext(path))
		if err != nil {
			return err
		}
		exporter, err := export.For(format)
		if err != nil {
			return err
		}

		sc := scene.NewMemoryScene()
		if _, err := runGenerate(cmd.Context(), a, prompt, sc); err != nil {
			return err
		}
		if err := exporter.Export(sc, path); err != nil {
			return err
		}
		fmt.Printf("exported %d object(s) to %s\n", sc.ObjectCount(), path)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent generate runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		store, err := history.NewStore(a.cfg.HistoryPath(workspace))
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Recent(20)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  [%s/%s]  %s",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Status, e.Planner, e.Prompt)
			if len(e.Objects) > 0 {
				line += "  -> " + strings.Join(e.Objects, ", ")
			}
			if e.Error != "" {
				line += "  !! " + e.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		store, err := history.NewStore(a.cfg.HistoryPath(workspace))
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("history cleared")
		return nil
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List material presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		for _, name := range a.presets.Names() {
			p, _ := a.presets.Lookup(name)
			fmt.Printf("%-16s metallic=%.2f roughness=%.2f\n", name, p.Metallic, p.Roughness)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "remote planner API key")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "remote planner base URL")
	rootCmd.PersistentFlags().StringVarP(&units, "units", "u", "", "length units: M, CM or MM")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "skip the remote planner")

	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(planCmd, generateCmd, exportCmd, historyCmd, presetsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
