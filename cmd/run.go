package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/config"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
	"github.com/JakeFAU/catalog-enricher/internal/orchestrator"
)

type runFlags struct {
	kind        string
	content     []string
	limit       int
	all         bool
	concurrency int
}

// newRunCmd creates the 'run' subcommand, which enriches one batch of subjects.
func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enrich a batch of wines or wineries",
		Example: `  enricher run --kind wine --content label,price --limit 200
  enricher run --kind winery --all`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.kind, "kind", "", "subject kind: wine or winery")
	cmd.Flags().StringSliceVar(&flags.content, "content", nil, "content types to fill (default: all for the kind)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum number of subjects (0 uses run.max_subjects)")
	cmd.Flags().BoolVar(&flags.all, "all", false, "revisit subjects that already have values")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "worker count, 1-8 (0 uses run.concurrency)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func runBatch(cmd *cobra.Command, flags runFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	runCfg, kind, err := buildRunConfig(appInstance.Config(), flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, err := appInstance.Orchestrator(ctx, runCfg)
	if err != nil {
		return err
	}
	stats, runErr := orch.Run(ctx, kind)

	mcfg := appInstance.Config().Metrics
	if err := metrics.Push(cmd.Context(), mcfg.PushgatewayURL, mcfg.Job); err != nil {
		appInstance.Logger().Warn("metrics push failed", zap.Error(err))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return runErr
}

// buildRunConfig merges command flags over the configured run section.
func buildRunConfig(cfg config.Config, flags runFlags) (orchestrator.Config, enrich.Kind, error) {
	kind, ok := enrich.ParseKind(strings.ToLower(flags.kind))
	if !ok {
		return orchestrator.Config{}, "", fmt.Errorf("unknown kind %q (want wine or winery)", flags.kind)
	}

	cts, err := cfg.ContentTypes()
	if err != nil {
		return orchestrator.Config{}, "", err
	}
	if len(flags.content) > 0 {
		if cts, err = config.ParseContentTypes(flags.content); err != nil {
			return orchestrator.Config{}, "", err
		}
	}
	for _, ct := range cts {
		if ct.Kind() != kind {
			return orchestrator.Config{}, "", fmt.Errorf("content type %q does not apply to %s", ct, kind)
		}
	}

	runCfg := orchestrator.Config{
		Concurrency:  cfg.Run.Concurrency,
		SubjectDelay: cfg.Run.SubjectDelay,
		ContentTypes: cts,
		MaxSubjects:  cfg.Run.MaxSubjects,
		OnlyMissing:  cfg.Run.OnlyMissing && !flags.all,
	}
	if flags.limit > 0 {
		runCfg.MaxSubjects = flags.limit
	}
	if flags.concurrency != 0 {
		if flags.concurrency < 1 || flags.concurrency > orchestrator.MaxConcurrency {
			return orchestrator.Config{}, "", fmt.Errorf("--concurrency must be between 1 and %d", orchestrator.MaxConcurrency)
		}
		runCfg.Concurrency = flags.concurrency
	}
	return runCfg, kind, nil
}
