package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/config"
)

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Run 이력 조회",
	Long: `저장된 run 이력을 조회합니다 (STORE_BACKEND=postgres 필요).

Example:
  go run ./cmd/cryptopredict runs list --context default --limit 20
  go run ./cmd/cryptopredict runs show 6f1c...`,
}

var (
	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "컨텍스트의 run 목록 (최신순)",
		Args:  cobra.NoArgs,
		RunE:  runRunsList,
	}

	runsShowCmd = &cobra.Command{
		Use:   "show [run_id]",
		Short: "run 상세 (admin 관점)",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow,
	}

	runsContext string
	runsLimit   int
	runsJSON    bool
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().StringVar(&runsContext, "context", "", "context id (default context if empty)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs (0 = all)")
	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "print JSON")
}

func historyApp(ctx context.Context) (*app, error) {
	cfg, err := loadInteractiveConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.StoreBackend != config.StorePostgres {
		return nil, fmt.Errorf("run history needs STORE_BACKEND=postgres (current: %s)", cfg.StoreBackend)
	}
	return newApp(ctx, cfg, wireOptions{})
}

func runRunsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := historyApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	contextID := runsContext
	if contextID == "" {
		contextID = a.cfg.Analysis.DefaultContextID
	}

	runs, err := a.history.List(ctx, contextID, runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	summaries := make([]contracts.RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, r.Summary())
	}

	out := cmd.OutOrStdout()
	if runsJSON {
		return PrintJSON(out, summaries)
	}

	PrintHeader(out, "Runs", [][2]string{
		{"Context", contextID},
		{"Count", fmt.Sprintf("%d", len(summaries))},
	})
	if len(summaries) == 0 {
		PrintInfo(out, "no runs yet")
		return nil
	}
	PrintRunSummaries(out, summaries)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := historyApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.history.Get(ctx, args[0])
	if err != nil {
		return err
	}

	projection, err := a.adapter.Project(ctx, run, contracts.PersonaAdmin)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runsJSON {
		return PrintJSON(out, projection)
	}
	PrintProjection(out, projection)
	return nil
}
