package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/cryptopredict/internal/scheduler"
	"github.com/wonny/cryptopredict/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `기본 컨텍스트 분석을 cron 일정으로 실행합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/cryptopredict scheduler start
  go run ./cmd/cryptopredict scheduler start --contexts desk-ctx,ops-ctx
  go run ./cmd/cryptopredict scheduler run analysis_default`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- analysis_default: ANALYSIS_SCHEDULE (기본 15분마다, 기본 컨텍스트)
- analysis_<id>: --contexts 로 지정한 컨텍스트 (같은 일정)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerContexts []string
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().StringSliceVar(&schedulerContexts, "contexts", nil, "additional context ids to refresh")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== CryptoPredict Scheduler ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, a, err := initScheduler(ctx, false)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	if !a.cfg.Analysis.SchedulerEnabled {
		PrintWarning(cmd.OutOrStdout(), "SCHEDULER_ENABLED=false, nothing to do")
		return nil
	}

	sched.Start(ctx)

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.Jobs() {
		fmt.Printf("  - %s (%s)\n", jobName, a.cfg.Analysis.Schedule)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, a, err := initScheduler(context.Background(), true)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Registered jobs:")
	for name, st := range sched.GetJobStats() {
		fmt.Fprintf(out, "  - %s (%s)\n", name, st.Schedule)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, a, err := initScheduler(ctx, true)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	fmt.Fprintf(out, "Running job: %s\n", jobName)
	result, err := sched.RunNow(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		PrintError(out, fmt.Sprintf("%s failed after %d attempts: %s", jobName, result.Attempts, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(out, fmt.Sprintf("%s completed in %.2fs", jobName, result.Duration.Seconds()))
	return nil
}

func initScheduler(ctx context.Context, interactive bool) (*scheduler.Scheduler, *app, error) {
	// 1. Load config
	load := loadConfig
	if interactive {
		load = loadInteractiveConfig
	}
	cfg, err := load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Wire dependencies
	a, err := newApp(ctx, cfg, wireOptions{publish: true})
	if err != nil {
		return nil, nil, err
	}

	// 3. Register jobs
	sched := scheduler.New(a.log)
	contextIDs := append([]string{""}, schedulerContexts...)
	for _, id := range contextIDs {
		if err := sched.AddJob(jobs.NewAnalysisJob(a.orch, id, cfg.Analysis.Schedule, a.log)); err != nil {
			a.Close()
			return nil, nil, err
		}
	}

	return sched, a, nil
}
