package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/cryptopredict/internal/api"
	"github.com/wonny/cryptopredict/internal/scheduler"
	"github.com/wonny/cryptopredict/internal/scheduler/jobs"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 요청마다 4단계 분석 실행 후 페르소나별 응답
- 완료된 기본 컨텍스트 분석을 websocket으로 스트리밍
- --with-scheduler 로 기본 컨텍스트 주기 분석 동시 실행

Viewer headers:
  X-Viewer-Persona  guest | user | admin (default guest)
  X-Viewer-ID       user id (user, admin)

Endpoints:
  GET  /health                     - Health check
  GET  /metrics                    - Prometheus metrics
  GET  /api/analysis?context=<id>  - 분석 실행
  GET  /api/runs/{id}              - 저장된 run 조회 (admin)
  GET  /api/contexts/{id}/runs     - 컨텍스트 run 목록 (admin)
  GET  /api/stream                 - 실시간 분석 스트림 (websocket)

Example:
  go run ./cmd/cryptopredict api
  go run ./cmd/cryptopredict api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort       string
	withScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default is PORT)")
	apiCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "기본 컨텍스트 주기 분석 함께 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== CryptoPredict API Server ===")

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Wire dependencies
	a, err := newApp(ctx, cfg, wireOptions{stream: true, publish: true})
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"env":         cfg.Env,
		"store":       cfg.StoreBackend,
		"policy_hash": a.policyHash,
	}).Info("Initializing API server")

	// 3. Optional scheduler in the same process
	var sched *scheduler.Scheduler
	if withScheduler && cfg.Analysis.SchedulerEnabled {
		sched = scheduler.New(a.log)
		if err := sched.AddJob(jobs.NewAnalysisJob(a.orch, "", cfg.Analysis.Schedule, a.log)); err != nil {
			return fmt.Errorf("schedule analysis: %w", err)
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	// 4. Create server
	server := api.New(cfg, a.log, api.NewRouter(a.routerDeps(), a.log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	if a.metrics != nil {
		fmt.Println("  GET  /metrics")
	}
	fmt.Println("  GET  /api/analysis?context=<id>")
	fmt.Println("  GET  /api/runs/{id}")
	fmt.Println("  GET  /api/contexts/{id}/runs")
	fmt.Println("  GET  /api/stream")
	if sched != nil {
		fmt.Printf("\nScheduler: %v (%s)\n", sched.Jobs(), cfg.Analysis.Schedule)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or server failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	a.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
