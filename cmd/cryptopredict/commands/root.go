package commands

import (
	"github.com/spf13/cobra"

	"github.com/wonny/cryptopredict/pkg/config"
)

var (
	// Global flags
	env        string
	policyPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cryptopredict",
	Short: "CryptoPredict - 4단계 레이어 체인 암호화폐 분석",
	Long: `CryptoPredict Unified CLI

Macro → Sector → Asset → Timing 네 레이어를 순서대로 평가하고,
신뢰도를 전파해 페르소나별(guest/user/admin) 분석을 제공합니다.

Usage:
  go run ./cmd/cryptopredict [command]

Examples:
  go run ./cmd/cryptopredict api
  go run ./cmd/cryptopredict analyze --persona admin --user ops
  go run ./cmd/cryptopredict scheduler start
  go run ./cmd/cryptopredict policy validate config/policy/cryptopredict_v1.yaml
  go run ./cmd/cryptopredict runs list --context default`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "policy YAML (default is POLICY_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the environment and applies the global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if env != "" {
		cfg.Env = env
	}
	if policyPath != "" {
		cfg.Analysis.PolicyPath = policyPath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// loadInteractiveConfig is loadConfig for one-shot commands whose output is read by a person
func loadInteractiveConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !verbose {
		// CLI 출력과 로그가 섞이지 않게
		cfg.LogLevel = "warn"
		cfg.LogFormat = "console"
	}
	return cfg, nil
}
