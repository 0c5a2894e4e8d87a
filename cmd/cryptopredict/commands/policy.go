package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wonny/cryptopredict/internal/policy"
)

// policyCmd represents the policy command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "분석 정책(YAML) 검증/해시",
	Long: `레이어 임계값, 타임아웃, 불일치 규칙표를 담은 정책 파일을 다룹니다.
모든 run에는 정책 해시가 기록되어 재현성을 보장합니다.

Example:
  go run ./cmd/cryptopredict policy validate config/policy/cryptopredict_v1.yaml
  go run ./cmd/cryptopredict policy hash
  go run ./cmd/cryptopredict policy default > my_policy.yaml`,
}

var (
	policyValidateCmd = &cobra.Command{
		Use:   "validate [path]",
		Short: "정책 파일 검증",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPolicyValidate,
	}

	policyHashCmd = &cobra.Command{
		Use:   "hash [path]",
		Short: "정책 해시 출력",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPolicyHash,
	}

	policyDefaultCmd = &cobra.Command{
		Use:   "default",
		Short: "내장 기본 정책을 YAML로 출력",
		Args:  cobra.NoArgs,
		RunE:  runPolicyDefault,
	}
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyHashCmd)
	policyCmd.AddCommand(policyDefaultCmd)
}

// policyArg resolves the file argument: explicit path, then --policy, then POLICY_PATH
func policyArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadInteractiveConfig()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Analysis.PolicyPath, nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path, err := policyArg(args)
	if err != nil {
		return err
	}

	cfg, _, err := policy.Load(path)
	if err != nil {
		PrintError(out, fmt.Sprintf("%s: %v", path, err))
		return err
	}

	hash, err := policy.Hash(cfg)
	if err != nil {
		return err
	}

	PrintHeader(out, "Policy", [][2]string{
		{"File", path},
		{"ID", fmt.Sprintf("%s v%s", cfg.Meta.PolicyID, cfg.Meta.Version)},
		{"Unknown", string(cfg.Orchestrator.UnknownPolicy)},
		{"Timeout", cfg.Orchestrator.LayerTimeout.String()},
		{"Rules", fmt.Sprintf("%d", len(cfg.Disagreement.Rules))},
		{"Hash", hash},
	})

	warnings := policy.Warn(cfg)
	for _, w := range warnings {
		PrintWarning(out, fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	PrintSuccess(out, fmt.Sprintf("valid (%d warnings)", len(warnings)))
	return nil
}

func runPolicyHash(cmd *cobra.Command, args []string) error {
	path, err := policyArg(args)
	if err != nil {
		return err
	}

	cfg, _, err := policy.Load(path)
	if err != nil {
		return fmt.Errorf("load policy %s: %w", path, err)
	}

	hash, err := policy.Hash(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func runPolicyDefault(cmd *cobra.Command, args []string) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(policy.Default())
}
