package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// contextCmd represents the context command
var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "관심종목 컨텍스트 조회",
	Long: `분석 범위가 되는 관심종목 컨텍스트를 조회합니다.

Example:
  go run ./cmd/cryptopredict context show
  go run ./cmd/cryptopredict context show alice-ctx
  go run ./cmd/cryptopredict context list --owner alice`,
}

var (
	contextShowCmd = &cobra.Command{
		Use:   "show [context_id]",
		Short: "컨텍스트 상세 (기본 컨텍스트 if empty)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runContextShow,
	}

	contextListCmd = &cobra.Command{
		Use:   "list",
		Short: "소유자별 컨텍스트 목록",
		Args:  cobra.NoArgs,
		RunE:  runContextList,
	}

	contextOwner string
)

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextListCmd)

	contextListCmd.Flags().StringVar(&contextOwner, "owner", "", "user id (system contexts if empty)")
}

// ownerLister is implemented by the postgres watchlist repository
type ownerLister interface {
	ListByOwner(ctx context.Context, owner contracts.Owner) ([]*contracts.WatchlistContext, error)
}

// allLister is implemented by the in-memory watchlist store
type allLister interface {
	List(ctx context.Context) []*contracts.WatchlistContext
}

func contextApp(ctx context.Context) (*app, error) {
	cfg, err := loadInteractiveConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg, wireOptions{})
}

func runContextShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := contextApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var wc *contracts.WatchlistContext
	if len(args) == 1 {
		wc, err = a.watchlists.GetContext(ctx, args[0])
	} else {
		wc, err = a.watchlists.DefaultContext(ctx)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	PrintHeader(out, "Watchlist context", [][2]string{
		{"ID", wc.ID},
		{"Name", wc.Name},
		{"Owner", wc.Owner.String()},
		{"Version", fmt.Sprintf("%d", wc.Version)},
		{"Updated", FormatTime(wc.UpdatedAt)},
		{"Assets", fmt.Sprintf("%d", len(wc.Assets))},
	})
	for i, symbol := range wc.Assets {
		fmt.Fprintf(out, "   %2d. %s\n", i+1, symbol)
	}
	return nil
}

func runContextList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := contextApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	owner := contracts.SystemOwner()
	if contextOwner != "" {
		owner = contracts.UserOwner(contextOwner)
	}

	var list []*contracts.WatchlistContext
	switch store := a.watchlists.(type) {
	case ownerLister:
		if list, err = store.ListByOwner(ctx, owner); err != nil {
			return err
		}
	case allLister:
		for _, wc := range store.List(ctx) {
			if wc.Owner == owner {
				list = append(list, wc)
			}
		}
	default:
		return fmt.Errorf("store %T cannot list contexts", a.watchlists)
	}

	out := cmd.OutOrStdout()
	widths := []int{24, 28, 8, 40}
	PrintTableHeader(out, []string{"ID", "NAME", "VERSION", "ASSETS"}, widths)
	for _, wc := range list {
		PrintTableRow(out, []string{wc.ID, wc.Name, fmt.Sprintf("%d", wc.Version), strings.Join(wc.Assets, ",")}, widths)
	}
	return nil
}
