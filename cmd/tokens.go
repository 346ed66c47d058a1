package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"solbridge/config"
	"solbridge/pkg/registry"
	"solbridge/pkg/storage/postgres"
	"solbridge/pkg/types"
)

var (
	filterChain  string
	filterSymbol string

	newToken registry.ProjectToken
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List registered project tokens",
	Long: `List project tokens known to the official-route and destination-swap lookups.

Tokens live in PostgreSQL; postgres_dsn must be configured.

Examples:
  solbridge tokens
  solbridge tokens --chain 1
  solbridge tokens --symbol PRJ
  solbridge tokens add --id prj --symbol PRJ --chain 1 --token 0xabc... --mint PRJm... --decimals 9 --bridge-url https://bridge.example.org`,
	Run: runListTokens,
}

var addTokenCmd = &cobra.Command{
	Use:   "add",
	Short: "Register or update a project token",
	Args:  cobra.NoArgs,
	Run:   runAddToken,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(addTokenCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by source chain id")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")

	addTokenCmd.Flags().StringVar(&newToken.ID, "id", "", "Token id (REQUIRED)")
	addTokenCmd.Flags().StringVar(&newToken.Symbol, "symbol", "", "Token symbol")
	addTokenCmd.Flags().StringVar((*string)(&newToken.SourceChainID), "chain", "", "Source chain id (REQUIRED)")
	addTokenCmd.Flags().StringVar(&newToken.SourceToken, "token", "", "Source token address (REQUIRED)")
	addTokenCmd.Flags().StringVar(&newToken.SolanaMint, "mint", "", "Solana mint (REQUIRED)")
	addTokenCmd.Flags().IntVar(&newToken.Decimals, "decimals", 0, "Token decimals")
	addTokenCmd.Flags().StringVar(&newToken.OfficialBridgeURL, "bridge-url", "", "Official 1:1 bridge page")
	addTokenCmd.Flags().StringVar(&newToken.SwapViaMint, "via-mint", "", "Intermediate mint to bridge into before swapping")
}

func openTokenRegistry(ctx context.Context) (*postgres.TokenRegistry, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.PostgresDSN == "" {
		return nil, nil, errors.New("postgres_dsn is not configured. Set SOLBRIDGE_POSTGRES_DSN")
	}

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewTokenRegistry(pool), pool.Close, nil
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	// Get tokens with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching registered tokens..."
		s.Start()
	}

	var tokens []registry.ProjectToken
	reg, closeFn, err := openTokenRegistry(ctx)
	if err == nil {
		defer closeFn()
		tokens, err = reg.List(ctx)
	}
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// Apply filters
	filtered := tokens[:0:0]
	for _, token := range tokens {
		if filterChain != "" && !strings.EqualFold(token.SourceChainID.String(), filterChain) {
			continue
		}
		if filterSymbol != "" && !strings.Contains(strings.ToUpper(token.Symbol), strings.ToUpper(filterSymbol)) {
			continue
		}
		filtered = append(filtered, token)
	}

	// Output
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(filtered, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayTokens(filtered)
	}
}

func runAddToken(cmd *cobra.Command, args []string) {
	if newToken.ID == "" || newToken.SourceChainID == "" || newToken.SourceToken == "" || newToken.SolanaMint == "" {
		printError(errors.New("--id, --chain, --token and --mint are required"))
		os.Exit(1)
	}

	ctx := context.Background()
	reg, closeFn, err := openTokenRegistry(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeFn()

	if err := reg.Upsert(ctx, newToken); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess(color.GreenString("Registered %s (%s) on chain %s", newToken.ID, newToken.Symbol, newToken.SourceChainID))
}

func displayTokens(tokens []registry.ProjectToken) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            PROJECT TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	// Group tokens by source chain
	tokensByChain := make(map[types.ChainID][]registry.ProjectToken)
	for _, token := range tokens {
		tokensByChain[token.SourceChainID] = append(tokensByChain[token.SourceChainID], token)
	}

	chains := make([]string, 0, len(tokensByChain))
	for chain := range tokensByChain {
		chains = append(chains, chain.String())
	}
	sort.Strings(chains)

	for _, chain := range chains {
		color.Cyan("\nCHAIN %s", chain)
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range tokensByChain[types.ChainID(chain)] {
			route := "direct"
			switch {
			case token.HasOfficialBridge():
				route = "official bridge"
			case token.SwapViaMint != "":
				route = "via " + shorten(token.SwapViaMint, 12)
			}

			fmt.Printf("  %-10s  %2d decimals  %s -> %s  %s\n",
				color.YellowString(token.Symbol),
				token.Decimals,
				color.HiBlackString(shorten(token.SourceToken, 20)),
				shorten(token.SolanaMint, 20),
				color.HiBlackString(route))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d chains\n\n", len(tokens), len(chains))
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
