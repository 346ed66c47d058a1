package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"solbridge/config"
	"solbridge/pkg/aggregator"
	"solbridge/pkg/client"
	"solbridge/pkg/parser"
	"solbridge/pkg/types"
)

var (
	quoteChainID   string
	quoteChainKind string
	fromAddr       string
	toAddr         string
	slippage       string
	executeRoute   int
	execute        bool
	noConfirm      bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <destination-token>",
	Short: "Quote routes for a transfer into Solana",
	Long: `Ask the solbridge API for signed routes moving a source asset into a Solana token.

The amount is an integer in the source token's smallest unit. The source token
is a token address or "native"; the destination is a Solana mint or symbol.

IMPORTANT:
  - You MUST specify --from (the source wallet) and --to (the Solana wallet)
  - Routes expire; create a session with --execute before the quote expires

Examples:
  # 1 ETH on Ethereum to SOL
  solbridge quote 1000000000000000000 native to So11111111111111111111111111111111111111112 --from 0xabc... --to 9Wz...

  # 25 USDC on Base, then start a session for the best route
  solbridge quote 25000000 0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913 to EPjFWJd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v --chain-id 8453 --from 0xabc... --to 9Wz... --execute`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteChainID, "chain-id", "1", "Source chain id")
	quoteCmd.Flags().StringVar(&quoteChainKind, "chain-type", string(types.ChainEVM), "Source chain type (evm, solana, bitcoin, cosmos, ton)")
	quoteCmd.Flags().StringVar(&fromAddr, "from", "", "Source wallet address (REQUIRED)")
	quoteCmd.Flags().StringVar(&toAddr, "to", "", "Solana wallet receiving the tokens (REQUIRED)")
	quoteCmd.Flags().StringVar(&slippage, "slippage", parser.DefaultSlippage, "Maximum slippage in percent")
	quoteCmd.Flags().BoolVar(&execute, "execute", false, "Start an execution session for the selected route")
	quoteCmd.Flags().IntVar(&executeRoute, "route", 1, "Route number to execute (with --execute)")
	quoteCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runQuote(cmd *cobra.Command, args []string) {
	// Parse the command
	quoteReq, err := parser.ParseQuoteCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	kind, err := types.ParseChainKind(quoteChainKind)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	intent := parser.NormalizeIntent(types.TransferIntent{
		SourceChainID:    types.ChainID(quoteChainID),
		SourceChainKind:  kind,
		SourceToken:      quoteReq.SourceToken,
		SourceAmount:     quoteReq.Amount,
		DestinationToken: quoteReq.DestinationToken,
		SourceAddress:    fromAddr,
		SolanaAddress:    toAddr,
		SlippagePercent:  slippage,
	})
	if err := parser.ValidateIntent(&intent); err != nil {
		printError(err)
		os.Exit(1)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	apiClient := client.New(apiURL(cmd, cfg), nil)

	// Get quote with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching routes..."
		s.Start()
	}

	res, err := apiClient.Quote(context.Background(), intent)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if verbose {
		fmt.Printf("\nQuote received:\n")
		quoteJSON, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(quoteJSON))
	}

	if jsonOutput && !execute {
		jsonData, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	if !jsonOutput {
		displayRoutes(res, intent)
	}

	if !execute {
		return
	}

	if executeRoute < 1 || executeRoute > len(res.Routes) {
		printError(fmt.Errorf("route %d does not exist, %d routes were returned", executeRoute, len(res.Routes)))
		os.Exit(1)
	}
	route := res.Routes[executeRoute-1]
	if route.Action != nil {
		printError(fmt.Errorf("route %d is completed outside solbridge: %s", executeRoute, route.Action.URL))
		os.Exit(1)
	}

	// Ask for confirmation
	if !noConfirm && !jsonOutput {
		if !confirm(fmt.Sprintf("Start a session for route %d via %s?", executeRoute, route.Provider)) {
			fmt.Println("\nCancelled.")
			os.Exit(0)
		}
	}

	view, err := apiClient.CreateSession(context.Background(), route, intent)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(view, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	printSuccess(color.GreenString("Session created: %s", view.SessionID))
	fmt.Println("Sign and broadcast each step from your wallet, then monitor the session using:")
	color.Cyan("  solbridge status %s --watch\n", view.SessionID)
}

func displayRoutes(res *aggregator.Result, intent types.TransferIntent) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                           ROUTES")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Sending:   %s %s (chain %s)\n", color.YellowString(intent.SourceAmount), intent.SourceToken, intent.SourceChainID)
	fmt.Printf("  Receiving: %s\n", intent.DestinationToken)

	if len(res.Routes) == 0 {
		color.Yellow("\n  No routes found.")
	}

	for i, route := range res.Routes {
		fmt.Printf("\n  %s %s\n", color.CyanString("[%d]", i+1), strings.ToUpper(route.Provider))
		if route.Action != nil {
			fmt.Printf("    %s: %s\n", route.Action.Label, color.HiBlackString(route.Action.URL))
			continue
		}

		fmt.Printf("    Output:    %s %s\n", color.GreenString(route.EstimatedOutput.Amount), route.EstimatedOutput.Token)
		for _, fee := range route.Fees {
			fmt.Printf("    Fee:       %s %s\n", fee.Amount, fee.Token)
		}
		if route.EstimatedSeconds != nil {
			fmt.Printf("    ETA:       ~%s\n", time.Duration(*route.EstimatedSeconds)*time.Second)
		}
		for j, step := range route.Steps {
			fmt.Printf("    Step %d:    %s (%s)\n", j+1, step.Description, step.ChainKind)
		}
		for _, w := range route.Warnings {
			color.Yellow("    Warning:   %s", w)
		}
		if route.ExpiresAt > 0 {
			fmt.Printf("    Expires:   %s\n", time.UnixMilli(route.ExpiresAt).Format("2006-01-02 15:04:05"))
		}
	}

	if len(res.Errors) > 0 {
		fmt.Println()
		for _, e := range res.Errors {
			color.HiBlack("  unavailable: %s", e)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
}

func confirm(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (yes/no): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y"
}
