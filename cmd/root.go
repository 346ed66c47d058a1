package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "solbridge",
	Short: "Route aggregation and execution sessions for transfers into Solana",
	Long: `solbridge aggregates cross-chain routes from several bridge providers,
signs them against the request that produced them and drives wallet-signed
execution sessions step by step.

Examples:
  solbridge serve
  solbridge quote 1000000000000000000 native to So11111111111111111111111111111111111111112 --from 0x... --to 9Wz...
  solbridge status <session-id> --watch
  solbridge providers
  solbridge tokens`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("api", "", "solbridge API URL (defaults to api_url from config)")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
