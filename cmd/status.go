package cmd

import (
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
	"solbridge/pkg/client"
	"solbridge/pkg/session"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Check the status of an execution session",
	Long: `Check the execution status of a transfer session by its id.

Examples:
  solbridge status 3f0d6c1e-5b8a-4f7e-9d4c-2a1b0c9d8e7f
  solbridge status 3f0d6c1e-5b8a-4f7e-9d4c-2a1b0c9d8e7f --watch
  solbridge status 3f0d6c1e-5b8a-4f7e-9d4c-2a1b0c9d8e7f --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the session finishes")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	apiClient := client.New(apiURL(cmd, cfg), nil)

	if watchStatus {
		watchSessionStatus(apiClient, sessionID, jsonOutput)
	} else {
		checkSessionStatus(apiClient, sessionID, jsonOutput)
	}
}

// apiURL prefers the --api flag over configuration
func apiURL(cmd *cobra.Command, cfg *config.Config) string {
	if u, _ := cmd.Flags().GetString("api"); u != "" {
		return u
	}
	return cfg.APIURL
}

func checkSessionStatus(apiClient *client.Client, sessionID string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking session status..."
		s.Start()
	}

	view, err := apiClient.Status(context.Background(), sessionID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(view, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(view)
	}
}

func watchSessionStatus(apiClient *client.Client, sessionID string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching session %s\n", color.CyanString(sessionID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if checkAndDisplayStatus(apiClient, sessionID) {
		return
	}

	for range ticker.C {
		if checkAndDisplayStatus(apiClient, sessionID) {
			return
		}
	}
}

// checkAndDisplayStatus reports whether the session has finished
func checkAndDisplayStatus(apiClient *client.Client, sessionID string) bool {
	view, err := apiClient.Status(context.Background(), sessionID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(view)
	return view.Status.IsTerminal()
}

func displayStatus(view *session.View) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SESSION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Session:         %s\n", color.CyanString(view.SessionID))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(view.Status)))
	fmt.Printf("  Current Step:    %d of %d\n", min(view.CurrentStep+1, len(view.Steps)), len(view.Steps))
	if view.ErrorMessage != "" {
		fmt.Printf("  Error:           %s\n", color.RedString(view.ErrorMessage))
	}

	for _, step := range view.Steps {
		fmt.Printf("\n  Step %d (%s)\n", step.Index+1, step.ChainKind)
		fmt.Printf("    Status:        %s\n", getColoredStatus(string(step.Status)))
		if step.TxRef != "" {
			fmt.Printf("    Transaction:   %s\n", color.HiBlackString(step.TxRef))
		}
		if step.Error != "" {
			fmt.Printf("    Error:         %s\n", color.RedString(step.Error))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "COMPLETED", "CONFIRMED":
		return color.GreenString(status)
	case "PENDING", "EXECUTING", "SUBMITTED":
		return color.YellowString(status)
	case "FAILED":
		return color.RedString(status)
	case "IDLE":
		return color.HiBlackString(status)
	default:
		return status
	}
}
