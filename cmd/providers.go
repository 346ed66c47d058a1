package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"solbridge/config"
	"solbridge/pkg/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured route providers",
	Long: `List the bridge and swap integrations this server would use, and what each can do.

Examples:
  solbridge providers
  SOLBRIDGE_PROVIDERS_DISABLED=debridge solbridge providers`,
	Run: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// providerInfo describes one integration
type providerInfo struct {
	Name         string   `json:"name"`
	Enabled      bool     `json:"enabled"`
	Capabilities []string `json:"capabilities"`
}

func runProviders(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	set, err := buildProviders(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	infos := describeProviders(set)

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(infos, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                         PROVIDERS")
	fmt.Println(strings.Repeat("=", 70) + "\n")

	for _, info := range infos {
		state := color.GreenString("enabled ")
		if !info.Enabled {
			state = color.RedString("disabled")
		}
		fmt.Printf("  %-10s  %s  %s\n",
			color.YellowString(info.Name),
			state,
			color.HiBlackString(strings.Join(info.Capabilities, ", ")))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func describeProviders(set *providerSet) []providerInfo {
	var infos []providerInfo
	for _, name := range provider.KnownProviders() {
		if name == provider.NameOfficial {
			continue
		}
		info := providerInfo{Name: name, Enabled: !set.disabled[name]}

		if info.Enabled {
			for _, p := range set.registry.Providers() {
				if p.Name() == name {
					info.Capabilities = append(info.Capabilities, "quote")
				}
			}
			if _, ok := set.registry.StepBuilder(name); ok {
				info.Capabilities = append(info.Capabilities, "build steps")
			}
			if _, ok := set.registry.Notifier(name); ok {
				info.Capabilities = append(info.Capabilities, "deposit notices")
			}
			if name == provider.NameJupiter && set.jupiter != nil {
				info.Capabilities = append(info.Capabilities, "destination swaps")
			}
		}
		infos = append(infos, info)
	}
	return infos
}
