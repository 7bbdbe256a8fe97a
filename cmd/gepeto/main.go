package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "gepeto.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gepeto",
		Short: "Gepeto, an in-game chat assistant",
		Long:  "Gepeto answers in-game chat questions addressed to it, consulting the Minecraft Wiki and a recipe table when needed.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to gepeto config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newListenCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newRecipesCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gepeto %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// configPath returns the --config value inherited from the root command.
func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
