package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/helpdesk-learning/internal/cli"
	"github.com/cloo-solutions/helpdesk-learning/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "helpdeskd",
		Short: "Helpdesk knowledge learning daemon and CLI",
		Long:  "Helpdesk daemon for the knowledge learning pipeline, the decision engine and the AI provider governor",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.LearnCmd())
	rootCmd.AddCommand(admin.GovernorCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if handled, err := cli.HandleHelpJSON(os.Stdout, rootCmd, os.Args[1:]); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
