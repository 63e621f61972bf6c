/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qualichat",
	Short: "Conversational shopping assistant backend",
	Long:  "QualiChat runs the Qualiwo shopping assistant: an agent that searches products, manages carts, and completes checkouts over HTTP, Telegram, or an interactive terminal.",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
