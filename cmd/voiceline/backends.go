package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voiceline/go-voiceline/pkg/audioio"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available audio backends",
	Run: func(cmd *cobra.Command, args []string) {
		for _, backend := range audioio.AvailableBackends() {
			fmt.Println(backend)
		}
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}
