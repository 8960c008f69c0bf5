// voiceline is a live voice conversation client: it streams microphone
// audio to a conversation agent over WebSocket and plays the agent's
// spoken replies, with an optional web dashboard for observing the
// session.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "voiceline",
	Short: "Live voice conversation client",
	Long: `voiceline streams microphone audio to a conversation agent and plays
the agent's spoken replies through the local speaker.

The agent endpoint is taken from --url or VOICELINE_AGENT_URL.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
