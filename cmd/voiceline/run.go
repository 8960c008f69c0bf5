package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voiceline/go-voiceline/internal/config"
	"github.com/voiceline/go-voiceline/internal/log"
	"github.com/voiceline/go-voiceline/pkg/audioio"
	"github.com/voiceline/go-voiceline/pkg/capture"
	"github.com/voiceline/go-voiceline/pkg/channel"
	"github.com/voiceline/go-voiceline/pkg/playback"
	"github.com/voiceline/go-voiceline/pkg/session"
	"github.com/voiceline/go-voiceline/pkg/web"
)

var runFlags struct {
	url        string
	codec      string
	backend    string
	sampleRate int
	dashboard  bool
	port       string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a live voice conversation",
	RunE:  runSession,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.url, "url", "", "agent WebSocket URL (default $VOICELINE_AGENT_URL)")
	runCmd.Flags().StringVar(&runFlags.codec, "codec", "pcm", "agent audio codec: pcm or opus")
	runCmd.Flags().StringVar(&runFlags.backend, "backend", config.AudioBackend(), "audio backend: auto, portaudio or mock")
	runCmd.Flags().IntVar(&runFlags.sampleRate, "sample-rate", 24000, "audio sample rate in Hz")
	runCmd.Flags().BoolVar(&runFlags.dashboard, "dashboard", false, "serve the web dashboard")
	runCmd.Flags().StringVar(&runFlags.port, "port", config.DashboardPort(), "dashboard port")

	rootCmd.AddCommand(runCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	log.Init(config.LogLevel())
	logger := log.L()

	url := runFlags.url
	if url == "" {
		url = config.AgentURLRequired()
	}

	audioCfg := audioio.DefaultConfig()
	audioCfg.Backend = audioio.Backend(runFlags.backend)
	audioCfg.SampleRate = runFlags.sampleRate

	src, err := audioio.NewSource(audioCfg, logger)
	if err != nil {
		return fmt.Errorf("create audio source: %w", err)
	}

	sink, err := audioio.NewSink(audioCfg, logger)
	if err != nil {
		return fmt.Errorf("create audio sink: %w", err)
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sink.Start(ctx); err != nil {
		return fmt.Errorf("start audio sink: %w", err)
	}

	dec, err := newDecoder(runFlags.codec, audioCfg.SampleRate, audioCfg.Channels)
	if err != nil {
		return err
	}

	queue := playback.NewQueue(sink, dec, logger)
	defer queue.Close()

	mic := capture.New(src, logger)

	chCfg := channel.DefaultConfig().
		WithURL(url).
		WithAPIKey(config.APIKey())
	client, err := channel.NewClient(chCfg, logger)
	if err != nil {
		return err
	}

	sess := session.New(client, mic, queue, logger)
	if err := sess.Start(ctx); err != nil {
		return err
	}

	var dashboard *web.Server
	if runFlags.dashboard {
		dashboard = web.NewServer(runFlags.port, sess, logger)
		dashboard.StartAsync()
		dashboard.AddLog("info", "session started: "+client.SessionID())
	}

	logger.Info("voiceline running",
		"agent", url,
		"codec", dec.Name(),
		"backend", src.Name(),
		"session_id", client.SessionID(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := sess.Stop(); err != nil {
		logger.Warn("session stop", "error", err)
	}
	if dashboard != nil {
		shutdownErr := make(chan error, 1)
		go func() { shutdownErr <- dashboard.Shutdown() }()
		select {
		case err := <-shutdownErr:
			if err != nil {
				logger.Warn("dashboard shutdown", "error", err)
			}
		case <-time.After(3 * time.Second):
			logger.Warn("dashboard shutdown timed out")
		}
	}

	return nil
}

func newDecoder(codec string, sampleRate, channels int) (playback.Decoder, error) {
	switch codec {
	case "pcm":
		return playback.NewPCMDecoder(sampleRate), nil
	case "opus":
		return playback.NewOpusDecoder(sampleRate, channels)
	default:
		return nil, fmt.Errorf("unknown codec %q (want pcm or opus)", codec)
	}
}
