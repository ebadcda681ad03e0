package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pommai/toygate/pkg/audio/pcm"
	"github.com/pommai/toygate/pkg/device"
	"github.com/pommai/toygate/pkg/kv"
	"github.com/pommai/toygate/pkg/wire"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "toyd",
	Short: "Voice interaction daemon for a networked toy",
	Long: `toyd connects a toy to a toygate relay.

Microphone input is raw PCM16 read from the configured mic path and
playback is raw PCM16 written to the speaker path; "-" selects
stdin/stdout so the daemon slots into an arecord | toyd | aplay pipeline.

Push-to-talk is signal driven: SIGUSR1 starts an utterance, SIGUSR2 ends
it. SIGINT/SIGTERM shut the daemon down.

Example:

  arecord -f S16_LE -r 16000 -c 1 -t raw | \
    toyd --config /etc/toyd.yaml | \
    aplay -f S16_LE -r 16000 -c 1 -t raw`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

// Execute runs the root command with signal-driven shutdown.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
}

func runDaemon(ctx context.Context) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	mic, err := openInput(cfg.Audio.MicPath)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer mic.Close()

	speaker, err := openOutput(cfg.Audio.SpeakerPath)
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	defer speaker.Close()

	enc, dec, frameBytes, err := buildCodec(cfg.Audio)
	if err != nil {
		return err
	}

	engineCfg := device.EngineConfig{
		Conn: device.ConnConfig{
			GatewayURL:        cfg.GatewayURL,
			DeviceID:          cfg.DeviceID,
			ToyID:             cfg.ToyID,
			AuthToken:         cfg.AuthToken,
			ReconnectAttempts: cfg.Reconnect.Attempts,
			ReconnectDelay:    time.Duration(cfg.Reconnect.Delay),
			AudioFormat:       cfg.Audio.Format,
			SampleRate:        cfg.Audio.SampleRate,
		},
		Recorder: device.RecorderConfig{
			Format:     pcm.Mono(cfg.Audio.SampleRate),
			FrameBytes: frameBytes,
		},
		Player: device.PlayerConfig{
			SinkRate: cfg.Audio.PlaybackRate,
		},
	}

	var opts []device.EngineOption
	if cfg.Cache.Enabled {
		// The cache records conversations locally. No Flusher runs here:
		// the protocol has no upstream sync endpoint, so deployments that
		// sync attach their own device.SyncFunc.
		store, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.Cache.Dir})
		if err != nil {
			return fmt.Errorf("open conversation cache: %w", err)
		}
		opts = append(opts, device.WithCache(device.NewCache(store)))
		slog.Info("conversation cache enabled", "dir", cfg.Cache.Dir)
	}

	engine := device.NewEngine(engineCfg, mic, speaker, enc, dec, opts...)
	defer engine.Close()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	slog.Info("toyd running",
		"gateway", cfg.GatewayURL,
		"device", cfg.DeviceID,
		"toy", cfg.ToyID,
		"format", cfg.Audio.Format)

	talk := make(chan os.Signal, 4)
	signal.Notify(talk, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(talk)

	for {
		select {
		case <-ctx.Done():
			stats := engine.Stats()
			slog.Info("shutting down",
				"chunks_recorded", stats.FramesRecorded,
				"chunks_played", stats.Playback.ChunksPlayed,
				"reconnects", stats.Conn.Reconnects)
			return nil
		case sig := <-talk:
			switch sig {
			case syscall.SIGUSR1:
				engine.OnButtonPress(ctx)
			case syscall.SIGUSR2:
				engine.OnButtonRelease(ctx)
			}
		}
	}
}

// buildCodec returns the uplink encoder, downlink decoder, and capture
// frame size for the configured format.
func buildCodec(cfg AudioConfig) (device.FrameEncoder, device.FrameDecoder, int, error) {
	if cfg.Format == wire.FormatOpus {
		codec, err := device.NewOpusCodec(device.OpusConfig{SampleRate: cfg.SampleRate})
		if err != nil {
			return nil, nil, 0, fmt.Errorf("opus codec: %w", err)
		}
		return codec, codec, codec.FrameBytes(), nil
	}
	// PCM passthrough; the default 20 ms frame size applies.
	return device.PCMCodec{}, nil, 0, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
}

// nopWriteCloser keeps stdout open across engine teardown.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
