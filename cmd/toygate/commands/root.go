package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pommai/toygate/pkg/convex"
	"github.com/pommai/toygate/pkg/elevenlabs"
	"github.com/pommai/toygate/pkg/gateway"
	"github.com/pommai/toygate/pkg/minimax"
	"github.com/pommai/toygate/pkg/observe"
	"github.com/pommai/toygate/pkg/tts"
)

var (
	cfgFile string
	host    string
	port    int
)

var rootCmd = &cobra.Command{
	Use:   "toygate",
	Short: "WebSocket relay between toy devices and the AI backend",
	Long: `toygate bridges smart toys to the Convex AI pipeline.

Devices connect at ws://host:port/ws/{device_id}/{toy_id} and stream
utterance audio up; the relay forwards each complete utterance to the
backend and streams reply text plus synthesized speech back down.

TTS providers are registered from whichever API keys are configured
(ELEVENLABS_API_KEY, MINIMAX_API_KEY). With no provider the backend's
own audio is relayed instead.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
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
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "listen host (overrides config)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "listen port (overrides config)")
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "toygate",
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			slog.Warn("metrics shutdown", "err", err)
		}
	}()

	backendOpts := []convex.Option{}
	if cfg.Convex.DeployKey != "" {
		backendOpts = append(backendOpts, convex.WithDeployKey(cfg.Convex.DeployKey))
	}
	if cfg.Convex.ActionTimeout > 0 {
		backendOpts = append(backendOpts, convex.WithTimeout(time.Duration(cfg.Convex.ActionTimeout)))
	}
	backend := convex.NewClient(cfg.Convex.URL, backendOpts...)

	gwOpts := []gateway.Option{}
	if !cfg.SkipTTS {
		registry, err := buildRegistry(cfg.TTS)
		if err != nil {
			return err
		}
		if registry != nil {
			gwOpts = append(gwOpts, gateway.WithTTS(registry))
		}
	}

	gwCfg := gateway.DefaultConfig()
	gwCfg.SkipTTS = cfg.SkipTTS
	g := gateway.New(backend, gwCfg, gwOpts...)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:    addr,
		Handler: g.Handler(),
	}

	errc := make(chan error, 2)
	go func() {
		slog.Info("toygate listening", "addr", addr, "convex", cfg.Convex.URL)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		if err := g.Run(ctx); !errors.Is(err, context.Canceled) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// buildRegistry registers every provider with a configured API key. Returns
// nil when none is configured; the gateway then relays backend audio.
func buildRegistry(cfg TTSConfig) (*tts.Registry, error) {
	registry := tts.NewRegistry()
	registered := false

	if cfg.ElevenLabs.APIKey != "" {
		p := tts.NewElevenLabs(elevenlabs.NewClient(cfg.ElevenLabs.APIKey))
		p.Defaults = tts.VoiceConfig{
			VoiceID: cfg.ElevenLabs.VoiceID,
			ModelID: cfg.ElevenLabs.ModelID,
		}
		registry.Register(p)
		registered = true
	}
	if cfg.MiniMax.APIKey != "" {
		opts := []minimax.Option{}
		if cfg.MiniMax.GroupID != "" {
			opts = append(opts, minimax.WithGroupID(cfg.MiniMax.GroupID))
		}
		registry.Register(tts.NewMiniMax(minimax.NewClient(cfg.MiniMax.APIKey, opts...)))
		registered = true
	}
	if !registered {
		return nil, nil
	}

	if cfg.DefaultProvider != "" {
		if err := registry.SetDefault(cfg.DefaultProvider); err != nil {
			return nil, fmt.Errorf("tts.default_provider: %w", err)
		}
	}
	return registry, nil
}
