package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kim-Ziho/doorbell-camera/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	overrides  flagOverrides
)

// flagOverrides mirrors config.ConfigOverrides; a flag only overrides when it was set
type flagOverrides struct {
	cameraDevice         string
	frameSize            string
	clipDirectory        string
	autoMode             bool
	prerollSeconds       float64
	postrollSeconds      float64
	httpAddr             string
	encryptionPassphrase string
	logLevel             string
	logPath              string
	simulate             bool
}

var rootCmd = &cobra.Command{
	Use:   "doorbell-camera",
	Short: "Motion-triggered doorbell camera recorder",
	Long: `doorbell-camera watches a camera, keeps a few seconds of preroll in memory and
writes a clip whenever motion starts or the operator asks for one.

Keys while running: space toggles manual recording, a toggles automatic
recording, esc quits.`,
	SilenceUsage: true,
	RunE:         runRecorder,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "config file (.json, .yaml or .yml)")

	f := rootCmd.Flags()
	f.StringVar(&overrides.cameraDevice, "camera-device", "", "Camera device index, path or URL (overrides config)")
	f.StringVar(&overrides.frameSize, "frame-size", "", "Requested capture size, e.g. 1280x720 or 720p (overrides config)")
	f.StringVar(&overrides.clipDirectory, "clip-dir", "", "Directory clips are written to (overrides config)")
	f.BoolVar(&overrides.autoMode, "auto", true, "Start with automatic recording enabled (overrides config)")
	f.Float64Var(&overrides.prerollSeconds, "preroll", 0, "Preroll seconds (overrides config)")
	f.Float64Var(&overrides.postrollSeconds, "postroll", 0, "Postroll seconds (overrides config)")
	f.StringVar(&overrides.httpAddr, "http-addr", "", "Serve the control API on this address (overrides config)")
	f.StringVar(&overrides.encryptionPassphrase, "encryption-passphrase", "", "Encrypt finished clips with this passphrase (overrides config)")
	f.StringVar(&overrides.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	f.StringVar(&overrides.logPath, "log-path", "", "Directory for rotating log files (overrides config)")
	f.BoolVar(&overrides.simulate, "simulate", false, "Run against a synthetic frame source instead of a camera")

	rootCmd.AddCommand(clipsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the flags that were set on cmd
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var o config.ConfigOverrides
	set := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if set("camera-device") {
		o.CameraDevice = &overrides.cameraDevice
	}
	if set("frame-size") {
		o.FrameSize = &overrides.frameSize
	}
	if set("clip-dir") {
		o.ClipDirectory = &overrides.clipDirectory
	}
	if set("auto") {
		o.AutoModeEnabled = &overrides.autoMode
	}
	if set("preroll") {
		o.PrerollSeconds = &overrides.prerollSeconds
	}
	if set("postroll") {
		o.PostrollSeconds = &overrides.postrollSeconds
	}
	if set("http-addr") {
		o.HTTPAddr = &overrides.httpAddr
	}
	if set("encryption-passphrase") {
		o.EncryptionPassphrase = &overrides.encryptionPassphrase
	}
	if set("log-level") {
		o.LogLevel = &overrides.logLevel
	}
	if set("log-path") {
		o.LogPath = &overrides.logPath
	}
	cfg.Override(o)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runRecorder(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := NewRecorderApp(cfg, overrides.simulate)
	if err != nil {
		return err
	}
	return app.Run(cmd.Context())
}
