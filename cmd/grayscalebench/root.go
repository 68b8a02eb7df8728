package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/grayscalebench/internal/compute"
	"github.com/cwbudde/grayscalebench/internal/compute/opencl"
	"github.com/cwbudde/grayscalebench/internal/config"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger

	// flag values that override the config file when set
	dataDirFlag    string
	kernelFlag     string
	entryPointFlag string
	deviceFlag     int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "grayscalebench",
	Short: "Compare CPU and OpenCL grayscale conversion latency",
	Long: `GrayscaleBench converts an image to grayscale on the CPU and on an
OpenCL GPU device and scores the GPU speedup.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("data-dir") {
			loaded.DataDir = dataDirFlag
		}
		if flags.Changed("kernel") {
			loaded.KernelPath = kernelFlag
		}
		if flags.Changed("entry-point") {
			loaded.EntryPoint = entryPointFlag
		}
		if flags.Changed("device") {
			loaded.DeviceIndex = deviceFlag
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}

		cfg = loaded
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&configPath, "config", "", "Path to a JSON config file")
	pf.StringVar(&dataDirFlag, "data-dir", "./data", "Directory for benchmark records")
	pf.StringVar(&kernelFlag, "kernel", "kernels/grayscale.cl", "Path to the OpenCL kernel source")
	pf.StringVar(&entryPointFlag, "entry-point", "ToGrayscale", "Kernel entry point name")
	pf.IntVar(&deviceFlag, "device", 0, "Catalog index of the GPU device")
}

// openDriver returns the OpenCL driver, or nil when this build or host has
// none. A nil driver disables the GPU path.
func openDriver() compute.Driver {
	drv, err := opencl.Open()
	if err != nil {
		slog.Warn("GPU path disabled", "error", err)
		return nil
	}
	return drv
}
