package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/grayscalebench/internal/bench"
	"github.com/cwbudde/grayscalebench/internal/compute"
	"github.com/cwbudde/grayscalebench/internal/imaging"
	"github.com/cwbudde/grayscalebench/internal/store"
)

var (
	imagePath string
	runPaths  string
	outPath   string
	noSave    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the CPU and/or GPU grayscale path on an image",
	Long: `Loads an image, converts it on the selected paths and prints the wall-clock
duration of each. With both paths the score and rank are printed and the
benchmark is recorded under the data directory.`,
	RunE: runBenchmark,
}

func init() {
	runCmd.Flags().StringVar(&imagePath, "image", "", "Input image (PNG, JPEG or BMP)")
	runCmd.Flags().StringVar(&runPaths, "path", "both", "Paths to run: cpu, gpu or both")
	runCmd.Flags().StringVar(&outPath, "out", "", "Write the last result image as PNG")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not record samples or results")

	runCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(runCmd)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	var runCPU, runGPU bool
	switch runPaths {
	case "cpu":
		runCPU = true
	case "gpu":
		runGPU = true
	case "both":
		runCPU, runGPU = true, true
	default:
		return fmt.Errorf("unknown path: %s", runPaths)
	}

	opts := bench.Options{KernelPath: cfg.KernelPath, EntryPoint: cfg.EntryPoint}
	if !noSave {
		records, err := store.NewFSStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to create record store: %w", err)
		}
		samples, err := store.NewSampleWriter(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open sample log: %w", err)
		}
		defer func() {
			if err := samples.Close(); err != nil {
				slog.Error("Failed to close sample log", "error", err)
			}
		}()
		opts.Store = records
		opts.Samples = samples
	}

	b := bench.New(openDriver(), opts)
	defer b.Close()

	if err := b.LoadImageFile(imagePath); err != nil {
		return err
	}

	if runGPU {
		dev, err := b.SelectDevice(cfg.DeviceIndex)
		if err != nil {
			return fmt.Errorf("select device %d: %w", cfg.DeviceIndex, err)
		}
		fmt.Printf("Device: %s\n", dev)
	}

	if runCPU {
		run, err := b.RunCPU()
		if err != nil {
			return err
		}
		fmt.Printf("CPU: %d ms\n", run.Millis)
	}

	if runGPU {
		run, err := b.RunGPU()
		if err != nil {
			if log, ok := compute.IsBuildError(err); ok && log != "" {
				fmt.Printf("Kernel build log:\n%s\n", log)
			}
			return err
		}
		fmt.Printf("GPU: %d ms\n", run.Millis)
	}

	if res, ok := b.Score(); ok {
		fmt.Printf("Score: %d (%s)\n", res.Score, res.Rank)
	}

	if outPath != "" {
		if err := imaging.Save(outPath, b.LastImage()); err != nil {
			return err
		}
		slog.Info("Result written", "path", outPath)
	}
	return nil
}
