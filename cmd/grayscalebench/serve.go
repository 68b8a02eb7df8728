package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/grayscalebench/internal/bench"
	"github.com/cwbudde/grayscalebench/internal/server"
	"github.com/cwbudde/grayscalebench/internal/store"
)

var (
	listenAddr string
	imageDir   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the benchmark over an HTTP JSON API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides config listenAddr)")
	serveCmd.Flags().StringVar(&imageDir, "image-dir", "", "Directory images may be loaded from by path (overrides config imageDir)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}

	records, err := store.NewFSStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create record store: %w", err)
	}
	samples, err := store.NewSampleWriter(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open sample log: %w", err)
	}
	defer samples.Close()

	b := bench.New(openDriver(), bench.Options{
		KernelPath: cfg.KernelPath,
		EntryPoint: cfg.EntryPoint,
		Store:      records,
		Samples:    samples,
	})
	defer b.Close()

	if devices, _ := b.ListDevices(); len(devices) > 0 {
		if _, err := b.SelectDevice(cfg.DeviceIndex); err != nil {
			slog.Warn("Initial device selection failed", "index", cfg.DeviceIndex, "error", err)
		}
	}

	dir := cfg.ImageDir
	if imageDir != "" {
		dir = imageDir
	}
	srv := server.NewServer(addr, b, records, dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return samples.Flush()
}
