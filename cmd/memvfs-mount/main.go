// memvfs-mount - mount an in-memory memvfs volume over FUSE
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gofusefs "github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	memfuse "github.com/radryc/memvfs/internal/fuse"
	"github.com/radryc/memvfs/internal/vfs"
)

func main() {
	mountpoint := flag.String("mount", "", "Mount point (required)")
	label := flag.String("label", "memvfs", "Volume label")
	readOnly := flag.Bool("read-only", false, "Mount the volume read-only")
	nodeCapacity := flag.Uint64("node-capacity", vfs.DefaultNodeCapacity, "Maximum number of entries, root included")
	metricsAddr := flag.String("metrics", "", "Prometheus metrics listen address (empty disables)")
	hideSuffix := flag.String("hide-suffix", "", "Hide directory entries with this name suffix from listings")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *mountpoint == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Setup logger
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	opts := []vfs.Option{
		vfs.WithLogger(logger),
		vfs.WithNodeCapacity(*nodeCapacity),
		vfs.WithReadOnly(*readOnly),
	}
	if *hideSuffix != "" {
		suffix := *hideSuffix
		opts = append(opts, vfs.WithListFilter(func(name string, kind vfs.Kind) bool {
			return !strings.HasSuffix(name, suffix)
		}))
	}

	vol := vfs.New(*label, opts...)

	// Expose usage gauges and operation counters when requested
	if *metricsAddr != "" {
		vfs.RegisterMetrics(vol)
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listening", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	root, err := memfuse.NewRoot(vol, logger)
	if err != nil {
		logger.Error("failed to create root node", "error", err)
		os.Exit(1)
	}

	attrTimeout := memfuse.AttrTimeout()
	entryTimeout := memfuse.AttrTimeout()
	mountOpts := &gofusefs.Options{
		MountOptions: gofuse.MountOptions{
			Debug:  *debug,
			FsName: "memvfs",
			Name:   "memvfs",
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
	}

	server, err := gofusefs.Mount(*mountpoint, root, mountOpts)
	if err != nil {
		logger.Error("failed to mount", "error", err)
		os.Exit(1)
	}

	logger.Info("volume mounted",
		"mountpoint", *mountpoint,
		"label", *label,
		"read_only", *readOnly,
		"node_capacity", *nodeCapacity)

	// Handle unmount on signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, unmounting", "signal", sig)
		if err := server.Unmount(); err != nil {
			logger.Error("unmount error", "error", err)
		}
	}()

	server.Wait()
	logger.Info("volume unmounted")
}
