// memvfs-loadtest - generate concurrent operation load against a volume
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/radryc/memvfs/internal/vfs"
)

var (
	duration    = flag.Duration("duration", 30*time.Second, "Test duration")
	concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
	fileSize    = flag.Int("file-size", 4096, "Write size in bytes")
	dirsPer     = flag.Int("dirs-per-worker", 4, "Directories created per worker")
	filesPerDir = flag.Int("files-per-dir", 16, "Files cycled per directory")
	renameRatio = flag.Int("rename-every", 50, "Perform a directory rename every N operations (0 disables)")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
)

// Stats holds the operation counters, updated atomically by workers.
type Stats struct {
	creates      atomic.Int64
	writes       atomic.Int64
	reads        atomic.Int64
	lists        atomic.Int64
	removes      atomic.Int64
	renames      atomic.Int64
	errors       atomic.Int64
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
}

func main() {
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	vol := vfs.New("loadtest", vfs.WithLogger(logger), vfs.WithNodeCapacity(1<<20))

	fmt.Printf("memvfs Load Test\n")
	fmt.Printf("================\n")
	fmt.Printf("Duration:      %s\n", *duration)
	fmt.Printf("Concurrency:   %d workers\n", *concurrency)
	fmt.Printf("Write Size:    %d bytes\n", *fileSize)
	fmt.Printf("\n")

	stats := &Stats{}
	payload := make([]byte, *fileSize)
	if _, err := rand.Read(payload); err != nil {
		log.Fatalf("Failed to seed payload: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *concurrency; i++ {
		i := i
		g.Go(func() error {
			return worker(ctx, vol, i, payload, stats)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Load test failed: %v", err)
	}
	elapsed := time.Since(start)

	total := stats.creates.Load() + stats.writes.Load() + stats.reads.Load() +
		stats.lists.Load() + stats.removes.Load() + stats.renames.Load()

	fmt.Printf("Results\n")
	fmt.Printf("=======\n")
	fmt.Printf("Elapsed:       %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Operations:    %d (%.0f op/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("Creates:       %d\n", stats.creates.Load())
	fmt.Printf("Writes:        %d (%d bytes)\n", stats.writes.Load(), stats.bytesWritten.Load())
	fmt.Printf("Reads:         %d (%d bytes)\n", stats.reads.Load(), stats.bytesRead.Load())
	fmt.Printf("Lists:         %d\n", stats.lists.Load())
	fmt.Printf("Renames:       %d\n", stats.renames.Load())
	fmt.Printf("Removes:       %d\n", stats.removes.Load())
	fmt.Printf("Errors:        %d\n", stats.errors.Load())
	fmt.Printf("Entries left:  %d\n", vol.Table().Len())
}

// worker churns create/write/read/list/remove cycles in its own directory
// subtree so workers contend on the namespace lock but never on entries.
func worker(ctx context.Context, vol *vfs.Filesystem, id int, payload []byte, stats *Stats) error {
	dirs := make([]vfs.Path, 0, *dirsPer)
	for d := 0; d < *dirsPer; d++ {
		dir := vfs.MustParsePath(fmt.Sprintf("/worker-%d-dir-%d", id, d))
		if _, err := vol.Create(dir, vfs.KindFolder, nil, vfs.Attrs{}, 0); err != nil {
			return fmt.Errorf("worker %d: create dir: %w", id, err)
		}
		stats.creates.Add(1)
		dirs = append(dirs, dir)
	}

	buf := make([]byte, len(payload))
	for op := 0; ; op++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		dir := dirs[op%len(dirs)]
		path := dir.Join(fmt.Sprintf("file-%d.dat", op%*filesPerDir))

		entry, err := vol.Open(path)
		if err != nil {
			if entry, err = vol.Create(path, vfs.KindFile, nil, vfs.Attrs{}, 0); err != nil {
				stats.errors.Add(1)
				continue
			}
			stats.creates.Add(1)
		}

		n, err := vol.Write(entry, payload, 0, vfs.WriteNormal)
		if err != nil {
			stats.errors.Add(1)
			continue
		}
		stats.writes.Add(1)
		stats.bytesWritten.Add(int64(n))

		if n, err = vol.Read(entry, buf, 0); err != nil {
			stats.errors.Add(1)
			continue
		}
		stats.reads.Add(1)
		stats.bytesRead.Add(int64(n))

		if op%*filesPerDir == 0 {
			parent, err := vol.Open(dir)
			if err == nil {
				if _, err = vol.ListDirectory(parent, ""); err == nil {
					stats.lists.Add(1)
				}
			}
		}

		if *renameRatio > 0 && op%*renameRatio == *renameRatio-1 {
			// Rotate the directory name to exercise the cascading rename
			// while its files are in flight on other iterations.
			idx := op % len(dirs)
			renamed := vfs.MustParsePath(fmt.Sprintf("/worker-%d-dir-%d-r%d", id, idx, op))
			if err := vol.Rename(dirs[idx], renamed, false); err != nil {
				stats.errors.Add(1)
			} else {
				dirs[idx] = renamed
				stats.renames.Add(1)
			}
		}

		if shouldRemove(op) {
			if err := vol.Remove(path); err != nil {
				stats.errors.Add(1)
			} else {
				stats.removes.Add(1)
			}
		}
	}
}

// shouldRemove spreads removals over roughly a tenth of operations.
func shouldRemove(op int) bool {
	n, err := rand.Int(rand.Reader, big.NewInt(10))
	if err != nil {
		return op%10 == 0
	}
	return n.Int64() == 0
}
