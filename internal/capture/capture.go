// Package capture runs bounded tcpdump captures and turns their output into
// stored traffic records.
package capture

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rsclarke/netwatch/internal/config"
	"github.com/rsclarke/netwatch/internal/db"
	"github.com/rsclarke/netwatch/internal/logging"
	"github.com/rsclarke/netwatch/internal/models"
	"go.uber.org/zap"
)

// killGrace is how long tcpdump may take to flush after SIGTERM before it is killed.
const killGrace = 5 * time.Second

// Capturer runs one capture cycle per call to Run.
type Capturer struct {
	DB         *sql.DB
	Logger     *zap.Logger
	Tcpdump    string
	Dir        string
	Format     string
	Duration   time.Duration
	MaxPackets int

	now     func() time.Time
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New(cfg *config.Config, database *sql.DB, tcpdump string, logger *zap.Logger) *Capturer {
	return &Capturer{
		DB:         database,
		Logger:     logger,
		Tcpdump:    tcpdump,
		Dir:        cfg.CaptureDir,
		Format:     cfg.CaptureFormat,
		Duration:   cfg.CaptureDuration,
		MaxPackets: cfg.MaxPackets,
		now:        time.Now,
		command:    exec.CommandContext,
	}
}

// FileName returns the capture artifact path for iface started at start.
func FileName(dir, iface string, start time.Time, format string) string {
	ext := ".txt"
	if format == config.FormatPcap {
		ext = ".pcap"
	}
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, iface)
	return filepath.Join(dir, safe+"_"+start.Format("20060102T150405.000")+ext)
}

// Run captures on iface for at most c.Duration or c.MaxPackets packets, then
// parses the artifact and stores the records. It returns the number of
// records stored. If ctx is cancelled the capture is stopped and nothing is
// stored.
func (c *Capturer) Run(ctx context.Context, iface string) (int, error) {
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return 0, fmt.Errorf("create capture dir: %w", err)
	}

	start := c.now()
	path := FileName(c.Dir, iface, start, c.Format)

	cctx, cancel := context.WithTimeout(ctx, c.Duration)
	defer cancel()

	args := []string{"-i", iface, "-nn", "-c", strconv.Itoa(c.MaxPackets)}
	var out *os.File
	if c.Format == config.FormatPcap {
		args = append(args, "-U", "-w", path)
	} else {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err != nil {
			return 0, fmt.Errorf("create capture file: %w", err)
		}
		out = f
		args = append(args, "-l", "-tttt")
	}

	cmd := c.command(cctx, c.Tcpdump, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killGrace
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if out != nil {
		cmd.Stdout = out
	}

	logger := c.Logger.With(logging.Interface(iface), logging.File(path))
	logger.Debug("starting capture", zap.Duration("duration", c.Duration), zap.Int("max_packets", c.MaxPackets))

	if err := cmd.Start(); err != nil {
		if out != nil {
			_ = out.Close()
		}
		return 0, fmt.Errorf("start capture on %s: %w", iface, err)
	}
	waitErr := cmd.Wait()
	if out != nil {
		_ = out.Close()
	}

	if ctx.Err() != nil {
		logger.Info("capture interrupted")
		return 0, ctx.Err()
	}
	exitedEarly := waitErr != nil && !errors.Is(cctx.Err(), context.DeadlineExceeded)

	records, err := c.parse(path, iface, start)
	if err != nil {
		return 0, err
	}
	if exitedEarly && len(records) == 0 {
		return 0, fmt.Errorf("capture on %s failed: %w: %s", iface, waitErr, lastLine(stderr.String()))
	}
	if exitedEarly {
		logger.Warn("capture exited with error", zap.Error(waitErr))
	}

	n, err := db.InsertTrafficBatch(c.DB, records)
	if err != nil {
		return 0, fmt.Errorf("store traffic: %w", err)
	}
	logger.Info("capture complete", logging.Count(n), logging.Elapsed(c.now().Sub(start)))
	return n, nil
}

func (c *Capturer) parse(path, iface string, start time.Time) ([]models.TrafficRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer func() { _ = f.Close() }()

	if c.Format == config.FormatPcap {
		return DecodePcap(f, iface)
	}
	return ParseLines(f, TextParser{Interface: iface, Fallback: start})
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
