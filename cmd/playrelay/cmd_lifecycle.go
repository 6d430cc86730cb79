package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	xlog "github.com/user/playrelay/internal/log"
)

const pidFileName = "playrelay.pid"

var errNotRunning = errors.New("playrelay is not running")

// pidFile is the daemon's PID file inside the data directory.
type pidFile string

func daemonPIDFile(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, pidFileName))
}

func (p pidFile) write() error {
	if err := renameio.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

func (p pidFile) remove() {
	_ = os.Remove(string(p))
}

// running returns the live daemon process. A PID file left behind by a
// crashed daemon is removed and reported as errNotRunning.
func (p pidFile) running() (*os.Process, error) {
	data, err := os.ReadFile(string(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNotRunning
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return nil, fmt.Errorf("corrupt PID file %s: %q", p, strings.TrimSpace(string(data)))
	}
	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(syscall.Signal(0))
	}
	if err != nil {
		p.remove()
		return nil, fmt.Errorf("%w (stale PID %d removed)", errNotRunning, pid)
	}
	return proc, nil
}

func exited(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) != nil
}

var stopWait time.Duration

func init() {
	stopCmd.Flags().DurationVar(&stopWait, "wait", 10*time.Second, "how long to wait for the daemon to exit (0 returns immediately)")
	rootCmd.AddCommand(stopCmd, restartCmd)
}

// signalDaemon sends sig to the daemon recorded in the configured data dir.
func signalDaemon(sig syscall.Signal) (*os.Process, error) {
	cfg := loadConfig()
	setupLogging(cfg)
	log := xlog.WithComponent("lifecycle")

	proc, err := daemonPIDFile(cfg.DataDir).running()
	if err != nil {
		return nil, err
	}
	if err := proc.Signal(sig); err != nil {
		return nil, fmt.Errorf("signal %d: %w", proc.Pid, err)
	}
	log.Info().Int("pid", proc.Pid).Str("signal", sig.String()).Msg("signal sent")
	return proc, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := signalDaemon(syscall.SIGTERM)
		if err != nil {
			return err
		}
		if stopWait <= 0 {
			fmt.Fprintf(os.Stdout, "Stopping playrelay (PID %d).\n", proc.Pid)
			return nil
		}

		deadline := time.Now().Add(stopWait)
		for !exited(proc) {
			if time.Now().After(deadline) {
				return fmt.Errorf("playrelay (PID %d) still running after %s", proc.Pid, stopWait)
			}
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Fprintf(os.Stdout, "playrelay stopped (PID %d).\n", proc.Pid)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running relay in place, reloading its configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := signalDaemon(syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "playrelay (PID %d) is reloading.\n", proc.Pid)
		return nil
	},
}
