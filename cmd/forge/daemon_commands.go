package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"forge/internal/forgectl"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start, stop, or check the forge daemon",
	}

	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))

	return daemonCmd
}

func pidFilePath(ctx *commandContext) (string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Logging.Dir, "forged.pid"), nil
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the forge daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			pingCtx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			reachable := ctx.client().Ping(pingCtx) == nil
			cancel()
			if reachable {
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}

			exe, err := forgedExecutable()
			if err != nil {
				return err
			}

			logPath, err := daemonLogPath(ctx)
			if err != nil {
				return err
			}
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open daemon log: %w", err)
			}
			defer logFile.Close()

			spawnCmd := exec.Command(exe)
			spawnCmd.Stdout = logFile
			spawnCmd.Stderr = logFile
			spawnCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := spawnCmd.Start(); err != nil {
				return fmt.Errorf("launch daemon: %w", err)
			}
			if err := spawnCmd.Process.Release(); err != nil {
				return fmt.Errorf("detach daemon process: %w", err)
			}

			fmt.Fprintln(stdout, "Daemon not running, launching...")
			deadline := time.Now().Add(10 * time.Second)
			for time.Now().Before(deadline) {
				checkCtx, checkCancel := context.WithTimeout(cmd.Context(), time.Second)
				err := ctx.client().Ping(checkCtx)
				checkCancel()
				if err == nil {
					fmt.Fprintln(stdout, "Daemon started")
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return errors.New("daemon did not become reachable within 10s; check the daemon log")
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the forge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			path, err := pidFilePath(ctx)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(stdout, "Daemon is not running")
					return nil
				}
				return fmt.Errorf("read daemon pid file: %w", err)
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("parse daemon pid file: %w", err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("find daemon process: %w", err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
					fmt.Fprintln(stdout, "Daemon is not running")
					return nil
				}
				return fmt.Errorf("signal daemon process: %w", err)
			}
			fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", pid)
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			err := ctx.client().Ping(cmd.Context())
			running := err == nil

			if asJSON {
				return writeJSON(cmd, map[string]any{"running": running, "bind": ctx.bind()})
			}

			colorize := shouldColorize(stdout)
			if running {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, "running at "+ctx.bind(), colorize))
				return nil
			}
			if errors.Is(err, forgectl.ErrDaemonUnreachable) {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not running", colorize))
				return nil
			}
			fmt.Fprintln(stdout, renderStatusLine("Daemon", statusError, err.Error(), colorize))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func forgedExecutable() (string, error) {
	if exe, err := exec.LookPath("forged"); err == nil {
		return exe, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve forge executable: %w", err)
	}
	candidate := filepath.Join(filepath.Dir(self), "forged")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", errors.New("forged executable not found on PATH or next to forge")
}

func daemonLogPath(ctx *commandContext) (string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.Logging.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	return filepath.Join(cfg.Logging.Dir, "forged.stdout.log"), nil
}
