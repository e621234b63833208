package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/monitor"
	"github.com/pders01/rollguard/internal/ollama"
)

var (
	watchMetricsAddr  string
	watchRestartDelay time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [-- command [args...]]",
	Short: "Monitor the project and roll back when errors pile up",
	Long: `Run the error monitor in the foreground until interrupted.

The monitor samples CPU, memory and disk usage, checks critical files and,
when ai.enabled is set, the Ollama server. When monitor.threshold errors
are recorded within monitor.window it rolls the project back to the best
stable version (or the previous one), and as a last resort restarts.

With a command after --, rollguard supervises it: the command is sampled
instead of rollguard itself, a non-zero exit is recorded as a system_crash
and the command is relaunched.

Examples:
  rollguard watch
  rollguard watch --metrics-addr :9090
  rollguard watch -- ./server --port 8080`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().DurationVar(&watchRestartDelay, "restart-delay", 2*time.Second, "Delay before relaunching a crashed command")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	opts := []monitor.Option{
		monitor.WithLogger(a.logger.Logger),
		monitor.WithEventLog(monitor.NewEventLog(a.settings.EventLogPath())),
		monitor.WithMetrics(monitor.NewMetrics(reg)),
	}

	if a.settings.AI.Enabled {
		client, err := ollama.NewClient(a.settings.AI.OllamaURL, a.settings.AI.Model)
		if err != nil {
			return fmt.Errorf("invalid ai.ollama_url: %w", err)
		}
		opts = append(opts, monitor.WithProbe(client))
	}

	var sup *supervisor
	if len(args) > 0 {
		sup = &supervisor{argv: args, dir: a.settings.Root, delay: watchRestartDelay}
		opts = append(opts, monitor.WithRestarter(sup.restart))
	}

	m := monitor.New(monitor.Config{
		MonitorSettings: a.settings.Monitor,
		Root:            a.settings.Root,
	}, a.rollback, opts...)

	if watchMetricsAddr != "" {
		srv := serveMetrics(watchMetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		fmt.Printf("✓ Metrics on http://%s/metrics\n", watchMetricsAddr)
	}

	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()

	fmt.Printf("✓ Watching %s (threshold %d errors in %s, auto-rollback %s)\n",
		a.settings.Root, a.settings.Monitor.Threshold, a.settings.Monitor.Window, enabled(a.settings.Monitor.AutoRollback))

	if sup != nil {
		sup.monitor = m
		if err := sup.run(ctx); err != nil {
			return err
		}
	} else {
		<-ctx.Done()
	}

	m.Stop()
	summary := m.Summary()
	fmt.Printf("\n✓ Stopped. %d error(s) recorded, emergency mode: %t\n", summary.TotalErrors, summary.EmergencyMode)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Warning: metrics server stopped: %v\n", err)
		}
	}()
	return srv
}

// supervisor runs a command under the monitor and relaunches it after a
// crash
type supervisor struct {
	argv    []string
	dir     string
	delay   time.Duration
	monitor *monitor.Monitor

	mu   sync.Mutex
	proc *os.Process
}

// run blocks until the command exits cleanly or ctx is cancelled
func (s *supervisor) run(ctx context.Context) error {
	for {
		c := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
		c.Dir = s.dir
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		c.Cancel = func() error { return c.Process.Signal(syscall.SIGTERM) }
		c.WaitDelay = 10 * time.Second

		if err := c.Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", s.argv[0], err)
		}
		s.mu.Lock()
		s.proc = c.Process
		s.mu.Unlock()
		s.monitor.SetPID(c.Process.Pid)

		err := c.Wait()
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			fmt.Printf("✓ %s exited cleanly\n", s.argv[0])
			return nil
		}

		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		s.monitor.RecordError(models.ErrorTypeSystemCrash,
			fmt.Sprintf("%s exited: %v", s.argv[0], err),
			map[string]string{
				"command":   strings.Join(s.argv, " "),
				"exit_code": strconv.Itoa(code),
			}, models.SeverityHigh)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.delay):
		}
	}
}

// restart kills the running command; run relaunches it
func (s *supervisor) restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return errors.New("no supervised process")
	}
	return s.proc.Kill()
}
