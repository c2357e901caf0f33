package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/rules"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var replCtx contextFlags

// replCmd represents the repl command
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Process utterances from stdin, one per line",
	Long: `Repl reads one utterance per line and prints one JSON result per line.
The intent of each answer becomes last_intent for the next line, so short
follow-ups ("ok", "明天") continue the conversation.

Lines starting with ':' are commands:
  :reload   re-read the rules directory
  :reset    forget the conversation
  :quit     exit

Example:
  intentra repl --watch --metrics-addr :9090`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
	replCtx.bind(replCmd)
	replCmd.Flags().Bool("watch", false, "reload rules when files in the rules directory change")
	replCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	_ = viper.BindPFlag("watch.enabled", replCmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("metrics.addr", replCmd.Flags().Lookup("metrics-addr"))
}

func runRepl(cmd *cobra.Command, args []string) error {
	base, err := replCtx.build()
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	if s.cfg.Watch.Enabled {
		w, err := rules.NewWatcher(s.cfg.RulesDir, s.cfg.Watch.Debounce, s.engine.Reload, s.logger)
		if err != nil {
			return fmt.Errorf("create rules watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			w.Stop()
			return fmt.Errorf("watch rules: %w", err)
		}
		defer w.Stop()
	}

	if s.cfg.Metrics.Addr != "" {
		shutdown := serveMetrics(s.cfg.Metrics.Addr, s.logger)
		defer shutdown()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	conv := &conversation{base: base}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			quit, err := replLine(ctx, cmd, s, conv, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// conversation carries last_intent from one turn to the next
type conversation struct {
	base       model.Context
	lastIntent string
}

func (c *conversation) context() model.Context {
	rc := make(model.Context, len(c.base)+1)
	for k, v := range c.base {
		rc[k] = v
	}
	if c.lastIntent != "" {
		rc[model.CtxLastIntent] = c.lastIntent
	}
	return rc
}

func (c *conversation) observe(res *model.IntentResult) {
	if res.Source != model.SourceSystem {
		c.lastIntent = res.Intent
	}
}

func replLine(ctx context.Context, cmd *cobra.Command, s *session, conv *conversation, line string) (bool, error) {
	text := strings.TrimSpace(line)
	switch text {
	case "":
		return false, nil
	case ":quit", ":q":
		return true, nil
	case ":reload":
		rs := s.store.Reload()
		fmt.Fprintf(cmd.ErrOrStderr(), "rules reloaded (generation %d)\n", rs.Generation)
		return false, nil
	case ":reset":
		conv.lastIntent = ""
		return false, nil
	}

	res := s.engine.Process(ctx, text, conv.context())
	conv.observe(res)
	return false, writeJSON(cmd, res, false)
}

// serveMetrics exposes /metrics until the returned function is called
func serveMetrics(addr string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
