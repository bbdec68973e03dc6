package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gonetx/checkit/internal/dummy"
	"github.com/gonetx/checkit/internal/logger"
	"github.com/gonetx/checkit/metrics"
	"github.com/gonetx/checkit/probe"
)

const version = "0.1.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

// options are the root command settings after flags, env and config file
// have been merged.
type options struct {
	probe.Config `mapstructure:",squash"`
	MetricsAddr  string `mapstructure:"metrics-addr"`
	Debug        bool   `mapstructure:"debug"`
}

func init() {
	addRootFlags(rootCmd)
	rootCmd.AddCommand(dummyCmd)
}

func addRootFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "Config file using the flag names as keys (yaml, json or toml)")
	flags.IntP("vus", "u", probe.DefaultVUs, "Number of concurrent virtual users")
	flags.DurationP("duration", "d", probe.DefaultDuration, "Duration of the run")
	flags.IntP("iterations", "i", 0, "Iterations per virtual user, 0 runs until the duration elapses")
	flags.DurationP("timeout", "t", probe.DefaultTimeout, "Socket/request timeout")
	flags.StringP("path", "p", probe.DefaultPath, "Request path appended to the base url")
	flags.String("token", "", "Bearer token sent in the Authorization header (default embedded token)")
	flags.StringArrayP("header", "H", nil, "Extra HTTP request header with format \"K: V\", can be repeated")
	flags.IntSlice("accept", probe.DefaultAccept, "Status codes the check accepts")
	flags.IntP("rate", "r", 0, "Maximum iterations per second across all virtual users, 0 means unlimited")
	flags.BoolP("insecure", "k", false, "Controls whether a client verifies the server's certificate chain and host name")
	flags.String("cert", "", "Path to the client's TLS Certificate")
	flags.String("key", "", "Path to the client's TLS Certificate Private Key")
	flags.String("http-proxy", "", "HTTP proxy address")
	flags.String("socks-proxy", "", "SOCKS5 proxy address, e.g. socks5://127.0.0.1:1080")
	flags.BoolP("disable-keep-alives", "a", false, "Disable HTTP keep-alive, if true, will set header Connection: close")
	flags.Bool("pipeline", false, "Use fasthttp pipelining client")
	flags.Bool("http1", false, "Use net/http client with HTTP/1.x")
	flags.Bool("http2", false, "Use net/http client with HTTP/2.0")
	flags.Float64("min-pass-rate", 0, "Fail the run when a check passes less often than this ratio, e.g. 0.99")
	flags.String("summary-export", "", "Write the end-of-run summary as JSON to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool("tui", true, "Show the live dashboard while running")
	flags.Bool("debug", false, "Enable debug logging to stderr")
}

var rootCmd = &cobra.Command{
	Use:          "checkit [base-url]",
	Short:        "checkit probes one HTTP endpoint with concurrent virtual users and checks every status",
	Version:      version,
	Args:         rootArgs,
	RunE:         rootRun,
	SilenceUsage: true,
}

func rootArgs(_ *cobra.Command, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("accepts at most one base url, received %d", len(args))
	}
	return nil
}

func rootRun(cmd *cobra.Command, args []string) (err error) {
	var opts options
	if opts, err = loadOptions(cmd, args); err != nil {
		return
	}

	if err = logger.Init(opts.Debug); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	probeOpts := []probe.Option{probe.WithOutput(cmd.OutOrStdout())}
	if opts.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		probeOpts = append(probeOpts, probe.WithCollector(metrics.NewPrometheusMetricsCollector(registry)))
		srv := serveMetrics(opts.MetricsAddr, registry)
		defer func() { _ = srv.Close() }()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	_, err = probe.New(opts.Config, probeOpts...).Run(ctx)

	return
}

// loadOptions merges, from highest precedence: the positional base url,
// explicit flags, CHECKIT_* env vars, the config file, flag defaults.
func loadOptions(cmd *cobra.Command, args []string) (opts options, err error) {
	v := viper.New()
	v.SetDefault("base-url", probe.DefaultBaseURL)
	if err = v.BindPFlags(cmd.Flags()); err != nil {
		return
	}
	v.SetEnvPrefix("checkit")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err = v.ReadInConfig(); err != nil {
			return opts, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}

	if len(args) > 0 {
		v.Set("base-url", args[0])
	}

	if err = v.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("failed to parse config: %w", err)
	}

	return
}

func serveMetrics(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Errorw("metrics server stopped", "addr", addr, "error", err)
		}
	}()

	return srv
}

func init() {
	dummyCmd.Flags().String("addr", ":5000", "Listen address")
	dummyCmd.Flags().Float64("rate", 5, "Requests per second allowed before answering 429, 0 disables limiting")
	dummyCmd.Flags().Int("burst", 20, "Token bucket size")
	dummyCmd.Flags().Bool("debug", false, "Enable debug logging to stderr")
}

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a local users API that answers 429 when over its rate",
	Args:  cobra.NoArgs,
	RunE:  dummyRun,
}

func dummyRun(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	addr, _ := flags.GetString("addr")
	rate, _ := flags.GetFloat64("rate")
	burst, _ := flags.GetInt("burst")
	debug, _ := flags.GetBool("debug")

	if err := logger.Init(debug); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	s := dummy.New(dummy.Config{Addr: addr, Rate: rate, Burst: burst})
	cmd.Printf("Dummy server running on %s, endpoint: GET /api/users/{id}\n", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe()
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}
