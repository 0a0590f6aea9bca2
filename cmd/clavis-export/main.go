// Command clavis-export runs one Clavis report export into S3.
//
//	clavis-export -endpoint kpi -bucket exports -key clavis/kpi.json -param report_date=2024-01-15
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/clavis-export/internal/config"
	"github.com/Sternrassler/clavis-export/pkg/auth"
	"github.com/Sternrassler/clavis-export/pkg/client"
	"github.com/Sternrassler/clavis-export/pkg/job"
	"github.com/Sternrassler/clavis-export/pkg/logging"
	"github.com/Sternrassler/clavis-export/pkg/metrics"
	"github.com/Sternrassler/clavis-export/pkg/pagination"
	"github.com/Sternrassler/clavis-export/pkg/runstate"
	"github.com/Sternrassler/clavis-export/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// paramFlag collects repeated -param key=value flags.
type paramFlag pagination.Payload

func (p paramFlag) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(pairs, ",")
}

func (p paramFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("param must be key=value (got %q)", value)
	}
	p[key] = val
	return nil
}

type options struct {
	endpoint string
	bucket   string
	key      string
	format   string
	envPath  string
	params   paramFlag
}

func parseFlags(args []string, output io.Writer) (options, error) {
	opts := options{params: paramFlag{}}

	fs := flag.NewFlagSet("clavis-export", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.endpoint, "endpoint", "", "report endpoint: "+endpointNames())
	fs.StringVar(&opts.bucket, "bucket", "", "destination S3 bucket")
	fs.StringVar(&opts.key, "key", "", "destination object key")
	fs.StringVar(&opts.format, "format", string(job.FormatJSON), "output format: json or ndjson")
	fs.StringVar(&opts.envPath, "env", "", "optional .env file")
	fs.Var(opts.params, "param", "request parameter key=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.endpoint == "" || opts.bucket == "" || opts.key == "" {
		return opts, fmt.Errorf("-endpoint, -bucket and -key are required")
	}
	return opts, nil
}

func endpointNames() string {
	names := make([]string, 0, len(pagination.Endpoints()))
	for _, e := range pagination.Endpoints() {
		names = append(names, string(e))
	}
	return strings.Join(names, ", ")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one export and returns the process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "clavis-export: %v\n", err)
		return 1
	}

	cfg, err := config.Load(opts.envPath)
	if err != nil {
		fmt.Fprintf(stderr, "clavis-export: %v\n", err)
		return 1
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: stderr,
	})
	logger := logging.NewLogger("main")

	exporter, cleanup, err := buildExporter(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize export job")
		return 1
	}
	defer cleanup()

	result, runErr := exporter.Run(ctx, job.Params{
		Endpoint: opts.endpoint,
		Payload:  pagination.Payload(opts.params),
		Bucket:   opts.bucket,
		Key:      opts.key,
		Format:   job.Format(opts.format),
	})

	if cfg.PushgatewayURL != "" {
		pushCfg := metrics.DefaultPushConfig(cfg.PushgatewayURL)
		pushCfg.Grouping = map[string]string{"endpoint": strings.ToLower(opts.endpoint)}
		if err := metrics.Push(context.WithoutCancel(ctx), pushCfg); err != nil {
			logger.Warn().Err(err).Msg("Failed to push metrics")
		}
	}

	if runErr != nil {
		logRunError(logger, opts, runErr)
		return 1
	}

	logger.Info().
		Str("run_id", result.RunID).
		Str("endpoint", string(result.Endpoint)).
		Int("records", result.Records).
		Str("destination", "s3://"+result.Bucket+"/"+result.Key).
		Msg("Export finished")
	return 0
}

// buildExporter wires the Clavis client, S3 writer and the optional Redis run
// ledger. cleanup releases every connection it opened.
func buildExporter(ctx context.Context, cfg *config.AppConfig) (*job.Exporter, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	clientCfg := client.DefaultConfig(cfg.Clavis.BaseURL)
	clientCfg.Method = cfg.Clavis.Method
	clientCfg.Timeout = cfg.Clavis.Timeout
	if cfg.HasStaticCredentials() {
		clientCfg.StaticAuth = &client.StaticCredentials{
			Username: cfg.Clavis.Username,
			Password: cfg.Clavis.Password,
		}
	}
	api, err := client.New(clientCfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create clavis client: %w", err)
	}

	writer, err := storage.NewS3Writer(storage.Config{
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Region:          cfg.S3.Region,
		UseSSL:          cfg.S3.UseSSL,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("create s3 writer: %w", err)
	}
	closers = append(closers, func() { writer.Close() })

	jobCfg := job.DefaultConfig()
	jobCfg.Authenticator = auth.NewAuthenticator(api)
	jobCfg.Fetcher = pagination.NewFetcher(api, pagination.DefaultConfig())
	jobCfg.Storage = writer

	if cfg.RedisURL != "" {
		redisClient, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() { redisClient.Close() })
		jobCfg.Ledger = runstate.NewLedger(redisClient, logging.NewLogger("ledger"))
	}

	exporter, err := job.New(jobCfg)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return exporter, cleanup, nil
}

// connectRedis accepts a redis:// URL or a plain host:port.
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	}

	redisClient := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return redisClient, nil
}

// logRunError logs err with the page context carried by the typed errors.
func logRunError(logger zerolog.Logger, opts options, err error) {
	event := logger.Error().
		Err(err).
		Str("endpoint", opts.endpoint).
		Str("bucket", opts.bucket).
		Str("key", opts.key)

	var (
		fetchErr     *pagination.FetchError
		malformedErr *pagination.MalformedResponseError
		authErr      *auth.AuthError
	)
	switch {
	case errors.As(err, &fetchErr):
		event = event.Int("page", fetchErr.Page).Int("offset", fetchErr.Offset)
	case errors.As(err, &malformedErr):
		event = event.Int("page", malformedErr.Page).Int("offset", malformedErr.Offset)
	case errors.As(err, &authErr):
		event = event.Int("status_code", authErr.StatusCode)
	}

	event.Msg("Export failed")
}
