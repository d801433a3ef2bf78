package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/overdub/adapter"
	"github.com/justapithecus/overdub/adapter/redis"
	"github.com/justapithecus/overdub/adapter/webhook"
	"github.com/justapithecus/overdub/cli/config"
	"github.com/justapithecus/overdub/journal"
	"github.com/justapithecus/overdub/log"
	"github.com/justapithecus/overdub/metrics"
)

// defaultLogLevel keeps stderr quiet unless something went wrong.
const defaultLogLevel = zapcore.WarnLevel

// loadConfig reads --config when set. A missing flag yields an empty config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// resolveLogLevel picks --log-level, then the config file, then warn.
func resolveLogLevel(flag string, cfg *config.Config) (zapcore.Level, error) {
	switch {
	case flag != "":
		return log.ParseLevel(flag)
	case cfg.LogLevel != "":
		return log.ParseLevel(cfg.LogLevel)
	default:
		return defaultLogLevel, nil
	}
}

// journalChoice holds the resolved journal configuration.
type journalChoice struct {
	dataset   string
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

// resolveJournal merges journal flags over the config file section.
func resolveJournal(c *cli.Context, cfg *config.Config) journalChoice {
	jc := journalChoice{
		dataset:   cfg.Journal.Dataset,
		backend:   cfg.Journal.Backend,
		path:      cfg.Journal.Path,
		region:    cfg.Journal.Region,
		endpoint:  cfg.Journal.Endpoint,
		pathStyle: cfg.Journal.S3PathStyle,
	}
	if v := c.String("journal-backend"); v != "" {
		jc.backend = v
	}
	if v := c.String("journal-path"); v != "" {
		jc.path = v
	}
	if v := c.String("journal-s3-region"); v != "" {
		jc.region = v
	}
	if v := c.String("journal-s3-endpoint"); v != "" {
		jc.endpoint = v
	}
	if c.Bool("journal-s3-path-style") {
		jc.pathStyle = true
	}
	return jc
}

// storageBackend names the backend for metrics dimensions.
func (jc journalChoice) storageBackend() string {
	if jc.path == "" {
		return "none"
	}
	if jc.backend == "" {
		return "fs"
	}
	return jc.backend
}

// buildJournal opens the journal. It returns nil when no path is configured.
func buildJournal(ctx context.Context, jc journalChoice, m *metrics.Collector) (*journal.Journal, error) {
	if jc.path == "" {
		return nil, nil
	}

	opts := []journal.Option{journal.WithMetrics(m)}
	switch jc.backend {
	case "fs", "":
		return journal.NewFS(jc.dataset, jc.path, opts...)
	case "s3":
		bucket, prefix := journal.ParseS3Path(jc.path)
		return journal.NewS3(ctx, jc.dataset, journal.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       jc.region,
			Endpoint:     jc.endpoint,
			UsePathStyle: jc.pathStyle,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown journal backend: %s (must be fs or s3)", jc.backend)
	}
}

// resolveAdapter merges adapter flags over the config file section.
func resolveAdapter(c *cli.Context, cfg *config.Config) (config.AdapterConfig, error) {
	ac := cfg.Adapter
	if v := c.String("adapter"); v != "" {
		ac.Type = v
	}
	if v := c.String("adapter-url"); v != "" {
		ac.URL = v
	}
	if v := c.String("adapter-channel"); v != "" {
		ac.Channel = v
	}
	if c.IsSet("adapter-timeout") {
		ac.Timeout = config.Duration{Duration: c.Duration("adapter-timeout")}
	}
	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		ac.Retries = &n
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return ac, fmt.Errorf("invalid --adapter-header %q (want KEY=VALUE)", h)
		}
		if ac.Headers == nil {
			ac.Headers = make(map[string]string)
		}
		ac.Headers[strings.TrimSpace(k)] = v
	}
	return ac, nil
}

// buildAdapter creates the completion adapter. It returns nil when no
// adapter type is configured.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	switch ac.Type {
	case "":
		if ac.URL != "" {
			return nil, fmt.Errorf("adapter URL set without an adapter type (webhook or redis)")
		}
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", ac.Type)
	}
}

// adapterFlags configure the completion adapter.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook URL or Redis URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel (default " + redis.DefaultChannel + ")",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as KEY=VALUE (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt adapter timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Adapter retry attempts",
		},
	}
}
