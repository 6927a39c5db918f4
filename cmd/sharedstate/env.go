package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/sharedstate/internal/config"
	"github.com/vango-dev/sharedstate/internal/errors"
	"github.com/vango-dev/sharedstate/pkg/hub"
	"github.com/vango-dev/sharedstate/pkg/middleware"
	"github.com/vango-dev/sharedstate/pkg/sharedstate"
	"github.com/vango-dev/sharedstate/pkg/storage"
)

type globalFlags struct {
	config    string
	dir       string
	namespace string
	origin    string
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.config != "" {
		cfg, err = config.Load(flags.config)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, err
	}

	if flags.dir != "" {
		cfg.Storage.Driver = config.DriverFile
		cfg.Storage.Dir = flags.dir
	}
	if flags.namespace != "" {
		cfg.Namespace = flags.namespace
	}
	if flags.origin != "" {
		cfg.Origin = flags.origin
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// env is the runtime a command operates on.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	rt       *sharedstate.Runtime
	storage  storage.Storage
	notifier storage.Notifier
	file     *storage.File

	mu         sync.Mutex
	persistErr error
	closers    []func() error
}

// openEnv builds the configured medium and a runtime over it. With hub
// set, writes are relayed to the hub and events come from it.
func openEnv(ctx context.Context, flags *globalFlags, useHub bool) (*env, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: newLogger(cfg)}
	slog.SetDefault(e.logger)

	var s storage.Storage
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		m := storage.NewOrigin(storage.WithOriginLogger(e.logger)).Open()
		e.closers = append(e.closers, m.Close)
		s, e.notifier = m, m
	case config.DriverFile:
		f, err := storage.NewFile(cfg.Storage.Dir, storage.WithFileLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, f.Close)
		e.file = f
		s, e.notifier = f, f
	case config.DriverS3:
		s = storage.NewS3(newS3Client(cfg.Storage), cfg.Storage.Bucket, cfg.Storage.Prefix)
	}

	if cfg.Metrics.Enabled {
		s = middleware.Prometheus(s, middleware.WithNamespace(cfg.Metrics.Namespace))
	}
	s = middleware.OpenTelemetry(s)

	if useHub && cfg.Hub.URL != "" {
		c, err := hub.Dial(ctx, hub.OriginURL(cfg.Hub.URL, cfg.Origin), hub.WithClientLogger(e.logger))
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, c.Close)
		s = storage.Broadcasting(s, c, c.ID())
		e.notifier = c
	}

	e.storage = s
	e.rt = sharedstate.New(
		sharedstate.WithStorage(s),
		sharedstate.WithNamespace(cfg.Namespace),
		sharedstate.WithLogger(e.logger),
		sharedstate.WithStorageTimeout(cfg.Storage.TimeoutDuration()),
		sharedstate.OnPersistError(e.recordPersistError),
	)
	return e, nil
}

func (e *env) recordPersistError(_ string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.persistErr == nil {
		e.persistErr = err
	}
}

// err returns the first persistence failure reported since the env opened.
func (e *env) err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistErr
}

// Close releases the medium and hub connection.
func (e *env) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newS3Client builds an S3 client from the config and the standard AWS
// environment variables.
func newS3Client(sc config.StorageConfig) *s3.Client {
	opts := s3.Options{
		Region:       sc.Region,
		UsePathStyle: sc.PathStyle,
		Credentials:  aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if opts.Region == "" {
		opts.Region = os.Getenv("AWS_REGION")
	}
	if sc.Endpoint != "" {
		opts.BaseEndpoint = aws.String(sc.Endpoint)
	}
	return s3.New(opts)
}

func envCredentials(context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("E301").
			WithDetail("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set for the s3 driver")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "Environment",
	}, nil
}

// durableKey accepts keys with or without the "@" sigil. It returns ""
// when no name is given.
func durableKey(key string) string {
	switch {
	case key == "", key == sharedstate.DurableSigil:
		return ""
	case strings.HasPrefix(key, sharedstate.DurableSigil):
		return key
	}
	return sharedstate.DurableSigil + key
}
