// Package bootstrap assembles the services shared by the API and worker
// binaries from an infra.Config.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"schoolsite/internal/assets"
	"schoolsite/internal/http/handlers"
	"schoolsite/internal/http/httpapi"
	"schoolsite/internal/infra"
	"schoolsite/internal/infra/credentials"
	"schoolsite/internal/infra/geoip"
	"schoolsite/internal/jobstore"
	"schoolsite/internal/pipeline"
	"schoolsite/internal/providers/audio"
	"schoolsite/internal/providers/genai"
	"schoolsite/internal/providers/image"
	"schoolsite/internal/providers/llm"
	"schoolsite/internal/providers/qwen"
	"schoolsite/internal/queue"
	"schoolsite/internal/storage"
	"schoolsite/internal/textgen"
)

// Services holds every long-lived collaborator of a process.
type Services struct {
	Config       *infra.Config
	Logger       *infra.Logger
	Jobs         *jobstore.Store
	Queue        queue.Queue
	Steps        pipeline.StepLog
	Assets       *assets.Generator
	Orchestrator *pipeline.Orchestrator
	Geo          *geoip.Resolver

	// Files is set when media is stored on local disk.
	Files *storage.FileStore
	// Shared reports whether the queue lives outside this process.
	Shared bool

	closers []func()
}

// New connects to whatever infrastructure cfg names and falls back to
// in-process implementations for the rest.
func New(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	logger = infra.LoggerOrDiscard(logger)
	s := &Services{Config: cfg, Logger: logger}
	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) init(ctx context.Context) error {
	cfg, logger := s.Config, s.Logger
	storeOpts := jobstore.Options{JobTTL: cfg.JobTTL}

	if cfg.RedisAddr != "" {
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		jobs, err := jobstore.NewRedisStore(rdb, storeOpts)
		if err != nil {
			return err
		}
		s.Jobs = jobs
	} else {
		logger.Warn().Msg("bootstrap: REDIS_ADDR not set, job state is kept in memory")
		s.Jobs = jobstore.NewMemoryStore(storeOpts)
	}

	var creds *credentials.Store
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		runner := infra.NewSQLRunner(pool, *logger)

		pq := queue.NewPostgresQueue(runner, queue.PostgresOptions{LeaseTimeout: pipeline.LeaseFor(cfg.StepTimeout), Logger: logger})
		steps := pipeline.NewPostgresStepLog(runner)
		creds = credentials.NewStore(runner)
		schemas := []struct {
			name   string
			ensure func(context.Context) error
		}{
			{"queue", pq.EnsureSchema},
			{"steps", steps.EnsureSchema},
			{"credentials", creds.EnsureSchema},
		}
		for _, schema := range schemas {
			if err := schema.ensure(ctx); err != nil {
				return fmt.Errorf("bootstrap: ensure %s schema: %w", schema.name, err)
			}
		}
		s.Queue, s.Steps, s.Shared = pq, steps, true
	} else {
		s.Queue = queue.NewMemoryQueue(queue.MemoryOptions{LeaseTimeout: pipeline.LeaseFor(cfg.StepTimeout)})
		s.Steps = s.Jobs
	}

	objects, err := s.objectStore(ctx)
	if err != nil {
		return err
	}

	s.Assets = assets.NewGenerator(assets.Options{
		Images:  imageChain(ctx, cfg, creds, logger),
		Audio:   audioProvider(ctx, cfg, creds, logger),
		Store:   objects,
		Timeout: cfg.AssetTimeout,
		Logger:  logger,
	})

	models := TextModels(cfg, keyResolver(ctx, creds))
	if len(models) == 0 {
		logger.Warn().Msg("bootstrap: no text model has credentials, every job uses the mock artifact")
	}
	text := textgen.NewGenerator(textgen.Options{
		Models:      models,
		Preferences: s.Jobs,
		Timeout:     cfg.TextTimeout,
		Logger:      logger,
	})

	orch, err := pipeline.New(pipeline.Options{
		Text:        text,
		Assets:      s.Assets,
		Jobs:        s.Jobs,
		Steps:       s.Steps,
		Cache:       s.Jobs,
		StepTimeout: cfg.StepTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	s.Orchestrator = orch

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: geoip disabled")
	} else if geo != nil {
		s.Geo = geo
		s.closers = append(s.closers, func() { _ = geo.Close() })
	}
	return nil
}

func (s *Services) objectStore(ctx context.Context) (storage.ObjectStore, error) {
	cfg := s.Config
	if cfg.GCSBucket != "" {
		gcsStore, err := storage.NewGCSStore(ctx, storage.GCSOptions{
			Bucket:          cfg.GCSBucket,
			PublicBaseURL:   cfg.GCSPublicBaseURL,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		s.closers = append(s.closers, func() { _ = gcsStore.Close() })
		return gcsStore, nil
	}
	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	s.Files = files
	return files, nil
}

// KeyFunc returns the API key for provider, preferring configured.
type KeyFunc func(provider, configured string) string

func keyResolver(ctx context.Context, creds *credentials.Store) KeyFunc {
	return func(provider, configured string) string {
		return creds.Resolve(ctx, provider, configured)
	}
}

// TextModels lists the configured LLMs that have a key, OpenAI first.
func TextModels(cfg *infra.Config, key KeyFunc) []llm.Model {
	var models []llm.Model
	if k := key(credentials.ProviderOpenAI, cfg.OpenAIAPIKey); k != "" {
		for _, name := range cfg.OpenAIModels {
			m, err := llm.NewOpenAIModel(llm.OpenAIOptions{
				APIKey:       k,
				Model:        name,
				BaseURL:      cfg.OpenAIBaseURL,
				Organization: cfg.OpenAIOrg,
			})
			if err == nil {
				models = append(models, m)
			}
		}
	}
	if k := key(credentials.ProviderGemini, cfg.GeminiAPIKey); k != "" {
		for _, name := range cfg.GeminiTextModels {
			m, err := llm.NewGeminiModel(llm.GeminiOptions{
				APIKey:  k,
				Model:   name,
				BaseURL: cfg.GeminiBaseURL,
			})
			if err == nil {
				models = append(models, m)
			}
		}
	}
	return models
}

func imageChain(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger *infra.Logger) image.Generator {
	var chain image.Chain
	if k := creds.Resolve(ctx, credentials.ProviderQwen, cfg.QwenAPIKey); k != "" {
		client, err := qwen.NewClient(qwen.Options{
			APIKey:  k,
			BaseURL: cfg.QwenBaseURL,
			Model:   cfg.QwenImageModel,
			Logger:  logger,
		})
		if err == nil {
			chain = append(chain, image.NewQwenGenerator(client))
		}
	}
	if k := creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey); k != "" {
		client, err := genai.NewClient(genai.Options{
			APIKey:  k,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiImageModel,
			Logger:  logger,
		})
		if err == nil {
			chain = append(chain, image.NewGeminiGenerator(client))
		}
	}
	if len(chain) == 0 {
		logger.Warn().Msg("bootstrap: no image provider configured, images use placeholders")
		return nil
	}
	return chain
}

func audioProvider(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger *infra.Logger) assets.AudioProvider {
	client := audio.NewClient(audio.Options{
		Endpoint: cfg.AudioAPIURL,
		APIKey:   creds.Resolve(ctx, credentials.ProviderAudio, cfg.AudioAPIKey),
		Logger:   logger,
	})
	if !client.HasCredentials() {
		return nil
	}
	return client
}

// Handler builds the HTTP API on top of the services.
func (s *Services) Handler() (http.Handler, error) {
	opts := handlers.Options{
		Jobs:        s.Jobs,
		Queue:       s.Queue,
		Assets:      s.Assets,
		JobIDPrefix: s.Config.JobIDPrefix,
		Logger:      s.Logger,
	}
	if s.Shared {
		if cleaner, ok := s.Steps.(handlers.StepCleaner); ok {
			opts.Steps = cleaner
		}
	}
	routerOpts := httpapi.Options{
		Logger:          s.Logger,
		DefaultLocale:   s.Config.DefaultLocale,
		CountryLookup:   s.Geo.Lookup(),
		CORSOrigins:     s.Config.CORSAllowedOrigins,
		RateLimitPerMin: s.Config.RateLimitPerMin,
	}
	if s.Files != nil {
		opts.StaticDir = s.Files.BasePath()
		opts.StaticBaseURL = strings.TrimRight(s.Config.StorageBaseURL, "/")
		routerOpts.StaticDir = s.Files.BasePath()
	}
	app, err := handlers.NewApp(opts)
	if err != nil {
		return nil, err
	}
	return httpapi.NewRouter(app, routerOpts), nil
}

// Worker builds a queue consumer driving the orchestrator.
func (s *Services) Worker() *pipeline.Worker {
	// Finished runs and their checkpoints live as long as the job record.
	var pruners []pipeline.Pruner
	if p, ok := s.Steps.(pipeline.Pruner); ok {
		pruners = append(pruners, p)
	}
	return pipeline.NewWorker(s.Queue, s.Orchestrator, pipeline.WorkerOptions{
		Concurrency:  s.Config.WorkerConcurrency,
		PollInterval: s.Config.WorkerPollInterval,
		MaxRetries:   s.Config.PipelineMaxRetries,
		Retention:    s.Config.JobTTL,
		Pruners:      pruners,
		Logger:       s.Logger,
	})
}

// Close releases connections in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
