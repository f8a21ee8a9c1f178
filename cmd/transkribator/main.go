package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/api"
	"github.com/videlboga/cyberkitty119-sub001/internal/audio"
	"github.com/videlboga/cyberkitty119-sub001/internal/config"
	"github.com/videlboga/cyberkitty119-sub001/internal/llm"
	"github.com/videlboga/cyberkitty119-sub001/internal/media"
	"github.com/videlboga/cyberkitty119-sub001/internal/metrics"
	"github.com/videlboga/cyberkitty119-sub001/internal/pipeline"
	"github.com/videlboga/cyberkitty119-sub001/internal/refine"
	"github.com/videlboga/cyberkitty119-sub001/internal/relay"
	"github.com/videlboga/cyberkitty119-sub001/internal/results"
	"github.com/videlboga/cyberkitty119-sub001/internal/storage"
	"github.com/videlboga/cyberkitty119-sub001/internal/summarize"
	"github.com/videlboga/cyberkitty119-sub001/internal/telegram"
	"github.com/videlboga/cyberkitty119-sub001/internal/transcribe"
	"github.com/videlboga/cyberkitty119-sub001/internal/userbot"
	"github.com/videlboga/cyberkitty119-sub001/internal/watch"
)

var version = "dev"

// messageLimit is the longest transcript sent inline; anything bigger goes
// out as a document with a preview.
const messageLimit = 3500

func main() {
	startTime := time.Now()

	envFile := flag.String("env", "", "path to .env file")
	httpAddr := flag.String("http", "", "http listen address (overrides HTTP_ADDR)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	workDir := flag.String("workdir", "", "scratch directory (overrides WORK_DIR)")
	watchDir := flag.String("watchdir", "", "drop directory to watch (overrides WATCH_DIR)")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		EnvFile:  *envFile,
		HTTPAddr: *httpAddr,
		LogLevel: *logLevel,
		WorkDir:  *workDir,
		WatchDir: *watchDir,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("transkribator starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.WorkDir, cfg.ArtifactDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}

	// Artifact storage
	store, storageServices, err := storage.New(cfg.S3, cfg.ArtifactDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	for _, svc := range storageServices {
		svc.Start()
		defer svc.Stop()
	}
	log.Info().Str("type", store.Type()).Msg("artifact storage ready")

	// Bot channel (primary identity)
	bot := telegram.NewClient(cfg.BotAPIBase, cfg.BotToken, time.Minute, log)

	// Media tooling
	runner := audio.ExecRunner{}
	extractor := audio.NewExtractor(runner, cfg.SampleRate, cfg.AudioChannels, log)
	segmenter := audio.NewSegmenter(runner, cfg.SegmentSeconds, log)
	urls := media.NewURLDownloader(runner, 15*time.Minute, log)

	// Relay path for oversized media (secondary identity)
	var (
		fetcher media.RelayFetcher
		table   *relay.Table
	)
	if cfg.RelayEnabled() {
		gateway := userbot.NewClient(cfg.RelayGatewayURL, cfg.RelayGatewayToken, time.Minute, log)
		table = relay.NewTable(cfg.RelayWaitTimeout, log)
		table.Start()
		defer table.Stop()

		monitor := relay.NewMonitor(gatewayAdapter{gateway}, table, cfg.RelayChatID, cfg.RelayPollInterval, log)
		fetcher = relay.NewCorrelator(bot, gatewayAdapter{gateway}, table, cfg.RelayChatID, cfg.RelayWaitTimeout, log)

		sup := relay.NewSupervisor(log)
		go func() {
			if err := sup.Run(ctx, "relay-monitor", monitor.Run); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("relay monitor gave up")
			}
		}()
		log.Info().Int64("relay_chat", cfg.RelayChatID).Msg("relay path enabled")
	} else {
		log.Info().Msg("relay path disabled: oversized media will be rejected")
	}

	resolver := media.NewResolver(bot, fetcher, urls, cfg.DirectSizeLimit, cfg.WorkDir, log)

	// Speech-to-text and language models
	stt := transcribe.NewClient(cfg.SttURL, cfg.SttAPIKey, cfg.SttModels, cfg.SttTimeout, log)
	llmClient := llm.NewClient(cfg.LLMURL, cfg.LLMAPIKey, cfg.LLMReferer, cfg.LLMTitle, cfg.LLMTimeout, log)
	cascade := llm.NewCascade(llmClient, cfg.LLMModels, log)
	refiner := refine.NewRefiner(cascade, log)
	summarizer := summarize.NewSummarizer(cascade, log)

	cache := results.NewCache(cfg.CacheTTL, cfg.CacheCapacity, log)

	// Pipeline
	pipe := pipeline.New(pipeline.Options{
		Resolver:       resolver,
		Extractor:      extractor,
		Segmenter:      segmenter,
		Transcriber:    stt,
		Refiner:        refiner,
		Cache:          cache,
		Store:          store,
		WorkDir:        cfg.WorkDir,
		SegmentSeconds: cfg.SegmentSeconds,
		SttWorkers:     cfg.TranscribeWorkers,
		Progress:       progressFactory(bot, log),
		Log:            log,
	})
	pool := pipeline.NewWorkerPool(pipe, cfg.PipelineWorkers, cfg.PipelineQueue, deliver(bot, log), log)
	pool.Start()

	// Drop-folder watcher
	var watcher *watch.Watcher
	if cfg.WatchDir != "" {
		watcher = watch.New(cfg.WatchDir, func(path string) error {
			if !pool.Enqueue(pipeline.Job{Source: media.Source{LocalPath: path}}) {
				return errors.New("job queue is full")
			}
			return nil
		}, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start watcher")
		}
	}

	// Scrape-time gauges
	var relayStats metrics.RelayStats
	if table != nil {
		relayStats = table
	}
	prometheus.MustRegister(metrics.NewCollector(pool, relayStats, cache))

	// HTTP server
	var relaySource api.RelaySource
	if table != nil {
		relaySource = table
	}
	var watcherSource api.WatcherSource
	if watcher != nil {
		watcherSource = watcher
	}
	health := api.NewHealthHandler(pool, relaySource, watcherSource, version, startTime)
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		Jobs:    api.NewJobsHandler(pool, log),
		Results: api.NewResultsHandler(cache, summarizer, log),
		Health:  health,
	}, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	// Stop intake before draining the queue, then drain in-flight jobs
	// before the deferred services stop.
	if watcher != nil {
		watcher.Stop()
	}
	pool.Stop()

	log.Info().Msg("transkribator stopped")
}

// gatewayAdapter bridges the userbot client to the relay monitor's gateway
// interface.
type gatewayAdapter struct {
	client *userbot.Client
}

func (g gatewayAdapter) Messages(ctx context.Context, chatID, minID int64, limit int) ([]relay.MessageRef, error) {
	msgs, err := g.client.Messages(ctx, chatID, minID, limit)
	if err != nil {
		return nil, err
	}
	refs := make([]relay.MessageRef, 0, len(msgs))
	for _, m := range msgs {
		refs = append(refs, relay.MessageRef{
			ID:       m.ID,
			Caption:  m.Caption,
			HasMedia: m.HasMedia,
		})
	}
	return refs, nil
}

func (g gatewayAdapter) Download(ctx context.Context, chatID, messageID int64) (string, error) {
	return g.client.Download(ctx, chatID, messageID)
}

// progressFactory posts a status message to the requesting chat and keeps
// editing it as the job advances. Jobs without a requester get no reporter.
func progressFactory(bot *telegram.Client, log zerolog.Logger) pipeline.ProgressFactory {
	return func(ctx context.Context, job pipeline.Job) telegram.Progress {
		if job.Requester == 0 {
			return nil
		}
		p, err := bot.NewProgress(ctx, job.Requester, "Got it, working on your file...")
		if err != nil {
			log.Warn().Err(err).Int64("requester", job.Requester).Msg("failed to create progress message")
			return telegram.NopProgress{}
		}
		return p
	}
}

// deliver sends the job outcome back to the requesting chat. Drop-folder
// jobs have no requester and produce no delivery.
func deliver(bot *telegram.Client, log zerolog.Logger) pipeline.DeliverFunc {
	return func(ctx context.Context, job pipeline.Job, entry results.Entry, jobErr error) {
		if job.Requester == 0 {
			return
		}

		if jobErr != nil {
			if _, err := bot.SendMessage(ctx, job.Requester, failureMessage(jobErr)); err != nil {
				log.Warn().Err(err).Int64("requester", job.Requester).Msg("failed to deliver error message")
			}
			return
		}

		text := entry.Formatted
		if runes := []rune(text); len(runes) > messageLimit {
			text = string(runes[:messageLimit]) + "\n\n(full transcript attached)"
		}
		if _, err := bot.SendMessage(ctx, job.Requester, text); err != nil {
			log.Warn().Err(err).Int64("requester", job.Requester).Msg("failed to deliver transcript")
		}
		if entry.FormattedPath != "" {
			if err := bot.SendDocument(ctx, job.Requester, entry.FormattedPath, "Transcript"); err != nil {
				log.Warn().Err(err).Int64("requester", job.Requester).Msg("failed to deliver transcript file")
			}
		}
	}
}

func failureMessage(jobErr error) string {
	if errors.Is(jobErr, audio.ErrNoAudio) {
		return "The file has no audio track, nothing to transcribe."
	}
	if errors.Is(jobErr, relay.ErrTimeout) {
		return "The file is too large and the relay download timed out. Try again later."
	}
	switch pipeline.FailedStage(jobErr) {
	case pipeline.StageAcquire:
		return "Could not download the media. Check the link or try resending the file."
	case pipeline.StageDecode, pipeline.StageSegment:
		return "Could not decode the media file."
	case pipeline.StageTranscribe:
		return "Speech recognition failed on all models. Try again later."
	default:
		return "Something went wrong while processing your file."
	}
}
