package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-news-ingestor/internal/api"
	"github.com/samvad-hq/samvad-news-ingestor/internal/cleaner"
	"github.com/samvad-hq/samvad-news-ingestor/internal/config"
	"github.com/samvad-hq/samvad-news-ingestor/internal/consumer"
	"github.com/samvad-hq/samvad-news-ingestor/internal/crawler"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"github.com/samvad-hq/samvad-news-ingestor/internal/metrics"
	"github.com/samvad-hq/samvad-news-ingestor/internal/pipeline"
	"github.com/samvad-hq/samvad-news-ingestor/internal/query"
	"github.com/samvad-hq/samvad-news-ingestor/internal/storage"
	"github.com/samvad-hq/samvad-news-ingestor/pkg/httpclient"
	"github.com/samvad-hq/samvad-news-ingestor/pkg/llm"
	"github.com/samvad-hq/samvad-news-ingestor/pkg/publishers"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"
)

const notifierDrainTimeout = 5 * time.Second

// Ingestor owns the long-running components: the stream source, the
// partition dispatcher and the query server.
type Ingestor struct {
	cfg        *config.Config
	log        logger.Logger
	store      storage.Store
	source     consumer.Source
	dispatcher *consumer.Dispatcher
	server     *api.Server
	notifier   *publishers.AsyncNotifier
}

// NewIngestor builds the runtime from config.
func NewIngestor(ctx context.Context, cfg *config.Config, log logger.Logger) (*Ingestor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	model, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	log.InfoObj("llm initialized", "llm_config", map[string]any{
		"provider": cfg.LLMProvider,
		"model":    cfg.LLMModel,
		"enabled":  model != nil,
	})

	store, err := storage.NewStore(ctx, storage.Options{
		Type:        cfg.StorageType,
		BoltPath:    cfg.BBoltPath,
		IndexPath:   cfg.SearchIndexPath,
		PostgresDSN: cfg.PostgresDSN,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":       cfg.StorageType,
		"path":       cfg.BBoltPath,
		"index_path": cfg.SearchIndexPath,
	})

	ing := &Ingestor{cfg: cfg, log: log, store: store}
	if err := ing.wire(ctx, model); err != nil {
		ing.close()
		return nil, err
	}
	return ing, nil
}

func (i *Ingestor) wire(ctx context.Context, model llms.Model) error {
	cfg := i.cfg

	fetcher := crawler.NewScraper(
		httpclient.NewRestyClient(httpclient.Options{
			Timeout:   cfg.FetchTimeout,
			UserAgent: cfg.FetchUserAgent,
		}),
		i.log,
		crawler.WithMaxBodyBytes(cfg.FetchMaxBodyBytes),
		crawler.WithUserAgent(cfg.FetchUserAgent),
	)

	opts := []pipeline.Option{
		pipeline.WithRetryPolicy(pipeline.RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
		}),
	}

	notifier, err := i.buildNotifier(ctx)
	if err != nil {
		return err
	}
	if notifier != nil {
		i.notifier = notifier
		opts = append(opts, pipeline.WithNotifier(notifier))
	}

	// one processor per lane; lanes share the store, fetcher and model clients
	handlers := make([]consumer.Handler, cfg.PartitionWorkers)
	for lane := range handlers {
		processor, err := pipeline.NewProcessor(i.store, fetcher, cleaner.New(model, i.log), i.log, opts...)
		if err != nil {
			return fmt.Errorf("init processor for lane %d: %w", lane, err)
		}
		handlers[lane] = processor.Handle
	}
	i.dispatcher = consumer.NewLaneDispatcher(handlers, i.log)

	source, err := consumer.NewSource(ctx, cfg, i.log)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}
	i.source = source

	answerer := query.NewService(model, i.store, cfg.SearchLimit, i.log)
	i.server = api.NewServer(cfg.HTTPAddr, answerer, i.log)
	return nil
}

// buildNotifier loads downstream publishers. No publishers file means no notifications.
func (i *Ingestor) buildNotifier(ctx context.Context) (*publishers.AsyncNotifier, error) {
	if i.cfg.PublishersFile == "" {
		i.log.InfoObj("no publishers file configured; ingest notifications disabled", "publishers_meta", nil)
		return nil, nil
	}

	reg := publishers.DefaultRegistry()
	enabled, err := publishers.LoadSinks(i.cfg.PublishersFile, reg)
	if err != nil {
		return nil, fmt.Errorf("load publishers: %w", err)
	}
	if len(enabled) == 0 {
		i.log.WarnObj("publishers file has no enabled publishers", "publishers_file", i.cfg.PublishersFile)
		return nil, nil
	}

	clients, err := publishers.BuildAll(ctx, reg, enabled, i.log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{"id": pubCfg.ID, "type": pubCfg.Type})
	}
	i.log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})

	return publishers.NewAsyncNotifier(
		publishers.NewFanout(clients),
		i.cfg.NotifyWorkers,
		i.log,
		publishers.WithResultFunc(func(_ int, err error) {
			if err != nil {
				metrics.RecordNotification("failed")
				return
			}
			metrics.RecordNotification("delivered")
		}),
	)
}

// Run consumes, processes and serves until ctx is cancelled or a component fails.
func (i *Ingestor) Run(ctx context.Context) error {
	if i == nil || i.dispatcher == nil || i.source == nil {
		return fmt.Errorf("ingestor is not initialized")
	}
	defer i.close()

	i.log.InfoObj("ingestor starting", "ingestor_state", map[string]any{
		"source":    i.source.Name(),
		"lanes":     i.dispatcher.Lanes(),
		"http_addr": i.cfg.HTTPAddr,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return i.dispatcher.Run(gctx) })
	g.Go(func() error {
		if err := i.source.Consume(gctx, i.dispatcher); err != nil && !errors.Is(err, consumer.ErrDispatcherStopped) {
			return fmt.Errorf("%s source: %w", i.source.Name(), err)
		}
		return nil
	})
	g.Go(func() error { return i.server.Run(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	i.log.InfoObj("ingestor stopped", "ingestor_state", map[string]any{"reason": fmt.Sprint(ctx.Err())})
	return err
}

// close releases resources in reverse order of construction.
func (i *Ingestor) close() {
	if i.source != nil {
		if err := i.source.Close(); err != nil {
			i.log.ErrorObj("source close failed", "error", err.Error())
		}
	}
	if i.notifier != nil {
		if err := i.notifier.Close(notifierDrainTimeout); err != nil {
			i.log.ErrorObj("notifier close failed", "error", err.Error())
		}
	}
	if i.store != nil {
		if err := i.store.Close(); err != nil {
			i.log.ErrorObj("storage close failed", "error", err.Error())
		}
	}
}
