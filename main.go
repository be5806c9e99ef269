// Command mediabridge wires every component spec.md enumerates:
// storage, the external clients, identity resolution, the metadata
// processor, the derived-state scanners, the custom-collection
// engine, the task orchestrator and its cron chains, the webhook
// pipeline, user templates, and the synthetic-library reverse proxy.
// Grounded on the teacher's main.go (load config, open the database,
// build the router, run), narrowed to this system's own component
// graph and widened with the one CLI subcommand spec.md §6 names.
package main

import (
	"context"
	"net/http"
	"os"
	"text/template"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"mediabridge/api"
	"mediabridge/clients/ai"
	"mediabridge/clients/cultural"
	"mediabridge/clients/downloader"
	"mediabridge/clients/library"
	"mediabridge/clients/metadata/tmdb"
	clienttypes "mediabridge/clients/types"
	"mediabridge/collections"
	"mediabridge/config"
	"mediabridge/derived/actorsub"
	"mediabridge/derived/cleanup"
	"mediabridge/derived/resubscribe"
	"mediabridge/derived/watchlist"
	"mediabridge/identity"
	"mediabridge/logging"
	"mediabridge/orchestrator"
	"mediabridge/processor"
	"mediabridge/proxy"
	"mediabridge/schedule"
	"mediabridge/storage"
	"mediabridge/storage/repo"
	"mediabridge/templates"
	"mediabridge/webhook"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "generate-nginx-config" {
		cfg, err := config.Load(os.Getenv("MEDIABRIDGE_CONFIG"))
		if err != nil {
			log.Fatal().Err(err).Msg("loading config")
		}
		if err := renderNginxConfig(os.Stdout, cfg); err != nil {
			log.Fatal().Err(err).Msg("rendering nginx config")
		}
		return
	}

	logging.Initialize()

	cfg, err := config.Load(os.Getenv("MEDIABRIDGE_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}

	// Repositories
	mediaRepo := repo.NewMediaRepository(db)
	watchlistRepo := repo.NewWatchlistRepository(db)
	userMediaStateRepo := repo.NewUserMediaStateRepository(db)
	collectionRepo := repo.NewCollectionRepository(db)
	cleanupRepo := repo.NewCleanupRepository(db)
	reviewRepo := repo.NewReviewQueueRepository(db)
	processedRepo := repo.NewProcessedItemRepository(db)
	actorSubRepo := repo.NewActorSubscriptionRepository(db)
	quotaRepo := repo.NewQuotaRepository(db)
	templateRepo := repo.NewTemplateRepository(db)
	invitationRepo := repo.NewInvitationRepository(db)
	extensionRepo := repo.NewUserExtensionRepository(db)

	// External clients
	libraryClient := library.New(asClientConfig(cfg.Library))
	metadataClient, err := tmdb.New(asClientConfig(cfg.Metadata))
	if err != nil {
		log.Fatal().Err(err).Msg("constructing metadata client")
	}
	culturalClient := cultural.New(asClientConfig(cfg.Cultural))
	downloaderClient := downloader.New(asClientConfig(cfg.Downloader))
	aiClient := ai.New(asClientConfig(cfg.AI.ClientConfig), cfg.AI.EmbeddingModel)
	var translator identity.Translator = aiClient

	// Derived-state scanners
	watchlistAdder := watchlist.New(mediaRepo, watchlistRepo, metadataClient)
	actorScanner := actorsub.New(actorSubRepo, mediaRepo, metadataClient)
	cleanupScanner := cleanup.New(mediaRepo, cleanupRepo, libraryClient, cfg.Cleanup)
	resubscribeScanner := resubscribe.New(mediaRepo, quotaRepo, libraryClient, downloaderClient, cfg.Resubscribe, cfg.Tasks.SubscriptionDailyQuota)

	// Custom-collection engine
	importer := &collections.Importer{Provider: metadataClient, AI: aiClient}
	recommender := &collections.Recommender{AI: aiClient, Provider: metadataClient}
	cover := collections.NewCoverGeneratorWithFont(cfg.App.FontsDir)
	engine := collections.New(collectionRepo, mediaRepo, watchlistRepo, libraryClient, importer, recommender, cover, cfg.Proxy.CoverDir)

	// Metadata processor
	proc := processor.New(
		db, libraryClient, culturalClient, metadataClient, translator,
		mediaRepo, processedRepo, reviewRepo,
		watchlistAdder, engine, engine,
		processor.Config{QualityFloor: cfg.Tasks.CastQualityFloor, CoverGenEnabled: true},
	)

	// Orchestrator and webhook pipeline
	orch := orchestrator.New(256)
	refreshWatchlist := func(ctx context.Context, seriesMetadataID int64) error {
		entries, err := watchlistRepo.All(ctx)
		if err != nil {
			return err
		}
		for i := range entries {
			if err := watchlistAdder.Scan(ctx, &entries[i]); err != nil {
				logging.FromContext(ctx).Warn().Err(err).Msg("watchlist refresh failed")
			}
		}
		return nil
	}
	processFn := func(ctx context.Context, libraryItemID string, forceFullUpdate bool) error {
		_, err := proc.Process(ctx, libraryItemID, forceFullUpdate)
		return err
	}
	pipeline := webhook.New(orch, libraryClient, userMediaStateRepo, processFn, refreshWatchlist)

	templatesSvc := templates.New(db, templateRepo, invitationRepo, extensionRepo, libraryClient, pipeline)

	if err := registerTaskChains(cfg, orch, engine, actorScanner, cleanupScanner, resubscribeScanner, templatesSvc); err != nil {
		log.Fatal().Err(err).Msg("registering task chains")
	}
	orch.Run(context.Background())

	proxyHandler, err := proxy.New(proxy.Config{
		Upstream:              cfg.Proxy.EmbyUpstream,
		NativeViewsMergeOrder: cfg.Proxy.NativeViewsAt,
		NativeViewWhitelist:   cfg.Proxy.NativeViewWhitelist,
		CoverDir:              cfg.Proxy.CoverDir,
	}, libraryClient, collectionRepo, mediaRepo, engine)
	if err != nil {
		log.Fatal().Err(err).Msg("constructing reverse proxy")
	}

	mux := http.NewServeMux()
	mux.Handle("/emby/", proxyHandler)
	mux.Handle("/webhook", pipeline)
	mux.Handle("/metrics", promhttp.Handler())

	adminRouter := api.New(cfg.HTTP.AllowedOrigins, templatesSvc, orch)
	adminServer := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           adminRouter.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", adminServer.Addr).Msg("mediabridge: admin api listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin api serving")
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Proxy.InternalPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", server.Addr).Msg("mediabridge: listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("serving")
	}
}

// asClientConfig adapts the koanf-loaded config.ClientConfig into the
// shape every clients/* package constructs against, spec.md §1
// "External clients" carrying one uniform config shape.
func asClientConfig(c config.ClientConfig) clienttypes.ClientConfig {
	return clienttypes.ClientConfig{
		BaseURL:            c.BaseURL,
		APIKey:             c.APIKey,
		Username:           c.Username,
		Password:           c.Password,
		Timeout:            c.Timeout,
		UserAgent:          c.UserAgent,
		RateLimitPerSecond: c.RateLimitPerSecond,
		RateLimitBurst:     c.RateLimitBurst,
	}
}

// registerTaskChains wires spec.md §4.5's high/low-frequency chains
// and weekly revival check onto a dedicated scheduler, each stage
// submitted to orch in order.
func registerTaskChains(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	engine *collections.Engine,
	actorScanner *actorsub.Scanner,
	cleanupScanner *cleanup.Scanner,
	resubscribeScanner *resubscribe.Scanner,
	templatesSvc *templates.Service,
) error {
	sched := schedule.New()

	highFreq := orchestrator.Chain{
		Name: "high-frequency",
		Cron: cfg.Tasks.HighFrequencyCron,
		Sequence: []orchestrator.Stage{
			{Name: "collections-sync", Tag: "collections", Run: engine.SyncAll},
			{Name: "expiration-check", Tag: "templates", Run: templatesSvc.CheckExpirations},
		},
		MaxRuntime: time.Duration(cfg.Tasks.HighFreqMaxRuntime) * time.Minute,
	}
	lowFreq := orchestrator.Chain{
		Name: "low-frequency",
		Cron: cfg.Tasks.LowFrequencyCron,
		Sequence: []orchestrator.Stage{
			{Name: "actor-subscriptions", Tag: "actorsub", Run: actorScanner.ScanAll},
			{Name: "duplicate-cleanup", Tag: "cleanup", Run: cleanupScanner.Scan},
			{Name: "quality-resubscribe", Tag: "resubscribe", Run: resubscribeScanner.Scan},
		},
		MaxRuntime: time.Duration(cfg.Tasks.LowFreqMaxRuntime) * time.Minute,
	}
	revivalCheck := orchestrator.Stage{
		Name: "revival-check",
		Tag:  "actorsub",
		Run:  actorScanner.ScanAll,
	}

	if err := orchestrator.RegisterChains(sched, orch, []orchestrator.Chain{highFreq, lowFreq}, revivalCheck, cfg.Tasks.RevivalCheckCron); err != nil {
		return err
	}
	sched.Start()
	return nil
}

const nginxConfigTemplate = `
# Generated by mediabridge generate-nginx-config. Do not edit by hand.
server {
    listen {{.ExternalPort}};

    location /emby/ {
        proxy_pass {{.InternalUpstream}};
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
    }
}
`

func renderNginxConfig(w *os.File, cfg *config.Config) error {
	tmpl, err := template.New("nginx").Parse(nginxConfigTemplate)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, struct {
		ExternalPort     string
		InternalUpstream string
	}{
		ExternalPort:     cfg.HTTP.ExternalPort,
		InternalUpstream: "http://127.0.0.1:" + cfg.Proxy.InternalPort,
	})
}
