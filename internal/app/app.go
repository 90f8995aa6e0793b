// Package app wires the store, change feed, search engine, caches and live
// watches into one runtime shared by the MCP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/internal/cache"
	"github.com/dshills/lorekeeper/internal/catalog"
	"github.com/dshills/lorekeeper/internal/changefeed"
	"github.com/dshills/lorekeeper/internal/config"
	"github.com/dshills/lorekeeper/internal/livesync"
	"github.com/dshills/lorekeeper/internal/profiles"
	"github.com/dshills/lorekeeper/internal/searcher"
	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/internal/storage/postgres"
	"github.com/dshills/lorekeeper/pkg/types"
)

// App is the assembled runtime
type App struct {
	Config   *config.Config
	Store    storage.Store
	Feed     changefeed.Feed
	Searcher *searcher.Searcher
	Catalog  *catalog.Service
	Items    *cache.Cache[types.DetailItem] // live campaign lists and seeded query results
	Messages *cache.Cache[types.SessionMessage]
	Profiles *profiles.Directory
	Watches  *livesync.Registry

	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*livesync.Watch[types.SessionMessage]
	items    map[string]*livesync.Watch[types.DetailItem]
}

// New opens the configured store and feed and builds the runtime. Watches
// started later live until Close.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:   cfg,
		Watches:  livesync.NewRegistry(),
		log:      log.With().Str("component", "app").Logger(),
		ctx:      runCtx,
		cancel:   cancel,
		sessions: make(map[string]*livesync.Watch[types.SessionMessage]),
		items:    make(map[string]*livesync.Watch[types.DetailItem]),
	}

	if err := a.open(ctx, log); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Searcher = searcher.NewDefault(a.Store, log)
	a.Searcher.SetDefaultStrategy(types.StrategyName(cfg.DefaultStrategy))
	if cfg.QueryCacheSize > 0 {
		if err := a.Searcher.EnableCache(cfg.QueryCacheSize, cfg.QueryCacheTTL); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to enable query cache: %w", err)
		}
	}

	a.Items = cache.New(cache.Options[types.DetailItem]{Delete: cfg.Delete})
	a.Messages = cache.New(cache.Options[types.SessionMessage]{Less: types.MessageBefore, Delete: cfg.Delete})
	a.Catalog = catalog.NewService(a.Store, a.Searcher, a.Items, log)
	a.Profiles = profiles.NewDirectory(a.Store, log)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.Profiles.Run(a.ctx, a.Feed, cfg.ReconnectInitial, cfg.ReconnectMax,
			func(evt types.ChangeEvent) { a.redecorateAuthor(evt.EntityID) })
	}()

	return a, nil
}

// open connects the store and the change feed it publishes to
func (a *App) open(ctx context.Context, log zerolog.Logger) error {
	cfg := a.Config

	switch cfg.StoreDriver {
	case "sqlite":
		feed, err := a.openFeed(ctx, nil, log)
		if err != nil {
			return err
		}
		a.Feed = feed

		store, err := storage.NewSQLiteStorage(cfg.SQLitePath,
			storage.WithPublisher(feed), storage.WithLogger(log))
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.Store = store

	case "postgres":
		pool, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		feed, err := a.openFeed(ctx, pool, log)
		if err != nil {
			pool.Close()
			return err
		}
		a.Feed = feed

		store, err := postgres.NewStore(ctx, pool, feed, log)
		if err != nil {
			pool.Close()
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.Store = store

	default:
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	a.log.Info().
		Str("store", cfg.StoreDriver).
		Str("feed", cfg.FeedDriver).
		Bool("poll", cfg.Poll).
		Str("delete_policy", string(cfg.Delete)).
		Msg("runtime opened")
	return nil
}

func (a *App) openFeed(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) (changefeed.Feed, error) {
	cfg := a.Config
	switch cfg.FeedDriver {
	case "memory":
		return changefeed.NewBus(changefeed.DefaultBuffer, log), nil
	case "redis":
		feed, err := changefeed.NewRedisFeed(ctx, cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect change feed: %w", err)
		}
		return feed, nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("postgres feed requires the postgres store")
		}
		return postgres.NewFeed(pool, cfg.RedisChannel, log), nil
	}
	return nil, fmt.Errorf("unsupported feed driver %q", cfg.FeedDriver)
}

// syncConfig maps process configuration onto watch configuration
func (a *App) syncConfig() livesync.Config {
	return livesync.Config{
		Poll:             a.Config.Poll,
		PollInterval:     a.Config.PollInterval,
		ReconnectInitial: a.Config.ReconnectInitial,
		ReconnectMax:     a.Config.ReconnectMax,
	}
}

// WatchSession returns the live watch for a session transcript, starting
// it on first use
func (a *App) WatchSession(sessionID string) (*livesync.Watch[types.SessionMessage], error) {
	if sessionID == "" {
		return nil, types.ErrMissingSessionID
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	name := "session:" + sessionID
	if w, ok := a.sessions[sessionID]; ok {
		if _, live := a.Watches.Get(name); live {
			return w, nil
		}
	}

	w, err := livesync.Start(a.ctx, a.Feed, livesync.Stream[types.SessionMessage]{
		Key:    sessionID,
		Entity: types.EntitySessionMessages,
		Filter: changefeed.Eq("session_id", sessionID),
		Snapshot: func(ctx context.Context) ([]types.SessionMessage, error) {
			msgs, err := a.Store.ListSessionMessages(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			a.loadAuthors(ctx, msgs)
			return msgs, nil
		},
		Cache:    a.Messages,
		Decorate: a.decorateMessage,
	}, a.syncConfig(), a.log)
	if err != nil {
		return nil, err
	}

	a.sessions[sessionID] = w
	a.Watches.Add(name, w)
	return w, nil
}

// WatchCampaign returns the live watch for a campaign's detail items,
// starting it on first use. Applied changes invalidate cached searches.
func (a *App) WatchCampaign(campaignID string) (*livesync.Watch[types.DetailItem], error) {
	if campaignID == "" {
		return nil, types.ErrMissingCampaignID
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	name := "campaign:" + campaignID
	if w, ok := a.items[campaignID]; ok {
		if _, live := a.Watches.Get(name); live {
			return w, nil
		}
	}

	w, err := livesync.Start(a.ctx, a.Feed, livesync.Stream[types.DetailItem]{
		Key:    campaignID,
		Entity: types.EntityDetailItems,
		Filter: changefeed.Eq("campaign_id", campaignID),
		Snapshot: func(ctx context.Context) ([]types.DetailItem, error) {
			return a.Store.QueryDetailItems(ctx, storage.ItemQuery{
				CampaignID: campaignID,
				OrderBy:    types.SortCreatedAt,
				Descending: true,
			})
		},
		Cache: a.Items,
	}, a.syncConfig(), a.log, livesync.WithOnApply(func(types.ChangeEvent) {
		a.Searcher.InvalidateCampaign(campaignID)
	}))
	if err != nil {
		return nil, err
	}

	a.items[campaignID] = w
	a.Watches.Add(name, w)
	return w, nil
}

// loadAuthors makes sure every author of msgs is in the directory
func (a *App) loadAuthors(ctx context.Context, msgs []types.SessionMessage) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.UserID)
	}
	if err := a.Profiles.Load(ctx, ids); err != nil {
		a.log.Warn().Err(err).Msg("failed to load message authors")
	}
}

// decorateMessage runs on a session watch goroutine
func (a *App) decorateMessage(m types.SessionMessage) types.SessionMessage {
	if _, ok := a.Profiles.Lookup(m.UserID); !ok {
		a.loadAuthors(a.ctx, []types.SessionMessage{m})
	}
	return a.Profiles.Decorate(m)
}

// redecorateAuthor refreshes the author of userID's messages in every
// cached transcript. Tombstoned messages are left as they are.
func (a *App) redecorateAuthor(userID string) {
	a.mu.Lock()
	keys := make([]string, 0, len(a.sessions))
	for key := range a.sessions {
		keys = append(keys, key)
	}
	a.mu.Unlock()

	for _, key := range keys {
		for _, m := range a.Messages.Get(key) {
			if m.UserID != userID || a.Messages.Tombstoned(key, m.ID) {
				continue
			}
			a.Messages.Patch(key, types.OpUpdate, a.Profiles.Decorate(m))
		}
	}
}

// Status summarizes the runtime for get_status and /status
type Status struct {
	Store           string               `json:"store"`
	Feed            string               `json:"feed"`
	Poll            bool                 `json:"poll_backstop"`
	DeletePolicy    string               `json:"delete_policy"`
	DefaultStrategy string               `json:"default_strategy"`
	Strategies      []types.StrategyName `json:"strategies"`
	Profiles        int                  `json:"profiles"`
	Watches         []livesync.Status    `json:"watches"`
}

// Status reports the current runtime state. Watches are ordered by name.
func (a *App) Status() Status {
	watches := a.Watches.Statuses()
	return Status{
		Store:           a.Config.StoreDriver,
		Feed:            a.Config.FeedDriver,
		Poll:            a.Config.Poll,
		DeletePolicy:    string(a.Items.Policy()),
		DefaultStrategy: a.Config.DefaultStrategy,
		Strategies:      a.Searcher.Strategies(),
		Profiles:        a.Profiles.Len(),
		Watches:         watches,
	}
}

// Close stops every watch and releases the feed and the store
func (a *App) Close() error {
	a.cancel()

	var errs []error
	if a.Watches != nil {
		errs = append(errs, a.Watches.CloseAll())
	}
	a.wg.Wait()
	if a.Feed != nil {
		errs = append(errs, a.Feed.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
