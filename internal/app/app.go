// Package app wires the components together and owns their lifecycle.
package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"adventbot/internal/bot"
	"adventbot/internal/calendar"
	"adventbot/internal/config"
	"adventbot/internal/directory"
	"adventbot/internal/publisher"
	rtsup "adventbot/internal/runtime/supervisor"
	"adventbot/internal/storage"
	kit "adventbot/internal/transport"
	"adventbot/internal/transport/telegram"
	"adventbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   storage.Store
	cal     *calendar.Calendar
	dir     *directory.Directory
	router  *bot.Bot
	pub     *publisher.Publisher

	pubEnabled bool

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", storeCfg.Driver), logx.String("path", storeCfg.Path))

	win, err := mapWindow(cfg)
	if err != nil {
		return nil, err
	}
	cal := calendar.New(win, store, logSvc.Logger().With(logx.String("comp", "calendar")))
	dir := directory.New(store, logSvc.Logger().With(logx.String("comp", "directory")))

	router := bot.New(bot.Config{
		AdminChatID:  cfg.Telegram.AdminChatID,
		PublishClock: cfg.Calendar.PublishAt,
		Location:     win.Loc,
	}, adapter, dir, cal, store, logSvc.Logger().With(logx.String("comp", "bot")))

	pub := publisher.New(publisher.Config{
		Schedule:     cfg.Publisher.Schedule,
		RatePerSec:   float64(cfg.Publisher.RatePerSec),
		Location:     win.Loc,
		SourceChatID: cfg.Telegram.AdminChatID,
	}, cal, dir, adapter, logSvc.Logger().With(logx.String("comp", "publisher")))

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		adapter:    adapter,
		store:      store,
		cal:        cal,
		dir:        dir,
		router:     router,
		pub:        pub,
		pubEnabled: cfg.Publisher.Enabled,
		updates:    make(chan kit.Update, 256),
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapWindow(cfg *config.Config) (calendar.Window, error) {
	tz := cfg.Calendar.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return calendar.Window{}, err
	}
	start, err := config.ParseDateField("calendar.window_start", cfg.Calendar.WindowStart, loc)
	if err != nil {
		return calendar.Window{}, err
	}
	end, err := config.ParseDateField("calendar.window_end", cfg.Calendar.WindowEnd, loc)
	if err != nil {
		return calendar.Window{}, err
	}
	hour, minute, err := config.ParseClockField("calendar.publish_at", cfg.Calendar.PublishAt)
	if err != nil {
		return calendar.Window{}, err
	}
	return calendar.Window{Start: start, End: end, Hour: hour, Minute: minute, Loc: loc}, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("bot.router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	if a.pubEnabled {
		a.sup.Go("publisher.run", func(c context.Context) error {
			return a.pub.Run(c)
		})
	} else {
		a.log.Warn("publisher disabled; scheduled posts will not go out")
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Hot reload: only logging applies live. Everything else needs a restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded; non-logging changes need a restart")
			}
		}
	})

	a.notifySystemd()
	a.log.Info("started")
	return nil
}

// notifySystemd reports readiness and keeps the watchdog fed when running
// under a systemd unit with Type=notify. Outside systemd both calls are
// no-ops.
func (a *App) notifySystemd() {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
