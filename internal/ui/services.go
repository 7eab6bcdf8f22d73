package ui

import (
	"context"
	"log/slog"
	"time"

	"github.com/jwillz7667/CropLens/internal/cache"
	"github.com/jwillz7667/CropLens/internal/delivery"
	"github.com/jwillz7667/CropLens/internal/notification"
	"github.com/jwillz7667/CropLens/internal/properties"
	"github.com/jwillz7667/CropLens/internal/sentinel"
	"github.com/jwillz7667/CropLens/internal/storage"
	"github.com/jwillz7667/CropLens/internal/store"
	"github.com/jwillz7667/CropLens/internal/utils"
	"github.com/jwillz7667/CropLens/internal/weather"
	"github.com/mdobak/go-xerrors"
)

const weatherCacheMaxAge = time.Hour

// services is everything a command needs beyond the pure NDVI core.
type services struct {
	cfg     properties.Config
	store   *store.Store
	objects *storage.LocalStore
	analyze *delivery.Service
}

func openServices(ctx context.Context, cfg properties.Config) (*services, error) {
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	objects := storage.NewLocalStore(cfg.DataPath("objects"), cfg.StoragePublicBaseURL)
	svc := &delivery.Service{
		Store:      db,
		Objects:    objects,
		SceneCache: cache.NewSceneCache(cfg.DataPath("scenes")),
		Notifier: notification.Multi{
			&notification.DiscordNotifier{
				ErrorURL:   cfg.DiscordErrorNotificationURL,
				SuccessURL: cfg.DiscordSuccessNotificationURL,
			},
			notification.NewSMSNotifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.AlertSMSTo),
		},
		Weather: weather.NewClient(cfg.WeatherAPIURL,
			cache.NewFileCache[weather.Outlook](cfg.DataPath("weather"), weatherCacheMaxAge)),
	}

	scenes, err := sentinel.NewClient(ctx, sentinel.Credentials{
		ClientIDs:     cfg.CopernicusClientID,
		ClientSecrets: cfg.CopernicusClientSecret,
		TokenURL:      cfg.CopernicusTokenURL,
		ProcessURL:    cfg.SentinelProcessURL,
	})
	if err != nil {
		// Upload analyses still work without satellite access.
		utils.GetLogger().WarnContext(ctx, "sentinel imagery disabled", slog.Any("error", xerrors.New(err)))
	} else {
		scenes.Retries = cfg.SentinelRetries
		svc.Scenes = scenes
	}

	return &services{cfg: cfg, store: db, objects: objects, analyze: svc}, nil
}

func (s *services) Close() {
	s.store.Close()
}
