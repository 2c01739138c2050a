package cli

import (
	"resumeq/internal/alert"
	"resumeq/internal/backoff"
	"resumeq/internal/capacity"
	"resumeq/internal/flock"
	"resumeq/internal/model"
	"resumeq/internal/queue"
	"resumeq/internal/scheduler"
)

// newStore opens the configured queue backend.
func newStore() (queue.Store, error) {
	return queue.Open(queue.Config{
		Driver:      settings.QueueDriver,
		Path:        settings.QueuePath,
		BusyTimeout: settings.QueueBusyTimeout,
		MaxAttempts: settings.MaxAttempts,
	}, log)
}

// newService assembles a scheduler from the effective settings. The caller
// owns the returned store and must Close it.
func newService() (*scheduler.Service, queue.Store, error) {
	store, err := newStore()
	if err != nil {
		return nil, nil, err
	}

	sink, err := alert.Open(alert.Config{
		Driver:        settings.AlertDriver,
		Command:       settings.AlertCommand,
		Token:         settings.AlertToken,
		ChatID:        settings.AlertChatID,
		RatePerMinute: settings.AlertRatePerMinute,
	}, log)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	monitor := capacity.New(capacity.Config{
		SessionListCommand: settings.SessionListCommand,
		ActivityCommand:    settings.ActivityCommand,
		BackgroundPrefix:   settings.BackgroundPrefix,
		MainSession:        settings.MainSession,
		ConcurrencyLimit:   settings.ConcurrencyLimit,
		LoadThreshold:      settings.LoadThreshold,
		QuietWindow:        settings.QuietWindow,
		ProbeTimeout:       settings.ProbeTimeout,
		FailClosed:         settings.CapacityFailClosed,
	}, log)

	lock := flock.New(settings.LockPath, settings.LockTTL, log)
	policy := backoff.Policy{Base: settings.BackoffBase, Multiplier: settings.BackoffMultiplier}
	cfg := scheduler.Config{
		ConcurrencyLimit: settings.ConcurrencyLimit,
		Tiers: model.Tiers{
			Cheap:   settings.ModelCheap,
			Premium: settings.ModelPremium,
			Highest: settings.ModelHighest,
		},
	}

	return scheduler.New(store, lock, monitor, policy, sink, cfg, log), store, nil
}
