package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/jobs"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const settingsEntity = "settings"

// Settings caches the session's settings singleton.
//
// Mutators apply the change locally and notify at once, then hand the
// backend write to a queue that persists writes in order. Each returns the
// queued job; callers that care about persistence wait on it, the rest may
// ignore it and failures are still logged by the queue.
//
// Until its job finishes, a write is laid over every refreshed value, so a
// refresh never shows or resurrects what the write replaces.
type Settings struct {
	client remote.SettingsClient
	queue  jobs.Publisher
	log    zerolog.Logger
	cache  *cache[*domain.Settings]

	// publishMu keeps queue order equal to cache order.
	publishMu sync.Mutex

	// mu guards the fields below and orders cache swaps with them.
	mu         sync.Mutex
	pending    []*pendingWrite
	gen        uint64
	refreshing int
}

// pendingWrite is a queued patch. settled is zero while the job runs, then
// the generation at which it succeeded.
type pendingWrite struct {
	patch   domain.SettingsPatch
	settled uint64
}

// CategoryUpsert describes a category to create or update. An empty ID
// matches by case-insensitive name. An absent Limit keeps the existing limit.
type CategoryUpsert struct {
	ID    string
	Name  string
	Limit domain.Field[float64]
}

// NewSettings creates a settings store that reads from client and writes
// through queue.
func NewSettings(client remote.SettingsClient, queue jobs.Publisher, log zerolog.Logger) *Settings {
	load := func(ctx context.Context) (*domain.Settings, error) {
		s, err := client.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		s.Categories = domain.DedupeCategories(s.Categories)
		return &s, nil
	}
	defaults := func() *domain.Settings {
		s := domain.DefaultSettings()
		return &s
	}
	return &Settings{
		client: client,
		queue:  queue,
		log:    log.With().Str("store", settingsEntity).Logger(),
		cache:  newCache(settingsEntity, log, load, defaults),
	}
}

// Get returns the current settings. The pointer is stable until the next
// change. Do not modify the value.
func (s *Settings) Get() *domain.Settings {
	return s.cache.get()
}

// Version increments on every change.
func (s *Settings) Version() uint64 {
	return s.cache.getVersion()
}

// Subscribe registers fn to run after every change and returns its
// unsubscribe function.
func (s *Settings) Subscribe(fn func()) func() {
	return s.cache.subscribe(fn)
}

// EnsureInitialized loads the settings once. A failed load leaves the
// defaults in place.
func (s *Settings) EnsureInitialized(ctx context.Context) error {
	return s.cache.ensureInitialized(ctx)
}

// Refresh replaces the cached settings with the backend's, keeping the
// values of writes that are still queued.
func (s *Settings) Refresh(ctx context.Context) error {
	if err := s.EnsureInitialized(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	since := s.gen
	s.refreshing++
	s.mu.Unlock()

	next, err := s.cache.load(ctx)

	s.mu.Lock()
	s.refreshing--
	if err != nil {
		s.prune()
		s.mu.Unlock()
		return fmt.Errorf("Settings.Refresh: %w", err)
	}
	// A write that succeeded while the load was in flight may be missing
	// from next, so it is laid over as well.
	v := *next
	for _, p := range s.pending {
		if p.settled == 0 || p.settled > since {
			v = p.patch.Apply(v)
		}
	}
	s.cache.set(&v)
	s.prune()
	s.mu.Unlock()

	s.cache.emit()
	return nil
}

// SetCurrency sets the display symbol; an empty symbol means "$".
func (s *Settings) SetCurrency(ctx context.Context, symbol string) *jobs.WriteJob {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		symbol = domain.DefaultCurrency
	}
	return s.apply(ctx, func(cur domain.Settings) domain.SettingsPatch {
		return domain.SettingsPatch{Currency: domain.Set(symbol)}
	})
}

// SetUIMode switches the presentation mode.
func (s *Settings) SetUIMode(ctx context.Context, mode domain.UIMode) *jobs.WriteJob {
	return s.apply(ctx, func(cur domain.Settings) domain.SettingsPatch {
		return domain.SettingsPatch{UIMode: domain.Set(mode)}
	})
}

// SetCoupleMode turns partner attribution on or off, keeping the names.
func (s *Settings) SetCoupleMode(ctx context.Context, enabled bool) *jobs.WriteJob {
	return s.apply(ctx, func(cur domain.Settings) domain.SettingsPatch {
		cm := cur.CoupleMode
		cm.Enabled = enabled
		return domain.SettingsPatch{CoupleMode: domain.Set(cm)}
	})
}

// SetPartnerNames renames both partners, keeping the enabled flag.
func (s *Settings) SetPartnerNames(ctx context.Context, partner1, partner2 string) *jobs.WriteJob {
	return s.apply(ctx, func(cur domain.Settings) domain.SettingsPatch {
		cm := cur.CoupleMode
		cm.Partner1Name = strings.TrimSpace(partner1)
		cm.Partner2Name = strings.TrimSpace(partner2)
		return domain.SettingsPatch{CoupleMode: domain.Set(cm)}
	})
}

// UpsertCategory updates the category matching u or appends a new one. The
// name is trimmed and a blank name is ignored. Limits are never negative.
// Names stay unique case-insensitively: when the result would contain two
// categories with the same name, the first one is kept.
func (s *Settings) UpsertCategory(ctx context.Context, u CategoryUpsert) *jobs.WriteJob {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return jobs.Finished(jobs.JobTypeSettingsWrite, settingsEntity, nil)
	}

	return s.apply(ctx, func(cur domain.Settings) domain.SettingsPatch {
		cats := slices.Clone(cur.Categories)
		i := slices.IndexFunc(cats, func(c domain.Category) bool {
			if u.ID != "" {
				return c.ID == u.ID
			}
			return strings.EqualFold(c.Name, name)
		})
		if i >= 0 {
			cats[i].Name = name
			if limit, ok := u.Limit.Get(); ok {
				cats[i].Limit = math.Max(0, limit)
			}
		} else {
			cats = append(cats, domain.Category{
				ID:    uuid.NewString(),
				Name:  name,
				Limit: math.Max(0, u.Limit.Or(0)),
			})
		}
		return domain.SettingsPatch{Categories: domain.Set(domain.DedupeCategories(cats))}
	})
}

// RemoveCategory drops the category with id.
func (s *Settings) RemoveCategory(ctx context.Context, id string) *jobs.WriteJob {
	return s.apply(ctx, func(cur domain.Settings) domain.SettingsPatch {
		cats, _ := without(cur.Categories, func(c domain.Category) bool { return c.ID == id })
		return domain.SettingsPatch{Categories: domain.Set(cats)}
	})
}

// apply builds a patch from the current settings, swaps in the patched value
// and queues the write of that patch. A patch that changes nothing is neither
// cached nor written.
func (s *Settings) apply(ctx context.Context, build func(cur domain.Settings) domain.SettingsPatch) *jobs.WriteJob {
	if err := s.EnsureInitialized(ctx); err != nil {
		return jobs.Finished(jobs.JobTypeSettingsWrite, settingsEntity, err)
	}

	s.publishMu.Lock()

	p := &pendingWrite{}
	s.mu.Lock()
	changed := s.cache.swap(func(cur *domain.Settings) (*domain.Settings, bool) {
		p.patch = build(*cur)
		next := p.patch.Apply(*cur)
		if sameSettings(*cur, next) {
			return cur, false
		}
		return &next, true
	})
	if changed {
		s.pending = append(s.pending, p)
	}
	s.mu.Unlock()

	if !changed {
		s.publishMu.Unlock()
		return jobs.Finished(jobs.JobTypeSettingsWrite, settingsEntity, nil)
	}

	patch := p.patch
	job := jobs.NewWriteJob(jobs.JobTypeSettingsWrite, settingsEntity, func(ctx context.Context) error {
		return s.client.UpdateSettings(ctx, patch)
	})
	if err := s.queue.Publish(ctx, job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to queue settings write")
		job.Finish(err)
	}
	s.publishMu.Unlock()

	go func() {
		s.settle(p, job.Wait(context.Background()))
	}()

	s.cache.emit()
	return job
}

// settle records the outcome of p's job. A failed write is dropped at once:
// the backend never saw it.
func (s *Settings) settle(p *pendingWrite, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.pending = slices.DeleteFunc(s.pending, func(q *pendingWrite) bool { return q == p })
		return
	}
	s.gen++
	p.settled = s.gen
	s.prune()
}

// prune drops settled writes once no refresh can still be missing them.
func (s *Settings) prune() {
	if s.refreshing > 0 {
		return
	}
	s.pending = slices.DeleteFunc(s.pending, func(q *pendingWrite) bool { return q.settled != 0 })
}

func sameSettings(a, b domain.Settings) bool {
	return a.Currency == b.Currency &&
		a.UIMode == b.UIMode &&
		a.CoupleMode == b.CoupleMode &&
		slices.Equal(a.Categories, b.Categories)
}
