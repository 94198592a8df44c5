// Package checker drives one batch run end to end: pull the candidate list,
// then for each entity wait on the pacer, fetch the live facts, diff them
// against the snapshot, record new facts as events, fan out notifications
// for the events this run created, and replace the snapshot.
//
// Entities are processed sequentially. A failure inside one entity skips
// that entity only; the run fails as a whole only when its candidate list
// cannot be read.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/albapepper/streamwatch/internal/catalog"
	"github.com/albapepper/streamwatch/internal/diff"
	"github.com/albapepper/streamwatch/internal/metrics"
	"github.com/albapepper/streamwatch/internal/notifications"
	"github.com/albapepper/streamwatch/internal/store"
)

// ErrPrecondition marks failures that abort a whole run.
var ErrPrecondition = errors.New("run precondition failed")

// Defaults applied when Options leaves a field zero.
const (
	DefaultBatchSize    = 50
	DefaultCallTimeout  = 15 * time.Second
	DefaultCreditWindow = 90 * 24 * time.Hour
)

// Catalog is the external source of live facts.
type Catalog interface {
	ProvidersFor(ctx context.Context, mediaType string, id int) (catalog.ProviderSet, error)
	CreditsFor(ctx context.Context, personID int) (catalog.CreditSet, error)
}

// Store is the registry, audience and recorder surface a run needs.
type Store interface {
	HotTitles(ctx context.Context, limit int) ([]store.Title, error)
	FollowedPersons(ctx context.Context, limit int) ([]store.Person, error)
	ReplaceProviderSnapshot(ctx context.Context, t store.Title, providers []catalog.Provider) error
	KnownCredits(ctx context.Context, personID int) (map[catalog.CreditKey]struct{}, error)
	StreamingAudience(ctx context.Context, t store.Title, p catalog.Provider) ([]string, error)
	TalentAudience(ctx context.Context, p store.Person) ([]string, error)
	RecordEvent(ctx context.Context, e store.ChangeEvent) (bool, error)
	UpdateNotifiedCount(ctx context.Context, key store.EventKey, count int) error
}

// Dispatcher fans a message out to recipients and returns the success tally.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []string, msg notifications.Message) int
}

// Pacer spaces catalog calls.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Options tunes a Checker.
type Options struct {
	BatchSize    int
	CallTimeout  time.Duration
	ImageBase    string
	CreditWindow time.Duration
	Clock        clock.Clock
}

// Checker runs streaming and talent batches.
type Checker struct {
	catalog    Catalog
	store      Store
	dispatcher Dispatcher
	pacer      Pacer
	opts       Options
	logger     *slog.Logger
}

// New creates a Checker.
func New(cat Catalog, st Store, d Dispatcher, p Pacer, opts Options, logger *slog.Logger) *Checker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.CreditWindow <= 0 {
		opts.CreditWindow = DefaultCreditWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	return &Checker{catalog: cat, store: st, dispatcher: d, pacer: p, opts: opts, logger: logger}
}

// BatchSize returns the configured candidate cap.
func (c *Checker) BatchSize() int { return c.opts.BatchSize }

// --------------------------------------------------------------------------
// Streaming
// --------------------------------------------------------------------------

// RunStreaming checks the hottest watchlisted titles for new providers.
// limit overrides the batch size when positive.
func (c *Checker) RunStreaming(ctx context.Context, limit int) (*RunResult, error) {
	start := c.opts.Clock.Now()
	listCtx, cancel := c.bounded(ctx)
	titles, err := c.store.HotTitles(listCtx, c.limit(limit))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: get hot titles: %w", ErrPrecondition, err)
	}

	res := &RunResult{Kind: store.KindStreaming, Candidates: len(titles)}
	c.logger.Info("Streaming check started", "titles", len(titles))

	for _, t := range titles {
		er, err := c.checkTitle(ctx, t)
		if err != nil {
			c.logger.Warn("Title skipped", "tmdb_id", t.TMDBID, "title", t.Title, "error", err)
			metrics.EntitiesSkipped.WithLabelValues(string(store.KindStreaming)).Inc()
			res.Skip(er, err)
			continue
		}
		metrics.EntitiesChecked.WithLabelValues(string(store.KindStreaming)).Inc()
		res.Add(er)
	}

	return c.finish(res, start), nil
}

func (c *Checker) checkTitle(ctx context.Context, t store.Title) (er EntityResult, err error) {
	er = EntityResult{Kind: store.KindStreaming, ID: t.TMDBID, Name: t.Title}
	defer recoverEntity(&err)

	if err := c.pacer.Wait(ctx); err != nil {
		return er, err
	}
	callCtx, cancel := c.bounded(ctx)
	set, err := c.catalog.ProvidersFor(callCtx, t.MediaType, t.TMDBID)
	cancel()
	if err != nil {
		return er, fmt.Errorf("fetch providers: %w", err)
	}

	live := set.Merged()
	fresh := diff.New(diff.Keys(t.Providers, catalog.ProviderKey), live, catalog.ProviderKey)
	er.New = len(fresh)
	if len(fresh) > 0 {
		c.logger.Info("New providers", "tmdb_id", t.TMDBID, "title", t.Title, "count", len(fresh))
		metrics.FactsDetected.WithLabelValues(string(store.KindStreaming)).Add(float64(len(fresh)))
	}

	for _, p := range fresh {
		ev := store.ChangeEvent{
			Kind:       store.KindStreaming,
			EntityID:   t.TMDBID,
			MediaType:  t.MediaType,
			FactID:     p.ID,
			FactType:   p.Type,
			FactName:   p.Name,
			ChangeType: store.ChangeAdded,
		}
		audience := func(ctx context.Context) ([]string, error) {
			return c.store.StreamingAudience(ctx, t, p)
		}
		recorded, sent := c.announce(ctx, ev, audience, notifications.StreamingMessage(t, p, c.opts.ImageBase))
		if recorded {
			er.Recorded++
		}
		er.Notifications += sent
	}

	snapCtx, cancel := c.bounded(ctx)
	err = c.store.ReplaceProviderSnapshot(snapCtx, t, live)
	cancel()
	if err != nil {
		return er, fmt.Errorf("replace snapshot: %w", err)
	}
	er.CachedCount = len(live)
	return er, nil
}

// --------------------------------------------------------------------------
// Talent
// --------------------------------------------------------------------------

// RunTalent checks the most-followed persons for new or upcoming credits.
// limit overrides the batch size when positive.
func (c *Checker) RunTalent(ctx context.Context, limit int) (*RunResult, error) {
	start := c.opts.Clock.Now()
	listCtx, cancel := c.bounded(ctx)
	persons, err := c.store.FollowedPersons(listCtx, c.limit(limit))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: get followed persons: %w", ErrPrecondition, err)
	}

	res := &RunResult{Kind: store.KindTalent, Candidates: len(persons)}
	c.logger.Info("Talent check started", "persons", len(persons))

	for _, p := range persons {
		er, err := c.checkPerson(ctx, p)
		if err != nil {
			c.logger.Warn("Person skipped", "person_id", p.TMDBPersonID, "name", p.Name, "error", err)
			metrics.EntitiesSkipped.WithLabelValues(string(store.KindTalent)).Inc()
			res.Skip(er, err)
			continue
		}
		metrics.EntitiesChecked.WithLabelValues(string(store.KindTalent)).Inc()
		res.Add(er)
	}

	return c.finish(res, start), nil
}

func (c *Checker) checkPerson(ctx context.Context, p store.Person) (er EntityResult, err error) {
	er = EntityResult{Kind: store.KindTalent, ID: p.TMDBPersonID, Name: p.Name}
	defer recoverEntity(&err)

	if err := c.pacer.Wait(ctx); err != nil {
		return er, err
	}
	callCtx, cancel := c.bounded(ctx)
	set, err := c.catalog.CreditsFor(callCtx, p.TMDBPersonID)
	cancel()
	if err != nil {
		return er, fmt.Errorf("fetch credits: %w", err)
	}

	live := catalog.Recent(set.Relevant(), c.opts.Clock.Now(), c.opts.CreditWindow)

	// The recorder is the real guard; an unreadable known set only costs
	// redundant insert attempts.
	knownCtx, cancel := c.bounded(ctx)
	known, err := c.store.KnownCredits(knownCtx, p.TMDBPersonID)
	cancel()
	knownOK := err == nil
	if !knownOK {
		c.logger.Warn("Known credits unavailable", "person_id", p.TMDBPersonID, "error", err)
		known = nil
	}
	fresh := diff.New(known, live, catalog.KeyOf)

	for _, credit := range fresh {
		ev := store.ChangeEvent{
			Kind:       store.KindTalent,
			EntityID:   p.TMDBPersonID,
			MediaType:  credit.MediaType,
			FactID:     credit.ID,
			FactName:   credit.Title,
			ChangeType: store.ChangeAdded,
		}
		audience := func(ctx context.Context) ([]string, error) {
			return c.store.TalentAudience(ctx, p)
		}
		recorded, sent := c.announce(ctx, ev, audience, notifications.TalentMessage(p, credit, c.opts.ImageBase))
		if recorded {
			er.Recorded++
		}
		er.Notifications += sent
	}
	// Without the known set every recent credit diffs as new; only the
	// recorder can tell which ones are.
	er.New = len(fresh)
	if !knownOK {
		er.New = er.Recorded
	}
	if er.New > 0 {
		c.logger.Info("New content", "person_id", p.TMDBPersonID, "name", p.Name, "count", er.New)
		metrics.FactsDetected.WithLabelValues(string(store.KindTalent)).Add(float64(er.New))
	}
	return er, nil
}

// --------------------------------------------------------------------------
// Shared steps
// --------------------------------------------------------------------------

// announce records ev and, only when this call created it, resolves the
// audience, dispatches msg and stores the delivered count. Failures stop
// this fact only.
func (c *Checker) announce(
	ctx context.Context,
	ev store.ChangeEvent,
	audience func(context.Context) ([]string, error),
	msg notifications.Message,
) (recorded bool, sent int) {
	log := c.logger.With("kind", ev.Kind, "entity_id", ev.EntityID, "fact_id", ev.FactID)

	recordCtx, cancel := c.bounded(ctx)
	created, err := c.store.RecordEvent(recordCtx, ev)
	cancel()
	if err != nil {
		log.Error("Record event failed", "error", err)
		return false, 0
	}
	if !created {
		log.Debug("Event already recorded")
		return false, 0
	}

	resolveCtx, cancel := c.bounded(ctx)
	users, err := audience(resolveCtx)
	cancel()
	if err != nil {
		log.Warn("Audience lookup failed", "error", err)
		return true, 0
	}
	if len(users) == 0 {
		return true, 0
	}

	sent = c.dispatcher.Dispatch(ctx, users, msg)
	updateCtx, cancel := c.bounded(ctx)
	err = c.store.UpdateNotifiedCount(updateCtx, ev.Key(), sent)
	cancel()
	if err != nil {
		log.Warn("Update notified count failed", "error", err)
	}
	log.Info("Notified", "recipients", len(users), "sent", sent)
	return true, sent
}

// bounded derives the context for one external call. Every catalog and
// store call goes through it.
func (c *Checker) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

func (c *Checker) limit(override int) int {
	if override > 0 {
		return override
	}
	return c.opts.BatchSize
}

func (c *Checker) finish(res *RunResult, start time.Time) *RunResult {
	res.Duration = c.opts.Clock.Now().Sub(start)
	metrics.RunDuration.WithLabelValues(string(res.Kind)).Observe(res.Duration.Seconds())
	c.logger.Info("Check complete", "summary", res.Summary())
	return res
}

// recoverEntity turns a panic inside one entity into that entity's error.
func recoverEntity(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
