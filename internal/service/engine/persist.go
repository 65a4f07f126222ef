package engine

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

type persistResult struct {
	saved int
	total int
}

// buildObservations fans a finished session out into one record per media item.
func (e *Engine) buildObservations(sess conversation.Session) []observation.Observation {
	submittedAt := e.now().UTC()
	var observedAt time.Time
	if sess.ObservedAt != nil {
		observedAt = *sess.ObservedAt
	}

	records := make([]observation.Observation, 0, len(sess.MediaRefs))
	for _, ref := range sess.MediaRefs {
		records = append(records, observation.Observation{
			ID:          uuid.NewString(),
			UserID:      sess.UserID,
			MediaRef:    ref.FileID,
			MediaKind:   ref.Kind,
			ObservedAt:  observedAt,
			Latitude:    copyPtr(sess.Latitude),
			Longitude:   copyPtr(sess.Longitude),
			Address:     copyPtr(sess.Address),
			FullName:    copyPtr(sess.FullName),
			SubmittedAt: submittedAt,
		})
	}
	return records
}

// persist inserts every record independently. A failed row is logged and
// counted but never stops the others.
func (e *Engine) persist(ctx context.Context, sess conversation.Session) persistResult {
	records := e.buildObservations(sess)
	if len(records) == 0 {
		return persistResult{}
	}

	// Saves must outlive a caller that disconnects mid-request.
	ctx = context.WithoutCancel(ctx)

	var saved atomic.Int64
	var g errgroup.Group
	g.SetLimit(e.cfg.PersistConcurrency)
	for _, rec := range records {
		g.Go(func() error {
			if err := e.insert(ctx, rec); err != nil {
				log.Printf("[bot] save observation failed user=%s media=%s: %v", rec.UserID, rec.MediaRef, err)
				e.metrics.ObservationFailed()
				return nil
			}
			saved.Add(1)
			e.metrics.ObservationSaved()
			return nil
		})
	}
	_ = g.Wait()

	result := persistResult{saved: int(saved.Load()), total: len(records)}
	if result.saved < result.total {
		log.Printf("[bot] saved %d of %d observations for user=%s", result.saved, result.total, sess.UserID)
	}
	return result
}

// insert writes one record with a per-attempt timeout and bounded retries.
func (e *Engine) insert(ctx context.Context, rec observation.Observation) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt <= e.cfg.PersistRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * e.cfg.RetryBackoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.PersistTimeout)
		err = e.repo.Insert(callCtx, rec)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, observation.ErrMediaRequired) || errors.Is(err, observation.ErrLocationRequired) {
			return err
		}
	}
	return err
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
