// Package dashboard serves the BINOVA worker dashboard: the live map, the
// bin cards and the "mark cleaned" action.
package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/binova/internal/logging"
	"github.com/LeonardoBeccarini/binova/internal/model/entities"
	"github.com/LeonardoBeccarini/binova/internal/model/messages"
	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/internal/store"
)

// Notifier receives "record changed" events.
type Notifier interface {
	Notify(ctx context.Context, evt messages.BinChangedEvent) error
}

// Service reads the bin collection and applies worker actions.
type Service struct {
	store     store.Store
	notifiers []Notifier
	metrics   *observability.Collector
	log       logging.Logger

	now   func() time.Time
	newID func() string
}

func NewService(s store.Store, metrics *observability.Collector, log logging.Logger, notifiers ...Notifier) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{
		store:     s,
		notifiers: notifiers,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// View performs one snapshot read and builds the view model. Records that
// fail validation are listed in ViewModel.Invalid.
func (s *Service) View(ctx context.Context) (ViewModel, error) {
	entries, err := s.store.Snapshot(ctx)
	if err != nil {
		s.metrics.Snapshot(resultOf(err), nil, 0)
		return ViewModel{}, err
	}
	bins, bad := store.DecodeAll(entries)
	for _, e := range bad {
		s.log.Warn(ctx, "invalid bin record", logging.String("bin", e.Key), logging.Err(e))
	}
	s.metrics.Snapshot(observability.ResultOK, bins, len(bad))
	return Build(bins, bad), nil
}

// MarkCleaned resets the bin to empty. It fails with store.ErrNotFound when
// the key does not exist. Notification failures are logged only.
func (s *Service) MarkCleaned(ctx context.Context, key string) error {
	if err := s.store.Update(ctx, key, entities.CleanedFields()); err != nil {
		s.metrics.Cleaned(resultOf(err))
		return err
	}
	s.metrics.Cleaned(observability.ResultOK)
	s.log.Info(ctx, "bin marked cleaned", logging.String("bin", key))

	evt := messages.BinChangedEvent{
		EventID:   s.newID(),
		BinID:     key,
		Reason:    messages.ReasonCleaned,
		FillLevel: 0,
		Status:    entities.StatusCleaned,
		Alert:     false,
		Timestamp: s.now().UTC(),
	}
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, evt); err != nil {
			s.log.Warn(ctx, "bin changed notification failed",
				logging.String("bin", key), logging.Err(err))
		}
	}
	return nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return observability.ResultOK
	case errors.Is(err, store.ErrInvalidKey):
		return observability.ResultInvalid
	case errors.Is(err, store.ErrNotFound):
		return observability.ResultNotFound
	case errors.Is(err, store.ErrUnavailable):
		return observability.ResultUnavailable
	default:
		return observability.ResultError
	}
}
