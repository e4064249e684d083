package lifecycle

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
)

// CreateEvent registers a new event owned by caller, who must be an allow-listed organizer.
func (s *Service) CreateEvent(ctx context.Context, caller string, in domain.EventInput) (domain.Event, error) {
	if !s.caps.IsOrganizer(caller, caller) {
		return domain.Event{}, errors.Wrapf(domain.ErrUnauthorized, "%s is not an organizer", caller)
	}
	event, err := domain.NewEvent(in, caller, s.now())
	if err != nil {
		return domain.Event{}, err
	}
	if err := s.catalog.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func (s *Service) Event(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return s.catalog.GetEvent(ctx, id)
}

func (s *Service) Events(ctx context.Context) ([]domain.Event, error) {
	return s.catalog.ListEvents(ctx)
}

// Mint creates count new tickets for an event. Every ticket starts owned by the organizer.
func (s *Service) Mint(ctx context.Context, eventID uuid.UUID, count int64, caller string) ([]settlement.Output, error) {
	if count <= 0 || count > MaxMintBatch {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "mint count must be in [1, %d]", MaxMintBatch)
	}
	if s.platform == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "platform address not configured")
	}
	event, err := s.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !s.caps.IsOrganizer(caller, event.Organizer) {
		return nil, errors.Wrapf(domain.ErrUnauthorized, "%s does not organize event %s", caller, eventID)
	}
	first, err := s.catalog.ReserveSerials(ctx, eventID, count)
	if err != nil {
		return nil, err
	}

	log := observability.FromContext(ctx, s.logger).WithField("event_id", eventID.String())
	outs := make([]settlement.Output, 0, count)
	for serial := first; serial < first+count; serial++ {
		d, err := domain.NewTicketDatum(domain.MintParams{
			PolicyID:      event.PolicyID,
			Organizer:     event.Organizer,
			Platform:      s.platform,
			OriginalPrice: event.TicketPrice,
			EventDate:     event.Date,
			SerialNumber:  serial,
		})
		if err == nil {
			var out settlement.Output
			out, err = s.mintSerial(ctx, d)
			if err == nil {
				observability.TicketsMinted.Inc()
				outs = append(outs, out)
				continue
			}
		}
		log.WithError(err).WithField("serial", serial).Error("mint failed")
		s.releaseSerials(ctx, log, eventID, serial, first+count-serial)
		return outs, err
	}
	log.WithField("count", len(outs)).Info("tickets minted")
	return outs, nil
}

// mintSerial mints d, adopting a ticket that an earlier interrupted mint already put on
// the ledger for the same serial.
func (s *Service) mintSerial(ctx context.Context, d domain.TicketDatum) (settlement.Output, error) {
	out, err := s.ledger.Mint(ctx, d)
	if !errors.Is(err, domain.ErrConflict) {
		return out, err
	}
	existing, fetchErr := s.ledger.Fetch(ctx, d.Asset())
	if fetchErr != nil {
		return settlement.Output{}, err
	}
	if existing.Datum.Organizer != d.Organizer || existing.Datum.SerialNumber != d.SerialNumber {
		return settlement.Output{}, err
	}
	return existing, nil
}

func (s *Service) releaseSerials(ctx context.Context, log observability.Logger, eventID uuid.UUID, first, n int64) {
	released, err := s.catalog.ReleaseSerials(context.WithoutCancel(ctx), eventID, first, n)
	entry := log.WithField("serial", first).WithField("count", n)
	switch {
	case err != nil:
		entry.WithError(err).Error("release serials failed")
	case !released:
		entry.Warn("serials not released, a later reservation exists")
	default:
		entry.Info("serials released")
	}
}
