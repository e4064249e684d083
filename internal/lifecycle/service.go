// Package lifecycle runs ticket transitions end to end: it reads the current ticket state,
// asks the engine for the successor, and hands the result to the settlement ledger.
package lifecycle

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const MaxMintBatch = 100

type Catalog interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ReserveSerials(ctx context.Context, id uuid.UUID, n int64) (int64, error)
	// ReleaseSerials hands back the n serials starting at first when they are still the
	// highest reserved. It reports false when a later reservation prevents the release.
	ReleaseSerials(ctx context.Context, id uuid.UUID, first, n int64) (bool, error)
}

// Locker keeps a second submitter off a state reference that is already being settled.
type Locker interface {
	AcquireStateLock(ctx context.Context, ref, owner string, ttl time.Duration) (bool, error)
	ReleaseStateLock(ctx context.Context, ref, owner string) error
}

type Roles interface {
	Role(address string) domain.Role
}

type Deps struct {
	Ledger       settlement.Ledger
	Catalog      Catalog
	Capabilities domain.Capabilities
	Roles        Roles
	Locker       Locker // optional
	LockTTL      time.Duration
	Platform     string
	Logger       observability.Logger
}

type Service struct {
	ledger   settlement.Ledger
	catalog  Catalog
	engine   *domain.Engine
	caps     domain.Capabilities
	roles    Roles
	locker   Locker
	lockTTL  time.Duration
	platform string
	logger   observability.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	ttl := d.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		ledger:   d.Ledger,
		catalog:  d.Catalog,
		engine:   domain.NewEngine(d.Capabilities),
		caps:     d.Capabilities,
		roles:    d.Roles,
		locker:   d.Locker,
		lockTTL:  ttl,
		platform: d.Platform,
		logger:   d.Logger,
		now:      time.Now,
	}
}

type Result struct {
	Tx    settlement.TxHandle `json:"tx"`
	Datum domain.TicketDatum  `json:"datum"`
}

func (s *Service) Role(address string) domain.Role {
	return s.roles.Role(address)
}

func (s *Service) Ticket(ctx context.Context, id domain.AssetID) (settlement.Output, error) {
	return s.ledger.Fetch(ctx, id)
}

func (s *Service) Tickets(ctx context.Context, f settlement.Filter) ([]settlement.Output, error) {
	return s.ledger.Query(ctx, f)
}

// Marketplace lists every ticket currently for resale, oldest listing first.
func (s *Service) Marketplace(ctx context.Context, limit int) ([]settlement.Output, error) {
	return s.ledger.Query(ctx, settlement.Filter{ListedOnly: true, Limit: limit})
}

func (s *Service) History(ctx context.Context, id domain.AssetID) ([]settlement.TxHandle, error) {
	return s.ledger.History(ctx, id)
}

// Preview runs the engine against the current state without submitting anything.
func (s *Service) Preview(ctx context.Context, id domain.AssetID, a domain.Action, caller string) (domain.Transition, error) {
	out, err := s.ledger.Fetch(ctx, id)
	if err != nil {
		return domain.Transition{}, err
	}
	return s.engine.Apply(out.Datum, a, caller)
}

// Execute validates a against the ticket's current state and submits the transition once.
// Conflicts are returned to the caller, who must re-read state before retrying.
func (s *Service) Execute(ctx context.Context, id domain.AssetID, a domain.Action, caller string) (res Result, err error) {
	ctx, span := observability.Tracer().Start(ctx, "lifecycle.Execute")
	span.SetAttributes(
		attribute.String("ticket.asset", id.String()),
		attribute.String("ticket.action", a.Kind.String()),
	)
	log := observability.FromContext(ctx, s.logger).WithFields(map[string]interface{}{
		"asset":  id.String(),
		"action": a.Kind.String(),
		"signer": caller,
	})
	defer func() {
		result := "ok"
		if err != nil {
			result = domain.Code(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		observability.TransitionsTotal.WithLabelValues(a.Kind.String(), result).Inc()
		span.End()
	}()

	out, err := s.ledger.Fetch(ctx, id)
	if err != nil {
		return Result{}, err
	}
	tr, err := s.engine.Apply(out.Datum, a, caller)
	if err != nil {
		if domain.IsRejection(err) {
			log.WithError(err).Info("transition rejected")
		} else {
			log.WithError(err).Error("transition failed")
		}
		return Result{}, err
	}

	if s.locker != nil {
		ref := out.Ref.String()
		ok, err := s.locker.AcquireStateLock(ctx, ref, caller, s.lockTTL)
		if err != nil {
			return Result{}, settlement.Failure(err, "acquire state lock")
		}
		if !ok {
			observability.SettlementConflicts.Inc()
			return Result{}, errors.Wrapf(domain.ErrSettlementConflict, "state %s is being settled by another submission", ref)
		}
		defer func() {
			if err := s.locker.ReleaseStateLock(context.WithoutCancel(ctx), ref, caller); err != nil {
				log.WithError(err).Warn("failed to release state lock")
			}
		}()
	}

	start := s.now()
	tx, err := s.ledger.Submit(ctx, settlement.NewSubmission(out.Ref, tr))
	observability.SettlementDuration.WithLabelValues(a.Kind.String()).Observe(s.now().Sub(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrSettlementConflict) {
			observability.SettlementConflicts.Inc()
			log.WithError(err).Warn("settlement conflict")
		} else {
			log.WithError(err).Error("settlement failed")
		}
		return Result{}, err
	}

	log.WithField("tx_hash", tx.Hash).Info("transition committed")
	return Result{Tx: tx, Datum: tr.Next}, nil
}
