package settlement

import (
	"github.com/cockroachdb/errors"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
)

func conflict(consumed, current StateRef) error {
	return errors.Wrapf(domain.ErrSettlementConflict, "state %s already consumed, current is %s", consumed, current)
}

func failure(format string, args ...any) error {
	return errors.Wrapf(domain.ErrSettlementFailure, format, args...)
}

// Conflict reports a stale consumed reference.
func Conflict(consumed, current StateRef) error {
	return conflict(consumed, current)
}

// Failure wraps an adapter-level error unrelated to protocol rules.
func Failure(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), domain.ErrSettlementFailure)
}
