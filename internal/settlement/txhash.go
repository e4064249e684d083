package settlement

import (
	"encoding/hex"

	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/plutus"
	"golang.org/x/crypto/blake2b"
)

type txBody struct {
	_        struct{} `cbor:",toarray"`
	Consumed []any
	Datum    []byte
	Redeemer []byte
	Payments [][]any
	Signer   string
}

// TxHash is the blake2b-256 of the deterministic CBOR transaction body.
func TxHash(sub Submission) (string, error) {
	datum, err := plutus.EncodeDatum(sub.Datum)
	if err != nil {
		return "", err
	}
	redeemer, err := plutus.EncodeAction(sub.Redeemer)
	if err != nil {
		return "", err
	}
	payments := make([][]any, 0, len(sub.Plan))
	for _, leg := range sub.Plan {
		payments = append(payments, []any{leg.Payee, int64(leg.Amount)})
	}
	body, err := plutus.Marshal(txBody{
		Consumed: []any{sub.Consumed.TxHash, sub.Consumed.Index},
		Datum:    datum,
		Redeemer: redeemer,
		Payments: payments,
		Signer:   sub.Signer,
	})
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// MintHash identifies the transaction that creates d.
func MintHash(d domain.TicketDatum) (string, error) {
	datum, err := plutus.EncodeDatum(d)
	if err != nil {
		return "", err
	}
	body, err := plutus.Marshal([]any{"mint", datum})
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}
