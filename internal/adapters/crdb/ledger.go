package crdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/plutus"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

const ticketColumns = `policy_id, asset_name, organizer, platform, original_price, resale_price,
	current_owner, is_listed, is_used, event_date, serial_number, tx_hash, output_index, updated_at`

const outputColumns = ticketColumns + `, datum_cbor`

// Ledger settles ticket transitions in CockroachDB. The tickets row is the current output;
// a transition replaces it only while its (tx_hash, output_index) still matches the consumed ref.
type Ledger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool, now: time.Now}
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func (l *Ledger) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}
	return mapPgError(tx.Commit(ctx))
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return errors.Wrap(domain.ErrSettlementConflict, "serialization failure")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode
}

func (l *Ledger) Mint(ctx context.Context, d domain.TicketDatum) (settlement.Output, error) {
	hash, err := settlement.MintHash(d)
	if err != nil {
		return settlement.Output{}, settlement.Failure(err, "hash mint")
	}
	raw, err := plutus.EncodeDatum(d)
	if err != nil {
		return settlement.Output{}, settlement.Failure(err, "encode datum")
	}
	now := l.now().UTC()
	out := settlement.Output{Ref: settlement.StateRef{TxHash: hash}, Datum: d, UpdatedAt: now}
	tx := settlement.TxHandle{
		Hash:        hash,
		Action:      "Mint",
		Produced:    out.Ref,
		Signer:      d.Organizer,
		CommittedAt: now,
	}

	err = l.WithTx(ctx, func(dbtx pgx.Tx) error {
		_, err := dbtx.Exec(ctx, `
			INSERT INTO tickets (`+ticketColumns+`, datum_cbor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, d.PolicyID, d.AssetName, d.Organizer, d.Platform, int64(d.OriginalPrice), int64(d.ResalePrice),
			d.CurrentOwner, d.IsListed, d.IsUsed, d.EventDate, d.SerialNumber, hash, 0, now, raw)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(domain.ErrConflict, "ticket %s already minted", d.Asset())
			}
			return err
		}
		if err := insertTx(ctx, dbtx, tx, d.Asset(), nil); err != nil {
			return err
		}
		return insertOutbox(ctx, dbtx, settlement.NewEvent(tx, d, settlement.MintedEvent))
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return settlement.Output{}, err
		}
		return settlement.Output{}, settlement.Failure(err, "mint")
	}
	return out, nil
}

func (l *Ledger) Fetch(ctx context.Context, id domain.AssetID) (settlement.Output, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+outputColumns+` FROM tickets WHERE policy_id = $1 AND asset_name = $2`,
		id.PolicyID, id.AssetName)
	return scanOutput(row, id)
}

// Submit commits sub atomically: successor output, transaction record, payment legs and the
// outbox event land together or not at all.
func (l *Ledger) Submit(ctx context.Context, sub settlement.Submission) (settlement.TxHandle, error) {
	hash, err := settlement.TxHash(sub)
	if err != nil {
		return settlement.TxHandle{}, settlement.Failure(err, "hash transaction")
	}
	raw, err := plutus.EncodeDatum(sub.Datum)
	if err != nil {
		return settlement.TxHandle{}, settlement.Failure(err, "encode datum")
	}
	redeemer, err := plutus.EncodeAction(sub.Redeemer)
	if err != nil {
		return settlement.TxHandle{}, settlement.Failure(err, "encode redeemer")
	}
	id := sub.Datum.Asset()
	now := l.now().UTC()
	produced := settlement.StateRef{TxHash: hash}
	handle := settlement.TxHandle{
		Hash:        hash,
		Action:      sub.Redeemer.Kind.String(),
		Consumed:    sub.Consumed,
		Produced:    produced,
		Payments:    sub.Plan,
		Signer:      sub.Signer,
		CommittedAt: now,
	}

	err = l.WithTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanOutput(tx.QueryRow(ctx, `SELECT `+outputColumns+` FROM tickets
			WHERE policy_id = $1 AND asset_name = $2 FOR UPDATE`, id.PolicyID, id.AssetName), id)
		if err != nil {
			return err
		}
		if err := settlement.CheckSubmission(cur, sub); err != nil {
			return err
		}

		d := sub.Datum
		res, err := tx.Exec(ctx, `
			UPDATE tickets SET current_owner = $5, resale_price = $6, is_listed = $7, is_used = $8,
				datum_cbor = $9, tx_hash = $10, output_index = 0, updated_at = $11
			WHERE policy_id = $1 AND asset_name = $2 AND tx_hash = $3 AND output_index = $4
		`, id.PolicyID, id.AssetName, sub.Consumed.TxHash, int32(sub.Consumed.Index),
			d.CurrentOwner, int64(d.ResalePrice), d.IsListed, d.IsUsed, raw, hash, now)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return settlement.Conflict(sub.Consumed, cur.Ref)
		}
		if err := insertTx(ctx, tx, handle, id, redeemer); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, settlement.NewEvent(handle, d, settlement.EventType(sub.Redeemer.Kind)))
	})
	if err != nil {
		if errors.IsAny(err, domain.ErrSettlementConflict, domain.ErrSettlementFailure, domain.ErrNotFound) {
			return settlement.TxHandle{}, err
		}
		return settlement.TxHandle{}, settlement.Failure(err, "submit")
	}
	return handle, nil
}

func (l *Ledger) Query(ctx context.Context, f settlement.Filter) ([]settlement.Output, error) {
	var (
		where []string
		args  []any
	)
	if f.Owner != "" {
		args = append(args, f.Owner)
		where = append(where, fmt.Sprintf("current_owner = $%d", len(args)))
	}
	if f.PolicyID != "" {
		args = append(args, f.PolicyID)
		where = append(where, fmt.Sprintf("policy_id = $%d", len(args)))
	}
	order := "policy_id, asset_name"
	if f.ListedOnly {
		where = append(where, "is_listed AND NOT is_used")
		order = "updated_at"
	}
	q := `SELECT ` + outputColumns + ` FROM tickets`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + order
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outs []settlement.Output
	for rows.Next() {
		out, err := scanOutput(rows, domain.AssetID{})
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, rows.Err()
}

// History returns committed transactions for a ticket, oldest first, with their payment legs.
func (l *Ledger) History(ctx context.Context, id domain.AssetID) ([]settlement.TxHandle, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT t.tx_hash, t.action, t.consumed_hash, t.consumed_index, t.signer, t.committed_at,
			p.payee, p.role, p.amount
		FROM transactions t LEFT JOIN payments p ON p.tx_hash = t.tx_hash
		WHERE t.policy_id = $1 AND t.asset_name = $2
		ORDER BY t.committed_at, t.tx_hash, p.leg
	`, id.PolicyID, id.AssetName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []settlement.TxHandle
	for rows.Next() {
		var (
			tx     settlement.TxHandle
			index  int32
			payee  *string
			role   *string
			amount *int64
		)
		if err := rows.Scan(&tx.Hash, &tx.Action, &tx.Consumed.TxHash, &index, &tx.Signer,
			&tx.CommittedAt, &payee, &role, &amount); err != nil {
			return nil, err
		}
		tx.Consumed.Index = uint32(index)
		if n := len(txs); n == 0 || txs[n-1].Hash != tx.Hash {
			tx.Produced = settlement.StateRef{TxHash: tx.Hash}
			txs = append(txs, tx)
		}
		if payee != nil {
			last := &txs[len(txs)-1]
			last.Payments = append(last.Payments, domain.Payment{
				Payee:  *payee,
				Role:   domain.PayeeRole(*role),
				Amount: domain.Lovelace(*amount),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, errors.Wrapf(domain.ErrNotFound, "ticket %s", id)
	}
	return txs, nil
}

// scanOutput reads a tickets row and checks that the stored CBOR datum decodes to the
// same ticket as the relational columns.
func scanOutput(row pgx.Row, id domain.AssetID) (settlement.Output, error) {
	var (
		out           settlement.Output
		d             = &out.Datum
		original, rsl int64
		index         int32
		raw           []byte
	)
	err := row.Scan(&d.PolicyID, &d.AssetName, &d.Organizer, &d.Platform, &original, &rsl,
		&d.CurrentOwner, &d.IsListed, &d.IsUsed, &d.EventDate, &d.SerialNumber,
		&out.Ref.TxHash, &index, &out.UpdatedAt, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return settlement.Output{}, errors.Wrapf(domain.ErrNotFound, "ticket %s", id)
	}
	if err != nil {
		return settlement.Output{}, err
	}
	d.OriginalPrice = domain.Lovelace(original)
	d.ResalePrice = domain.Lovelace(rsl)
	out.Ref.Index = uint32(index)

	stored, err := plutus.DecodeDatum(raw)
	if err != nil {
		return settlement.Output{}, settlement.Failure(err, "decode stored datum")
	}
	if stored != *d {
		return settlement.Output{}, settlement.Failure(
			errors.Newf("datum_cbor disagrees with columns for %s", d.Asset()), "stored datum")
	}
	return out, nil
}

func insertTx(ctx context.Context, tx pgx.Tx, h settlement.TxHandle, id domain.AssetID, redeemer []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (tx_hash, policy_id, asset_name, action, consumed_hash, consumed_index, signer, redeemer_cbor, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, h.Hash, id.PolicyID, id.AssetName, h.Action, h.Consumed.TxHash, int32(h.Consumed.Index), h.Signer, redeemer, h.CommittedAt)
	if err != nil {
		return err
	}
	if len(h.Payments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, p := range h.Payments {
		batch.Queue(`INSERT INTO payments (tx_hash, leg, payee, role, amount) VALUES ($1, $2, $3, $4, $5)`,
			h.Hash, i, p.Payee, string(p.Role), int64(p.Amount))
	}
	return tx.SendBatch(ctx, batch).Close()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, e settlement.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, 'ticket', $2, $3, $4, 'NEW', $5)
	`, uuid.New(), e.Asset.String(), e.Type, payload, e.TxHash)
	return err
}
