package crdb

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	policy_id      STRING NOT NULL,
	asset_name     STRING NOT NULL,
	organizer      STRING NOT NULL,
	platform       STRING NOT NULL,
	original_price INT8 NOT NULL,
	resale_price   INT8 NOT NULL DEFAULT 0,
	current_owner  STRING NOT NULL,
	is_listed      BOOL NOT NULL DEFAULT false,
	is_used        BOOL NOT NULL DEFAULT false,
	event_date     INT8 NOT NULL,
	serial_number  INT8 NOT NULL,
	datum_cbor     BYTES NOT NULL,
	tx_hash        STRING NOT NULL,
	output_index   INT4 NOT NULL DEFAULT 0,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (policy_id, asset_name),
	INDEX tickets_owner_idx (current_owner),
	INDEX tickets_listed_idx (is_listed, updated_at),
	CHECK (NOT (is_listed AND is_used))
);
CREATE TABLE IF NOT EXISTS transactions (
	tx_hash        STRING PRIMARY KEY,
	policy_id      STRING NOT NULL,
	asset_name     STRING NOT NULL,
	action         STRING NOT NULL,
	consumed_hash  STRING NOT NULL DEFAULT '',
	consumed_index INT4 NOT NULL DEFAULT 0,
	signer         STRING NOT NULL,
	redeemer_cbor  BYTES,
	committed_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX transactions_asset_idx (policy_id, asset_name, committed_at)
);
CREATE TABLE IF NOT EXISTS payments (
	tx_hash STRING NOT NULL,
	leg     INT4 NOT NULL,
	payee   STRING NOT NULL,
	role    STRING NOT NULL,
	amount  INT8 NOT NULL CHECK (amount > 0),
	PRIMARY KEY (tx_hash, leg)
);
CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type STRING NOT NULL,
	aggregate_id   STRING NOT NULL,
	event_type     STRING NOT NULL,
	payload_json   JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at   TIMESTAMPTZ,
	status         STRING NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key     STRING NOT NULL,
	INDEX outbox_status_idx (status, created_at)
);
`

// Migrate creates the ledger tables when they do not exist.
func (l *Ledger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, schema)
	return err
}
