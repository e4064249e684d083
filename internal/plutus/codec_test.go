package plutus_test

import (
	"encoding/hex"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/plutus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDatum() domain.TicketDatum {
	return domain.TicketDatum{
		PolicyID:      "4f1c2a",
		AssetName:     "TICKET002",
		Organizer:     "addr_test1organizer1",
		Platform:      "addr_test1platform",
		OriginalPrice: 100_000_000,
		ResalePrice:   110_000_000,
		CurrentOwner:  "addr_test1seller1",
		IsListed:      true,
		IsUsed:        false,
		EventDate:     1763197200000,
		SerialNumber:  2,
	}
}

func TestDatumRoundTrip(t *testing.T) {
	for _, d := range []domain.TicketDatum{sampleDatum(), {}, {IsUsed: true, ResalePrice: -1, EventDate: -5}} {
		b, err := plutus.EncodeDatum(d)
		require.NoError(t, err)
		got, err := plutus.DecodeDatum(b)
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestDatumEncodingIsDeterministic(t *testing.T) {
	a, err := plutus.DatumHex(sampleDatum())
	require.NoError(t, err)
	b, err := plutus.DatumHex(sampleDatum())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "d879", a[:4], "constructor 0 is tag 121")
}

func TestActionRoundTrip(t *testing.T) {
	for _, a := range []domain.Action{
		domain.Do(domain.BuyFromResale),
		domain.Do(domain.BuyFromOrganizer),
		domain.ListAt(110_000_000),
		domain.Do(domain.CancelListing),
		domain.Do(domain.UseTicket),
	} {
		b, err := plutus.EncodeAction(a)
		require.NoError(t, err)
		got, err := plutus.DecodeAction(b)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestActionConstructorIndex(t *testing.T) {
	b, err := plutus.EncodeAction(domain.Do(domain.UseTicket))
	require.NoError(t, err)
	assert.Equal(t, "d87d80", hex.EncodeToString(b))
}

func TestDecodeActionRejectsUnknown(t *testing.T) {
	b, err := cbor.Marshal(cbor.Tag{Number: 126, Content: []any{}})
	require.NoError(t, err)
	_, err = plutus.DecodeAction(b)
	assert.True(t, errors.Is(err, domain.ErrInvalidAction))

	b, err = cbor.Marshal(cbor.Tag{Number: 123, Content: []any{int64(-10)}})
	require.NoError(t, err)
	_, err = plutus.DecodeAction(b)
	assert.True(t, errors.Is(err, domain.ErrInvalidAction))

	_, err = plutus.DecodeAction([]byte{0xff})
	assert.True(t, errors.Is(err, domain.ErrInvalidAction))
}

func TestDecodeDatumRejectsWrongShape(t *testing.T) {
	b, err := plutus.EncodeAction(domain.Do(domain.CancelListing))
	require.NoError(t, err)
	_, err = plutus.DecodeDatum(b)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
