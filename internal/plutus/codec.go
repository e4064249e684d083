// Package plutus encodes ticket datums and redeemers as constructor-tagged CBOR, the shape the
// ledger stores inline with each ticket output.
package plutus

import (
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
)

// Constructor i is CBOR tag 121+i for the first seven alternatives.
const (
	constrBase = 121
	constrMax  = 127
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("plutus: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("plutus: CBOR decoder initialization failed: " + err.Error())
	}
}

func constr(index int, fields ...any) cbor.Tag {
	if fields == nil {
		fields = []any{}
	}
	return cbor.Tag{Number: uint64(constrBase + index), Content: fields}
}

func boolData(b bool) cbor.Tag {
	if b {
		return constr(1)
	}
	return constr(0)
}

func decodeConstr(data []byte) (int, []cbor.RawMessage, error) {
	var raw cbor.RawTag
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return 0, nil, err
	}
	if raw.Number < constrBase || raw.Number > constrMax {
		return 0, nil, errors.Newf("tag %d is not a constructor", raw.Number)
	}
	var fields []cbor.RawMessage
	if err := decMode.Unmarshal(raw.Content, &fields); err != nil {
		return 0, nil, err
	}
	return int(raw.Number - constrBase), fields, nil
}

func decodeBool(data []byte) (bool, error) {
	idx, fields, err := decodeConstr(data)
	if err != nil {
		return false, err
	}
	if len(fields) != 0 || idx > 1 {
		return false, errors.Newf("constructor %d/%d is not a bool", idx, len(fields))
	}
	return idx == 1, nil
}

func EncodeDatum(d domain.TicketDatum) ([]byte, error) {
	return encMode.Marshal(constr(0,
		[]byte(d.PolicyID),
		[]byte(d.AssetName),
		[]byte(d.Organizer),
		[]byte(d.Platform),
		int64(d.OriginalPrice),
		int64(d.ResalePrice),
		[]byte(d.CurrentOwner),
		boolData(d.IsListed),
		boolData(d.IsUsed),
		d.EventDate,
		d.SerialNumber,
	))
}

func DecodeDatum(data []byte) (domain.TicketDatum, error) {
	var d domain.TicketDatum
	idx, fields, err := decodeConstr(data)
	if err != nil {
		return d, errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	if idx != 0 || len(fields) != 11 {
		return d, errors.Wrapf(domain.ErrInvalidInput, "datum constructor %d with %d fields", idx, len(fields))
	}

	var (
		policy, asset, organizer, platform, owner []byte
		original, resale                          int64
	)
	steps := []struct {
		name string
		into any
	}{
		{"policy_id", &policy},
		{"asset_name", &asset},
		{"organizer", &organizer},
		{"platform", &platform},
		{"original_price", &original},
		{"resale_price", &resale},
		{"current_owner", &owner},
	}
	for i, s := range steps {
		if err := decMode.Unmarshal(fields[i], s.into); err != nil {
			return d, errors.Wrapf(domain.ErrInvalidInput, "datum field %s: %v", s.name, err)
		}
	}
	if d.IsListed, err = decodeBool(fields[7]); err != nil {
		return d, errors.Wrapf(domain.ErrInvalidInput, "datum field is_listed: %v", err)
	}
	if d.IsUsed, err = decodeBool(fields[8]); err != nil {
		return d, errors.Wrapf(domain.ErrInvalidInput, "datum field is_used: %v", err)
	}
	if err := decMode.Unmarshal(fields[9], &d.EventDate); err != nil {
		return d, errors.Wrapf(domain.ErrInvalidInput, "datum field event_date: %v", err)
	}
	if err := decMode.Unmarshal(fields[10], &d.SerialNumber); err != nil {
		return d, errors.Wrapf(domain.ErrInvalidInput, "datum field serial_number: %v", err)
	}

	d.PolicyID = string(policy)
	d.AssetName = string(asset)
	d.Organizer = string(organizer)
	d.Platform = string(platform)
	d.OriginalPrice = domain.Lovelace(original)
	d.ResalePrice = domain.Lovelace(resale)
	d.CurrentOwner = string(owner)
	return d, nil
}

func EncodeAction(a domain.Action) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.Kind == domain.ListForResale {
		return encMode.Marshal(constr(int(a.Kind), int64(a.NewPrice)))
	}
	return encMode.Marshal(constr(int(a.Kind)))
}

// DecodeAction parses a redeemer. Anything outside the known alternatives is ErrInvalidAction.
func DecodeAction(data []byte) (domain.Action, error) {
	idx, fields, err := decodeConstr(data)
	if err != nil {
		return domain.Action{}, errors.Wrap(domain.ErrInvalidAction, err.Error())
	}
	a := domain.Action{Kind: domain.ActionKind(idx)}
	if !a.Kind.Valid() {
		return domain.Action{}, errors.Wrapf(domain.ErrInvalidAction, "unknown redeemer constructor %d", idx)
	}
	want := 0
	if a.Kind == domain.ListForResale {
		want = 1
	}
	if len(fields) != want {
		return domain.Action{}, errors.Wrapf(domain.ErrInvalidAction, "%s expects %d fields, got %d", a.Kind, want, len(fields))
	}
	if want == 1 {
		var price int64
		if err := decMode.Unmarshal(fields[0], &price); err != nil {
			return domain.Action{}, errors.Wrapf(domain.ErrInvalidAction, "new_price: %v", err)
		}
		a.NewPrice = domain.Lovelace(price)
	}
	return a, a.Validate()
}

// DatumHex is the inline-datum form wallets and explorers display.
func DatumHex(d domain.TicketDatum) (string, error) {
	b, err := EncodeDatum(d)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Marshal encodes v with the same deterministic options as datums.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}
