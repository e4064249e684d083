package settlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	organizer = "addr_test1organizer1"
	platform  = "addr_test1platform"
)

var engine = domain.NewEngine(domain.NewAllowList("", []string{organizer}))

func mint(t *testing.T, l *settlement.Memory, serial int64) settlement.Output {
	t.Helper()
	d, err := domain.NewTicketDatum(domain.MintParams{
		PolicyID:      "policy1",
		Organizer:     organizer,
		Platform:      platform,
		OriginalPrice: 100_000_000,
		EventDate:     time.Date(2025, 11, 15, 9, 0, 0, 0, time.UTC),
		SerialNumber:  serial,
	})
	require.NoError(t, err)
	out, err := l.Mint(context.Background(), d)
	require.NoError(t, err)
	return out
}

func transition(t *testing.T, l *settlement.Memory, out settlement.Output, a domain.Action, caller string) (settlement.Output, settlement.TxHandle) {
	t.Helper()
	tr, err := engine.Apply(out.Datum, a, caller)
	require.NoError(t, err)
	tx, err := l.Submit(context.Background(), settlement.NewSubmission(out.Ref, tr))
	require.NoError(t, err)
	next, err := l.Fetch(context.Background(), out.Datum.Asset())
	require.NoError(t, err)
	assert.Equal(t, tx.Produced, next.Ref)
	return next, tx
}

func TestMemoryMintTwice(t *testing.T) {
	l := settlement.NewMemory()
	out := mint(t, l, 1)
	_, err := l.Mint(context.Background(), out.Datum)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestMemoryFetchUnknown(t *testing.T) {
	l := settlement.NewMemory()
	_, err := l.Fetch(context.Background(), domain.AssetID{PolicyID: "nope", AssetName: "TICKET001"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryStaleSubmissionConflicts(t *testing.T) {
	l := settlement.NewMemory()
	out := mint(t, l, 1)

	tr, err := engine.Apply(out.Datum, domain.Do(domain.BuyFromOrganizer), "addr_test1buyerB")
	require.NoError(t, err)
	_, err = l.Submit(context.Background(), settlement.NewSubmission(out.Ref, tr))
	require.NoError(t, err)

	_, err = l.Submit(context.Background(), settlement.NewSubmission(out.Ref, tr))
	assert.True(t, errors.Is(err, domain.ErrSettlementConflict))
}

func TestMemoryConcurrentResaleOneWinner(t *testing.T) {
	l := settlement.NewMemory()
	out := mint(t, l, 1)
	out, _ = transition(t, l, out, domain.Do(domain.BuyFromOrganizer), "addr_test1seller")
	listed, _ := transition(t, l, out, domain.ListAt(110_000_000), "addr_test1seller")

	buyers := []string{"addr_test1buyerB", "addr_test1buyerC", "addr_test1buyerD", "addr_test1buyerE"}
	results := make([]error, len(buyers))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, buyer := range buyers {
		tr, err := engine.Apply(listed.Datum, domain.Do(domain.BuyFromResale), buyer)
		require.NoError(t, err)
		wg.Add(1)
		go func(i int, sub settlement.Submission) {
			defer wg.Done()
			<-start
			_, results[i] = l.Submit(context.Background(), sub)
		}(i, settlement.NewSubmission(listed.Ref, tr))
	}
	close(start)
	wg.Wait()

	winner := ""
	for i, err := range results {
		if err == nil {
			require.Empty(t, winner, "more than one submission committed")
			winner = buyers[i]
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrSettlementConflict), err.Error())
	}
	require.NotEmpty(t, winner)

	final, err := l.Fetch(context.Background(), listed.Datum.Asset())
	require.NoError(t, err)
	assert.Equal(t, winner, final.Datum.CurrentOwner)
	assert.False(t, final.Datum.IsListed)
}

func TestMemoryRejectsMismatchedAsset(t *testing.T) {
	l := settlement.NewMemory()
	a := mint(t, l, 1)
	b := mint(t, l, 2)

	tr, err := engine.Apply(b.Datum, domain.Do(domain.BuyFromOrganizer), "addr_test1buyerB")
	require.NoError(t, err)
	_, err = l.Submit(context.Background(), settlement.NewSubmission(a.Ref, tr))
	assert.True(t, errors.Is(err, domain.ErrSettlementConflict))
}

func TestMemoryRejectsImmutableFieldChange(t *testing.T) {
	for name, mutate := range map[string]func(d *domain.TicketDatum){
		"organizer":      func(d *domain.TicketDatum) { d.Organizer = "addr_test1mallory" },
		"platform":       func(d *domain.TicketDatum) { d.Platform = "addr_test1mallory" },
		"original_price": func(d *domain.TicketDatum) { d.OriginalPrice = 1_000_000 },
		"event_date":     func(d *domain.TicketDatum) { d.EventDate++ },
		"serial_number":  func(d *domain.TicketDatum) { d.SerialNumber = 99 },
	} {
		t.Run(name, func(t *testing.T) {
			l := settlement.NewMemory()
			out := mint(t, l, 1)

			tr, err := engine.Apply(out.Datum, domain.Do(domain.BuyFromOrganizer), "addr_test1buyerB")
			require.NoError(t, err)
			mutate(&tr.Next)
			_, err = l.Submit(context.Background(), settlement.NewSubmission(out.Ref, tr))
			assert.True(t, errors.Is(err, domain.ErrSettlementFailure), "got %v", err)

			cur, err := l.Fetch(context.Background(), out.Datum.Asset())
			require.NoError(t, err)
			assert.Equal(t, out.Ref, cur.Ref)
		})
	}
}

func TestMemoryRejectsBadPaymentLeg(t *testing.T) {
	l := settlement.NewMemory()
	out := mint(t, l, 1)
	sub := settlement.Submission{
		Consumed: out.Ref,
		Redeemer: domain.Do(domain.BuyFromOrganizer),
		Datum:    out.Datum,
		Plan:     domain.PaymentPlan{{Payee: organizer, Role: domain.PayeeOrganizer, Amount: 0}},
		Signer:   "addr_test1buyerB",
	}
	_, err := l.Submit(context.Background(), sub)
	assert.True(t, errors.Is(err, domain.ErrSettlementFailure))

	sub.Plan = nil
	sub.Signer = ""
	_, err = l.Submit(context.Background(), sub)
	assert.True(t, errors.Is(err, domain.ErrSettlementFailure))
}

func TestMemoryQueryAndHistory(t *testing.T) {
	tick := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	var events []settlement.Event
	l := settlement.NewMemory(
		settlement.WithClock(func() time.Time { tick = tick.Add(time.Second); return tick }),
		settlement.WithNotify(func(e settlement.Event) { events = append(events, e) }),
	)
	one := mint(t, l, 1)
	two := mint(t, l, 2)

	two, _ = transition(t, l, two, domain.Do(domain.BuyFromOrganizer), "addr_test1seller")
	two, _ = transition(t, l, two, domain.ListAt(105_000_000), "addr_test1seller")
	one, _ = transition(t, l, one, domain.Do(domain.BuyFromOrganizer), "addr_test1seller")
	one, _ = transition(t, l, one, domain.ListAt(101_000_000), "addr_test1seller")

	listed, err := l.Query(context.Background(), settlement.Filter{ListedOnly: true})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "TICKET002", listed[0].Datum.AssetName, "ordered by listing time")

	owned, err := l.Query(context.Background(), settlement.Filter{Owner: "addr_test1seller", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	history, err := l.History(context.Background(), two.Datum.Asset())
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Mint", history[0].Action)
	assert.Equal(t, "BuyFromOrganizer", history[1].Action)
	assert.Equal(t, history[1].Produced, history[2].Consumed)
	assert.Equal(t, domain.Lovelace(102_500_000), history[1].Payments.Total())

	require.Len(t, events, 6)
	assert.Equal(t, settlement.MintedEvent, events[0].Type)
	assert.Equal(t, "ticket.list_for_resale", events[5].Type)
}

func TestEventType(t *testing.T) {
	assert.Equal(t, "ticket.buy_from_organizer", settlement.EventType(domain.BuyFromOrganizer))
	assert.Equal(t, "ticket.use_ticket", settlement.EventType(domain.UseTicket))
}

func TestTxHashDeterministic(t *testing.T) {
	sub := settlement.Submission{
		Consumed: settlement.StateRef{TxHash: "ab", Index: 0},
		Redeemer: domain.Do(domain.CancelListing),
		Datum:    domain.TicketDatum{PolicyID: "p", AssetName: "TICKET001"},
		Signer:   "addr",
	}
	a, err := settlement.TxHash(sub)
	require.NoError(t, err)
	b, err := settlement.TxHash(sub)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	sub.Signer = "other"
	c, err := settlement.TxHash(sub)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
