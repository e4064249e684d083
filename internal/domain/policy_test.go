package domain_test

import (
	"testing"

	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFeeLegsNeverExceedAmount(t *testing.T) {
	amounts := []domain.Lovelace{0, 1, 39, 40, 9_999, 10_000, 10_001, 1_234_567, 110_000_001, 1<<62 + 12345}
	for _, a := range amounts {
		fee, royalty := domain.PlatformFee(a), domain.OrganizerRoyalty(a)
		assert.LessOrEqual(t, fee+royalty, a, "amount %d", a)
		assert.Equal(t, a, fee+royalty+domain.SellerProceeds(a), "amount %d", a)
	}
}

func TestFeesTruncate(t *testing.T) {
	assert.Equal(t, domain.Lovelace(0), domain.PlatformFee(39))
	assert.Equal(t, domain.Lovelace(1), domain.PlatformFee(40))
	assert.Equal(t, domain.Lovelace(0), domain.OrganizerRoyalty(19))
	assert.Equal(t, domain.Lovelace(1), domain.OrganizerRoyalty(20))
	assert.Equal(t, domain.Lovelace(0), domain.PlatformFee(-100))
}

func TestFeesDoNotOverflow(t *testing.T) {
	big := domain.Lovelace(9_000_000_000_000_000_000)
	assert.Equal(t, domain.Lovelace(225_000_000_000_000_000), domain.PlatformFee(big))
	assert.Equal(t, domain.Lovelace(8_800_000_000_000_000_000), domain.MaxResalePrice(8_000_000_000_000_000_000))
}

func TestMaxResalePrice(t *testing.T) {
	for _, original := range []domain.Lovelace{1, 9, 10, 11, 1_000_000, 100_000_000, 123_456_789} {
		max := domain.MaxResalePrice(original)
		assert.Equal(t, original+original*1000/10000, max)
		assert.True(t, domain.ValidateResalePrice(original, max))
		assert.False(t, domain.ValidateResalePrice(original, max+1))
	}
}

func TestValidateResalePriceRejectsNonPositive(t *testing.T) {
	assert.False(t, domain.ValidateResalePrice(100_000_000, 0))
	assert.False(t, domain.ValidateResalePrice(100_000_000, -1))
	assert.True(t, domain.ValidateResalePrice(100_000_000, 1))
}

func TestResaleSplitScenario(t *testing.T) {
	price := domain.Lovelace(110_000_000)
	assert.Equal(t, domain.Lovelace(2_750_000), domain.PlatformFee(price))
	assert.Equal(t, domain.Lovelace(5_500_000), domain.OrganizerRoyalty(price))
	assert.Equal(t, domain.Lovelace(101_750_000), domain.SellerProceeds(price))
}

func TestQuoteResale(t *testing.T) {
	q := domain.QuoteResale(100_000_000, 110_000_000)
	assert.True(t, q.Valid)
	assert.Equal(t, domain.Lovelace(110_000_000), q.MaxResalePrice)
	assert.Equal(t, domain.Lovelace(1_750_000), q.ProfitLoss)

	q = domain.QuoteResale(100_000_000, 110_000_001)
	assert.False(t, q.Valid)
}

func TestLovelaceString(t *testing.T) {
	assert.Equal(t, "₳110.00", domain.Lovelace(110_000_000).String())
	assert.Equal(t, "₳2.75", domain.Lovelace(2_750_000).String())
	assert.Equal(t, "0.000001", domain.Lovelace(1).ADA().String())
}

func TestValidTicketPrice(t *testing.T) {
	assert.False(t, domain.ValidTicketPrice(999_999))
	assert.True(t, domain.ValidTicketPrice(domain.MinTicketPrice))
	assert.True(t, domain.ValidTicketPrice(domain.MaxTicketPrice))
	assert.False(t, domain.ValidTicketPrice(domain.MaxTicketPrice+1))
}
