package domain

// Protocol constants. Changing any of these is a new deployment, never a datum mutation.
const (
	BasisPoints   = 10_000
	PlatformFeeBP = 250  // 2.5%
	RoyaltyBP     = 500  // 5%
	MaxMarkupBP   = 1000 // 10%

	MinTicketPrice Lovelace = 1_000_000     // 1 ADA
	MaxTicketPrice Lovelace = 1_000_000_000 // 1000 ADA
)

// bp computes floor(amount*bp/10000) without overflowing for any non-negative int64 amount.
func bp(amount Lovelace, points int64) Lovelace {
	if amount <= 0 {
		return 0
	}
	a := int64(amount)
	return Lovelace((a/BasisPoints)*points + (a%BasisPoints)*points/BasisPoints)
}

func PlatformFee(amount Lovelace) Lovelace {
	return bp(amount, PlatformFeeBP)
}

func OrganizerRoyalty(amount Lovelace) Lovelace {
	return bp(amount, RoyaltyBP)
}

// SellerProceeds is what the seller keeps from a resale. Truncation residue from the fee legs
// stays here.
func SellerProceeds(resalePrice Lovelace) Lovelace {
	return resalePrice - PlatformFee(resalePrice) - OrganizerRoyalty(resalePrice)
}

func MaxResalePrice(originalPrice Lovelace) Lovelace {
	return originalPrice + bp(originalPrice, MaxMarkupBP)
}

func ValidateResalePrice(originalPrice, proposed Lovelace) bool {
	return proposed > 0 && proposed <= MaxResalePrice(originalPrice)
}

// ValidTicketPrice reports whether a face value is inside the mintable range.
func ValidTicketPrice(price Lovelace) bool {
	return price >= MinTicketPrice && price <= MaxTicketPrice
}

// Quote is the fee breakdown shown to a seller before listing.
type Quote struct {
	OriginalPrice  Lovelace `json:"original_price"`
	ResalePrice    Lovelace `json:"resale_price"`
	MaxResalePrice Lovelace `json:"max_resale_price"`
	PlatformFee    Lovelace `json:"platform_fee"`
	Royalty        Lovelace `json:"royalty"`
	SellerProceeds Lovelace `json:"seller_proceeds"`
	ProfitLoss     Lovelace `json:"profit_loss"`
	Valid          bool     `json:"valid"`
}

func QuoteResale(originalPrice, resalePrice Lovelace) Quote {
	proceeds := SellerProceeds(resalePrice)
	return Quote{
		OriginalPrice:  originalPrice,
		ResalePrice:    resalePrice,
		MaxResalePrice: MaxResalePrice(originalPrice),
		PlatformFee:    PlatformFee(resalePrice),
		Royalty:        OrganizerRoyalty(resalePrice),
		SellerProceeds: proceeds,
		ProfitLoss:     proceeds - originalPrice,
		Valid:          ValidateResalePrice(originalPrice, resalePrice),
	}
}
