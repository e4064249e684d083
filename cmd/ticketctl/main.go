// Command ticketctl prints resale quotes and price ceilings without touching the ledger.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"
)

const usage = `usage: ticketctl <command> [flags]

commands:
  quote      fee breakdown for a resale price
  max-price  resale ceiling for an original price

amounts are lovelace unless --ada is set`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%s", usage)
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	original := fs.String("original", "", "original ticket price")
	price := fs.String("price", "", "proposed resale price")
	ada := fs.Bool("ada", false, "amounts are given in ADA")
	asJSON := fs.BoolP("json", "j", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	orig, err := parseAmount(*original, *ada)
	if err != nil {
		return fmt.Errorf("--original: %w", err)
	}

	switch cmd {
	case "max-price":
		ceiling := domain.MaxResalePrice(orig)
		if *asJSON {
			return json.NewEncoder(out).Encode(map[string]domain.Lovelace{"original_price": orig, "max_resale_price": ceiling})
		}
		fmt.Fprintf(out, "original  %s\nmaximum   %s (%d lovelace)\n", orig, ceiling, ceiling)
		return nil
	case "quote":
		p, err := parseAmount(*price, *ada)
		if err != nil {
			return fmt.Errorf("--price: %w", err)
		}
		q := domain.QuoteResale(orig, p)
		if *asJSON {
			return json.NewEncoder(out).Encode(q)
		}
		printQuote(out, q)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func parseAmount(s string, ada bool) (domain.Lovelace, error) {
	if s == "" {
		return 0, fmt.Errorf("required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if ada {
		d = d.Mul(decimal.NewFromInt(int64(domain.LovelacePerADA)))
	}
	if !d.IsInteger() || !d.IsPositive() {
		return 0, fmt.Errorf("%s is not a positive whole lovelace amount", s)
	}
	return domain.Lovelace(d.IntPart()), nil
}

func printQuote(out io.Writer, q domain.Quote) {
	status := "ok"
	if !q.Valid {
		status = "exceeds maximum"
	}
	fmt.Fprintf(out, "original        %s\n", q.OriginalPrice)
	fmt.Fprintf(out, "resale          %s (%s)\n", q.ResalePrice, status)
	fmt.Fprintf(out, "maximum         %s\n", q.MaxResalePrice)
	fmt.Fprintf(out, "platform fee    %s\n", q.PlatformFee)
	fmt.Fprintf(out, "royalty         %s\n", q.Royalty)
	fmt.Fprintf(out, "seller receives %s\n", q.SellerProceeds)
	fmt.Fprintf(out, "profit/loss     %s\n", q.ProfitLoss)
}
