package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/lifecycle"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/plutus"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
	"github.com/shopspring/decimal"
)

// Checker reports whether a dependency is ready to serve.
type Checker func(ctx context.Context) error

type Handlers struct {
	svc    *lifecycle.Service
	logger observability.Logger
	checks map[string]Checker
}

func NewHandlers(svc *lifecycle.Service, logger observability.Logger, checks map[string]Checker) *Handlers {
	return &Handlers{svc: svc, logger: logger, checks: checks}
}

func (h *Handlers) log(r *http.Request) observability.Logger {
	return observability.FromContext(r.Context(), h.logger)
}

func assetParam(r *http.Request) domain.AssetID {
	return domain.AssetID{PolicyID: chi.URLParam(r, "policy"), AssetName: chi.URLParam(r, "asset")}
}

func eventParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidInput", "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in domain.EventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	event, err := h.svc.CreateEvent(r.Context(), SignerFrom(r.Context()), in)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Events(r.Context())
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventParam(w, r)
	if !ok {
		return
	}
	event, err := h.svc.Event(r.Context(), id)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handlers) MintTickets(w http.ResponseWriter, r *http.Request) {
	id, ok := eventParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	outs, err := h.svc.Mint(r.Context(), id, req.Count, SignerFrom(r.Context()))
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tickets": ticketViews(outs)})
}

type ticketView struct {
	Asset     string             `json:"asset"`
	State     domain.State       `json:"state"`
	Ref       string             `json:"ref"`
	EventTime time.Time          `json:"event_time"`
	Datum     domain.TicketDatum `json:"datum"`
	DatumCBOR string             `json:"datum_cbor,omitempty"`
}

func newTicketView(out settlement.Output) ticketView {
	raw, _ := plutus.DatumHex(out.Datum)
	return ticketView{
		Asset:     out.Datum.Asset().String(),
		State:     out.Datum.State(),
		Ref:       out.Ref.String(),
		EventTime: out.Datum.EventTime(),
		Datum:     out.Datum,
		DatumCBOR: raw,
	}
}

func ticketViews(outs []settlement.Output) []ticketView {
	tickets := make([]ticketView, 0, len(outs))
	for _, out := range outs {
		tickets = append(tickets, newTicketView(out))
	}
	return tickets
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if n < 0 {
		return 0
	}
	return n
}

func (h *Handlers) ListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outs, err := h.svc.Tickets(r.Context(), settlement.Filter{
		Owner:    q.Get("owner"),
		PolicyID: q.Get("policy"),
		Limit:    limitParam(r),
	})
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, ticketViews(outs))
}

func (h *Handlers) Marketplace(w http.ResponseWriter, r *http.Request) {
	outs, err := h.svc.Marketplace(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, ticketViews(outs))
}

func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Ticket(r.Context(), assetParam(r))
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, newTicketView(out))
}

func (h *Handlers) TicketHistory(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.History(r.Context(), assetParam(r))
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type actionRequest struct {
	Action   string          `json:"action"`
	NewPrice domain.Lovelace `json:"new_price"`
}

type actionResponse struct {
	TxHash   string             `json:"tx_hash,omitempty"`
	State    domain.State       `json:"state"`
	Datum    domain.TicketDatum `json:"datum"`
	Payments domain.PaymentPlan `json:"payments"`
	Total    domain.Lovelace    `json:"total"`
	DryRun   bool               `json:"dry_run,omitempty"`
}

// SubmitAction applies one lifecycle action. With ?dry_run=true the transition is validated
// and priced but not settled.
func (h *Handlers) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidAction", err.Error())
		return
	}
	kind, err := domain.ParseActionKind(req.Action)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	action := domain.Action{Kind: kind, NewPrice: req.NewPrice}
	signer := SignerFrom(r.Context())

	if dry, _ := strconv.ParseBool(r.URL.Query().Get("dry_run")); dry {
		tr, err := h.svc.Preview(r.Context(), assetParam(r), action, signer)
		if err != nil {
			writeError(w, h.log(r), err)
			return
		}
		writeJSON(w, http.StatusOK, actionResponse{
			State:    tr.Next.State(),
			Datum:    tr.Next,
			Payments: nonNil(tr.Plan),
			Total:    tr.Plan.Total(),
			DryRun:   true,
		})
		return
	}

	res, err := h.svc.Execute(r.Context(), assetParam(r), action, signer)
	if err != nil {
		writeError(w, h.log(r), err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{
		TxHash:   res.Tx.Hash,
		State:    res.Datum.State(),
		Datum:    res.Datum,
		Payments: nonNil(res.Tx.Payments),
		Total:    res.Tx.Payments.Total(),
	})
}

func nonNil(p domain.PaymentPlan) domain.PaymentPlan {
	if p == nil {
		return domain.PaymentPlan{}
	}
	return p
}

type quoteResponse struct {
	domain.Quote
	ADA map[string]decimal.Decimal `json:"ada"`
}

func (h *Handlers) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	original, err1 := strconv.ParseInt(q.Get("original"), 10, 64)
	price, err2 := strconv.ParseInt(q.Get("price"), 10, 64)
	if err1 != nil || err2 != nil || original <= 0 || price <= 0 {
		writeProblem(w, http.StatusBadRequest, "InvalidInput", "original and price must be positive lovelace amounts")
		return
	}
	quote := domain.QuoteResale(domain.Lovelace(original), domain.Lovelace(price))
	writeJSON(w, http.StatusOK, quoteResponse{
		Quote: quote,
		ADA: map[string]decimal.Decimal{
			"original_price":   quote.OriginalPrice.ADA(),
			"resale_price":     quote.ResalePrice.ADA(),
			"max_resale_price": quote.MaxResalePrice.ADA(),
			"platform_fee":     quote.PlatformFee.ADA(),
			"royalty":          quote.Royalty.ADA(),
			"seller_proceeds":  quote.SellerProceeds.ADA(),
			"profit_loss":      quote.ProfitLoss.ADA(),
		},
	})
}

func (h *Handlers) Auth(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	writeJSON(w, http.StatusOK, map[string]any{
		"address": address,
		"role":    h.svc.Role(address),
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.log(r).WithField("failed", failed).Warn("not ready")
		writeJSON(w, http.StatusServiceUnavailable, failed)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
