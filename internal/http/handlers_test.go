package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redismock/v9"
	redisadapter "github.com/robertarktes/nft-ticket-protocol/internal/adapters/redis"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	apihttp "github.com/robertarktes/nft-ticket-protocol/internal/http"
	"github.com/robertarktes/nft-ticket-protocol/internal/idempotency"
	"github.com/robertarktes/nft-ticket-protocol/internal/lifecycle"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/rateLimit"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin     = "addr_test1admin"
	organizer = "addr_test1organizer1"
	platform  = "addr_test1platform"
	buyerB    = "addr_test1buyerB"
	buyerC    = "addr_test1buyerC"
)

type memoryStore struct {
	mu     sync.Mutex
	claims map[string]bool
	resp   map[string]redisadapter.StoredResponse
}

func newMemoryStore() *memoryStore {
	return &memoryStore{claims: map[string]bool{}, resp: map[string]redisadapter.StoredResponse{}}
}

func (s *memoryStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims[key] {
		return false, nil
	}
	s.claims[key] = true
	return true, nil
}

func (s *memoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, key)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key string) (*redisadapter.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resp[key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *memoryStore) Save(ctx context.Context, key string, resp redisadapter.StoredResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resp[key] = resp
	delete(s.claims, key)
	return nil
}

func newRouter(t *testing.T, rl *rateLimit.RateLimiter) *chi.Mux {
	t.Helper()
	roles := domain.NewAllowList(admin, []string{organizer})
	logger := observability.NewLogger()
	svc := lifecycle.NewService(lifecycle.Deps{
		Ledger:       settlement.NewMemory(),
		Catalog:      lifecycle.NewMemoryCatalog(),
		Capabilities: roles,
		Roles:        roles,
		Platform:     platform,
		Logger:       logger,
	})
	h := apihttp.NewHandlers(svc, logger, map[string]apihttp.Checker{
		"ledger": func(ctx context.Context) error { return nil },
	})
	idemp := idempotency.NewIdempotency(newMemoryStore(), time.Hour)
	return apihttp.SetupRouter(h, logger, rl, idemp)
}

func do(t *testing.T, router http.Handler, method, path, signer, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if signer != "" {
		req.Header.Set(apihttp.SignerHeader, signer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type ticket struct {
	Asset string             `json:"asset"`
	State string             `json:"state"`
	Datum domain.TicketDatum `json:"datum"`
}

func mintTicket(t *testing.T, router http.Handler) ticket {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/v1/events", organizer,
		`{"name":"Cardano Summit","venue":"Lisbon","category":"Conference","date":"2025-11-15T09:00:00Z","ticket_price":100000000,"total_tickets":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[domain.Event](t, rec)

	rec = do(t, router, http.MethodPost, "/v1/events/"+event.ID.String()+"/mint", organizer, `{"count":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	minted := decode[struct {
		Tickets []ticket `json:"tickets"`
	}](t, rec)
	require.Len(t, minted.Tickets, 1)
	return minted.Tickets[0]
}

func actionPath(tk ticket) string {
	return "/v1/tickets/" + tk.Datum.PolicyID + "/" + tk.Datum.AssetName + "/actions"
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	router := newRouter(t, nil)
	tk := mintTicket(t, router)
	assert.Equal(t, "OWNED", tk.State)
	assert.Equal(t, "TICKET001", tk.Datum.AssetName)

	rec := do(t, router, http.MethodPost, actionPath(tk), buyerB, `{"action":"BuyFromOrganizer"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[struct {
		TxHash   string             `json:"tx_hash"`
		Datum    domain.TicketDatum `json:"datum"`
		Payments domain.PaymentPlan `json:"payments"`
		Total    domain.Lovelace    `json:"total"`
	}](t, rec)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, buyerB, res.Datum.CurrentOwner)
	assert.Equal(t, domain.Lovelace(102_500_000), res.Total)

	rec = do(t, router, http.MethodPost, actionPath(tk), buyerB, `{"action":"ListForResale","new_price":120000000}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "PriceExceedsCeiling", decode[errorResponse](t, rec).Code)

	rec = do(t, router, http.MethodPost, actionPath(tk), buyerC, `{"action":"ListForResale","new_price":110000000}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, actionPath(tk), buyerB, `{"action":"ListForResale","new_price":110000000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/v1/marketplace", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ticket](t, rec), 1)

	rec = do(t, router, http.MethodPost, actionPath(tk)+"?dry_run=true", buyerC, `{"action":"BuyFromResale"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Lovelace(110_000_000), decode[struct {
		Total domain.Lovelace `json:"total"`
	}](t, rec).Total)

	rec = do(t, router, http.MethodPost, actionPath(tk), buyerC, `{"action":"BuyFromResale"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, actionPath(tk), buyerC, `{"action":"UseTicket"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, actionPath(tk), organizer, `{"action":"UseTicket"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, actionPath(tk), organizer, `{"action":"UseTicket"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TicketAlreadyUsed", decode[errorResponse](t, rec).Code)

	rec = do(t, router, http.MethodGet, "/v1/tickets?owner="+buyerC, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	owned := decode[[]ticket](t, rec)
	require.Len(t, owned, 1)
	assert.Equal(t, "USED", owned[0].State)

	rec = do(t, router, http.MethodGet, "/v1/tickets/"+tk.Datum.PolicyID+"/"+tk.Datum.AssetName+"/history", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]settlement.TxHandle](t, rec), 5)
}

func TestSubmitActionRejectsUnknownAction(t *testing.T) {
	router := newRouter(t, nil)
	tk := mintTicket(t, router)

	rec := do(t, router, http.MethodPost, actionPath(tk), buyerB, `{"action":"Refund"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidAction", decode[errorResponse](t, rec).Code)

	rec = do(t, router, http.MethodPost, actionPath(tk), buyerB, `{"action":"UseTicket","new_price":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/tickets/nope/TICKET001/actions", buyerB, `{"action":"UseTicket"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEventRequiresOrganizer(t *testing.T) {
	router := newRouter(t, nil)
	rec := do(t, router, http.MethodPost, "/v1/events", buyerB,
		`{"name":"x","date":"2025-11-15T09:00:00Z","ticket_price":5000000,"total_tickets":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/events/not-a-uuid", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotentPurchaseReplays(t *testing.T) {
	router := newRouter(t, nil)
	tk := mintTicket(t, router)
	key := "purchase-0000000000000001"

	first := do(t, router, http.MethodPost, actionPath(tk), buyerB, `{"action":"BuyFromOrganizer"}`, apihttp.IdempotencyHeader, key)
	require.Equal(t, http.StatusOK, first.Code)

	second := do(t, router, http.MethodPost, actionPath(tk), buyerB, `{"action":"BuyFromOrganizer"}`, apihttp.IdempotencyHeader, key)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	third := do(t, router, http.MethodPost, actionPath(tk), buyerB, `{"action":"BuyFromOrganizer"}`, apihttp.IdempotencyHeader, "short")
	assert.Equal(t, http.StatusBadRequest, third.Code)
}

func TestQuote(t *testing.T) {
	router := newRouter(t, nil)

	rec := do(t, router, http.MethodGet, "/v1/quote?original=100000000&price=110000000", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[struct {
		domain.Quote
		ADA map[string]string `json:"ada"`
	}](t, rec)
	assert.True(t, q.Valid)
	assert.Equal(t, domain.Lovelace(2_750_000), q.PlatformFee)
	assert.Equal(t, domain.Lovelace(5_500_000), q.Royalty)
	assert.Equal(t, domain.Lovelace(101_750_000), q.SellerProceeds)
	assert.Equal(t, "101.75", q.ADA["seller_proceeds"])

	rec = do(t, router, http.MethodGet, "/v1/quote?original=abc&price=1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRoles(t *testing.T) {
	router := newRouter(t, nil)
	for addr, role := range map[string]string{admin: "admin", organizer: "organizer", buyerB: "user"} {
		rec := do(t, router, http.MethodGet, "/v1/auth/"+addr, "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, role, decode[map[string]string](t, rec)["role"])
	}
}

func TestHealth(t *testing.T) {
	router := newRouter(t, nil)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/readyz", "", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/metrics", "", "").Code)
}

func TestRateLimited(t *testing.T) {
	db, mock := redismock.NewClientMock()
	router := newRouter(t, rateLimit.NewRateLimiter(db))

	mock.ExpectIncr("rl:ip:192.0.2.1").SetVal(301)
	mock.ExpectExpire("rl:ip:192.0.2.1", time.Minute).SetVal(true)

	rec := do(t, router, http.MethodGet, "/v1/marketplace", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
