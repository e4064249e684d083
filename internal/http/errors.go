package http

import (
	"encoding/json"
	"net/http"

	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
)

var statusByCode = map[string]int{
	"InvalidAction":       http.StatusBadRequest,
	"InvalidInput":        http.StatusBadRequest,
	"Unauthorized":        http.StatusForbidden,
	"NotFound":            http.StatusNotFound,
	"TicketAlreadyUsed":   http.StatusConflict,
	"NotListed":           http.StatusConflict,
	"AlreadyListed":       http.StatusConflict,
	"NotForPrimarySale":   http.StatusConflict,
	"SettlementConflict":  http.StatusConflict,
	"Conflict":            http.StatusConflict,
	"SoldOut":             http.StatusConflict,
	"PriceExceedsCeiling": http.StatusUnprocessableEntity,
	"SettlementFailure":   http.StatusBadGateway,
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status. Unclassified errors are logged and hidden from the caller.
func writeError(w http.ResponseWriter, log observability.Logger, err error) {
	code := domain.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		log.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: code, Error: "internal error"})
		return
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorBody{Code: code, Error: err.Error()})
}

func writeProblem(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Error: msg})
}
