package api

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/helinwang/log15"

	"github.com/pocledger/pocledger/pkg/consensus"
)

// statusFor maps the error taxonomy of §7 to an HTTP status code.
// Request-scoped errors (Malformed*, NotLeader, No*) surface as 4xx;
// chain/block consistency errors the Admission API itself can
// trigger (e.g. replaying a stale propose) surface as 409;
// PeerUnreachable surfaces as 502; anything else is a 500.
func statusFor(err error) int {
	var cerr *consensus.Error
	if !errors.As(err, &cerr) {
		return http.StatusInternalServerError
	}

	switch cerr.Kind {
	case consensus.MalformedRequest, consensus.NoContributions, consensus.NoTransactions, consensus.BadEntropy:
		return http.StatusBadRequest
	case consensus.NotLeader:
		return http.StatusForbidden
	case consensus.PrevHashMismatch, consensus.HashMismatch, consensus.TxOrderMismatch, consensus.IndexGap:
		return http.StatusConflict
	case consensus.PeerUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func writeMalformed(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
