// Package api is the Admission API of §4.6: the external edge by
// which clients submit transactions and operators trigger each round
// phase. Routing is thin by design (§1's explicit non-goal); handlers
// translate HTTP/JSON directly into Engine calls and the error
// taxonomy of §7 directly into HTTP status codes.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/helinwang/log15"

	"github.com/pocledger/pocledger/pkg/contract"
	"github.com/pocledger/pocledger/pkg/engine"
)

// Server is the HTTP front door for one replica.
type Server struct {
	router *mux.Router
	eng    *engine.Engine
	ledger *contract.Ledger
}

// NewServer builds the router described by §6, plus the supplemented
// endpoints of SPEC_FULL.md §6 (reputation, status, the isolated
// token-transfer demo).
func NewServer(eng *engine.Engine, ledger *contract.Ledger) *Server {
	s := &Server{router: mux.NewRouter(), eng: eng, ledger: ledger}

	r := s.router
	r.HandleFunc("/add_transaction", s.handleAddTransaction).Methods(http.MethodPost)
	r.HandleFunc("/transaction_pool", s.handleTransactionPool).Methods(http.MethodGet)
	r.HandleFunc("/peers", s.handlePeers).Methods(http.MethodGet)
	r.HandleFunc("/blockchain", s.handleBlockchain).Methods(http.MethodGet)
	r.HandleFunc("/get_leader", s.handleGetLeader).Methods(http.MethodGet)
	r.HandleFunc("/set_leader", s.handleSetLeader).Methods(http.MethodPost)
	r.HandleFunc("/elect_leader", s.handleElectLeader).Methods(http.MethodPost)
	r.HandleFunc("/send_entropy", s.handleSendEntropy).Methods(http.MethodPost)
	r.HandleFunc("/receive_entropy", s.handleReceiveEntropy).Methods(http.MethodPost)
	r.HandleFunc("/aggregate_entropy", s.handleAggregateEntropy).Methods(http.MethodPost)
	r.HandleFunc("/receive_aggregate_entropy", s.handleReceiveAggregateEntropy).Methods(http.MethodPost)
	r.HandleFunc("/propose_block", s.handleProposeBlock).Methods(http.MethodPost)
	r.HandleFunc("/receive_proposed_block", s.handleReceiveProposedBlock).Methods(http.MethodPost)
	r.HandleFunc("/validate_block", s.handleValidateBlock).Methods(http.MethodPost)
	r.HandleFunc("/blockchain_update", s.handleBlockchainUpdate).Methods(http.MethodPost)

	r.HandleFunc("/reputation", s.handleReputation).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/transfer", s.handleTransfer).Methods(http.MethodPost)

	r.Use(loggingMiddleware)
	return s
}

// Router exposes the underlying mux.Router, e.g. for tests that want
// to drive it with httptest.NewServer.
func (s *Server) Router() *mux.Router { return s.router }

// ListenAndServe starts the HTTP server on addr, following the
// teacher's convention of building an explicit *http.Server rather
// than calling http.ListenAndServe directly, so timeouts are set.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Info("admission API listening", "addr", addr)
	return srv.ListenAndServe()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug("http request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
