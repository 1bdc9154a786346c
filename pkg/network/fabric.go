package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	log "github.com/helinwang/log15"

	"github.com/pocledger/pocledger/pkg/consensus"
)

// pathFor maps a message Kind to the Admission API route it is posted
// to on the receiving replica, per the endpoint table of §6.
func pathFor(k Kind) string {
	switch k {
	case KindNewTransaction:
		return "/add_transaction"
	case KindReceiveEntropy:
		return "/receive_entropy"
	case KindBroadcastAggEnt:
		return "/receive_aggregate_entropy"
	case KindProposeBlock:
		return "/receive_proposed_block"
	case KindBlockValidation:
		return "/validate_block"
	case KindBlockchainUpdate:
		return "/blockchain_update"
	case KindSetLeader:
		return "/set_leader"
	default:
		return ""
	}
}

// Fabric is the Peer Fabric of §4.5: a static, address-book style view
// of the cluster's peers, reachable over HTTP/JSON. It holds no
// consensus state of its own; pkg/engine supplies message bodies and
// interprets responses.
type Fabric struct {
	cfg    consensus.Config
	client *http.Client

	mu    sync.RWMutex
	peers map[consensus.NodeID]string // node_id -> base URL, e.g. "http://10.0.0.2:8000"
}

// NewFabric builds a Fabric over a static peer map, grounded on the
// address-book style of the teacher's group membership rather than
// its TCP dial/accept loop, since the wire transport here is stateless
// HTTP.
func NewFabric(cfg consensus.Config, peers map[consensus.NodeID]string) *Fabric {
	addrs := make(map[consensus.NodeID]string, len(peers))
	for id, addr := range peers {
		addrs[id] = addr
	}
	return &Fabric{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.SendTimeout},
		peers:  addrs,
	}
}

// Peers returns the known peer node_ids, excluding self.
func (f *Fabric) Peers() []consensus.NodeID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]consensus.NodeID, 0, len(f.peers))
	for id := range f.peers {
		if id == f.cfg.Self {
			continue
		}
		out = append(out, id)
	}
	return out
}

// PeerAddrs returns the base URLs of every known peer, excluding
// self, for GET /peers.
func (f *Fabric) PeerAddrs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.peers))
	for id, addr := range f.peers {
		if id == f.cfg.Self {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// Unicast sends payload to a single peer, making at most
// cfg.UnicastRetries attempts in all with cfg.UnicastBackoff between
// them, per §4.5. The lock guarding Chain/Round must never be held across
// this call: it blocks on network I/O.
func (f *Fabric) Unicast(ctx context.Context, to consensus.NodeID, kind Kind, payload interface{}) error {
	addr, ok := f.addr(to)
	if !ok {
		return consensusPeerUnreachable(to)
	}

	return retry(ctx, f.cfg.UnicastRetries, f.cfg.UnicastBackoff, func() error {
		return f.post(ctx, addr, kind, payload)
	})
}

// Broadcast sends payload to every known peer except self, on
// best-effort delivery: a single peer's failure does not stop delivery
// to the others, matching the fire-and-forget broadcast semantics of
// §4.5.
func (f *Fabric) Broadcast(ctx context.Context, kind Kind, payload interface{}) {
	for _, id := range f.Peers() {
		go func(id consensus.NodeID) {
			if err := f.Unicast(ctx, id, kind, payload); err != nil {
				log.Info("broadcast delivery failed", "to", id, "kind", kind, "err", err)
			}
		}(id)
	}
}

// AnnounceLeaderUntilAcked retries the bootstrap leader announcement
// to a single peer forever, at cfg.BootstrapBackoff intervals, until
// it succeeds or ctx is cancelled, per §4.5's bootstrap retry policy.
func (f *Fabric) AnnounceLeaderUntilAcked(ctx context.Context, to consensus.NodeID, leader consensus.NodeID) error {
	addr, ok := f.addr(to)
	if !ok {
		return consensusPeerUnreachable(to)
	}

	return retry(ctx, 0, f.cfg.BootstrapBackoff, func() error {
		return f.post(ctx, addr, KindSetLeader, LeaderPayload{LeaderID: leader})
	})
}

func (f *Fabric) addr(id consensus.NodeID) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	addr, ok := f.peers[id]
	return addr, ok
}

func (f *Fabric) post(ctx context.Context, addr string, kind Kind, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}

	url := addr + pathFor(kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s responded %s", url, resp.Status)
	}
	return nil
}

func consensusPeerUnreachable(id consensus.NodeID) error {
	return &consensus.Error{Kind: consensus.PeerUnreachable, Msg: fmt.Sprintf("no known address for %s", id)}
}
