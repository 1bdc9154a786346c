// Command replica runs one Proof of Chaos replica: it boots the
// Chain Store from the agreed genesis block, wires the Round
// Coordinator and Peer Fabric into an Engine, and serves the
// Admission API over HTTP. Configuration is environment-driven per
// SPEC_FULL.md's ambient stack: NODE_ID, PORT, LOG_FILE,
// PEER_MAP_FILE, BOOTSTRAP_LEADER, LEADER_CONTRIBUTES.
package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	log "github.com/helinwang/log15"

	"github.com/pocledger/pocledger/pkg/api"
	"github.com/pocledger/pocledger/pkg/consensus"
	"github.com/pocledger/pocledger/pkg/contract"
	"github.com/pocledger/pocledger/pkg/engine"
)

func mustEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadPeerMap(path string) (map[consensus.NodeID]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var raw map[string]string
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}

	peers := make(map[consensus.NodeID]string, len(raw))
	for id, addr := range raw {
		peers[consensus.NodeID(id)] = addr
	}
	return peers, nil
}

func setupLogging(nodeID, logFile string) {
	handlers := []log.Handler{log.StdoutHandler}
	if logFile != "" {
		if h, err := log.FileHandler(logFile, log.LogfmtFormat()); err == nil {
			handlers = append(handlers, h)
		} else {
			log.Error("failed to open log file, logging to stdout only", "file", logFile, "err", err)
		}
	}
	log.Root().SetHandler(log.MultiHandler(handlers...))
}

func main() {
	nodeID := mustEnv("NODE_ID", "node1")
	port := mustEnv("PORT", "8000")
	peerMapFile := mustEnv("PEER_MAP_FILE", "peers.json")
	bootstrapLeader := mustEnv("BOOTSTRAP_LEADER", "node1")
	leaderContributes, _ := strconv.ParseBool(os.Getenv("LEADER_CONTRIBUTES"))

	setupLogging(nodeID, os.Getenv("LOG_FILE"))
	log.Info("starting replica", "node_id", nodeID, "port", port)

	peers, err := loadPeerMap(peerMapFile)
	if err != nil {
		log.Crit("failed to load peer map", "file", peerMapFile, "err", err)
		os.Exit(1)
	}

	genesis := consensus.Genesis()

	cfg := consensus.DefaultConfig(consensus.NodeID(nodeID), len(peers)+1)
	cfg.LeaderContributes = leaderContributes

	eng, err := engine.New(cfg, genesis, peers, consensus.NodeID(bootstrapLeader), unixNow)
	if err != nil {
		log.Crit("failed to start engine", "err", err)
		os.Exit(1)
	}

	// The bootstrap leader pushes its identity to every configured peer
	// with unbounded retry, so a peer that rejoins with a stale or
	// missing BOOTSTRAP_LEADER still converges via the network instead
	// of relying solely on matching out-of-band config (§4.5).
	if nodeID == bootstrapLeader {
		announceBootstrapLeader(eng, peers, consensus.NodeID(bootstrapLeader))
	}

	ledger := contract.NewLedger("PoC Token", "POC", 1_000_000, nodeID)

	srv := api.NewServer(eng, ledger)
	if err := srv.ListenAndServe(":" + port); err != nil {
		log.Crit("server stopped", "err", err)
		os.Exit(1)
	}
}

// announceBootstrapLeader fans the bootstrap leader announcement out to
// every peer in the background. Each send retries forever, so this
// must never block startup; a peer that never acknowledges simply
// keeps retrying for the lifetime of the process.
func announceBootstrapLeader(eng *engine.Engine, peers map[consensus.NodeID]string, leader consensus.NodeID) {
	for id := range peers {
		go func(id consensus.NodeID) {
			if err := eng.AnnounceBootstrapLeader(context.Background(), id, leader); err != nil {
				log.Error("bootstrap leader announcement abandoned", "to", id, "err", err)
			}
		}(id)
	}
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
