package handlers

import (
	"encoding/json"
	"expvar"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/minicoin/minicoin/foundation/blockchain/state"
	"github.com/minicoin/minicoin/foundation/events"
)

// DebugMux registers the standard library debug endpoints plus the node's
// own inspection and event streaming endpoints. It bypasses the
// DefaultServerMux so a dependency can't inject a handler without us
// knowing it.
func DebugMux(build string, log *zap.SugaredLogger, st *state.State, evts *events.Events) http.Handler {
	mux := httptreemux.NewContextMux()

	mux.Handler(http.MethodGet, "/debug/pprof/", http.HandlerFunc(pprof.Index))
	mux.Handler(http.MethodGet, "/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
	mux.Handler(http.MethodGet, "/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	mux.Handler(http.MethodGet, "/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
	mux.Handler(http.MethodGet, "/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
	mux.Handler(http.MethodGet, "/debug/vars", expvar.Handler())

	dbg := debugHandlers{
		build: build,
		log:   log,
		state: st,
		evts:  evts,
	}

	mux.GET("/v1/liveness", dbg.liveness)
	mux.GET("/v1/node/status", dbg.status)
	mux.GET("/v1/genesis", dbg.genesis)
	mux.GET("/v1/accounts", dbg.accounts)
	mux.GET("/v1/blocks", dbg.blocks)
	mux.GET("/v1/mempool", dbg.mempool)
	mux.GET("/v1/events", dbg.events)

	return mux
}

// =============================================================================

type debugHandlers struct {
	build string
	log   *zap.SugaredLogger
	state *state.State
	evts  *events.Events
	ws    websocket.Upgrader
}

func (h debugHandlers) liveness(w http.ResponseWriter, r *http.Request) {
	respond(w, struct {
		Status string `json:"status"`
		Build  string `json:"build"`
	}{
		Status: "up",
		Build:  h.build,
	})
}

func (h debugHandlers) status(w http.ResponseWriter, r *http.Request) {
	latest := h.state.LatestBlock()

	respond(w, struct {
		LatestBlockHash   string   `json:"latest_block_hash"`
		LatestBlockNumber uint64   `json:"latest_block_number"`
		MempoolCount      int      `json:"mempool_count"`
		KnownPeers        []string `json:"known_peers"`
	}{
		LatestBlockHash:   latest.Hash(),
		LatestBlockNumber: latest.Header.Number,
		MempoolCount:      h.state.MempoolCount(),
		KnownPeers:        peerHosts(h.state),
	})
}

func (h debugHandlers) genesis(w http.ResponseWriter, r *http.Request) {
	respond(w, h.state.Genesis())
}

func (h debugHandlers) accounts(w http.ResponseWriter, r *http.Request) {
	respond(w, h.state.Accounts())
}

func (h debugHandlers) blocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.state.Blocks()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respond(w, blocks)
}

func (h debugHandlers) mempool(w http.ResponseWriter, r *http.Request) {
	respond(w, h.state.Mempool())
}

// events upgrades the connection to a websocket and streams the node's
// activity until the viewer goes away.
func (h debugHandlers) events(w http.ResponseWriter, r *http.Request) {
	h.ws.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.ws.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("events", "ERROR", err)
		return
	}
	defer c.Close()

	id := uuid.NewString()
	ch := h.evts.Acquire(id)
	defer h.evts.Release(id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

// =============================================================================

func respond(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func peerHosts(st *state.State) []string {
	peers := st.KnownPeers()
	hosts := make([]string, 0, len(peers))
	for _, p := range peers {
		hosts = append(hosts, p.Host)
	}
	return hosts
}
