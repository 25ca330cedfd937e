package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/minicoin/minicoin/app/services/node/handlers"
	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/database/storage/disk"
	"github.com/minicoin/minicoin/foundation/blockchain/database/storage/level"
	"github.com/minicoin/minicoin/foundation/blockchain/database/storage/memory"
	"github.com/minicoin/minicoin/foundation/blockchain/genesis"
	"github.com/minicoin/minicoin/foundation/blockchain/packet"
	"github.com/minicoin/minicoin/foundation/blockchain/peer"
	"github.com/minicoin/minicoin/foundation/blockchain/state"
	"github.com/minicoin/minicoin/foundation/blockchain/worker"
	"github.com/minicoin/minicoin/foundation/events"
	"github.com/minicoin/minicoin/foundation/logger"
)

// build is the git version of this program. It is set using build flags
// in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Node struct {
			Host           string   `conf:"default:0.0.0.0:9080"`
			KnownPeers     []string `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
			BeneficiaryKey string   `conf:"default:zblock/accounts/miner1.ecdsa"`
			GenesisPath    string   `conf:"default:zblock/genesis.json"`
			DBPath         string   `conf:"default:zblock/miner1/"`
			Backend        string   `conf:"default:disk"`
		}
		Packet struct {
			MaxSize        uint64        `conf:"default:16777216"`
			ReceiveTimeout time.Duration `conf:"default:10s"`
		}
		Web struct {
			DebugHost string `conf:"default:0.0.0.0:7080"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "minicoin node",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Blockchain Support

	// Load the protocol settings every node on the network must agree on.
	gen, err := genesis.Load(cfg.Node.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis settings: %w", err)
	}

	// Load the private key for the configured beneficiary so the account
	// can be credited with mining rewards.
	privateKey, err := crypto.LoadECDSA(cfg.Node.BeneficiaryKey)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}

	// A peer set is a collection of known nodes in the network so
	// transactions and blocks can be shared.
	peerSet := peer.NewPeerSet()
	for _, host := range cfg.Node.KnownPeers {
		peerSet.Add(peer.New(host))
	}

	// The blockchain packages accept a function of this signature to allow
	// the application to log. These raw messages are also sent to any
	// websocket client connected through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s)
		evts.Send(s)
	}

	// Select the storage backend for the chain.
	strg, err := openStorage(cfg.Node.Backend, cfg.Node.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open storage: %w", err)
	}

	limits := packet.Limits{
		MaxSize:        cfg.Packet.MaxSize,
		ReceiveTimeout: cfg.Packet.ReceiveTimeout,
	}

	// The state value represents the blockchain node and manages the
	// blockchain database and provides an API for application support.
	st, err := state.New(state.Config{
		PrivateKey: privateKey,
		Host:       cfg.Node.Host,
		Genesis:    gen,
		Storage:    strg,
		KnownPeers: peerSet,
		Limits:     limits,
		EvHandler:  ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The worker package implements the different workflows such as mining
	// and transaction peer sharing. The worker registers itself with the
	// state.
	worker.Run(st, ev)

	// A brand new node either catches up with the network or starts the
	// chain itself by mining the genesis block.
	if st.ChainLength() == 0 {
		log.Infow("startup", "status", "empty chain, checking peers")

		if err := st.AdoptLongestPeerChain(); err != nil {
			log.Infow("startup", "status", "no peer chain adopted", "reason", err)
		}

		if st.ChainLength() == 0 {
			log.Infow("startup", "status", "mining genesis block")
			if _, err := st.MineGenesisBlock(context.Background()); err != nil {
				return fmt.Errorf("unable to mine genesis block: %w", err)
			}
		}
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	debugMux := handlers.DebugMux(build, log, st, evts)

	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Start Node Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	h := handlers.Handlers{
		Log:    log,
		State:  st,
		Limits: limits,
	}

	listener, err := net.Listen("tcp", cfg.Node.Host)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", cfg.Node.Host, err)
	}

	go func() {
		log.Infow("startup", "status", "node listener started", "host", cfg.Node.Host)

		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				serverErrors <- err
				return
			}

			go h.Conn(conn)
		}
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Stop accepting new connections.
		log.Infow("shutdown", "status", "close node listener")
		listener.Close()
	}

	return nil
}

// openStorage constructs the configured storage backend.
func openStorage(backend string, dbPath string) (database.Storage, error) {
	switch strings.ToLower(backend) {
	case "disk":
		return disk.New(dbPath)
	case "level":
		return level.New(dbPath)
	case "memory":
		return memory.New()
	}

	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
