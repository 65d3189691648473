// Package miner orchestrates one or more BTC08 chains: structured
// logging setup, the scan-loop goroutines standing in for the outer
// miner framework's device-polling thread, and a read-only JSON-RPC
// status surface. This is the "collaborator" side of the boundary
// SPEC_FULL §1 excludes from the driver core proper; it exists only so
// cmd/btc08d has somewhere to register chains and see their state.
package miner

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	rpcjson "github.com/gorilla/rpc/json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/btc08io/btc08d/chain"
	"github.com/btc08io/btc08d/statistics"
)

var atom = zap.NewAtomicLevel()

func selectZapLevel(loglevel string) zapcore.Level {
	switch loglevel {
	case "debug":
		return zap.DebugLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// InitLogger builds the process-wide JSON logger at the requested
// level, matching the teacher's zap.NewAtomicLevel/zapcore.NewJSONEncoder
// wiring exactly.
func InitLogger(loglevel string) *zap.SugaredLogger {
	atom.SetLevel(selectZapLevel(loglevel))
	encoderCfg := zap.NewProductionEncoderConfig()
	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		atom,
	))
	return logger.Sugar()
}

// SetLevel live-adjusts the logger level (wired to config's onChange
// callback for log-level reloads without restarting the process).
func SetLevel(loglevel string) {
	atom.SetLevel(selectZapLevel(loglevel))
}

// Miner owns the registered chains and their function-pointer tables,
// and drives each chain's ScanWork loop.
type Miner struct {
	StatusListen string
	log          *zap.SugaredLogger

	entries []entry
	stop    chan struct{}
}

type entry struct {
	ops  chain.Ops
	rate *statistics.ChainRate
}

// New builds a Miner bound to the given logger and status-listen
// address.
func New(log *zap.SugaredLogger, statusListen string) *Miner {
	return &Miner{log: log, StatusListen: statusListen, stop: make(chan struct{})}
}

// Register adds a chain's Ops table and runs its Detect entrypoint.
func (m *Miner) Register(ops chain.Ops) error {
	if err := ops.Detect(); err != nil {
		if m.log != nil {
			m.log.Errorw("chain detect failed", "error", err)
		}
		return err
	}
	chainID := ops.Stats().ChainID
	m.entries = append(m.entries, entry{ops: ops, rate: statistics.NewChainRate(chainID)})
	return nil
}

// Start launches one scan-loop goroutine per registered chain — the
// trivial stand-in for the outer framework's per-device worker thread.
func (m *Miner) Start() {
	for _, e := range m.entries {
		go m.scanLoop(e)
	}
}

func (m *Miner) scanLoop(e entry) {
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		hashes, err := e.ops.ScanWork()
		e.rate.Tick(float64(hashes))
		if err != nil {
			if m.log != nil {
				m.log.Warnw("scanwork error", "error", err)
			}
			time.Sleep(time.Second)
		}
	}
}

// Stop signals every scan loop to exit.
func (m *Miner) Stop() {
	close(m.stop)
}

// Flush calls Flush on every registered chain (e.g. on a new block).
func (m *Miner) Flush() {
	for _, e := range m.entries {
		if err := e.ops.Flush(); err != nil && m.log != nil {
			m.log.Warnw("flush error", "error", err)
		}
	}
}

// chainStatus is one chain's Stats plus its rolling [30s, 300s, 900s]
// hashrate windows, the way types.DriverStates.Hashrate reports a
// 3-bucket summary alongside the rest of a device's stats.
type chainStatus struct {
	chain.Stats
	HashRateHS [3]float64 `json:"hashrate_hs"`
}

// statusReply mirrors the shape of types.DriverStates/ScriptaStatus: a
// JSON-friendly snapshot of every chain's Stats.
type statusReply struct {
	Chains []chainStatus `json:"chains"`
	Time   int64         `json:"time"`
}

func (m *Miner) snapshot() statusReply {
	s := statusReply{Time: time.Now().Unix()}
	for _, e := range m.entries {
		cs := chainStatus{Stats: e.ops.Stats()}
		if e.rate != nil {
			cs.HashRateHS = e.rate.Windows()
		}
		s.Chains = append(s.Chains, cs)
	}
	return s
}

func (m *Miner) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.snapshot())
}

// StatusRPCArgs/StatusRPCReply are the gorilla/rpc JSON-RPC call shape
// for "miner.GetStats", mirroring the teacher's MinerRPCArgs/Reply
// pattern.
type StatusRPCArgs struct{}

type StatusRPCReply struct {
	Chains []chainStatus
}

// GetStats is the RPC-exposed method.
func (m *Miner) GetStats(r *http.Request, args *StatusRPCArgs, reply *StatusRPCReply) error {
	reply.Chains = m.snapshot().Chains
	return nil
}

// Serve blocks, running the gorilla/mux status server on
// m.StatusListen ("/status" plain JSON, "/rpc" JSON-RPC), matching the
// teacher's miner.MinerMain's mux+gorilla/rpc wiring.
func (m *Miner) Serve() error {
	s := rpc.NewServer()
	s.RegisterCodec(rpcjson.NewCodec(), "application/json")
	s.RegisterCodec(rpcjson.NewCodec(), "application/json;charset=UTF-8")
	_ = s.RegisterService(m, "miner")

	r := mux.NewRouter()
	r.Handle("/rpc", s)
	r.HandleFunc("/status", m.handleStatus)

	return http.ListenAndServe(m.StatusListen, r)
}
