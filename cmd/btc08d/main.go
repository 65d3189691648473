////////////////////////////////////////////////////////////////////////////
// Program: btc08d
// Purpose: host-side driver process for a BTC08 ASIC hash-board chain
////////////////////////////////////////////////////////////////////////////

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stianeikeland/go-rpio"
	"go.uber.org/zap"

	"github.com/btc08io/btc08d/board"
	"github.com/btc08io/btc08d/chain"
	"github.com/btc08io/btc08d/config"
	"github.com/btc08io/btc08d/driver"
	"github.com/btc08io/btc08d/gpio"
	"github.com/btc08io/btc08d/miner"
	"github.com/btc08io/btc08d/transport"
)

const version = "0.1.0"

var mainCmd = &cobra.Command{
	Use:   "btc08d",
	Short: "BTC08 hash-board chain driver",
	Long:  "Host-side driver process for a chain of BTC08 Bitcoin-hashing ASICs over SPI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(os.Args[1:])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	mainCmd.AddCommand(versionCmd)
}

func main() {
	if err := mainCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := config.Load(args, func(reloaded config.Options) {
		miner.SetLevel(reloaded.LogLevel)
	})
	if err != nil {
		return fmt.Errorf("btc08d: config: %w", err)
	}

	log := miner.InitLogger(opts.LogLevel)
	defer log.Sync()

	m := miner.New(log, opts.StatusListen)

	// The outer miner framework (pool protocol, work-queue producer,
	// host-side nonce revalidation) is explicitly out of scope per
	// SPEC_FULL §1; noUpstream stands in so the chain wiring below
	// compiles and runs end to end with an always-empty work queue
	// until a real collaborator is attached.
	up := noUpstream{}

	// gpio.Open leaves the process-wide GPIO mapping to its caller; open
	// it once here for every chain.
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("btc08d: gpio: %w", err)
	}
	defer rpio.Close()

	chains := make([]*chain.Chain, 0, board.MaxChainsPerBoard)
	devs := []string{opts.SPIDevPrimary, opts.SPIDevSecondary}
	pins := []config.GPIOMap{opts.GPIO, opts.GPIOSecondary}
	for i := 0; i < board.MaxChainsPerBoard; i++ {
		c, err := buildChain(i, opts, devs[i], pins[i], up, log)
		if err != nil {
			log.Warnw("chain unavailable", "chain", i, "error", err)
			continue
		}
		chains = append(chains, c)
	}
	if len(chains) == 0 {
		return fmt.Errorf("btc08d: no chains available")
	}

	brd, err := board.New(0, chains...)
	if err != nil {
		return fmt.Errorf("btc08d: board: %w", err)
	}

	for _, ops := range brd.Ops {
		if err := m.Register(ops); err != nil {
			log.Warnw("chain registration failed, continuing with remaining chains", "error", err)
		}
	}

	m.Start()
	return m.Serve()
}

// buildChain opens the SPI port and GPIO lines for one chain and
// constructs the chain.Chain value.
func buildChain(id int, opts config.Options, spiDev string, pins config.GPIOMap, up driver.Upstream, log *zap.SugaredLogger) (*chain.Chain, error) {
	baseHz := int64(opts.SPIClockKHz) * 1000
	fastHz := baseHz * 20
	port, err := transport.OpenPeriphPort(spiDev, baseHz, fastHz)
	if err != nil {
		return nil, err
	}
	lines := gpio.Open(pins)
	adc := gpio.SysfsADC{Path: fmt.Sprintf("/sys/bus/iio/devices/iio:device%d/in_voltage0_raw", id)}
	return chain.New(id, opts, port, lines, adc, up, log), nil
}

// noUpstream is the no-op driver.Upstream used until a real work-queue
// collaborator is wired in; every call reports underflow/no-op rather
// than panicking, so a chain attached to it idles cleanly instead of
// mining against fabricated work.
type noUpstream struct{}

func (noUpstream) DequeueWork() (*driver.Work, bool)             { return nil, false }
func (noUpstream) WorkCompleted(*driver.Work)                    {}
func (noUpstream) SubmitNonce(*driver.Work, uint32, uint8) bool  { return false }
