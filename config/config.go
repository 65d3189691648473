// Package config loads the BTC08 driver's configuration surface into a
// single immutable Options value. Unlike the teacher's boardman package,
// nothing downstream reads viper back out of a package-level singleton:
// Load returns a value, and callers pass it (or its GPIOMap) into
// chain/gpio constructors by value.
package config

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/btc08io/btc08d/btcerr"
)

// GPIOMap names the four digital lines this driver touches per chain:
// two inputs (GN, OON) and one output (RESET), plus an optional
// power-enable output. Pin numbers are BCM numbering, matching the
// teacher's uartio/jtagio/resetio conventions.
type GPIOMap struct {
	GN         int
	OON        int
	Reset      int
	PowerEn    int
	HasPowerEn bool
}

// Options is the immutable configuration snapshot for one process run.
// It is built once by Load and handed by value (or pointer-to-const-use)
// into each chain.New call; nothing in the chain/codec/transport packages
// consults viper, cobra, or any other global configuration source.
type Options struct {
	// SPIClockKHz is the configured (non fast-path) bus speed.
	SPIClockKHz int
	// PLLMHz is the requested chip operating frequency.
	PLLMHz int
	// UDiv feeds SET_CONTROL's udiv field (default 17).
	UDiv int

	// OverrideChipNum limits the chain to this many chips; 0 means
	// "use whatever AUTO_ADDRESS reports" (testing only).
	OverrideChipNum int
	// MinCores is the minimum live core count per chip before BIST
	// marks it unusable (default 90% of 206).
	MinCores int
	// MinChips is the minimum chip count before init aborts (default
	// 90% of 22).
	MinChips int
	// TestMode, when true, skips proportional nonce-range assignment
	// and gives every non-disabled chip the full range.
	TestMode bool

	// DumpTraffic enables per-frame trace logging at debug level.
	DumpTraffic bool

	// LogLevel selects the zap level: "debug", "info", "error".
	LogLevel string

	// GPIO is the pin map for chain 0; GPIOSecondary for chain 1 (the
	// second of up to MAX_SPI_PORT buses).
	GPIO          GPIOMap
	GPIOSecondary GPIOMap

	// SPIDevPrimary/SPIDevSecondary name the periph.io SPI port aliases
	// (e.g. "/dev/spidev0.0") for each chain.
	SPIDevPrimary   string
	SPIDevSecondary string

	// StatusListen is the address the gorilla/mux status server binds.
	StatusListen string
}

var (
	defaultMinCores = int(math.Floor(206 * 0.9))
	defaultMinChips = int(math.Floor(22 * 0.9))
)

func defaults() Options {
	return Options{
		SPIClockKHz:     2000,
		PLLMHz:          0,
		UDiv:            17,
		OverrideChipNum: 0,
		MinCores:        defaultMinCores,
		MinChips:        defaultMinChips,
		TestMode:        false,
		DumpTraffic:     false,
		LogLevel:        "info",
		GPIO: GPIOMap{
			GN:    4,
			OON:   17,
			Reset: 27,
		},
		GPIOSecondary: GPIOMap{
			GN:    22,
			OON:   23,
			Reset: 24,
		},
		SPIDevPrimary:   "/dev/spidev0.0",
		SPIDevSecondary: "/dev/spidev1.0",
		StatusListen:    ":1234",
	}
}

// Load wires pflag/viper/fsnotify the way main.go's init() does: seed
// viper defaults, bind the "cfg" flag, read the config file if present,
// and watch it for changes. onChange is invoked with the freshly
// reloaded Options whenever the file changes; pass nil to skip live
// reload.
func Load(args []string, onChange func(Options)) (Options, error) {
	fs := pflag.NewFlagSet("btc08d", pflag.ContinueOnError)
	fs.String("cfg", "btc08d.json", "config file path")
	fs.Bool("test", false, "test mode, override nonce-range split")
	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("%v: %w", err, btcerr.ErrConfig)
	}

	v := viper.New()
	seedDefaults(v)
	if err := v.BindPFlags(fs); err != nil {
		return Options{}, fmt.Errorf("%v: %w", err, btcerr.ErrConfig)
	}

	fullCfgName := v.GetString("cfg")
	cfgName := strings.TrimSuffix(fullCfgName, filepath.Ext(fullCfgName))
	if fullCfgName != "btc08d.json" {
		v.SetConfigFile(fullCfgName)
	} else {
		v.SetConfigName(cfgName)
		v.AddConfigPath(".")
		v.AddConfigPath("/opt/btc08/etc")
	}

	_ = v.ReadInConfig() // missing config file falls back to defaults

	opts := fromViper(v)

	if onChange != nil {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			onChange(fromViper(v))
		})
	}

	return opts, nil
}

func seedDefaults(v *viper.Viper) {
	d := defaults()
	v.SetDefault("spi_clk_khz", d.SPIClockKHz)
	v.SetDefault("pll", d.PLLMHz)
	v.SetDefault("udiv", d.UDiv)
	v.SetDefault("override_chip_num", d.OverrideChipNum)
	v.SetDefault("min_cores", d.MinCores)
	v.SetDefault("min_chips", d.MinChips)
	v.SetDefault("test_mode", d.TestMode)
	v.SetDefault("dump_traffic", d.DumpTraffic)
	v.SetDefault("debug", d.LogLevel)
	v.SetDefault("gn_io", []int{d.GPIO.GN, d.GPIOSecondary.GN})
	v.SetDefault("oon_io", []int{d.GPIO.OON, d.GPIOSecondary.OON})
	v.SetDefault("reset_io", []int{d.GPIO.Reset, d.GPIOSecondary.Reset})
	v.SetDefault("spi_dev", []string{d.SPIDevPrimary, d.SPIDevSecondary})
	v.SetDefault("status_listen", d.StatusListen)
}

func fromViper(v *viper.Viper) Options {
	o := defaults()
	o.SPIClockKHz = v.GetInt("spi_clk_khz")
	o.PLLMHz = v.GetInt("pll")
	o.UDiv = v.GetInt("udiv")
	o.OverrideChipNum = v.GetInt("override_chip_num")
	o.MinCores = v.GetInt("min_cores")
	o.MinChips = v.GetInt("min_chips")
	o.TestMode = v.GetBool("test_mode") || v.GetBool("test")
	o.DumpTraffic = v.GetBool("dump_traffic")
	o.LogLevel = v.GetString("debug")
	o.StatusListen = v.GetString("status_listen")

	gn := v.GetIntSlice("gn_io")
	oon := v.GetIntSlice("oon_io")
	reset := v.GetIntSlice("reset_io")
	if len(gn) > 0 {
		o.GPIO.GN = gn[0]
	}
	if len(oon) > 0 {
		o.GPIO.OON = oon[0]
	}
	if len(reset) > 0 {
		o.GPIO.Reset = reset[0]
	}
	if len(gn) > 1 {
		o.GPIOSecondary.GN = gn[1]
	}
	if len(oon) > 1 {
		o.GPIOSecondary.OON = oon[1]
	}
	if len(reset) > 1 {
		o.GPIOSecondary.Reset = reset[1]
	}

	spiDev := v.GetStringSlice("spi_dev")
	if len(spiDev) > 0 {
		o.SPIDevPrimary = spiDev[0]
	}
	if len(spiDev) > 1 {
		o.SPIDevSecondary = spiDev[1]
	}

	return o
}
