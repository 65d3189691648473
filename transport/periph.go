package transport

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// hostInitOnce runs periph.io's driver registration exactly once per
// process, the way the retrieval pack's sibling ASIC-chain driver does
// before touching its board's peripheral handles.
var hostInitOnce sync.Once

// PeriphPort is the production Port, backed by periph.io's spireg
// registry the way the retrieval pack's sibling ASIC-chain driver opens
// its board's peripheral handles: one registered port opened once and
// held for the chain's lifetime, never reopened per call.
type PeriphPort struct {
	port  spi.PortCloser
	conn  spi.Conn
	speed physic.Frequency
	fast  physic.Frequency
	mode  spi.Mode
	bits  int
}

// OpenPeriphPort opens the named SPI alias (e.g. "/dev/spidev0.0" via
// periph's Linux sysfs-spi driver) at the given base and fast-path
// speeds. bits is the word size (8, per the component design); mode is
// always SPI mode 0, no inter-word delay.
func OpenPeriphPort(name string, baseHz, fastHz int64) (*PeriphPort, error) {
	var initErr error
	hostInitOnce.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("transport: host init: %w", initErr)
	}

	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}
	pp := &PeriphPort{
		port:  p,
		speed: physic.Frequency(baseHz) * physic.Hertz,
		fast:  physic.Frequency(fastHz) * physic.Hertz,
		mode:  spi.Mode0,
		bits:  8,
	}
	conn, err := p.Connect(pp.speed, pp.mode, pp.bits)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("transport: connect %s: %w", name, err)
	}
	pp.conn = conn
	return pp, nil
}

func (p *PeriphPort) Transfer(tx, rx []byte) error {
	fillIdle(rx)
	if err := p.conn.Tx(tx, rx); err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil
}

func (p *PeriphPort) TransferFast(tx, rx []byte) error {
	if len(tx)%4 != 0 {
		return ErrLenNotAligned
	}
	fillIdle(rx)
	fastConn, err := p.port.Connect(p.fast, p.mode, p.bits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if err := fastConn.Tx(tx, rx); err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil
}

// TransferBatch streams the legs back to back, in order. periph.io's
// spi.Conn has no native "hold CS, chain N transfers" primitive the way
// a raw spidev ioctl does, so the port is not closed or reopened
// between legs and CSChange is not passed to the bus. Slow legs reuse
// the base-speed conn; fast legs go through TransferFast, which
// connects at the fast-path speed for each leg.
func (p *PeriphPort) TransferBatch(frames []BatchFrame) error {
	for i, f := range frames {
		var err error
		if f.Fast {
			err = p.TransferFast(f.Tx, f.Rx)
		} else {
			err = p.Transfer(f.Tx, f.Rx)
		}
		if err != nil {
			return fmt.Errorf("transport: batch leg %d: %w", i, err)
		}
	}
	return nil
}

func (p *PeriphPort) Close() error {
	return p.port.Close()
}
