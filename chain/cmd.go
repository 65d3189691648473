package chain

import (
	"fmt"

	"github.com/btc08io/btc08d/btcerr"
	"github.com/btc08io/btc08d/codec"
	"github.com/btc08io/btc08d/transport"
)

// exec builds a frame for op/chipID/params, reserves respLen response
// bytes, transmits it (fast-path if requested), bit-inverts the
// received buffer, and returns a Response view plus any transport
// error. It does not itself validate the echoed header — callers that
// care (most do) use execChecked.
func (c *Chain) exec(op codec.Opcode, chipID uint8, params []byte, respLen int, fast bool) (codec.Response, error) {
	f := codec.NewFrame(op, chipID).WithParams(params).WithRespLen(respLen)
	tx := f.Build()
	rx := make([]byte, len(tx))

	var err error
	if fast {
		err = c.port.TransferFast(tx, rx)
	} else {
		err = c.port.Transfer(tx, rx)
	}
	if err != nil {
		return codec.Response{}, fmt.Errorf("%v: %w", err, btcerr.ErrTransport)
	}
	codec.BitInvertInPlace(rx)
	if c.opts.DumpTraffic && c.log != nil {
		c.log.Debugw("spi frame", "chain", c.id, "tx", tx, "rx", rx)
	}
	return codec.NewResponse(rx, f.RespOffset()), nil
}

// execChecked is exec plus opcode/chip_id echo validation, the
// protocol-error class from the error taxonomy. Broadcast commands
// (chipID==0) only check the opcode echo, since the ack wrapping back
// from the far end of the chain does not necessarily echo 0.
func (c *Chain) execChecked(op codec.Opcode, chipID uint8, params []byte, respLen int, fast bool) (codec.Response, error) {
	resp, err := c.exec(op, chipID, params, respLen, fast)
	if err != nil {
		return resp, err
	}
	if resp.EchoOp() != op {
		return resp, fmt.Errorf("chain %d: opcode echo mismatch: sent %d got %d: %w", c.id, op, resp.EchoOp(), btcerr.ErrProtocol)
	}
	if chipID != codec.BroadcastChipID && resp.EchoChipID() != chipID {
		return resp, fmt.Errorf("chain %d: chip_id echo mismatch: sent %d got %d: %w", c.id, chipID, resp.EchoChipID(), btcerr.ErrProtocol)
	}
	return resp, nil
}

// batch sends a sequence of frames as one back-to-back burst via
// TransferBatch, used by set_work to stream WRITE_PARM -> (optional
// WRITE_TARGET) -> RUN_JOB without host-side gaps.
func (c *Chain) batch(frames []*codec.Frame) error {
	bf := make([]transport.BatchFrame, len(frames))
	for i, f := range frames {
		tx := f.Build()
		bf[i] = transport.BatchFrame{
			Tx:       tx,
			Rx:       make([]byte, len(tx)),
			Fast:     f.FastPath,
			CSChange: f.CSChange,
		}
	}
	return c.port.TransferBatch(bf)
}
