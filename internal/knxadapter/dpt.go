package knxadapter

import (
	"log/slog"

	"github.com/vapourismo/knx-go/knx/dpt"
)

// encodeBool packs a boolean as DPT 1.001 (1-bit switch).
func encodeBool(v bool) []byte {
	d := dpt.DPT_1001(v)
	return d.Pack()
}

func decodeBool(data []byte) (bool, error) {
	var d dpt.DPT_1001
	if err := d.Unpack(data); err != nil {
		return false, err
	}
	return bool(d), nil
}

// encodeScaled packs a 0-100 percentage-style value as DPT 5.010
// (unsigned 8-bit count). Values outside [0,255] are sent as 0 and
// logged as a warning on the default logger.
func encodeScaled(v int) []byte {
	if v < 0 || v > 255 {
		slog.Warn("knx: value outside DPT 5.010 range, sending 0", "value", v)
		v = 0
	}
	d := dpt.DPT_5010(uint8(v))
	return d.Pack()
}

func decodeScaled(data []byte) (int, error) {
	var d dpt.DPT_5010
	if err := d.Unpack(data); err != nil {
		return 0, err
	}
	return int(d), nil
}

// encodePlaybackCode encodes a transport-state code per spec.md §6:
// 0=Stopped, 1=Playing, 2=Paused.
func encodePlaybackCode(code int) []byte {
	return encodeScaled(code)
}
