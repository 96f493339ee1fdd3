// Package source delivers instantaneous power readings to a Handler.
package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Sample is a single power reading.
type Sample struct {
	Watts     uint32
	Timestamp time.Time
}

// Handler receives the events of a Source. The methods are called from the
// goroutine of the source and must not block.
type Handler interface {
	OnSample(s Sample)
	OnConnected()
	OnDisconnected(err error)
}

// Source pushes samples to a Handler until ctx is done. A Source releases
// its connection before Run returns.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

var ErrShortPacket = errors.New("cycling power measurement too short")

// ParseCyclingPower decodes the instantaneous power of a Cycling Power
// Measurement notification: a little endian uint16 flags field followed by
// the power as little endian int16. Negative readings are reported as 0.
func ParseCyclingPower(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(buf))
	}
	power := int16(binary.LittleEndian.Uint16(buf[2:4]))
	if power < 0 {
		return 0, nil
	}
	return uint32(power), nil
}
