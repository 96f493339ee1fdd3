// Package platform provides the LED strips the renderer draws on: the
// real strip attached to the SPI bus of a Raspberry Pi and a terminal
// simulation.
package platform

import (
	"errors"
)

var ErrClosed = errors.New("led strip is closed")
