// Package diag provides optional diagnostic output sinks: an operator
// console that mirrors the debug stream over a UART.
package diag

import (
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/mherranz/HominGo/internal/debug"
)

// Console is a write-only serial sink for the debug stream. It never
// reads; nothing on the wire feeds back into control logic.
type Console struct {
	port serial.Port
}

// OpenConsole opens the serial port at the given baud rate.
func OpenConsole(portName string, baudRate int) (*Console, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial console %s: %w", portName, err)
	}
	debug.Info("Serial console on %s at %d baud", portName, baudRate)
	return &Console{port: port}, nil
}

// Write implements io.Writer. Serial write failures are swallowed: a
// disconnected console must never take down the control loop.
func (c *Console) Write(p []byte) (int, error) {
	_, _ = c.port.Write(p)
	return len(p), nil
}

// Close releases the port.
func (c *Console) Close() error {
	return c.port.Close()
}

var _ io.Writer = (*Console)(nil)
