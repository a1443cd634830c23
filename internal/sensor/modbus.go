package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/goburrow/modbus"
	"github.com/tartampluch/card-countdown/internal/config"
)

// uidWords is the register span polled: one length word plus the UID bytes.
const uidWords = 1 + (config.MaxUIDBytes+1)/2

// registerReader is the subset of modbus.Client used here.
type registerReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Modbus polls a card reader that exposes the tag in range on holding
// registers. Register layout, starting at Register:
//
//	word 0      UID length in bytes, 0 when no card
//	word 1..5   UID bytes, big-endian, zero padded
type Modbus struct {
	mu       sync.Mutex
	client   registerReader
	closer   io.Closer
	register uint16
}

// NewModbus builds a TCP (tcp://host:port) or RTU (rtu:///dev/ttyUSB0) client.
// The transport connects lazily on the first poll, so an offline reader is not
// a start-up error.
func NewModbus(s config.SensorSettings) (*Modbus, error) {
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrSensorEndpoint, err)
	}

	var handler interface {
		modbus.ClientHandler
		io.Closer
	}
	switch u.Scheme {
	case config.SchemeTCP:
		if u.Host == "" {
			return nil, fmt.Errorf("%s: %q", config.ErrSensorEndpoint, s.Endpoint)
		}
		h := modbus.NewTCPClientHandler(u.Host)
		h.Timeout = s.Timeout()
		h.SlaveId = s.SlaveID
		handler = h
	case config.SchemeRTU:
		if u.Path == "" {
			return nil, fmt.Errorf("%s: %q", config.ErrSensorEndpoint, s.Endpoint)
		}
		h := modbus.NewRTUClientHandler(u.Path)
		h.BaudRate = s.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.Timeout = s.Timeout()
		h.SlaveId = s.SlaveID
		handler = h
	default:
		return nil, fmt.Errorf("%s: %q", config.ErrSensorEndpoint, s.Endpoint)
	}

	return &Modbus{
		client:   modbus.NewClient(handler),
		closer:   handler,
		register: s.Register,
	}, nil
}

// Poll reads the UID block once. The handler timeout bounds the call.
func (m *Modbus) Poll(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	b, err := m.client.ReadHoldingRegisters(m.register, uidWords)
	m.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrSensorRead, err)
	}
	return decodeUIDBlock(b)
}

func (m *Modbus) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

func decodeUIDBlock(b []byte) (string, error) {
	if len(b) < 2 {
		return "", fmt.Errorf("%s: %d bytes", config.ErrSensorShortRead, len(b))
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	if n == 0 {
		return "", nil
	}
	if n > config.MaxUIDBytes {
		return "", fmt.Errorf("%s: %d", config.ErrSensorUIDLength, n)
	}
	if len(b) < 2+n {
		return "", fmt.Errorf("%s: %d bytes", config.ErrSensorShortRead, len(b))
	}
	return FormatUID(b[2 : 2+n]), nil
}
