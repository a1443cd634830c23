// Package sensor provides the card reader backends polled by the control loop.
package sensor

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/engine"
)

// Sensor is a card reader that may hold a connection.
type Sensor interface {
	engine.CardSensor
	io.Closer
}

// New builds the backend selected in settings.
func New(s config.SensorSettings) (Sensor, error) {
	var (
		sn  Sensor
		err error
	)
	switch s.Type {
	case config.SensorTypeModbus:
		sn, err = NewModbus(s)
	case config.SensorTypeFile:
		sn = &File{Path: s.Endpoint}
	case config.SensorTypeNone, "":
		sn = None{}
	default:
		return nil, fmt.Errorf("%s: %q", config.ErrSensorType, s.Type)
	}
	if err != nil {
		return nil, err
	}

	slog.Info(config.MsgSensorReady,
		config.LogKeyComponent, config.CompSensor,
		config.LogKeySensor, s.Type,
		config.LogKeyEndpoint, s.Endpoint,
	)
	return sn, nil
}

// FormatUID renders raw tag bytes as upper-case hex, two digits per byte.
func FormatUID(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// None never sees a card.
type None struct{}

func (None) Poll(context.Context) (string, error) { return "", nil }
func (None) Close() error                         { return nil }
