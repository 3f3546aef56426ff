package transport

import (
	"github.com/luma/bosswave/protocol"
	"github.com/luma/bosswave/storage"
	"go.uber.org/zap"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on
	Port int

	// Reuseport controls setting SO_REUSEPORT, which lets every listener
	// bind the same port. Without it only a single listener is started.
	Reuseport bool

	NumListeners int

	// Limits bound what a single device message may contain
	Limits protocol.Limits

	Store storage.Store

	Log *zap.Logger
}
