package client

import (
	"errors"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// ErrClosed is returned by a closed engine.
var ErrClosed = errors.New("rpc engine closed")

// DefaultTimeout bounds requests if the client config sets no timeout.
const DefaultTimeout = 5 * time.Second
