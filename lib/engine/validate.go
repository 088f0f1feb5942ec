package engine

import (
	"fmt"

	"github.com/ValentinKolb/dCB/lib/codec"
	"github.com/ValentinKolb/dCB/lib/result"
)

// Validate checks whether a command can be scheduled. Engines call it for every
// command before the first one is executed.
func Validate(cmd Command) error {
	switch cmd.Kind {
	case OpStats:
		return nil
	case OpGet, OpGetReplica, OpCounter, OpStore, OpRemove, OpTouch, OpUnlock, OpObserve:
	default:
		return result.NewError(result.StatusUnknownCommand, fmt.Sprintf("cannot schedule %s", cmd.Kind))
	}
	if len(cmd.Key) == 0 {
		return result.NewError(result.StatusInvalidArgs, fmt.Sprintf("%s without key", cmd.Kind))
	}
	if len(cmd.Key) > codec.MaxKeyLength {
		return &result.Error{Status: result.StatusInvalidArgs, Key: string(cmd.Key), Msg: "key too long"}
	}
	return nil
}
