package serializer

import "github.com/ValentinKolb/dCB/rpc/common"

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message. The Message must not
	// alias b after Deserialize returns, b may be reused by the transport.
	Deserialize(b []byte, msg *common.Message) error
}
