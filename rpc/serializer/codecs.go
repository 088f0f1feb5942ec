package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/fxamacker/cbor/v2"
)

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

var factories = map[string]func() IRPCSerializer{
	"binary": NewBinarySerializer,
	"cbor":   NewCBORSerializer,
	"json":   NewJSONSerializer,
	"gob":    NewGOBSerializer,
}

// New returns the serializer registered under name.
func New(name string) (IRPCSerializer, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown serializer %q (available: %v)", name, Names())
	}
	return factory(), nil
}

// Names returns the names of all serializers.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}

// --------------------------------------------------------------------------
// GOB
// --------------------------------------------------------------------------

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// Every message carries the full type description, so it is the slowest option.
func NewGOBSerializer() IRPCSerializer {
	return gobSerializerImpl{}
}

type gobSerializerImpl struct{}

func (gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}

// --------------------------------------------------------------------------
// CBOR
// --------------------------------------------------------------------------

// NewCBORSerializer creates a new serializer using CBOR with integer map keys
// (see the cbor struct tags of common.Message).
func NewCBORSerializer() IRPCSerializer {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoder: %v", err))
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decoder: %v", err))
	}
	return cborSerializerImpl{enc: em, dec: dm}
}

type cborSerializerImpl struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func (c cborSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return c.enc.Marshal(msg)
}

func (c cborSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return c.dec.Unmarshal(b, msg)
}
