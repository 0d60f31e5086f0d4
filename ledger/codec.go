package ledger

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/h3tag-core/consensus/consensuserrors"
)

var (
	encMode, _ = cbor.CanonicalEncOptions().EncMode()
)

// Encode canonically-CBOR-encodes v, the encoding spec §6 names for every
// persisted entity.
func Encode(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	return b, nil
}

// Decode is the inverse of Encode.
func Decode(data []byte, out interface{}) error {
	if err := cbor.Unmarshal(data, out); err != nil {
		return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	return nil
}
