package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBORCodec is the self-describing wire codec (spec.md §4.12), backed by
// github.com/fxamacker/cbor/v2 — the general-purpose Go CBOR library (not
// present elsewhere in the retrieval pack, whose only CBOR hits are
// fixed-schema cbor-gen code unsuited to PicoFS's ad hoc SnapshotNode/
// WalEntry trees).
type CBORCodec struct{}

// NewCBOR creates a CBORCodec. It is stateless; the zero value is usable.
func NewCBOR() *CBORCodec { return &CBORCodec{} }

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) EncodeSnapshot(root *SnapshotNode) ([]byte, error) { return cbor.Marshal(root) }
func (CBORCodec) DecodeSnapshot(data []byte) (*SnapshotNode, error) {
	var sn SnapshotNode
	if err := cbor.Unmarshal(data, &sn); err != nil {
		return nil, err
	}
	return &sn, nil
}

func (CBORCodec) EncodeWalEntry(e *WalEntry) ([]byte, error) { return cbor.Marshal(e) }
func (CBORCodec) DecodeWalEntry(data []byte) (*WalEntry, error) {
	var e WalEntry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (CBORCodec) EncodeMounts(mounts []MountRecord) ([]byte, error) { return cbor.Marshal(mounts) }
func (CBORCodec) DecodeMounts(data []byte) ([]MountRecord, error) {
	var out []MountRecord
	if err := cbor.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (CBORCodec) EncodeVersions(versions []VersionRecord) ([]byte, error) {
	return cbor.Marshal(versions)
}
func (CBORCodec) DecodeVersions(data []byte) ([]VersionRecord, error) {
	var out []VersionRecord
	if err := cbor.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (CBORCodec) EncodeTrash(items []TrashRecord) ([]byte, error) { return cbor.Marshal(items) }
func (CBORCodec) DecodeTrash(data []byte) ([]TrashRecord, error) {
	var out []TrashRecord
	if err := cbor.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Codec = CBORCodec{}
