package validatorset

import (
	"encoding/binary"
	"errors"
)

// SignerEntry is one line of an XRPL signer list: the signer's account id
// and its voting weight.
type SignerEntry struct {
	Account [20]byte
	Weight  uint16
}

// XrplPayloadBuilder serializes a SignerListSet update for the XRPL door
// account. Deployments wire in a builder producing the canonical XRPL
// transaction encoding for their door account.
type XrplPayloadBuilder interface {
	SignerListSetPayload(quorum uint32, entries []SignerEntry) ([]byte, error)
}

var ErrNoSignerEntries = errors.New("signer list needs at least one entry")

var signerListMagic = []byte{'S', 'L', 'S', 0x00}

type signerListPayloadBuilder struct{}

// NewSignerListPayloadBuilder returns the default builder. It produces a
// deterministic binary form: magic, big-endian quorum, then account id and
// big-endian weight per entry in the given order.
func NewSignerListPayloadBuilder() XrplPayloadBuilder {
	return signerListPayloadBuilder{}
}

func (signerListPayloadBuilder) SignerListSetPayload(quorum uint32, entries []SignerEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrNoSignerEntries
	}
	payload := make([]byte, 0, len(signerListMagic)+4+len(entries)*22)
	payload = append(payload, signerListMagic...)
	payload = binary.BigEndian.AppendUint32(payload, quorum)
	for _, entry := range entries {
		payload = append(payload, entry.Account[:]...)
		payload = binary.BigEndian.AppendUint16(payload, entry.Weight)
	}
	return payload, nil
}
