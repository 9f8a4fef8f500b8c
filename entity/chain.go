package entity

import "fmt"

// ChainID identifies the remote chain an event proof is destined for.
// The numeric values are part of the wire and storage format.
type ChainID uint8

const (
	ChainIDEthereum ChainID = 1
	ChainIDXrpl     ChainID = 2
)

func (c ChainID) Valid() bool {
	return c == ChainIDEthereum || c == ChainIDXrpl
}

func (c ChainID) String() string {
	switch c {
	case ChainIDEthereum:
		return "ethereum"
	case ChainIDXrpl:
		return "xrpl"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseChainID maps a chain name used in CLI flags and API routes back to its ID.
func ParseChainID(s string) (ChainID, error) {
	switch s {
	case "ethereum", "eth":
		return ChainIDEthereum, nil
	case "xrpl":
		return ChainIDXrpl, nil
	default:
		return 0, fmt.Errorf("unknown chain %q", s)
	}
}
