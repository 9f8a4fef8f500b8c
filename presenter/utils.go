package presenter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)
)

// derSignature re-encodes a compact recoverable signature into the canonical
// DER form accepted by XRPL. The s component is normalized to the lower half
// of the curve order.
func derSignature(sig []byte) []byte {
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	rb := derInt(r)
	sb := derInt(s)
	out := make([]byte, 0, len(rb)+len(sb)+6)
	out = append(out, 0x30, byte(len(rb)+len(sb)+4))
	out = append(out, 0x02, byte(len(rb)))
	out = append(out, rb...)
	out = append(out, 0x02, byte(len(sb)))
	out = append(out, sb...)
	return out
}

func derInt(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		return []byte{0x00}
	}
	if b[0]&0x80 != 0 {
		return append([]byte{0x00}, b...)
	}
	return b
}

func keysToHex(keys [][]byte) []hexutil.Bytes {
	res := make([]hexutil.Bytes, len(keys))
	for i, key := range keys {
		res[i] = key
	}
	return res
}
