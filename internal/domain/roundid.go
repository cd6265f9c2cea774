package domain

import (
	"fmt"
	"math/big"
)

// RoundID is an oracle round identifier. Chainlink aggregators report 80-bit
// ids (phase << 64 | aggregator round), so the value is kept as a 16-bit high
// part and a 64-bit low part. The zero value means "no round".
type RoundID struct {
	Hi uint16
	Lo uint64
}

// NewRoundID returns a RoundID that fits in 64 bits.
func NewRoundID(lo uint64) RoundID {
	return RoundID{Lo: lo}
}

var maxRoundID = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 80), big.NewInt(1))

// RoundIDFromBig converts an unsigned integer of at most 80 bits.
func RoundIDFromBig(n *big.Int) (RoundID, error) {
	if n == nil || n.Sign() < 0 || n.Cmp(maxRoundID) > 0 {
		return RoundID{}, fmt.Errorf("round id %v out of range", n)
	}
	lo := new(big.Int).And(n, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(n, 64)
	return RoundID{Hi: uint16(hi.Uint64()), Lo: lo.Uint64()}, nil
}

// ParseRoundID parses a base-10 round id.
func ParseRoundID(s string) (RoundID, error) {
	if s == "" {
		return RoundID{}, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return RoundID{}, fmt.Errorf("invalid round id %q", s)
	}
	return RoundIDFromBig(n)
}

// Big returns the id as a big.Int.
func (r RoundID) Big() *big.Int {
	n := new(big.Int).SetUint64(uint64(r.Hi))
	n.Lsh(n, 64)
	return n.Or(n, new(big.Int).SetUint64(r.Lo))
}

// IsZero reports whether r is the zero id.
func (r RoundID) IsZero() bool { return r.Hi == 0 && r.Lo == 0 }

// Cmp compares r and o numerically.
func (r RoundID) Cmp(o RoundID) int {
	switch {
	case r.Hi < o.Hi:
		return -1
	case r.Hi > o.Hi:
		return 1
	case r.Lo < o.Lo:
		return -1
	case r.Lo > o.Lo:
		return 1
	default:
		return 0
	}
}

// String renders the id in base 10.
func (r RoundID) String() string {
	if r.Hi == 0 {
		return fmt.Sprintf("%d", r.Lo)
	}
	return r.Big().String()
}

// MarshalText implements encoding.TextMarshaler.
func (r RoundID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RoundID) UnmarshalText(text []byte) error {
	v, err := ParseRoundID(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
