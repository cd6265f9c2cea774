package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signed-request headers. The signature covers RequestMessage.
const (
	HeaderAddress   = "X-Updown-Address"
	HeaderTimestamp = "X-Updown-Timestamp"
	HeaderSignature = "X-Updown-Signature"
)

// ErrBadSignature is returned when a signature is malformed or does not
// recover to the claimed address.
var ErrBadSignature = errors.New("crypto: bad signature")

// RequestMessage is the text a caller signs with personal_sign to prove
// who sent a request.
//
//	updown request
//	POST /api/v1/bets
//	1700000000
//	0x<keccak256(body)>
func RequestMessage(method, path string, unixTS int64, body []byte) []byte {
	return []byte(fmt.Sprintf("updown request\n%s %s\n%d\n%s",
		strings.ToUpper(method), path, unixTS, hexutil.Encode(ethcrypto.Keccak256(body))))
}

// Signer signs messages with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the account derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign returns the personal_sign signature of msg as 0x-prefixed hex with
// v in {27,28}.
func (s *Signer) Sign(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// SignRequest sets the identity headers on req.
func (s *Signer) SignRequest(req *http.Request, body []byte, unixTS int64) error {
	sig, err := s.Sign(RequestMessage(req.Method, req.URL.Path, unixTS, body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, s.address.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(unixTS, 10))
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// Recover returns the account that produced sigHex over msg.
func Recover(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != 65 {
		return common.Address{}, ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyRequest recovers the signer of a request and checks it matches the
// claimed address.
func VerifyRequest(claimed, sigHex, method, path string, unixTS int64, body []byte) (common.Address, error) {
	if !common.IsHexAddress(claimed) {
		return common.Address{}, ErrBadSignature
	}
	addr, err := Recover(RequestMessage(method, path, unixTS, body), sigHex)
	if err != nil {
		return common.Address{}, err
	}
	if addr != common.HexToAddress(claimed) {
		return common.Address{}, ErrBadSignature
	}
	return addr, nil
}
