package treasury

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Payout(address recipient,uint256 amount,bytes32 memoHash,uint256 nonce)
	payoutTypeHash = ethcrypto.Keccak256(
		[]byte("Payout(address recipient,uint256 amount,bytes32 memoHash,uint256 nonce)"),
	)
)

// PayoutVoucher is the signable authorization for one settlement payment.
// The memo ties the voucher to its market for the audit trail; the nonce
// makes each voucher single-use at the relayer.
type PayoutVoucher struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"` // decimal string, base units
	Memo      string `json:"memo"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"` // hex, 65 bytes, set by Sign
}

// Signer produces EIP-712 signatures over payout vouchers with the treasury
// key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("treasury/signer: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
	s.domainSep = ethcrypto.Keccak256(concatBytes(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte("ConvictionTreasury")),
		ethcrypto.Keccak256([]byte("1")),
		bigIntTo32Bytes(big.NewInt(int64(chainID))),
	))
	return s, nil
}

// Address returns the treasury address derived from the signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign fills in the voucher's signature over its EIP-712 digest.
func (s *Signer) Sign(v *PayoutVoucher) error {
	amount, ok := new(big.Int).SetString(v.Amount, 10)
	if !ok {
		return fmt.Errorf("treasury/signer: invalid amount %q", v.Amount)
	}
	nonce, ok := new(big.Int).SetString(v.Nonce, 10)
	if !ok {
		return fmt.Errorf("treasury/signer: invalid nonce %q", v.Nonce)
	}

	structHash := ethcrypto.Keccak256(concatBytes(
		payoutTypeHash,
		common.LeftPadBytes(common.HexToAddress(v.Recipient).Bytes(), 32),
		bigIntTo32Bytes(amount),
		ethcrypto.Keccak256([]byte(v.Memo)),
		bigIntTo32Bytes(nonce),
	))

	digest := ethcrypto.Keccak256(concatBytes(
		[]byte{0x19, 0x01},
		s.domainSep,
		structHash,
	))

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return fmt.Errorf("treasury/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	v.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
