package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature errors
var (
	ErrSignatureLength   = errors.New("signature blob too short")
	ErrInvalidRecoveryID = errors.New("invalid signature recovery id")
)

// personalSignMarker is the trailing byte that flags a prefixed-message signature
const personalSignMarker = 0x03

// SignatureKind tells which digest a signature was produced over
type SignatureKind int

const (
	// SignatureTyped signs the EIP712 hash-to-sign directly
	SignatureTyped SignatureKind = iota
	// SignaturePersonal signs the hash-to-sign under the personal message prefix
	SignaturePersonal
)

var (
	uint8Type, _ = abi.NewType("uint8", "", nil)
	bytesType, _ = abi.NewType("bytes", "", nil)

	signatureArguments = abi.Arguments{
		{Type: uint8Type},   // v
		{Type: bytes32Type}, // r
		{Type: bytes32Type}, // s
	}

	signaturePairArguments = abi.Arguments{
		{Type: bytesType},
		{Type: bytesType},
	}
)

// Signature is a decoded signature blob
type Signature struct {
	V    uint8
	R    [32]byte
	S    [32]byte
	Kind SignatureKind
}

// EncodeSignature turns a 65-byte [R || S || V] signature into the blob the
// exchange expects: abi.encode(uint8 v, bytes32 r, bytes32 s), followed by the
// marker byte when kind is SignaturePersonal.
func EncodeSignature(sig []byte, kind SignatureKind) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrSignatureLength, len(sig))
	}
	var r, s [32]byte
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v := sig[64]
	if v < 27 {
		v += 27
	}

	blob, err := signatureArguments.Pack(v, r, s)
	if err != nil {
		return nil, fmt.Errorf("encode signature: %w", err)
	}
	if kind == SignaturePersonal {
		blob = append(blob, personalSignMarker)
	}
	return blob, nil
}

// DecodeSignature parses a signature blob. A blob longer than 65 bytes whose
// last byte is 0x03 is a prefixed-message signature.
func DecodeSignature(blob []byte) (*Signature, error) {
	if len(blob) < 96 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrSignatureLength, len(blob))
	}
	values, err := signatureArguments.Unpack(blob[:96])
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	sig := &Signature{
		V: values[0].(uint8),
		R: values[1].([32]byte),
		S: values[2].([32]byte),
	}
	if len(blob) > 65 && blob[len(blob)-1] == personalSignMarker {
		sig.Kind = SignaturePersonal
	}
	return sig, nil
}

// Recover returns the address that signed digest
func (s *Signature) Recover(digest common.Hash) (common.Address, error) {
	v := s.V
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, ErrInvalidRecoveryID
	}
	raw := make([]byte, crypto.SignatureLength)
	copy(raw[:32], s.R[:])
	copy(raw[32:64], s.S[:])
	raw[64] = v

	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Digest returns the hash the signer must have signed for this signature kind
func (s *Signature) Digest(hashToSign common.Hash, personalPrefix string) common.Hash {
	if s.Kind == SignaturePersonal {
		return PersonalMessageHash(personalPrefix, hashToSign)
	}
	return hashToSign
}

// IsAmbiguous reports whether a typed signature blob would be read as prefixed
func IsAmbiguous(blob []byte) bool {
	return len(blob) == 96 && blob[95] == personalSignMarker
}

// PackSignatures encodes the two signature blobs of a match
func PackSignatures(first, second []byte) ([]byte, error) {
	if first == nil {
		first = []byte{}
	}
	if second == nil {
		second = []byte{}
	}
	return signaturePairArguments.Pack(first, second)
}

// UnpackSignatures decodes the two signature blobs of a match
func UnpackSignatures(data []byte) ([]byte, []byte, error) {
	values, err := signaturePairArguments.Unpack(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode signatures: %w", err)
	}
	return values[0].([]byte), values[1].([]byte), nil
}
