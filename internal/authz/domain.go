// Package authz validates signed rule-mutation requests. A request carries a
// payload (rule id, target, amount, nonce, deadline) signed over a
// domain-separated message so a signature produced for one deployment can
// never be replayed against another chain, contract or protocol version.
package authz

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
)

// signCodeV1 prefixes every signed message so future format revisions can be
// told apart from v1 payloads.
var signCodeV1 = []byte{0x00, 0x74, 0x72, 0x01}

// addressLength is the byte length of a signer address.
const addressLength = 20

// Domain binds signatures to one deployment context.
type Domain struct {
	Name     string
	Version  string
	ChainID  uint64
	Contract string
}

// Payload is the structured message a signer authorizes. Nonce is a
// per-signer monotonic counter; Deadline is an absolute unix timestamp after
// which the request is rejected.
type Payload struct {
	RuleID   int64
	Target   string
	Amount   int64
	Nonce    uint64
	Deadline int64
}

// SignBytes builds the byte string that is actually signed:
//
//	signCode | len(name) name | len(version) version | chainID | len(contract) contract
//	        | ruleID | len(target) target | amount | nonce | deadline
//
// with all integers big-endian fixed width and all strings length-prefixed,
// then prehashed with sha512 for a constant-size signing input.
func SignBytes(d Domain, p Payload) []byte {
	out := make([]byte, 0, 64)
	out = append(out, signCodeV1...)
	out = appendString(out, d.Name)
	out = appendString(out, d.Version)
	out = appendUint64(out, d.ChainID)
	out = appendString(out, d.Contract)
	out = appendUint64(out, uint64(p.RuleID))
	out = appendString(out, p.Target)
	out = appendUint64(out, uint64(p.Amount))
	out = appendUint64(out, p.Nonce)
	out = appendUint64(out, uint64(p.Deadline))

	hashed := sha512.Sum512(out)
	return hashed[:]
}

// SignerAddress derives the address for an ed25519 public key: the first 20
// bytes of sha256(pubkey), hex encoded.
func SignerAddress(pub ed25519.PublicKey) string {
	h := sha256.Sum256(pub)
	return hex.EncodeToString(h[:addressLength])
}

// Sign produces the signature for the payload under the given domain. Used
// by the CLI and by tests; the server only ever verifies.
func Sign(priv ed25519.PrivateKey, d Domain, p Payload) []byte {
	return ed25519.Sign(priv, SignBytes(d, p))
}

func appendString(out []byte, s string) []byte {
	out = binary.BigEndian.AppendUint16(out, uint16(len(s)))
	return append(out, s...)
}

func appendUint64(out []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(out, v)
}
