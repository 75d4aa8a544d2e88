package authz

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Authorization failure taxonomy. Checks run in this order and short-circuit
// on the first failure.
var (
	ErrExpired            = errors.New("authorization expired")
	ErrReplayedNonce      = errors.New("authorization nonce already consumed")
	ErrUnauthorizedSigner = errors.New("signer not authorized")
)

// SignerList is the external collaborator that decides which addresses may
// mutate rules.
type SignerList interface {
	IsAuthorized(address string) bool
}

// StaticSignerList is a fixed, config-provided signer set.
type StaticSignerList map[string]bool

func (l StaticSignerList) IsAuthorized(address string) bool { return l[address] }

// Request is an ephemeral, signed rule-mutation authorization. It is consumed
// exactly once; replaying a consumed nonce always fails.
type Request struct {
	Payload   Payload
	PubKey    ed25519.PublicKey
	Signature []byte
}

// Verifier checks authorization requests against the deployment domain and
// tracks the highest consumed nonce per signer.
type Verifier struct {
	domain  Domain
	signers SignerList
	now     func() int64

	mu        sync.Mutex
	lastNonce map[string]uint64
}

// NewVerifier creates a verifier for the given domain and signer list.
func NewVerifier(domain Domain, signers SignerList) *Verifier {
	return &Verifier{
		domain:    domain,
		signers:   signers,
		now:       func() int64 { return time.Now().Unix() },
		lastNonce: make(map[string]uint64),
	}
}

// WithClock overrides the time source. For tests.
func (v *Verifier) WithClock(now func() int64) *Verifier {
	v.now = now
	return v
}

// Consume verifies the request and, on success, advances the signer's nonce
// before returning. The checks and the nonce advancement happen under one
// lock, so two concurrent requests with the same nonce cannot both pass.
//
// The nonce stays consumed even if the mutation the request authorized later
// fails validation; a retry needs a fresh nonce.
//
// Returns the signer address on success.
func (v *Verifier) Consume(req Request) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if req.Payload.Deadline < v.now() {
		return "", fmt.Errorf("%w: deadline %d", ErrExpired, req.Payload.Deadline)
	}

	if len(req.PubKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: malformed public key", ErrUnauthorizedSigner)
	}
	addr := SignerAddress(req.PubKey)

	if last, ok := v.lastNonce[addr]; ok && req.Payload.Nonce <= last {
		return "", fmt.Errorf("%w: nonce %d, last seen %d", ErrReplayedNonce, req.Payload.Nonce, last)
	}

	if !ed25519.Verify(req.PubKey, SignBytes(v.domain, req.Payload), req.Signature) {
		return "", fmt.Errorf("%w: signature does not verify", ErrUnauthorizedSigner)
	}
	if !v.signers.IsAuthorized(addr) {
		return "", fmt.Errorf("%w: %s", ErrUnauthorizedSigner, addr)
	}

	v.lastNonce[addr] = req.Payload.Nonce
	return addr, nil
}

// LastNonce returns the highest consumed nonce for a signer, and whether the
// signer has consumed any nonce at all. Exposed for inspection surfaces.
func (v *Verifier) LastNonce(address string) (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, ok := v.lastNonce[address]
	return n, ok
}
