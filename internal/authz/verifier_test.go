package authz

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
)

var testDomain = Domain{
	Name:     "gotreasury",
	Version:  "1",
	ChainID:  31337,
	Contract: "0x00000000000000000000000000000000000000aa",
}

func newSigner(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv, SignerAddress(pub)
}

func signedRequest(priv ed25519.PrivateKey, pub ed25519.PublicKey, p Payload) Request {
	return Request{
		Payload:   p,
		PubKey:    pub,
		Signature: Sign(priv, testDomain, p),
	}
}

func TestConsume_OK(t *testing.T) {
	pub, priv, addr := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{addr: true}).
		WithClock(func() int64 { return 1000 })

	p := Payload{RuleID: 1, Target: "treasury", Amount: 500, Nonce: 1, Deadline: 2000}
	got, err := v.Consume(signedRequest(priv, pub, p))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != addr {
		t.Errorf("expected signer %s, got %s", addr, got)
	}
}

func TestConsume_Expired(t *testing.T) {
	pub, priv, addr := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{addr: true}).
		WithClock(func() int64 { return 3000 })

	p := Payload{RuleID: 1, Nonce: 1, Deadline: 2999}
	if _, err := v.Consume(signedRequest(priv, pub, p)); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestConsume_DeadlineExactlyNow(t *testing.T) {
	pub, priv, addr := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{addr: true}).
		WithClock(func() int64 { return 3000 })

	p := Payload{RuleID: 1, Nonce: 1, Deadline: 3000}
	if _, err := v.Consume(signedRequest(priv, pub, p)); err != nil {
		t.Errorf("deadline == now must be accepted, got %v", err)
	}
}

func TestConsume_ReplayedNonce(t *testing.T) {
	pub, priv, addr := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{addr: true}).
		WithClock(func() int64 { return 1000 })

	p := Payload{RuleID: 1, Nonce: 5, Deadline: 2000}
	if _, err := v.Consume(signedRequest(priv, pub, p)); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}

	// Exact replay: signature is perfectly valid, nonce is not.
	if _, err := v.Consume(signedRequest(priv, pub, p)); !errors.Is(err, ErrReplayedNonce) {
		t.Errorf("expected ErrReplayedNonce, got %v", err)
	}

	// Lower nonce with a fresh signature fails too.
	lower := Payload{RuleID: 1, Nonce: 4, Deadline: 2000}
	if _, err := v.Consume(signedRequest(priv, pub, lower)); !errors.Is(err, ErrReplayedNonce) {
		t.Errorf("expected ErrReplayedNonce for lower nonce, got %v", err)
	}

	// Higher nonce proceeds.
	next := Payload{RuleID: 1, Nonce: 6, Deadline: 2000}
	if _, err := v.Consume(signedRequest(priv, pub, next)); err != nil {
		t.Errorf("higher nonce must pass, got %v", err)
	}
}

func TestConsume_UnauthorizedSigner(t *testing.T) {
	pub, priv, _ := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{}).
		WithClock(func() int64 { return 1000 })

	p := Payload{RuleID: 1, Nonce: 1, Deadline: 2000}
	if _, err := v.Consume(signedRequest(priv, pub, p)); !errors.Is(err, ErrUnauthorizedSigner) {
		t.Errorf("expected ErrUnauthorizedSigner, got %v", err)
	}
}

func TestConsume_TamperedPayload(t *testing.T) {
	pub, priv, addr := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{addr: true}).
		WithClock(func() int64 { return 1000 })

	p := Payload{RuleID: 1, Amount: 500, Nonce: 1, Deadline: 2000}
	req := signedRequest(priv, pub, p)
	req.Payload.Amount = 500_000
	if _, err := v.Consume(req); !errors.Is(err, ErrUnauthorizedSigner) {
		t.Errorf("expected ErrUnauthorizedSigner for tampered amount, got %v", err)
	}
}

func TestConsume_WrongDomainSignature(t *testing.T) {
	pub, priv, addr := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{addr: true}).
		WithClock(func() int64 { return 1000 })

	other := testDomain
	other.ChainID = 1
	p := Payload{RuleID: 1, Nonce: 1, Deadline: 2000}
	req := Request{Payload: p, PubKey: pub, Signature: Sign(priv, other, p)}
	if _, err := v.Consume(req); !errors.Is(err, ErrUnauthorizedSigner) {
		t.Errorf("cross-domain signature must not verify, got %v", err)
	}
}

func TestConsume_FailedConsumeDoesNotAdvanceNonce(t *testing.T) {
	pub, priv, addr := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{addr: true}).
		WithClock(func() int64 { return 1000 })

	// Expired request must not burn the nonce.
	stale := Payload{RuleID: 1, Nonce: 3, Deadline: 500}
	if _, err := v.Consume(signedRequest(priv, pub, stale)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	fresh := Payload{RuleID: 1, Nonce: 3, Deadline: 2000}
	if _, err := v.Consume(signedRequest(priv, pub, fresh)); err != nil {
		t.Errorf("nonce must still be usable after a failed consume, got %v", err)
	}
}

func TestConsume_ConcurrentSameNonce(t *testing.T) {
	pub, priv, addr := newSigner(t)
	v := NewVerifier(testDomain, StaticSignerList{addr: true}).
		WithClock(func() int64 { return 1000 })

	const attempts = 32
	p := Payload{RuleID: 1, Nonce: 9, Deadline: 2000}
	req := signedRequest(priv, pub, p)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Consume(req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrReplayedNonce) {
			t.Errorf("unexpected error kind: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("exactly one concurrent consume must succeed, got %d", succeeded)
	}
}

func TestSignBytes_DomainSeparation(t *testing.T) {
	p := Payload{RuleID: 1, Target: "t", Amount: 5, Nonce: 1, Deadline: 100}

	a := SignBytes(testDomain, p)
	for _, variant := range []Domain{
		{Name: "other", Version: "1", ChainID: 31337, Contract: testDomain.Contract},
		{Name: "gotreasury", Version: "2", ChainID: 31337, Contract: testDomain.Contract},
		{Name: "gotreasury", Version: "1", ChainID: 1, Contract: testDomain.Contract},
		{Name: "gotreasury", Version: "1", ChainID: 31337, Contract: "0xbb"},
	} {
		if bytes.Equal(a, SignBytes(variant, p)) {
			t.Errorf("sign bytes must differ across domains: %+v", variant)
		}
	}
}

func TestSignerAddress_Deterministic(t *testing.T) {
	pub, _, _ := newSigner(t)
	a, b := SignerAddress(pub), SignerAddress(pub)
	if a != b {
		t.Errorf("address derivation must be deterministic: %s vs %s", a, b)
	}
	if len(a) != addressLength*2 {
		t.Errorf("expected %d hex chars, got %d", addressLength*2, len(a))
	}
}
