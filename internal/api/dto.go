package api

import (
	"encoding/hex"
	"fmt"

	"github.com/TimurManjosov/gotreasury/internal/authz"
	"github.com/TimurManjosov/gotreasury/internal/rules"
	"github.com/TimurManjosov/gotreasury/internal/store"
)

// authorizationDTO is the wire form of a signed mutation authorization. Key
// material travels hex-encoded.
type authorizationDTO struct {
	RuleID    int64  `json:"ruleId"`
	Target    string `json:"target"`
	Amount    int64  `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	PubKey    string `json:"pubKey"`
	Signature string `json:"signature"`
}

func (a authorizationDTO) toRequest() (authz.Request, error) {
	pub, err := hex.DecodeString(a.PubKey)
	if err != nil {
		return authz.Request{}, fmt.Errorf("pubKey is not valid hex: %w", err)
	}
	sig, err := hex.DecodeString(a.Signature)
	if err != nil {
		return authz.Request{}, fmt.Errorf("signature is not valid hex: %w", err)
	}
	return authz.Request{
		Payload: authz.Payload{
			RuleID:   a.RuleID,
			Target:   a.Target,
			Amount:   a.Amount,
			Nonce:    a.Nonce,
			Deadline: a.Deadline,
		},
		PubKey:    pub,
		Signature: sig,
	}, nil
}

type createRuleRequest struct {
	Rule          store.CreateParams `json:"rule"`
	Authorization authorizationDTO   `json:"authorization"`
}

type createRuleResponse struct {
	ID   int64  `json:"id"`
	ETag string `json:"etag"`
}

type updateRuleRequest struct {
	Patch         rules.Patch      `json:"patch"`
	Authorization authorizationDTO `json:"authorization"`
}

type updateRuleResponse struct {
	OK   bool   `json:"ok"`
	ETag string `json:"etag"`
}

type nonceResponse struct {
	Address  string `json:"address"`
	Nonce    uint64 `json:"nonce"`
	Consumed bool   `json:"consumed"`
}
