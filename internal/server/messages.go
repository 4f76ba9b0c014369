package server

import (
	"encoding/hex"
	"encoding/json"

	"TokenLedger/internal/event"
)

// Request and response messages of tokenledger.v1.TokenService. Addresses
// are 0x-hex or base58, amounts are base-10 strings.

type MetadataRequest struct{}

type MetadataResponse struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type TotalSupplyRequest struct{}

type BalanceOfRequest struct {
	Owner string `json:"owner"`
}

type AllowanceRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

type AmountResponse struct {
	Amount string `json:"amount"`
}

type TransferRequest struct {
	To             string `json:"to"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type TransferFromRequest struct {
	Owner          string `json:"owner"`
	To             string `json:"to"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ApproveRequest struct {
	Spender        string `json:"spender"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type MintRequest struct {
	To             string `json:"to"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type BurnRequest struct {
	From           string `json:"from"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Receipt describes a committed state change.
type Receipt struct {
	EventID   string          `json:"event_id"`
	Sequence  uint64          `json:"sequence"`
	EventType string          `json:"event_type"`
	StateHash string          `json:"state_hash"`
	Event     json.RawMessage `json:"event"`
}

type StatusRequest struct{}

// StatusResponse reports the commit position and a full invariant check.
type StatusResponse struct {
	Sequence       uint64 `json:"sequence"`
	StateHash      string `json:"state_hash"`
	Ready          bool   `json:"ready"`
	InvariantsOK   bool   `json:"invariants_ok"`
	InvariantError string `json:"invariant_error,omitempty"`
}

func newReceipt(env *event.Envelope) (*Receipt, error) {
	payload, err := event.MarshalPayload(env.Payload)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		EventID:   env.ID.String(),
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		StateHash: hex.EncodeToString(env.StateHash[:]),
		Event:     payload,
	}, nil
}
