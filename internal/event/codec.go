package event

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"TokenLedger/internal/ledger"

	"github.com/google/uuid"
)

// Wire forms. Addresses are 0x-hex, amounts are decimal strings so that
// values above 2^53 survive JSON consumers.

type transferJSON struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approvalJSON struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type envelopeJSON struct {
	ID             string          `json:"id"`
	Sequence       uint64          `json:"sequence"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	EventType      string          `json:"event_type"`
	Timestamp      time.Time       `json:"timestamp"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Payload        json.RawMessage `json:"payload"`
}

// MarshalPayload encodes a notification payload on its own.
func MarshalPayload(evt Event) ([]byte, error) {
	switch e := evt.(type) {
	case *Transfer:
		return json.Marshal(transferJSON{
			From:   ledger.FormatAddress(e.From),
			To:     ledger.FormatAddress(e.To),
			Amount: ledger.FormatAmount(e.Amount),
		})
	case *Approval:
		return json.Marshal(approvalJSON{
			Owner:   ledger.FormatAddress(e.Owner),
			Spender: ledger.FormatAddress(e.Spender),
			Amount:  ledger.FormatAmount(e.Amount),
		})
	default:
		return nil, fmt.Errorf("unsupported payload %T", evt)
	}
}

// UnmarshalPayload decodes a payload of the given type.
func UnmarshalPayload(et EventType, data []byte) (Event, error) {
	switch et {
	case EventTypeTransfer:
		var raw transferJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal transfer: %w", err)
		}
		from, err := ledger.ParseAddress(raw.From)
		if err != nil {
			return nil, err
		}
		to, err := ledger.ParseAddress(raw.To)
		if err != nil {
			return nil, err
		}
		amount, err := ledger.ParseAmount(raw.Amount)
		if err != nil {
			return nil, err
		}
		return &Transfer{From: from, To: to, Amount: amount}, nil

	case EventTypeApproval:
		var raw approvalJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal approval: %w", err)
		}
		owner, err := ledger.ParseAddress(raw.Owner)
		if err != nil {
			return nil, err
		}
		spender, err := ledger.ParseAddress(raw.Spender)
		if err != nil {
			return nil, err
		}
		amount, err := ledger.ParseAmount(raw.Amount)
		if err != nil {
			return nil, err
		}
		return &Approval{Owner: owner, Spender: spender, Amount: amount}, nil

	default:
		return nil, fmt.Errorf("unsupported event type %s", et)
	}
}

// MarshalEnvelope encodes env with its payload inline.
func MarshalEnvelope(env *Envelope) ([]byte, error) {
	payload, err := MarshalPayload(env.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeJSON{
		ID:             env.ID.String(),
		Sequence:       env.Sequence,
		IdempotencyKey: env.IdempotencyKey,
		EventType:      env.EventType.String(),
		Timestamp:      env.Timestamp.UTC(),
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		PrevHash:       hex.EncodeToString(env.PrevHash[:]),
		Payload:        payload,
	})
}

// UnmarshalEnvelope reverses MarshalEnvelope.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return nil, fmt.Errorf("envelope id: %w", err)
	}
	et := ParseEventType(raw.EventType)
	if et == EventTypeUnknown {
		return nil, fmt.Errorf("unknown event type %q", raw.EventType)
	}

	env := &Envelope{
		ID:             id,
		Sequence:       raw.Sequence,
		IdempotencyKey: raw.IdempotencyKey,
		EventType:      et,
		Timestamp:      raw.Timestamp,
	}
	if err := decodeHash(raw.StateHash, &env.StateHash); err != nil {
		return nil, fmt.Errorf("state hash: %w", err)
	}
	if err := decodeHash(raw.PrevHash, &env.PrevHash); err != nil {
		return nil, fmt.Errorf("prev hash: %w", err)
	}
	if env.Payload, err = UnmarshalPayload(et, raw.Payload); err != nil {
		return nil, err
	}
	return env, nil
}

func decodeHash(s string, dst *[32]byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst[:], b)
	return nil
}
