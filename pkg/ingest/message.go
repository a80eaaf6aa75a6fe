package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StreamerMessage is one NEAR block with the chunks of every shard, as
// published by NEAR Lake
type StreamerMessage struct {
	Block  BlockView `json:"block"`
	Shards []Shard   `json:"shards"`
}

type BlockView struct {
	Header BlockHeader       `json:"header"`
	Chunks []json.RawMessage `json:"chunks"`
}

type BlockHeader struct {
	Height uint64 `json:"height"`
	// Timestamp is in unix nanoseconds
	Timestamp uint64 `json:"timestamp"`
}

type Shard struct {
	ShardID uint64 `json:"shard_id"`
	Chunk   *Chunk `json:"chunk"`
}

type Chunk struct {
	Receipts []ReceiptView `json:"receipts"`
}

type ReceiptView struct {
	ReceiverID string      `json:"receiver_id"`
	Receipt    ReceiptEnum `json:"receipt"`
}

// ReceiptEnum holds whichever variant is present; only Action receipts carry
// function calls
type ReceiptEnum struct {
	Action *ActionReceipt `json:"Action,omitempty"`
}

type ActionReceipt struct {
	Actions []Action `json:"actions"`
}

// Action is an externally tagged enum: either a bare variant name such as
// "CreateAccount", or an object with a single key naming the variant
type Action struct {
	Kind         string
	FunctionCall *FunctionCallAction
}

type FunctionCallAction struct {
	MethodName string `json:"method_name"`
	// Args is base64 encoded
	Args string `json:"args"`
}

const kindFunctionCall = "FunctionCall"

func (a *Action) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.Kind)
	}
	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		return fmt.Errorf("decoding action: %w", err)
	}
	if len(variants) != 1 {
		return fmt.Errorf("decoding action: expected one variant, got %d", len(variants))
	}
	for kind, body := range variants {
		a.Kind = kind
		if kind == kindFunctionCall {
			a.FunctionCall = new(FunctionCallAction)
			if err := json.Unmarshal(body, a.FunctionCall); err != nil {
				return fmt.Errorf("decoding %s action: %w", kind, err)
			}
		}
	}
	return nil
}

func (a Action) MarshalJSON() ([]byte, error) {
	if a.FunctionCall != nil {
		return json.Marshal(map[string]*FunctionCallAction{kindFunctionCall: a.FunctionCall})
	}
	return json.Marshal(a.Kind)
}
