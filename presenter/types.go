package presenter

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/tally-relay/entity"
)

type DeadLetterInfo struct {
	ID           uint            `json:"id"`
	EventBlock   uint64          `json:"event_block"`
	SourceTxHash common.Hash     `json:"source_tx_hash"`
	LogIndex     uint            `json:"log_index"`
	Payload      json.RawMessage `json:"payload"`
	Error        string          `json:"error"`
	Attempts     uint            `json:"attempts"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

func deadLetterToInfo(dl *entity.DeadLetter) *DeadLetterInfo {
	info := &DeadLetterInfo{
		ID:           dl.ID,
		EventBlock:   dl.EventBlock,
		SourceTxHash: dl.SourceTxHash,
		LogIndex:     dl.LogIndex,
		Error:        dl.Error,
		Attempts:     dl.Attempts,
		CreatedAt:    dl.CreatedAt,
		UpdatedAt:    dl.UpdatedAt,
	}
	if json.Valid(dl.Payload) {
		info.Payload = dl.Payload
	}
	return info
}
