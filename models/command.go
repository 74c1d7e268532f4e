package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdScanNow       CommandType = "scan_now"
	CmdPause         CommandType = "pause"
	CmdResume        CommandType = "resume"
	CmdAddPreference CommandType = "add_preference"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}
