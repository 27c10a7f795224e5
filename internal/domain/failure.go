package domain

import "time"

// FailedTransfer is a dead-lettered transfer that exhausted its download
// attempts or could not be processed at all.
type FailedTransfer struct {
	TransferID TransferID `json:"transferId"`
	Name       string     `json:"name"`
	Hash       string     `json:"hash,omitempty"`
	Attempts   int        `json:"attempts"`
	Reason     string     `json:"reason"`
	Targets    []string   `json:"failedTargets,omitempty"`
	FailedAt   time.Time  `json:"failedAt"`
}
