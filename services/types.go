package services

import (
	"github.com/mbocsi/chainlight/server"
)

// BreathRequest describes a breath to originate. Nil TTL and OffsetMs take
// the defaults.
type BreathRequest struct {
	R         uint8   `json:"r"`
	G         uint8   `json:"g"`
	B         uint8   `json:"b"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	RiseMs    uint32  `json:"rise_ms"`
	FallMs    uint32  `json:"fall_ms"`
	Cycles    uint16  `json:"cycles"`
	Interrupt bool    `json:"interrupt"`
	TTL       *uint8  `json:"ttl,omitempty"`
	OffsetMs  *uint32 `json:"offset_ms,omitempty"`
}

type FlickerRequest struct {
	OnMs      uint16  `json:"on_ms"`
	OffMs     uint16  `json:"off_ms"`
	Cycles    uint16  `json:"cycles"`
	Invert    bool    `json:"invert"`
	Interrupt bool    `json:"interrupt"`
	TTL       *uint8  `json:"ttl,omitempty"`
	OffsetMs  *uint32 `json:"offset_ms,omitempty"`
}

// TestRequest always interrupts.
type TestRequest struct {
	StepMs   uint16  `json:"step_ms"`
	R        uint8   `json:"r"`
	G        uint8   `json:"g"`
	B        uint8   `json:"b"`
	TTL      *uint8  `json:"ttl,omitempty"`
	OffsetMs *uint32 `json:"offset_ms,omitempty"`
}

// OriginInfo identifies an originated command.
type OriginInfo struct {
	ID    string `json:"id"`
	Mode  string `json:"mode"`
	Seq   uint32 `json:"seq"`
	Start uint32 `json:"start_ms"`
	TTL   uint8  `json:"ttl"`
}

// NodeInfo is a node status plus its role in the chain.
type NodeInfo struct {
	server.NodeStatus
	Role string `json:"role"` // origin, relay or last
}

// ServiceError represents structured service layer errors
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error { return e.Cause }

// Common error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeSendFailed   = "SEND_FAILED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)
