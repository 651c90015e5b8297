package services

import (
	"fmt"
	"math"

	"github.com/mbocsi/chainlight/proto"
	"github.com/mbocsi/chainlight/server"
)

func invalid(format string, args ...any) error {
	return ServiceError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func orDefault[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// validateOffset keeps the start lead inside the window receivers honor;
// anything beyond it would be rebased to the skew fallback.
func validateOffset(offset *uint32) error {
	if offset != nil && *offset > proto.MaxLeadMs {
		return invalid("offset_ms must be at most %d, got %d", proto.MaxLeadMs, *offset)
	}
	return nil
}

func validateBreath(req BreathRequest) error {
	if math.IsNaN(req.Min) || math.IsNaN(req.Max) || math.IsInf(req.Min, 0) || math.IsInf(req.Max, 0) {
		return invalid("min and max must be finite")
	}
	return validateOffset(req.OffsetMs)
}

func validateFlicker(req FlickerRequest) error {
	return validateOffset(req.OffsetMs)
}

func validateTest(req TestRequest) error {
	return validateOffset(req.OffsetMs)
}

func convertNodeStatus(n *server.Node) NodeInfo {
	st := n.Status()
	role := "relay"
	switch {
	case st.Index == server.OriginIndex:
		role = "origin"
	case !n.Transport().HasNext():
		role = "last"
	}
	return NodeInfo{NodeStatus: st, Role: role}
}
