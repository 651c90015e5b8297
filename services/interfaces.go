package services

import (
	"github.com/mbocsi/chainlight/proto"
)

// EffectService originates commands into the chain. Each call returns once
// the frame has been handed to the transport.
type EffectService interface {
	StartBreath(req BreathRequest) (*OriginInfo, error)
	StartFlicker(req FlickerRequest) (*OriginInfo, error)
	StartTestChain(req TestRequest) (*OriginInfo, error)

	// Named shortcuts such as "red" or "clear"
	ApplyPreset(name string) (*OriginInfo, error)
	ListPresets() []string
}

// NodeService reports on the nodes hosted by this process.
type NodeService interface {
	ListNodes() ([]NodeInfo, error)
	GetNode(index int) (*NodeInfo, error)
	GetFrame(index int) ([]proto.Color, error)
}

// ServiceContainer holds all service implementations
type ServiceContainer struct {
	Effect EffectService
	Node   NodeService
}
