package services

import (
	"fmt"

	"github.com/mbocsi/chainlight/proto"
	"github.com/mbocsi/chainlight/server"
)

// NodeServiceImpl implements NodeService
type NodeServiceImpl struct {
	nodes []*server.Node
}

func NewNodeService(nodes ...*server.Node) NodeService {
	return &NodeServiceImpl{nodes: nodes}
}

func (ns *NodeServiceImpl) find(index int) (*server.Node, error) {
	for _, n := range ns.nodes {
		if n.Index() == index {
			return n, nil
		}
	}
	return nil, ServiceError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Node not found: %d", index),
	}
}

func (ns *NodeServiceImpl) ListNodes() ([]NodeInfo, error) {
	result := make([]NodeInfo, 0, len(ns.nodes))
	for _, n := range ns.nodes {
		result = append(result, convertNodeStatus(n))
	}
	return result, nil
}

func (ns *NodeServiceImpl) GetNode(index int) (*NodeInfo, error) {
	n, err := ns.find(index)
	if err != nil {
		return nil, err
	}
	info := convertNodeStatus(n)
	return &info, nil
}

// GetFrame returns the last shown strip frame of a node.
func (ns *NodeServiceImpl) GetFrame(index int) ([]proto.Color, error) {
	n, err := ns.find(index)
	if err != nil {
		return nil, err
	}
	frame := n.Frame()
	if frame == nil {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("Node %d keeps no frame buffer", index),
		}
	}
	return frame, nil
}
