package services

import (
	"github.com/mbocsi/chainlight/server"
)

// ServiceManagerImpl builds the service container for one process
type ServiceManagerImpl struct {
	originator *Originator
	services   *ServiceContainer
}

// NewServiceManager wires an originator on top of origin's transport and a
// node service over every hosted node.
func NewServiceManager(origin *server.Node, opts OriginatorOptions, nodes ...*server.Node) *ServiceManagerImpl {
	originator := NewOriginator(origin.Transport(), origin.Clock(), opts)
	return &ServiceManagerImpl{
		originator: originator,
		services: &ServiceContainer{
			Effect: originator,
			Node:   NewNodeService(nodes...),
		},
	}
}

// GetServices returns the service container
func (sm *ServiceManagerImpl) GetServices() *ServiceContainer {
	return sm.services
}

// Originator exposes the re-broadcast loop so it can run as a server.Service.
func (sm *ServiceManagerImpl) Originator() *Originator {
	return sm.originator
}
