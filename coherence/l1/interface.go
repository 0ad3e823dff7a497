package l1

import "github.com/sarchlab/rubysim/coherence"

// Local abstraction layer for external dependencies.
//
//go:generate mockgen -destination "mock_local_test.go" -package $GOPACKAGE -write_package_comment=false -source interface.go

// Network carries messages to other controllers. It is implemented by
// noc.Network.
type Network interface {
	Send(msg *coherence.Msg) error
}

// DirectoryMapper tells which directory is home to an address.
type DirectoryMapper interface {
	HomeOf(addr uint64) coherence.ControllerID
}
