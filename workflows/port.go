// Package workflows ships a handful of representative workflow definitions
// against a network-port domain: provisioning, modifying, decommissioning,
// and standalone validation of a carrier circuit's access port. Every
// composition operator the core exposes (Conditional, StepLens/Focus,
// StepGroup, CallbackStep, InputStep) is exercised by at least one of them.
package workflows

// PortRequest is the input form collected before a create workflow's first
// step runs: the circuit and port a customer is requesting be provisioned.
type PortRequest struct {
	CircuitID   string `json:"circuit_id"`
	DeviceName  string `json:"device_name"`
	PortSpeed   string `json:"port_speed"`
	VLANID      int    `json:"vlan_id,omitempty"`
	Description string `json:"description"`
}

// PortConfig is the resolved configuration a create/modify workflow builds
// up as it runs, and the shape handed to the external validator.
type PortConfig struct {
	CircuitID  string `json:"circuit_id"`
	DeviceName string `json:"device_name"`
	PortSpeed  string `json:"port_speed"`
	VLANID     int    `json:"vlan_id,omitempty"`
	PortID     string `json:"port_id,omitempty"`
	Activated  bool   `json:"activated"`
}

// ModifyRequest is the input form for a modify workflow: the circuit being
// changed plus the new values to apply.
type ModifyRequest struct {
	CircuitID string `json:"circuit_id"`
	PortSpeed string `json:"port_speed,omitempty"`
	VLANID    int    `json:"vlan_id,omitempty"`
}

// DecommissionRequest is the input form for a decommission workflow.
type DecommissionRequest struct {
	CircuitID string `json:"circuit_id"`
	Reason    string `json:"reason"`
}

// CarrierResponse is the payload an external carrier system POSTs back to a
// CallbackStep's endpoint once it has actioned an activation or teardown
// request.
type CarrierResponse struct {
	Accepted   bool   `json:"accepted"`
	CarrierRef string `json:"carrier_ref"`
	Message    string `json:"message,omitempty"`
}
