package workflows

import orchestrator "github.com/RichieB2B/orchestrator-core"

// decommissionConfirmForm surfaces the circuit and reason under review to
// the NOC operator who must confirm teardown before the carrier is
// notified.
func decommissionConfirmForm(s orchestrator.State) any {
	return orchestrator.State{
		"circuit_id": s["circuit_id"],
		"reason":     s["reason"],
		"prompt":     "confirm decommissioning this circuit?",
	}
}

// NewDecommissionPortWorkflow builds the terminate-target workflow: collect
// a DecommissionRequest, require NOC confirmation (InputStep with
// AssigneeNOC), tear the port down with the carrier over a callback round
// trip, then release the port locally.
func NewDecommissionPortWorkflow() *orchestrator.Workflow {
	steps := orchestrator.Begin.
		Append(orchestrator.InputStep("Confirm Decommission", decommissionConfirmForm, orchestrator.WithAssignee(orchestrator.AssigneeNOC))).
		Then(orchestrator.CallbackStep(
			"Decommission Circuit With Carrier",
			sendCarrierActionStep("Decommission"),
			validateCarrierResponseStep(),
			"carrier_result",
			"",
		)).
		Append(focusPortConfig(deallocatePortStep()))

	return orchestrator.NewWorkflow(
		"Decommission Network Port",
		"Tears down a customer access port and releases it for reuse.",
		orchestrator.TargetTerminate,
		steps,
		orchestrator.WithInitialInputForm(func(orchestrator.State) any { return DecommissionRequest{} }),
	)
}
