package workflows

import (
	orchestrator "github.com/RichieB2B/orchestrator-core"
	"github.com/RichieB2B/orchestrator-core/validate"
)

// approvalForm describes the confirmation screen shown at the "Await
// Approval" suspend point: the port_config built so far, for the approver
// to review before the device is actually touched.
func approvalForm(s orchestrator.State) any {
	cfg, _ := orchestrator.AsState(s["port_config"])
	return orchestrator.State{"port_config": cfg, "prompt": "approve provisioning this port?"}
}

// NewCreatePortWorkflow builds the create-target workflow: collect a
// PortRequest, seed port_config from it, suspend for human approval
// (InputStep), provision the port as a single logical step (StepGroup over
// Focus'd, Conditional-gated sub-steps), activate it with the carrier over a
// callback round trip (CallbackStep), and finally validate the resulting
// configuration against an external validator (RetryStepOf via
// validateConfigStep).
func NewCreatePortWorkflow(runner *validate.Runner) *orchestrator.Workflow {
	provisionSteps := orchestrator.Begin.
		Append(allocatePortStep()).
		Concat(orchestrator.Conditional(hasVLAN, orchestrator.StepList{configureVLANStep()}))

	steps := orchestrator.Begin.
		Append(initializePortConfigStep()).
		Append(orchestrator.InputStep("Await Approval", approvalForm)).
		Append(orchestrator.StepGroup("Provision Port", orchestrator.Focus("port_config", provisionSteps), false)).
		Then(orchestrator.CallbackStep(
			"Activate Circuit With Carrier",
			sendCarrierActionStep("Activate"),
			validateCarrierResponseStep(),
			"carrier_result",
			"",
		)).
		Append(focusPortConfig(markActivatedStep())).
		Append(focusPortConfig(validateConfigStep("Validate Provisioned Port", runner)))

	return orchestrator.NewWorkflow(
		"Provision Network Port",
		"Allocates and activates a customer access port on a carrier circuit.",
		orchestrator.TargetCreate,
		steps,
		orchestrator.WithInitialInputForm(func(orchestrator.State) any { return PortRequest{} }),
	)
}
