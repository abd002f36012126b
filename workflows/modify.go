package workflows

import (
	orchestrator "github.com/RichieB2B/orchestrator-core"
	"github.com/RichieB2B/orchestrator-core/validate"
)

// NewModifyPortWorkflow builds the modify-target workflow: collect a
// ModifyRequest against an existing port_config, apply the changed fields,
// and re-validate.
func NewModifyPortWorkflow(runner *validate.Runner) *orchestrator.Workflow {
	steps := orchestrator.Begin.
		Append(applyModifyStep()).
		Append(focusPortConfig(validateConfigStep("Validate Modified Port", runner)))

	return orchestrator.NewWorkflow(
		"Modify Network Port",
		"Applies speed or VLAN changes to an already-provisioned port.",
		orchestrator.TargetModify,
		steps,
		orchestrator.WithInitialInputForm(func(orchestrator.State) any { return ModifyRequest{} }),
	)
}
