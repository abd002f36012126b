package workflows

import (
	orchestrator "github.com/RichieB2B/orchestrator-core"
	"github.com/RichieB2B/orchestrator-core/validate"
)

// NewValidatePortWorkflow builds the validate-target workflow: run a
// standalone port_config through the external validator, independent of any
// create or modify run. Used by operators checking a candidate
// configuration before submitting it through NewCreatePortWorkflow or
// NewModifyPortWorkflow.
func NewValidatePortWorkflow(runner *validate.Runner) *orchestrator.Workflow {
	steps := orchestrator.Begin.
		Append(focusPortConfig(validateConfigStep("Validate Port Config", runner)))

	return orchestrator.NewWorkflow(
		"Validate Port Config",
		"Checks a candidate port configuration against the external validator without provisioning anything.",
		orchestrator.TargetValidate,
		steps,
		orchestrator.WithInitialInputForm(func(orchestrator.State) any {
			return orchestrator.State{"port_config": PortConfig{}}
		}),
	)
}
