package workflows

import (
	orchestrator "github.com/RichieB2B/orchestrator-core"
	"github.com/RichieB2B/orchestrator-core/validate"
)

// Register builds the full set of network-port workflows against runner and
// adds each to reg, so a ProcessStatStore can resolve a persisted
// workflow_name back into the live Workflow a suspended process belongs to.
func Register(reg *orchestrator.WorkflowRegistry, runner *validate.Runner) {
	reg.Register(NewCreatePortWorkflow(runner))
	reg.Register(NewModifyPortWorkflow(runner))
	reg.Register(NewDecommissionPortWorkflow())
	reg.Register(NewValidatePortWorkflow(runner))
}
