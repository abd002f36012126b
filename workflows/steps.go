package workflows

import (
	"context"
	"fmt"

	orchestrator "github.com/RichieB2B/orchestrator-core"
	"github.com/RichieB2B/orchestrator-core/validate"
)

// initConfigState is the typed view StepOf binds the workflow's top-level
// state to while seeding PortConfig from the initial PortRequest. The
// embedded PortRequest promotes its fields to the top level of the JSON
// rendering, so this struct round-trips against the same state a
// PortRequest-shaped initial input form produces.
type initConfigState struct {
	PortRequest
	PortConfig PortConfig `json:"port_config"`
}

// initializePortConfigStep seeds state["port_config"] from the top-level
// request fields a create workflow's initial input form collected.
func initializePortConfigStep() orchestrator.Step {
	return orchestrator.StepOf("Initialize Port Config", func(ctx context.Context, s initConfigState) (initConfigState, error) {
		s.PortConfig = PortConfig{
			CircuitID:  s.CircuitID,
			DeviceName: s.DeviceName,
			PortSpeed:  s.PortSpeed,
			VLANID:     s.VLANID,
		}
		return s, nil
	})
}

// allocatePortStep assigns a port identifier on the target device. Meant to
// run focused onto "port_config" via Focus, so it only ever sees a
// PortConfig.
func allocatePortStep() orchestrator.Step {
	return orchestrator.StepOf("Allocate Port", func(ctx context.Context, cfg PortConfig) (PortConfig, error) {
		if cfg.DeviceName == "" || cfg.CircuitID == "" {
			return cfg, fmt.Errorf("allocate port: device and circuit id are required")
		}
		cfg.PortID = cfg.DeviceName + "/" + cfg.CircuitID
		return cfg, nil
	})
}

// focusPortConfig zooms step onto state["port_config"], the single-step
// shorthand for Focus used by steps that need it in isolation rather than as
// part of a larger focused StepList.
func focusPortConfig(step orchestrator.Step) orchestrator.Step {
	return orchestrator.Focus("port_config", orchestrator.StepList{step})[0]
}

// hasVLAN gates VLAN configuration: Conditional skips the step entirely when
// the request didn't ask for a tagged port.
func hasVLAN(s orchestrator.State) bool {
	v, ok := s["vlan_id"].(float64)
	return ok && v != 0
}

// configureVLANStep tags the allocated port with the requested VLAN. Only
// reached when hasVLAN(state) is true, via Conditional.
func configureVLANStep() orchestrator.Step {
	return orchestrator.StepOf("Configure VLAN", func(ctx context.Context, cfg PortConfig) (PortConfig, error) {
		if cfg.VLANID <= 0 {
			return cfg, fmt.Errorf("configure vlan: vlan id must be positive")
		}
		return cfg, nil
	})
}

// modifyState is the typed view applyModifyStep binds state to: the
// ModifyRequest collected by the modify workflow's initial input form,
// alongside the port_config built by a prior create run.
type modifyState struct {
	ModifyRequest
	PortConfig PortConfig `json:"port_config"`
}

// applyModifyStep merges a ModifyRequest's changed fields onto the existing
// port_config.
func applyModifyStep() orchestrator.Step {
	return orchestrator.StepOf("Apply Modification", func(ctx context.Context, in modifyState) (modifyState, error) {
		if in.PortSpeed != "" {
			in.PortConfig.PortSpeed = in.PortSpeed
		}
		if in.VLANID != 0 {
			in.PortConfig.VLANID = in.VLANID
		}
		return in, nil
	})
}

// deallocatePortStep releases a port being decommissioned.
func deallocatePortStep() orchestrator.Step {
	return orchestrator.MakeStep("Deallocate Port", func(ctx context.Context, s orchestrator.State) (orchestrator.State, error) {
		return s.WithoutKeys([]string{"port_id"}).Merge(orchestrator.State{"activated": false}), nil
	})
}

// sendCarrierActionStep builds the action half of a CallbackStep: it "sends"
// the activation or teardown request to the carrier (in a real deployment,
// an HTTP POST referencing the callback route CallbackStep already wrote to
// state) and simply records that it did so.
func sendCarrierActionStep(verb string) orchestrator.Step {
	return orchestrator.MakeStep(verb+" Carrier Request", func(ctx context.Context, s orchestrator.State) (orchestrator.State, error) {
		route, _ := s[orchestrator.DefaultCallbackRouteKey].(string)
		if route == "" {
			return nil, fmt.Errorf("%s carrier request: no callback route allocated", verb)
		}
		return s.Merge(orchestrator.State{"carrier_action": verb, "carrier_callback_route": route}), nil
	})
}

// carrierResultState is the typed view validateCarrierResponseStep binds
// state to once the callback's payload has been merged under
// "carrier_result".
type carrierResultState struct {
	CarrierResult CarrierResponse `json:"carrier_result"`
}

// validateCarrierResponseStep is CallbackStep's validateStep: it rejects the
// resumed process (Failed) if the carrier refused the request.
func validateCarrierResponseStep() orchestrator.Step {
	return orchestrator.MakeStep("Validate Carrier Response", func(ctx context.Context, s orchestrator.State) (orchestrator.State, error) {
		var parsed carrierResultState
		if err := orchestrator.UnmarshalState(s, &parsed); err != nil {
			return nil, fmt.Errorf("validate carrier response: %w", err)
		}
		if !parsed.CarrierResult.Accepted {
			return nil, fmt.Errorf("carrier rejected request: %s", parsed.CarrierResult.Message)
		}
		return s.Merge(orchestrator.State{"carrier_ref": parsed.CarrierResult.CarrierRef}), nil
	})
}

// markActivatedStep flips PortConfig.Activated once the carrier has
// confirmed.
func markActivatedStep() orchestrator.Step {
	return orchestrator.StepOf("Mark Port Activated", func(ctx context.Context, cfg PortConfig) (PortConfig, error) {
		cfg.Activated = true
		return cfg, nil
	})
}

// validateConfigStep runs the port_config sub-state through an external
// validator binary via RetryStepOf, so a transient validator failure
// (unreachable host, temporary lock) leaves the process Waiting for
// internal/scheduling to retry rather than terminally Failed.
func validateConfigStep(name string, runner *validate.Runner) orchestrator.Step {
	return orchestrator.RetryStepOf(name, func(ctx context.Context, cfg PortConfig) (PortConfig, error) {
		result, err := runner.Validate(ctx, cfg)
		if err != nil {
			return cfg, fmt.Errorf("validate port config: %w", err)
		}
		if !result.Valid {
			return cfg, fmt.Errorf("port config invalid: %v", result.Errors)
		}
		return cfg, nil
	})
}
