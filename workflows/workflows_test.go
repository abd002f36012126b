package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	orchestrator "github.com/RichieB2B/orchestrator-core"
	"github.com/RichieB2B/orchestrator-core/callback"
	"github.com/RichieB2B/orchestrator-core/store/sqlite"
	"github.com/RichieB2B/orchestrator-core/validate"
)

func acceptingValidator() *validate.Runner {
	return validate.New([]string{"sh", "-c", `cat >/dev/null; echo '{"valid":true}'`})
}

// bindLog returns a LogFunc that persists through store against pstat, then
// keeps pstat.State in sync so a caller-level store.Save afterward sees the
// right callback token and status.
func bindLog(store *sqlite.Store, pstat *orchestrator.ProcessStat) orchestrator.LogFunc {
	return func(step orchestrator.Step, result orchestrator.Process) orchestrator.Process {
		return store.WriteLog(context.Background(), pstat, step, result)
	}
}

// runAndPersist drives pstat through driver, then saves the resulting state
// and log position back to store — the same two-step contract
// callback.Server uses, needed because WriteLog (called per-step) sees
// pstat.State lagging one call behind until the caller assigns it.
func runAndPersist(t *testing.T, driver *orchestrator.Driver, store *sqlite.Store, pstat *orchestrator.ProcessStat) orchestrator.Process {
	t.Helper()
	ctx := context.Background()
	result := driver.RunWorkflow(ctx, pstat, bindLog(store, pstat))
	pstat.State = result
	if err := store.Save(ctx, pstat); err != nil {
		t.Fatalf("save: %v", err)
	}
	return result
}

// TestCreatePortWorkflowLifecycle drives the full create workflow through a
// human approval suspend, a simulated process restart (a fresh ProcessStat
// reloaded from the store rather than the in-memory one continuing), and a
// carrier callback round trip delivered through an actual callback.Server,
// ending in a completed, activated port.
func TestCreatePortWorkflowLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := orchestrator.NewWorkflowRegistry()
	runner := acceptingValidator()
	Register(reg, runner)

	store := sqlite.New(":memory:", reg)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	wf, ok := reg.Lookup("Provision Network Port")
	if !ok {
		t.Fatal("create workflow not registered")
	}

	initial := orchestrator.State{
		"circuit_id":  "CKT-100",
		"device_name": "edge-router-1",
		"port_speed":  "10G",
		"vlan_id":     float64(100),
		"description": "customer access port",
	}
	pstat := orchestrator.NewProcessStat(wf, initial, "alice", &orchestrator.UserRecord{ID: "alice", Roles: []string{"engineer"}})
	if err := store.Create(ctx, pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	driver := &orchestrator.Driver{}

	result := runAndPersist(t, driver, store, pstat)
	if !result.IsSuspend() {
		t.Fatalf("expected suspend at approval, got status %v", result.Status())
	}
	cfg, _ := orchestrator.AsState(result.Unwrap()["port_config"])
	if cfg["port_id"] != nil {
		t.Errorf("port should not be allocated before approval, got %v", cfg)
	}

	// Simulate a restart: abandon the in-memory pstat and reload a fresh one
	// from the store, resuming only off what was persisted.
	restarted, err := store.Load(ctx, pstat.ProcessID)
	if err != nil {
		t.Fatalf("load after restart: %v", err)
	}
	if !restarted.State.IsSuspend() {
		t.Fatalf("reloaded process should still be suspended, got %v", restarted.State.Status())
	}

	result = runAndPersist(t, driver, store, restarted)
	if !result.IsAwaitingCallback() {
		t.Fatalf("expected awaiting callback after approval, got status %v (%v)", result.Status(), result.Unwrap())
	}
	cfg, _ = orchestrator.AsState(result.Unwrap()["port_config"])
	if cfg["port_id"] != "edge-router-1/CKT-100" {
		t.Fatalf("expected port allocated before carrier activation, got %v", cfg)
	}
	if cfg["vlan_id"] != float64(100) {
		t.Errorf("expected vlan configured, got %v", cfg)
	}

	token, _ := result.Unwrap()[orchestrator.KeyCallbackToken].(string)
	if token == "" {
		t.Fatal("expected a callback token to have been allocated")
	}

	// Drive the carrier's callback through the real HTTP server, exactly as
	// an external system would.
	srv := callback.New(store, store, driver)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"accepted": true, "carrier_ref": "CARR-9"})
	route := orchestrator.CallbackRoutePrefix + restarted.ProcessID + "/callback/" + token
	resp, err := ts.Client().Post(ts.URL+route, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("callback post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("callback post: status %d", resp.StatusCode)
	}

	final, err := store.Load(ctx, restarted.ProcessID)
	if err != nil {
		t.Fatalf("load after callback: %v", err)
	}
	if !final.State.IsComplete() {
		t.Fatalf("expected completed process after callback, got %v (%v)", final.State.Status(), final.State.Unwrap())
	}
	if final.State.OverallStatus() != orchestrator.OverallCompleted {
		t.Errorf("expected OverallCompleted, got %v", final.State.OverallStatus())
	}
	finalCfg, _ := orchestrator.AsState(final.State.Unwrap()["port_config"])
	if finalCfg["activated"] != true {
		t.Errorf("expected port marked activated, got %v", finalCfg)
	}
	if _, stillPresent := final.State.Unwrap()[orchestrator.KeyCallbackToken]; stillPresent {
		t.Error("expected the spent callback token to have been cleaned up")
	}
}

// TestCreatePortWorkflowSkipsMissingVLAN exercises the Conditional gate:
// a request with no VLAN skips "Configure VLAN" (Skipped, not Failed) and
// still reaches the carrier activation suspend point.
func TestCreatePortWorkflowSkipsMissingVLAN(t *testing.T) {
	ctx := context.Background()
	reg := orchestrator.NewWorkflowRegistry()
	runner := acceptingValidator()
	Register(reg, runner)

	store := sqlite.New(":memory:", reg)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	wf, _ := reg.Lookup("Provision Network Port")

	initial := orchestrator.State{
		"circuit_id":  "CKT-200",
		"device_name": "edge-router-2",
		"port_speed":  "1G",
	}
	pstat := orchestrator.NewProcessStat(wf, initial, "bob", nil)
	if err := store.Create(ctx, pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	driver := &orchestrator.Driver{}
	result := runAndPersist(t, driver, store, pstat)
	if !result.IsSuspend() {
		t.Fatalf("expected suspend at approval, got %v", result.Status())
	}

	// Resume from a pstat reloaded from the store (Log recomputed from the
	// persisted log_position) rather than the in-memory one, so the second
	// run depends only on what was persisted.
	resumed, err := store.Load(ctx, pstat.ProcessID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	result = runAndPersist(t, driver, store, resumed)
	if !result.IsAwaitingCallback() {
		t.Fatalf("expected awaiting callback, got %v (%v)", result.Status(), result.Unwrap())
	}
	cfg, _ := orchestrator.AsState(result.Unwrap()["port_config"])
	if cfg["port_id"] != "edge-router-2/CKT-200" {
		t.Fatalf("expected port allocated without a vlan, got %v", cfg)
	}
	if _, hasVLAN := cfg["vlan_id"]; hasVLAN && cfg["vlan_id"] != float64(0) {
		t.Errorf("expected no vlan configuration applied, got %v", cfg)
	}
}

// TestValidatePortWorkflow runs the standalone validate-target workflow
// (no provisioning, no callback) straight through to completion.
func TestValidatePortWorkflow(t *testing.T) {
	ctx := context.Background()
	reg := orchestrator.NewWorkflowRegistry()
	runner := acceptingValidator()
	Register(reg, runner)

	store := sqlite.New(":memory:", reg)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	wf, _ := reg.Lookup("Validate Port Config")

	initial := orchestrator.State{"port_config": orchestrator.State{
		"circuit_id":  "CKT-300",
		"device_name": "edge-router-3",
		"port_speed":  "10G",
	}}
	pstat := orchestrator.NewProcessStat(wf, initial, "carol", nil)
	if err := store.Create(ctx, pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	driver := &orchestrator.Driver{}
	result := runAndPersist(t, driver, store, pstat)
	if !result.IsComplete() {
		t.Fatalf("expected the standalone validate workflow to complete without suspending, got %v (%v)", result.Status(), result.Unwrap())
	}
}

// TestValidatePortWorkflowRejectsInvalidConfig checks that a rejecting
// external validator coerces the process to Waiting (RetryStepOf's
// error-to-Waiting contract) rather than Failed.
func TestValidatePortWorkflowRejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()
	reg := orchestrator.NewWorkflowRegistry()
	rejecting := validate.New([]string{"sh", "-c", `cat >/dev/null; echo '{"valid":false,"errors":["speed unsupported on device"]}'`})
	Register(reg, rejecting)

	store := sqlite.New(":memory:", reg)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	wf, _ := reg.Lookup("Validate Port Config")

	initial := orchestrator.State{"port_config": orchestrator.State{
		"circuit_id":  "CKT-400",
		"device_name": "edge-router-4",
		"port_speed":  "400G",
	}}
	pstat := orchestrator.NewProcessStat(wf, initial, "dave", nil)
	if err := store.Create(ctx, pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	driver := &orchestrator.Driver{}
	result := runAndPersist(t, driver, store, pstat)
	if !result.IsWaiting() {
		t.Fatalf("expected waiting on a rejected validation, got %v (%v)", result.Status(), result.Unwrap())
	}
}

// TestModifyPortWorkflow applies a speed change to an already-provisioned
// port_config and re-validates it.
func TestModifyPortWorkflow(t *testing.T) {
	ctx := context.Background()
	reg := orchestrator.NewWorkflowRegistry()
	runner := acceptingValidator()
	Register(reg, runner)

	store := sqlite.New(":memory:", reg)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	wf, _ := reg.Lookup("Modify Network Port")

	initial := orchestrator.State{
		"circuit_id": "CKT-500",
		"port_speed": "100G",
		"vlan_id":    float64(200),
		"port_config": orchestrator.State{
			"circuit_id":  "CKT-500",
			"device_name": "edge-router-5",
			"port_speed":  "10G",
			"vlan_id":     float64(100),
			"port_id":     "edge-router-5/CKT-500",
			"activated":   true,
		},
	}
	pstat := orchestrator.NewProcessStat(wf, initial, "erin", nil)
	if err := store.Create(ctx, pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	driver := &orchestrator.Driver{}
	result := runAndPersist(t, driver, store, pstat)
	if !result.IsComplete() {
		t.Fatalf("expected the modify workflow to complete, got %v (%v)", result.Status(), result.Unwrap())
	}
	cfg, _ := orchestrator.AsState(result.Unwrap()["port_config"])
	if cfg["port_speed"] != "100G" || cfg["vlan_id"] != float64(200) {
		t.Errorf("expected port_config updated with the modify request, got %v", cfg)
	}
}

// TestDecommissionPortWorkflow walks the terminate workflow through its NOC
// confirmation suspend and the carrier teardown callback round trip,
// releasing the port on completion.
func TestDecommissionPortWorkflow(t *testing.T) {
	ctx := context.Background()
	reg := orchestrator.NewWorkflowRegistry()
	runner := acceptingValidator()
	Register(reg, runner)

	store := sqlite.New(":memory:", reg)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	wf, _ := reg.Lookup("Decommission Network Port")

	initial := orchestrator.State{
		"circuit_id": "CKT-600",
		"reason":     "customer churn",
		"port_config": orchestrator.State{
			"circuit_id":  "CKT-600",
			"device_name": "edge-router-6",
			"port_speed":  "10G",
			"port_id":     "edge-router-6/CKT-600",
			"activated":   true,
		},
	}
	noc := &orchestrator.UserRecord{ID: "noc-1", Roles: []string{"noc"}}
	pstat := orchestrator.NewProcessStat(wf, initial, "noc-1", noc)
	if err := store.Create(ctx, pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	driver := &orchestrator.Driver{}
	result := runAndPersist(t, driver, store, pstat)
	if !result.IsSuspend() {
		t.Fatalf("expected suspend awaiting NOC confirmation, got %v", result.Status())
	}

	resumed, err := store.Load(ctx, pstat.ProcessID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	result = runAndPersist(t, driver, store, resumed)
	if !result.IsAwaitingCallback() {
		t.Fatalf("expected awaiting callback from the carrier, got %v (%v)", result.Status(), result.Unwrap())
	}
	token, _ := result.Unwrap()[orchestrator.KeyCallbackToken].(string)
	if token == "" {
		t.Fatal("expected a callback token")
	}

	srv := callback.New(store, store, driver)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"accepted": true, "carrier_ref": "CARR-DECOM-1"})
	route := orchestrator.CallbackRoutePrefix + pstat.ProcessID + "/callback/" + token
	resp, err := ts.Client().Post(ts.URL+route, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("callback post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("callback post: status %d", resp.StatusCode)
	}

	final, err := store.Load(ctx, pstat.ProcessID)
	if err != nil {
		t.Fatalf("load after callback: %v", err)
	}
	if !final.State.IsComplete() {
		t.Fatalf("expected completed teardown, got %v (%v)", final.State.Status(), final.State.Unwrap())
	}
	cfg, _ := orchestrator.AsState(final.State.Unwrap()["port_config"])
	if cfg["activated"] != false {
		t.Errorf("expected port marked inactive, got %v", cfg)
	}
	if portID := cfg["port_id"]; portID != nil && portID != "" {
		t.Errorf("expected the port id cleared, got %v", cfg)
	}
}

// TestCarrierRejectionFailsActivation confirms that a carrier rejecting the
// callback payload drives the process to Failed rather than silently
// completing.
func TestCarrierRejectionFailsActivation(t *testing.T) {
	ctx := context.Background()
	reg := orchestrator.NewWorkflowRegistry()
	runner := acceptingValidator()
	Register(reg, runner)

	store := sqlite.New(":memory:", reg)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	wf, _ := reg.Lookup("Provision Network Port")

	initial := orchestrator.State{
		"circuit_id":  "CKT-700",
		"device_name": "edge-router-7",
		"port_speed":  "10G",
	}
	pstat := orchestrator.NewProcessStat(wf, initial, "frank", nil)
	if err := store.Create(ctx, pstat); err != nil {
		t.Fatalf("create: %v", err)
	}

	driver := &orchestrator.Driver{}
	runAndPersist(t, driver, store, pstat)
	resumed, err := store.Load(ctx, pstat.ProcessID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	result := runAndPersist(t, driver, store, resumed)
	if !result.IsAwaitingCallback() {
		t.Fatalf("expected awaiting callback, got %v", result.Status())
	}
	token, _ := result.Unwrap()[orchestrator.KeyCallbackToken].(string)

	srv := callback.New(store, store, driver)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"accepted": false, "message": "circuit not provisioned on our side"})
	route := orchestrator.CallbackRoutePrefix + pstat.ProcessID + "/callback/" + token
	resp, err := ts.Client().Post(ts.URL+route, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("callback post: %v", err)
	}
	defer resp.Body.Close()

	final, err := store.Load(ctx, pstat.ProcessID)
	if err != nil {
		t.Fatalf("load after callback: %v", err)
	}
	if !final.State.IsFailed() {
		t.Fatalf("expected failed process on carrier rejection, got %v (%v)", final.State.Status(), final.State.Unwrap())
	}
}
