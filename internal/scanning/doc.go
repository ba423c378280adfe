// Package scanning is the scan engine of reconnode.
//
// An Orchestrator drives one scan cycle at a time over a /24 host range and a
// port range. A cycle runs a discovery sweep, orders hosts with Prioritize so
// that hosts never seen before are visited first, and splits every live host's
// port range into Tasks. Tasks are executed by a fixed worker pool fed from a
// bounded queue; enqueueing blocks while the queue is full.
//
// # Lifecycle
//
//	Idle --StartScan--> Scanning --PauseScan--> Paused
//	                    Scanning <--ResumeScan-- Paused
//	Scanning|Paused --finalize--> Idle
//
// Pause is cooperative: workers poll the state between port probes. Nothing
// cancels a probe in flight.
//
// # Collaborators
//
// Discovery, liveness, port probing, hostname resolution, event publishing
// and cycle history are interfaces so that tests can substitute gomock doubles
// from the mocks package. Any collaborator failure is logged and treated as a
// negative answer; it never stops a worker or aborts a cycle.
//
// # Usage
//
//	orch := scanning.New(cfg.Scan, scanning.Deps{
//		Store:     results.NewDefault(),
//		Liveness:  liveness,
//		Prober:    probe.NewTCPProber(),
//	})
//	defer orch.Close()
//
//	if orch.StartScan() {
//		_ = orch.Wait(ctx)
//	}
package scanning
