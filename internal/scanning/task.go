package scanning

import (
	"context"
	"fmt"
	"time"

	"github.com/anstrom/reconnode/internal/publish"
	"github.com/anstrom/reconnode/internal/risk"
)

// JobTypeScanTask labels scan tasks in worker pool metrics.
const JobTypeScanTask = "scan_task"

// bannerPorts are probed with banner capture when banner grabbing is enabled.
var bannerPorts = map[uint16]bool{
	21:  true,
	22:  true,
	23:  true,
	80:  true,
	443: true,
}

// taskJob executes one Task on the worker pool.
type taskJob struct {
	orch *Orchestrator
	run  *scanRun
	task Task
}

func (j *taskJob) ID() string {
	return fmt.Sprintf("%s/%d:%d-%d", j.run.id, j.task.HostID, j.task.PortStart, j.task.PortEnd)
}

func (j *taskJob) Type() string {
	return JobTypeScanTask
}

// Execute probes every port of the task in order. Probe failures count as
// closed; the job itself never fails.
func (j *taskJob) Execute(ctx context.Context) error {
	o := j.orch
	cfg := j.run.cfg
	store := o.deps.Store
	hostID := j.task.HostID
	addr := cfg.HostAddr(hostID)

	poll := cfg.PausePollInterval
	if poll <= 0 {
		poll = DefaultPausePollInterval
	}

	started := o.now()
	found := 0

	for p := int(j.task.PortStart); p <= int(j.task.PortEnd); p++ {
		port := uint16(p)
		if ctx.Err() != nil || !o.waitWhilePaused(ctx, poll) {
			return nil
		}

		o.updateProgress(func(pr *Progress) {
			pr.CurrentHost = addr
			pr.CurrentPort = port
			pr.PortsScanned++
		})

		open, banner := j.probe(ctx, addr, port)
		o.metrics.IncrementPortsProbed()
		if !open {
			continue
		}

		found++
		store.Add(hostID, port, banner)
		o.metrics.IncrementOpenPorts()
		o.publish(ctx, j.run, publish.HostTopic(o.deps.TopicPrefix, addr),
			publish.OpenPort(port, banner), "open_port")
		j.run.logger.Info("Open port", "target", addr, "port", port, "banner", banner)
	}

	if found == 0 {
		return nil
	}

	elapsed := o.now().Sub(started)
	assessment, _ := store.Reclassify(hostID, elapsed/time.Duration(found), risk.Classify)

	j.run.logger.Info("Classified host",
		"target", addr,
		"device_type", assessment.DeviceType,
		"risk_score", assessment.Score,
		"open_in_task", found)
	return nil
}

func (j *taskJob) probe(ctx context.Context, addr string, port uint16) (bool, string) {
	cfg := j.run.cfg
	prober := j.orch.deps.Prober
	if cfg.EnableBannerGrab && bannerPorts[port] {
		return prober.ProbeWithBanner(ctx, addr, port, cfg.Timeout)
	}
	return prober.Probe(ctx, addr, port, cfg.Timeout), ""
}
