package clientside

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/modelgate/modelgate/internal/wire"
)

// sampleSystemInfo gathers the host metrics carried on a SystemInfo
// message. Each sub-sample is independent and best-effort: a failure
// in one (e.g. no disk at "/") leaves that field zeroed rather than
// failing the whole sample, since a partial report is still useful to
// the server's presence view.
func sampleSystemInfo(ctx context.Context) wire.SystemInfoPayload {
	var payload wire.SystemInfoPayload

	if pct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(pct) > 0 {
		payload.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		payload.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		payload.DiskPercent = du.UsedPercent
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		payload.ComputerName = info.Hostname
	}
	return payload
}
