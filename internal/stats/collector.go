package stats

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/tupyy/stream-heartbeat/internal/entity"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const diskPath = "/"

// Listen holds the listen addresses of the media server per protocol.
type Listen struct {
	RTMP []string
	HTTP []string
	API  []string
	SRT  []string
	RTC  []string
}

type CollectorConfig struct {
	// Version of the reporting process.
	Version string

	// ServerID identifies the server. A random id is used if empty.
	ServerID string

	// NetworkIndex selects the local ip reported among the available ones.
	NetworkIndex int

	Listen Listen
}

// Collector builds heartbeats from the state of the process and the host.
// Ids are fixed at creation so Collect can be called concurrently.
type Collector struct {
	config    CollectorConfig
	serverID  string
	serviceID string
	pid       int
	source    StreamSource
}

func NewCollector(config CollectorConfig, source StreamSource) *Collector {
	serverID := config.ServerID
	if serverID == "" {
		serverID = uuid.NewString()
	}

	if source == nil {
		source = NopSource{}
	}

	return &Collector{
		config:    config,
		serverID:  serverID,
		serviceID: uuid.NewString()[:8],
		pid:       os.Getpid(),
		source:    source,
	}
}

func (c *Collector) ServerID() string {
	return c.serverID
}

func (c *Collector) ServiceID() string {
	return c.serviceID
}

// Collect builds a new heartbeat. Failing probes leave their fields empty; only the
// cancellation of ctx is reported as an error.
func (c *Collector) Collect(ctx context.Context, conf entity.ReporterConfig) (entity.Heartbeat, error) {
	if err := ctx.Err(); err != nil {
		return entity.Heartbeat{}, err
	}

	heartbeat := entity.Heartbeat{
		DeviceID:  conf.DeviceID,
		IP:        c.localIP(ctx),
		ServerID:  c.serverID,
		ServiceID: c.serviceID,
		Pid:       c.pid,
		Timestamp: strfmt.DateTime(time.Now()),
	}

	if conf.Summaries {
		summaries, err := c.summaries(ctx)
		if err != nil {
			return entity.Heartbeat{}, fmt.Errorf("cannot collect summaries: %w", err)
		}

		heartbeat.Summaries = summaries
	}

	if conf.Ports {
		heartbeat.RTMP = listenPorts(c.config.Listen.RTMP)
		heartbeat.HTTP = listenPorts(c.config.Listen.HTTP)
		heartbeat.API = listenPorts(c.config.Listen.API)
		heartbeat.SRT = listenPorts(c.config.Listen.SRT)
		heartbeat.RTC = listenPorts(c.config.Listen.RTC)
	}

	return heartbeat, nil
}

func (c *Collector) localIP(ctx context.Context) string {
	interfaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		zap.S().Debugw("cannot list network interfaces", "error", err)
		return ""
	}

	return pickIP(interfaces, c.config.NetworkIndex)
}

func (c *Collector) summaries(ctx context.Context) (*entity.Summaries, error) {
	s := &entity.Summaries{
		NowMs:   time.Now().UnixMilli(),
		Streams: c.source.Streams(),
		Clients: c.source.Clients(),
	}

	s.Self.Version = c.config.Version
	s.Self.Pid = c.pid
	s.System.CPUsOnline = runtime.NumCPU()

	// each probe writes its own fields
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.probeSelf(gctx, &s.Self)
		return gctx.Err()
	})

	g.Go(func() error {
		if percent, err := cpu.PercentWithContext(gctx, 0, false); err != nil {
			zap.S().Debugw("cannot read cpu usage", "error", err)
		} else if len(percent) > 0 {
			s.System.CPUPercent = percent[0]
		}

		if count, err := cpu.CountsWithContext(gctx, true); err != nil {
			zap.S().Debugw("cannot read cpu count", "error", err)
		} else {
			s.System.CPUs = count
		}

		return gctx.Err()
	})

	g.Go(func() error {
		if vm, err := mem.VirtualMemoryWithContext(gctx); err != nil {
			zap.S().Debugw("cannot read memory usage", "error", err)
		} else {
			s.System.MemRAMKbyte = vm.Total / 1024
			s.System.MemRAMPercent = vm.UsedPercent
		}

		if swap, err := mem.SwapMemoryWithContext(gctx); err != nil {
			zap.S().Debugw("cannot read swap usage", "error", err)
		} else {
			s.System.MemSwapKbyte = swap.Total / 1024
			s.System.MemSwapPercent = swap.UsedPercent
		}

		return gctx.Err()
	})

	g.Go(func() error {
		if avg, err := load.AvgWithContext(gctx); err != nil {
			zap.S().Debugw("cannot read load average", "error", err)
		} else {
			s.System.Load1m = avg.Load1
			s.System.Load5m = avg.Load5
			s.System.Load15m = avg.Load15
		}

		if uptime, err := host.UptimeWithContext(gctx); err != nil {
			zap.S().Debugw("cannot read host uptime", "error", err)
		} else {
			s.System.Uptime = uptime
		}

		return gctx.Err()
	})

	g.Go(func() error {
		if counters, err := psnet.IOCountersWithContext(gctx, false); err != nil {
			zap.S().Debugw("cannot read network counters", "error", err)
		} else if len(counters) > 0 {
			s.System.NetSendBytes = counters[0].BytesSent
			s.System.NetRecvBytes = counters[0].BytesRecv
		}

		if usage, err := disk.UsageWithContext(gctx, diskPath); err != nil {
			zap.S().Debugw("cannot read disk usage", "error", err, "path", diskPath)
		} else {
			s.System.DiskPercent = usage.UsedPercent
		}

		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s, nil
}

func (c *Collector) probeSelf(ctx context.Context, self *entity.SelfSummary) {
	p, err := process.NewProcessWithContext(ctx, int32(c.pid))
	if err != nil {
		zap.S().Debugw("cannot read process", "error", err, "pid", c.pid)
		return
	}

	if ppid, err := p.PpidWithContext(ctx); err == nil {
		self.Ppid = int(ppid)
	}

	if argv, err := p.CmdlineSliceWithContext(ctx); err == nil {
		self.Argv = argv
	}

	if cwd, err := p.CwdWithContext(ctx); err == nil {
		self.Cwd = cwd
	}

	if info, err := p.MemoryInfoWithContext(ctx); err == nil {
		self.MemKbyte = info.RSS / 1024
	}

	if percent, err := p.MemoryPercentWithContext(ctx); err == nil {
		self.MemPercent = percent
	}

	if percent, err := p.CPUPercentWithContext(ctx); err == nil {
		self.CPUPercent = percent
	}

	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		self.Uptime = int64(time.Since(time.UnixMilli(created)).Seconds())
	}
}
