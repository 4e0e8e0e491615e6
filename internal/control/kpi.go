package control

import (
	"fmt"

	"flexible-assembly-sim/internal/persistence"
)

// KPI 是仿真结束时计算的关键绩效指标
type KPI struct {
	AvgLeadTime        float64 // 平均交付周期：完成订单的 (完成时间 - 下达时间) 均值
	StationUtilization float64 // 装配站利用率：繁忙时间 / 仿真跨度
	Throughput         float64 // 吞吐率：完成订单数 * 60 / 仿真跨度（订单/小时）
	FleetUtilization   float64 // 车队利用率：总繁忙时间 / (车数 * 仿真跨度)
	CompletedCount     int     // 完成订单数
	CanceledCount      int     // 取消订单数（不计入交付周期）
	SpanMinutes        int     // 仿真跨度：最晚完成时间 - 最早下达时间
}

// computeKPIs 汇总各实体的独立计数器，计算最终指标
// 只在 Stop 中、全部工作线程结束后调用一次
func (c *Center) computeKPIs() KPI {
	var kpi KPI
	if len(c.orders) == 0 {
		return kpi
	}

	totalLeadTime := 0.0
	maxCompletion := 0
	minRelease := c.orders[0].ReleaseTime
	for _, order := range c.orders {
		if order.ReleaseTime < minRelease {
			minRelease = order.ReleaseTime
		}
		if order.Canceled {
			kpi.CanceledCount++
			continue
		}
		if order.Completed {
			totalLeadTime += float64(order.CompletionTime - order.ReleaseTime)
			kpi.CompletedCount++
			if order.CompletionTime > maxCompletion {
				maxCompletion = order.CompletionTime
			}
		}
	}

	if kpi.CompletedCount > 0 {
		kpi.AvgLeadTime = totalLeadTime / float64(kpi.CompletedCount)
	}

	span := maxCompletion - minRelease
	if span <= 0 {
		// 退化情形：没有完成的订单，用当前仿真时间兜底
		span = c.SimulationTime()
		if span <= 0 {
			span = 1
		}
	}
	kpi.SpanMinutes = span

	stationBusy := 0
	if c.station != nil {
		stationBusy = c.station.TotalBusyTime()
	}
	kpi.StationUtilization = float64(stationBusy) / float64(span)
	kpi.Throughput = float64(kpi.CompletedCount) * 60.0 / float64(span)

	fleetBusy := 0
	fleetSize := len(c.fleet)
	if fleetSize == 0 {
		fleetSize = 1
	}
	for _, unit := range c.fleet {
		fleetBusy += unit.BusyMinutes()
	}
	kpi.FleetUtilization = float64(fleetBusy) / float64(fleetSize*span)

	c.LogEvent(fmt.Sprintf(
		"[Diag] totals: fleet_busy=%d, fleet_size=%d, span=%d, station_busy=%d, completed=%d, canceled=%d",
		fleetBusy, fleetSize, span, stationBusy, kpi.CompletedCount, kpi.CanceledCount))
	for _, unit := range c.fleet {
		c.LogEvent(fmt.Sprintf("[Diag] AGV%d busy_minutes=%d, total_operations=%d",
			unit.ID(), unit.BusyMinutes(), unit.TotalOperations()))
	}

	return kpi
}

// WriteReport 把最近一次计算的 KPI 写入报告文件
func (c *Center) WriteReport(path string) error {
	return persistence.WriteKPIReport(path, persistence.KPIReport{
		AvgLeadTime:        c.kpi.AvgLeadTime,
		StationUtilization: c.kpi.StationUtilization,
		Throughput:         c.kpi.Throughput,
		FleetUtilization:   c.kpi.FleetUtilization,
	})
}
