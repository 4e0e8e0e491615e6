package persistence

import (
	"fmt"
	"os"
)

// KPIReport 是仿真结束时输出的四项关键绩效指标
type KPIReport struct {
	AvgLeadTime        float64 // 平均交付周期（分钟）
	StationUtilization float64 // 装配站利用率 (0.0 - 1.0)
	Throughput         float64 // 吞吐率（订单/小时）
	FleetUtilization   float64 // AGV 车队平均利用率 (0.0 - 1.0)
}

// WriteKPIReport 把 KPI 报告写入文件
func WriteKPIReport(path string, report KPIReport) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 KPI 报告失败: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "========================================")
	fmt.Fprintln(file, "  Key Performance Indicators Report    ")
	fmt.Fprintln(file, "========================================")
	fmt.Fprintln(file)
	fmt.Fprintf(file, "Average Lead Time: %.2f minutes\n", report.AvgLeadTime)
	fmt.Fprintf(file, "Assembly Station Utilization: %.2f%%\n", report.StationUtilization*100)
	fmt.Fprintf(file, "Throughput: %.2f orders/hour\n", report.Throughput)
	fmt.Fprintf(file, "Average AGV Utilization: %.2f%%\n", report.FleetUtilization*100)
	return nil
}
