package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// OrdersInQueue 仪表盘：备料队列中等待的订单数量
	// 用于监控备料环节的积压情况
	OrdersInQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "station_orders_in_queue",
		Help: "The number of released orders waiting in the staging queue",
	})

	// OrdersReady 仪表盘：组件齐套、等待装配线的订单数量
	OrdersReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "station_orders_ready",
		Help: "The number of fully delivered orders waiting for an assembly line",
	})

	// OrdersProcessedTotal 计数器：终态订单总数
	// 按结果 (completed/canceled) 分类
	OrdersProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "control_orders_processed_total",
		Help: "The total number of orders that reached a terminal state",
	}, []string{"result"})

	// AssemblyDuration 直方图：装配耗时分布（仿真分钟）
	// 用于分析不同装配线的负载
	AssemblyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "station_assembly_duration_minutes",
		Help:    "Simulated assembly time (base + setup) per order",
		Buckets: []float64{5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"line"})

	// TransportTasksTotal 计数器：AGV 完成的运输任务总数
	// 按任务类型 (delivery/return) 分类
	TransportTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agv_transport_tasks_total",
		Help: "The total number of transport tasks completed by the fleet",
	}, []string{"kind"})

	// AGVBusyMinutes 计数器：各 AGV 累计繁忙仿真分钟数
	AGVBusyMinutes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agv_busy_minutes_total",
		Help: "Accumulated busy simulated minutes per AGV",
	}, []string{"agv_id"})
)
