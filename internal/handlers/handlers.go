package handlers

import (
	"log/slog"
	"strconv"

	"flexible-assembly-sim/internal/event"
	"flexible-assembly-sim/internal/metrics"
	"flexible-assembly-sim/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 这是事件驱动架构的核心：指标、看板和审计日志都通过订阅解耦，
// 仿真核心组件只管发布事件
func RegisterEventHandlers(bus *event.Bus, st *web.StateTracker, logger *slog.Logger) {
	// --- 指标处理器 (Metrics Handler) ---
	// 订阅运输任务完成事件，累计任务数和各 AGV 的繁忙分钟
	bus.Subscribe(event.TaskCompleted, func(e event.Event) {
		metrics.TransportTasksTotal.WithLabelValues(e.State).Inc()
		metrics.AGVBusyMinutes.WithLabelValues(strconv.Itoa(e.AGVID)).Add(float64(e.Minutes))
	})

	// --- 看板处理器 (Dashboard Handler) ---
	bus.Subscribe(event.OrderReleased, func(e event.Event) {
		if e.Order != nil {
			st.OrderReleased(*e.Order, e.SimTime)
		}
	})
	bus.Subscribe(event.OrderStaged, func(e event.Event) {
		st.UpdateOrderStatus(e.OrderID, "STAGING", 0)
	})
	bus.Subscribe(event.OrderReady, func(e event.Event) {
		st.UpdateOrderStatus(e.OrderID, "READY", 0)
	})
	bus.Subscribe(event.OrderCompleted, func(e event.Event) {
		st.OrderCompleted(e.OrderID, e.Line, e.SimTime)
	})
	bus.Subscribe(event.OrderCanceled, func(e event.Event) {
		st.UpdateOrderStatus(e.OrderID, "CANCELED", 0)
	})
	bus.Subscribe(event.AGVStateChanged, func(e event.Event) {
		st.UpdateAGV(e.AGVID, e.State)
	})
	bus.Subscribe(event.FinishedProductStored, func(e event.Event) {
		st.ProductStored(e.Product)
	})

	// --- 日志处理器 (Logging Handler) ---
	// 订阅关键业务事件，记录审计日志
	bus.Subscribe(event.OrderCompleted, func(e event.Event) {
		logger.Info("订单处理成功", "order_id", e.OrderID, "line", e.Line, "completion_time", e.SimTime)
	})
	bus.Subscribe(event.OrderCanceled, func(e event.Event) {
		if e.Order != nil {
			logger.Warn("订单已取消", "order_id", e.OrderID, "product_id", e.Order.ProductID)
		}
	})
	bus.Subscribe(event.ReservationFailed, func(e event.Event) {
		logger.Debug("库存预留失败", "order_id", e.OrderID, "attempt", e.Attempt)
	})
}
