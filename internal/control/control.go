package control

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"flexible-assembly-sim/internal/agv"
	"flexible-assembly-sim/internal/event"
	"flexible-assembly-sim/internal/metrics"
	"flexible-assembly-sim/internal/persistence"
	"flexible-assembly-sim/internal/station"
	"flexible-assembly-sim/internal/types"
	"flexible-assembly-sim/internal/util"
)

// Config 定义控制中心的运行参数
type Config struct {
	Policy       types.SchedulingPolicy
	ReleaseRule  string        // 可选的订单放行规则（expr 表达式）
	ReleasePace  time.Duration // 每条订单下达之间的固定真实延时，保证仿真可观察
	IdleSpinWait time.Duration // 停机时轮询车队空闲的间隔
	MaxIdleSpins int           // 轮询次数上限
	ReportPath   string        // KPI 报告文件路径，为空则不写
}

// DefaultConfig 返回默认运行参数
func DefaultConfig() Config {
	return Config{
		Policy:       types.PolicyFIFO,
		ReleasePace:  100 * time.Millisecond,
		IdleSpinWait: 100 * time.Millisecond,
		MaxIdleSpins: 200,
	}
}

// Center 是控制中心：按调度策略在仿真时间轴上下达订单，
// 跟踪订单的完成与取消，仿真结束后计算 KPI
type Center struct {
	orders   []types.Order
	products map[types.ProductID]*types.Product

	station *station.Station
	fleet   []*agv.AGV

	cfg  Config
	rule *releaseRule

	simTime atomic.Int64
	running atomic.Bool
	stopped atomic.Bool

	schedulerWG sync.WaitGroup

	// 完成协调：计数器和订单终态字段都在 completionMu 下更新
	completionMu   sync.Mutex
	completionCond *sync.Cond
	finishedOrders int // 完成 + 取消
	schedulerDone  bool

	journal *persistence.Journal
	logger  *slog.Logger
	bus     *event.Bus

	kpi KPI
}

// New 创建控制中心
// journal 可以为 nil（测试场景），此时事件只进结构化日志
func New(cfg Config, journal *persistence.Journal, logger *slog.Logger, bus *event.Bus) *Center {
	c := &Center{
		products: make(map[types.ProductID]*types.Product),
		cfg:      cfg,
		journal:  journal,
		logger:   logger.With("component", "control"),
		bus:      bus,
	}
	c.completionCond = sync.NewCond(&c.completionMu)

	rule, err := compileReleaseRule(cfg.ReleaseRule)
	if err != nil {
		// 规则有问题不阻止仿真启动，禁用规则并放行全部订单
		c.logger.Error("放行规则编译失败，已禁用", "rule", cfg.ReleaseRule, "error", err)
	} else {
		c.rule = rule
	}
	return c
}

// SetOrders 设置订单列表，仿真开始前调用
func (c *Center) SetOrders(orders []types.Order) {
	c.orders = orders
}

// SetProducts 设置产品目录，仿真开始前调用
func (c *Center) SetProducts(products map[types.ProductID]*types.Product) {
	c.products = products
}

// Orders 返回订单列表的快照
func (c *Center) Orders() []types.Order {
	c.completionMu.Lock()
	defer c.completionMu.Unlock()
	snapshot := make([]types.Order, len(c.orders))
	copy(snapshot, c.orders)
	return snapshot
}

// SimulationTime 返回当前仿真时间（分钟）
func (c *Center) SimulationTime() int {
	return int(c.simTime.Load())
}

// Start 启动仿真：先启动车队和装配站，再启动调度线程
func (c *Center) Start(st *station.Station, fleet []*agv.AGV) {
	c.station = st
	c.fleet = fleet

	if c.station != nil {
		c.station.SetProducts(c.products)
		c.station.SetControl(c)
		c.station.SetSimulationTime(c.SimulationTime())
	}
	for _, unit := range c.fleet {
		unit.Start()
	}
	if c.station != nil {
		c.station.Start()
	}

	c.running.Store(true)
	c.stopped.Store(false)
	c.completionMu.Lock()
	c.finishedOrders = 0
	c.schedulerDone = false
	c.completionMu.Unlock()

	c.sortOrders()

	c.schedulerWG.Add(1)
	go c.schedulerLoop()
	c.LogEvent("Simulation started")
}

// sortOrders 按调度策略对订单列表原地排序
// SPT/EDD 仅是声明的配置值：接受但不排序，保持加载顺序并告警
func (c *Center) sortOrders() {
	switch c.cfg.Policy {
	case types.PolicyFIFO:
		sort.SliceStable(c.orders, func(i, j int) bool {
			return c.orders[i].ReleaseTime < c.orders[j].ReleaseTime
		})
	case types.PolicyPriority:
		sort.SliceStable(c.orders, func(i, j int) bool {
			if c.orders[i].Priority != c.orders[j].Priority {
				return c.orders[i].Priority > c.orders[j].Priority
			}
			return c.orders[i].ReleaseTime < c.orders[j].ReleaseTime
		})
	case types.PolicySPT, types.PolicyEDD:
		c.logger.Warn("调度策略尚未实现，按加载顺序下达", "policy", c.cfg.Policy)
	}
}

// schedulerLoop 是调度线程的主循环：
// 依次把仿真时间推进到每条订单的下达时刻并交给装配站
func (c *Center) schedulerLoop() {
	defer c.schedulerWG.Done()

	for i := range c.orders {
		if !c.running.Load() {
			break
		}
		order := c.orders[i]
		c.simTime.Store(int64(order.ReleaseTime))
		// 固定的真实节拍延时，让仿真过程可观察
		time.Sleep(c.cfg.ReleasePace)
		c.releaseOrder(order)
	}

	c.completionMu.Lock()
	c.schedulerDone = true
	c.completionMu.Unlock()
	// 调度结束只是必要条件：在途订单仍未完成，唤醒等待者重新检查
	c.completionCond.Broadcast()
}

// releaseOrder 把一条订单下达给装配站
func (c *Center) releaseOrder(order types.Order) {
	logger := c.logger.With("order_id", order.OrderID, "product_id", order.ProductID, "trace_id", util.NewTraceID())

	if c.rule != nil {
		allowed, err := c.rule.evaluate(order)
		if err != nil {
			logger.Error("放行规则求值失败，订单照常下达", "error", err)
		}
		if !allowed {
			logger.Warn("订单被放行规则拦截")
			c.LogEvent(fmt.Sprintf("Order held by release rule: %s (ID: %d)", order.ProductID, order.OrderID))
			c.MarkOrderCanceled(order.OrderID)
			return
		}
	}

	c.LogEvent(fmt.Sprintf("Order released: %s (Priority: %d, ID: %d)", order.ProductID, order.Priority, order.OrderID))
	logger.Info("订单下达", "release_time", order.ReleaseTime, "priority", order.Priority)
	c.bus.Publish(event.Event{Type: event.OrderReleased, Order: &order, OrderID: order.OrderID, SimTime: order.ReleaseTime})

	if c.station != nil {
		c.station.SetSimulationTime(c.SimulationTime())
		c.station.AddOrder(order)
	}
}

// MarkOrderCompleted 把订单标记为已完成，lineID 是完成装配的线号
// 终态字段只写一次；计数器与等待者唤醒在完成锁下进行
func (c *Center) MarkOrderCompleted(orderID, completionTime, lineID int) {
	c.completionMu.Lock()
	var completed *types.Order
	for i := range c.orders {
		if c.orders[i].OrderID == orderID {
			if !c.orders[i].Completed && !c.orders[i].Canceled {
				c.orders[i].Completed = true
				c.orders[i].CompletionTime = completionTime
				c.finishedOrders++
				completed = &types.Order{}
				*completed = c.orders[i]
			}
			break
		}
	}
	c.completionMu.Unlock()
	if completed == nil {
		return
	}

	c.completionCond.Broadcast()
	c.LogEvent(fmt.Sprintf("Order completed: %s (ID: %d)", completed.ProductID, orderID))
	metrics.OrdersProcessedTotal.WithLabelValues("completed").Inc()
	c.bus.Publish(event.Event{Type: event.OrderCompleted, Order: completed, OrderID: orderID, Line: lineID, SimTime: completionTime})
}

// MarkOrderCanceled 把订单标记为已取消（例如缺料超过重试上限）
func (c *Center) MarkOrderCanceled(orderID int) {
	c.completionMu.Lock()
	var canceled *types.Order
	for i := range c.orders {
		if c.orders[i].OrderID == orderID {
			if !c.orders[i].Completed && !c.orders[i].Canceled {
				c.orders[i].Canceled = true
				c.finishedOrders++
				canceled = &types.Order{}
				*canceled = c.orders[i]
			}
			break
		}
	}
	c.completionMu.Unlock()
	if canceled == nil {
		return
	}

	c.completionCond.Broadcast()
	c.LogEvent(fmt.Sprintf("Order canceled: %s (ID: %d)", canceled.ProductID, orderID))
	metrics.OrdersProcessedTotal.WithLabelValues("canceled").Inc()
	c.bus.Publish(event.Event{Type: event.OrderCanceled, Order: canceled, OrderID: orderID, SimTime: c.SimulationTime()})
}

// WaitUntilAllComplete 阻塞直到所有订单完成或取消
// 这是仿真结束的唯一判定条件：调度结束不代表在途订单已完成
func (c *Center) WaitUntilAllComplete() {
	c.completionMu.Lock()
	defer c.completionMu.Unlock()
	for c.finishedOrders < len(c.orders) {
		c.completionCond.Wait()
	}
}

// Stop 停止仿真并计算 KPI，可安全重复调用
// 停机顺序：调度线程 -> 装配站 -> 等车队空闲 -> 车队，
// 保证在途的成品回库行程不被截断
func (c *Center) Stop() {
	if c.stopped.Swap(true) {
		return
	}

	c.running.Store(false)
	c.schedulerWG.Wait()

	if c.station != nil {
		c.station.Stop()
	}

	// 有界自旋等待全部 AGV 回到空闲，再发停机信号
	for spin := 0; spin < c.cfg.MaxIdleSpins; spin++ {
		allIdle := true
		for _, unit := range c.fleet {
			if !unit.IsIdle() {
				allIdle = false
				break
			}
		}
		if allIdle {
			break
		}
		time.Sleep(c.cfg.IdleSpinWait)
	}
	for _, unit := range c.fleet {
		unit.Stop()
	}
	for _, unit := range c.fleet {
		unit.Join()
	}

	c.kpi = c.computeKPIs()
	if c.cfg.ReportPath != "" {
		if err := c.WriteReport(c.cfg.ReportPath); err != nil {
			c.logger.Error("写入 KPI 报告失败", "path", c.cfg.ReportPath, "error", err)
		}
	}
	c.LogEvent("KPIs computed and saved")
	c.LogEvent("Simulation stopped")
}

// KPI 返回最近一次 Stop 计算出的指标
func (c *Center) KPI() KPI {
	return c.kpi
}

// LogEvent 把一条事件写入仿真日志（带仿真时间戳）
func (c *Center) LogEvent(message string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Append(c.SimulationTime(), message); err != nil {
		c.logger.Error("写入仿真日志失败", "error", err)
	}
}
