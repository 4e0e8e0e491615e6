package station

import (
	"container/heap"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"flexible-assembly-sim/internal/agv"
	"flexible-assembly-sim/internal/event"
	"flexible-assembly-sim/internal/metrics"
	"flexible-assembly-sim/internal/types"
	"flexible-assembly-sim/internal/warehouse"
)

// 产品目录缺失时使用的兜底装配时间
const fallbackBaseMinutes = 30

// ControlPlane 是装配站向控制中心上报订单终态的窄接口
type ControlPlane interface {
	MarkOrderCompleted(orderID, completionTime, lineID int)
	MarkOrderCanceled(orderID int)
}

// Config 定义装配站的运行参数
type Config struct {
	Lines                 int           // 装配线数量，启动前设定
	SetupMinutes          int           // 换型准备时间（仿真分钟）
	Minute                time.Duration // 每仿真分钟对应的真实装配时长
	AssignRetrySleep      time.Duration // AGV 分派重试间隔
	RequeueDelay          time.Duration // 预留失败后重新入队的延时
	MaxReservationRetries int           // 预留重试上限，超过则取消订单
	MaxAssignRetries      int           // 单轮 AGV 分派的尝试次数
}

// DefaultConfig 返回默认运行参数
func DefaultConfig() Config {
	return Config{
		Lines:                 1,
		SetupMinutes:          5,
		Minute:                10 * time.Millisecond,
		AssignRetrySleep:      50 * time.Millisecond,
		RequeueDelay:          100 * time.Millisecond,
		MaxReservationRetries: 100,
		MaxAssignRetries:      50,
	}
}

// Station 表示装配站，内部是两条独立的流水线：
// 备料线程把下达的订单转换为组件配送任务并分派给 AGV；
// 若干装配线线程消费组件齐套的就绪订单并模拟装配耗时
type Station struct {
	warehouse *warehouse.Warehouse
	fleet     []*agv.AGV
	control   ControlPlane
	products  map[types.ProductID]*types.Product

	queueMu    sync.Mutex // 订单队列锁
	orderCond  *sync.Cond // 通知备料线程有新订单
	orderQueue []types.Order

	readyMu   sync.Mutex // 就绪队列锁
	readyCond *sync.Cond // 通知装配线有新就绪订单
	ready     readyQueue

	// 送达协调
	deliveryMu sync.Mutex
	pending    map[int]map[types.ComponentID]int // order_id -> 组件 -> 未送达数量
	stagingMu  sync.Mutex
	staging    map[int]types.Order // 备料中的订单，组件齐套前暂存于此

	// 预留重试计数，只由备料线程访问
	retryCounts map[int]int
	// 备料线程的轮转分派起点，只由备料线程访问
	fleetIndex int

	// 多线计时
	timingMu    sync.Mutex
	lineVirtual []int             // 各装配线的虚拟可用时间（单调递增）
	lastProduct []types.ProductID // 各装配线上一件产品，用于判断是否免换型
	readySeq    atomic.Uint64     // 就绪序号，就绪时刻原子分配

	running atomic.Bool
	wg      sync.WaitGroup
	simTime atomic.Int64

	cfg    Config
	logger *slog.Logger
	bus    *event.Bus

	// 统计量
	busyMinutes     atomic.Int64
	ordersCompleted atomic.Int64
}

// New 创建一个装配站
func New(wh *warehouse.Warehouse, fleet []*agv.AGV, cfg Config, logger *slog.Logger, bus *event.Bus) *Station {
	s := &Station{
		warehouse:   wh,
		fleet:       fleet,
		products:    make(map[types.ProductID]*types.Product),
		pending:     make(map[int]map[types.ComponentID]int),
		staging:     make(map[int]types.Order),
		retryCounts: make(map[int]int),
		cfg:         cfg,
		logger:      logger.With("component", "station"),
		bus:         bus,
	}
	if s.cfg.Lines < 1 {
		s.cfg.Lines = 1
	}
	s.orderCond = sync.NewCond(&s.queueMu)
	s.readyCond = sync.NewCond(&s.readyMu)
	return s
}

// SetProducts 绑定产品目录，仿真开始前设置一次，此后只读
func (s *Station) SetProducts(products map[types.ProductID]*types.Product) {
	s.products = products
}

// SetControl 绑定控制中心
func (s *Station) SetControl(control ControlPlane) {
	s.control = control
}

// SetLineCount 设置装配线数量
// 运行期间的修改被静默拒绝，只记录一条告警
func (s *Station) SetLineCount(count int) {
	if s.running.Load() {
		s.logger.Warn("装配站运行中，拒绝调整装配线数量", "requested", count)
		return
	}
	if count < 1 {
		count = 1
	}
	s.cfg.Lines = count
}

// SetSimulationTime 更新装配站可见的当前仿真时间
func (s *Station) SetSimulationTime(minutes int) {
	s.simTime.Store(int64(minutes))
}

// Start 启动备料线程和全部装配线线程
func (s *Station) Start() {
	if s.running.Swap(true) {
		return
	}
	s.busyMinutes.Store(0)
	s.ordersCompleted.Store(0)
	s.readySeq.Store(0)
	s.timingMu.Lock()
	s.lineVirtual = make([]int, s.cfg.Lines)
	s.lastProduct = make([]types.ProductID, s.cfg.Lines)
	s.timingMu.Unlock()
	s.readyMu.Lock()
	s.ready = readyQueue{}
	s.readyMu.Unlock()

	for i := 0; i < s.cfg.Lines; i++ {
		s.wg.Add(1)
		go s.lineLoop(i)
	}
	s.wg.Add(1)
	go s.stagingLoop()
}

// Stop 请求所有线程退出并等待它们结束
func (s *Station) Stop() {
	s.running.Store(false)
	s.queueMu.Lock()
	s.orderCond.Broadcast()
	s.queueMu.Unlock()
	s.readyMu.Lock()
	s.readyCond.Broadcast()
	s.readyMu.Unlock()
	s.wg.Wait()
}

// AddOrder 把一条下达的订单加入备料队列（按到达顺序排队）
func (s *Station) AddOrder(order types.Order) {
	s.queueMu.Lock()
	s.orderQueue = append(s.orderQueue, order)
	metrics.OrdersInQueue.Inc()
	s.orderCond.Signal()
	s.queueMu.Unlock()
}

// IsProcessing 判断装配站是否仍有在途工作
// 外部轮询用；停机不依赖它，而是依赖显式信号
func (s *Station) IsProcessing() bool {
	s.queueMu.Lock()
	waiting := len(s.orderQueue) > 0
	s.queueMu.Unlock()
	if waiting {
		return true
	}
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	return s.ready.Len() > 0
}

// TotalBusyTime 返回装配线累计繁忙的仿真分钟数
func (s *Station) TotalBusyTime() int {
	return int(s.busyMinutes.Load())
}

// OrdersCompleted 返回装配完成的订单数
func (s *Station) OrdersCompleted() int {
	return int(s.ordersCompleted.Load())
}

// stagingLoop 是备料线程的主循环：
// 取出订单，预留库存，为 BOM 的每个组件单元分派一台 AGV
func (s *Station) stagingLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		s.queueMu.Lock()
		for s.running.Load() && len(s.orderQueue) == 0 {
			s.orderCond.Wait()
		}
		if !s.running.Load() && len(s.orderQueue) == 0 {
			s.queueMu.Unlock()
			return
		}
		if len(s.orderQueue) == 0 {
			s.queueMu.Unlock()
			continue
		}
		order := s.orderQueue[0]
		s.orderQueue = s.orderQueue[1:]
		metrics.OrdersInQueue.Dec()
		s.queueMu.Unlock()

		if !s.requestComponents(order) {
			s.retryCounts[order.OrderID]++
			attempts := s.retryCounts[order.OrderID]
			if attempts > s.cfg.MaxReservationRetries {
				s.logger.Warn("组件预留达到重试上限，取消订单",
					"order_id", order.OrderID, "product_id", order.ProductID,
					"attempts", attempts, "sim_time", s.simTime.Load())
				delete(s.retryCounts, order.OrderID)
				if s.control != nil {
					s.control.MarkOrderCanceled(order.OrderID)
				}
				continue
			}
			s.logger.Info("组件预留失败，订单重新入队",
				"order_id", order.OrderID, "product_id", order.ProductID, "attempt", attempts)
			s.bus.Publish(event.Event{
				Type:    event.ReservationFailed,
				OrderID: order.OrderID,
				Attempt: attempts,
				SimTime: int(s.simTime.Load()),
			})
			time.Sleep(s.cfg.RequeueDelay)
			s.queueMu.Lock()
			s.orderQueue = append(s.orderQueue, order)
			metrics.OrdersInQueue.Inc()
			s.orderCond.Signal()
			s.queueMu.Unlock()
			continue
		}
		delete(s.retryCounts, order.OrderID)
	}
}

// requestComponents 为订单预留库存并分派配送任务
// 预留失败时不产生任何副作用，由调用方决定重试或取消
func (s *Station) requestComponents(order types.Order) bool {
	if len(s.fleet) == 0 {
		return false
	}
	product, ok := s.products[order.ProductID]
	if !ok {
		s.logger.Warn("订单引用了未知产品", "order_id", order.OrderID, "product_id", order.ProductID)
		return false
	}
	if !s.warehouse.Reserve(product.BOM) {
		return false
	}

	// 预留成功后才登记待送达数量和备料订单
	s.deliveryMu.Lock()
	pending := make(map[types.ComponentID]int, len(product.BOM))
	for id, qty := range product.BOM {
		pending[id] = qty
	}
	s.pending[order.OrderID] = pending
	s.deliveryMu.Unlock()

	s.stagingMu.Lock()
	s.staging[order.OrderID] = order
	s.stagingMu.Unlock()

	s.bus.Publish(event.Event{Type: event.OrderStaged, Order: &order, OrderID: order.OrderID, SimTime: int(s.simTime.Load())})

	// BOM 的每个组件单元成为一个独立的 AGV 任务
	for id, qty := range product.BOM {
		for q := 0; q < qty; q++ {
			if !s.dispatchDelivery(order.OrderID, id) {
				// 本轮没有可用 AGV，稍后对同一组件单元重新分派，绝不丢弃
				time.Sleep(s.cfg.RequeueDelay)
				q--
			}
		}
	}
	return true
}

// dispatchDelivery 从上次成功的位置开始轮转扫描车队，直到有 AGV 接受任务
// 每轮尝试之间做短暂退避；一轮额度用尽返回 false
func (s *Station) dispatchDelivery(orderID int, component types.ComponentID) bool {
	task := types.TransportTask{
		ComponentID: component,
		Quantity:    1,
		Destination: types.DestinationStation,
		OrderID:     orderID,
		Notify:      s,
	}
	for retry := 0; retry < s.cfg.MaxAssignRetries; retry++ {
		for i := 0; i < len(s.fleet); i++ {
			unit := s.fleet[(s.fleetIndex+i)%len(s.fleet)]
			if unit.AssignTask(task) {
				s.fleetIndex = (s.fleetIndex + i + 1) % len(s.fleet)
				s.logger.Debug("组件配送任务已分派",
					"order_id", orderID, "component_id", component, "agv_id", unit.ID())
				return true
			}
		}
		time.Sleep(s.cfg.AssignRetrySleep)
	}
	return false
}

// ComponentDelivered 实现 types.DeliveryNotifier
// 由 AGV 线程回调：扣减待送达数量，齐套时把订单移入就绪队列（恰好一次）
func (s *Station) ComponentDelivered(orderID int, component types.ComponentID, quantity int) {
	s.bus.Publish(event.Event{Type: event.ComponentDelivered, OrderID: orderID, Component: component})

	var readyOrder types.Order
	orderReady := false

	s.deliveryMu.Lock()
	pending, ok := s.pending[orderID]
	if !ok {
		s.deliveryMu.Unlock()
		// 订单已就绪或输入不一致：按无操作处理，只留诊断
		s.logger.Debug("送达组件没有匹配的在制订单", "order_id", orderID, "component_id", component)
		return
	}
	if remaining, exists := pending[component]; exists {
		remaining -= quantity
		if remaining < 0 {
			remaining = 0
		}
		pending[component] = remaining
	}
	allDone := true
	for _, remaining := range pending {
		if remaining > 0 {
			allDone = false
			break
		}
	}
	if allDone {
		delete(s.pending, orderID)
		s.stagingMu.Lock()
		if staged, exists := s.staging[orderID]; exists {
			readyOrder = staged
			delete(s.staging, orderID)
			orderReady = true
		}
		s.stagingMu.Unlock()
	}
	s.deliveryMu.Unlock()

	if orderReady {
		s.logger.Info("订单组件齐套", "order_id", orderID, "product_id", readyOrder.ProductID)
		s.readyMu.Lock()
		heap.Push(&s.ready, &readySlot{
			order:     readyOrder,
			estimated: s.baseTime(readyOrder.ProductID),
			sequence:  s.readySeq.Add(1),
		})
		metrics.OrdersReady.Inc()
		// 唤醒所有装配线，多线时任何空闲线都可以接单
		s.readyCond.Broadcast()
		s.readyMu.Unlock()
		s.bus.Publish(event.Event{Type: event.OrderReady, Order: &readyOrder, OrderID: orderID, SimTime: int(s.simTime.Load())})
	}
}

// FinishedProductDelivered 实现 types.DeliveryNotifier
// 成品送回仓库时由 AGV 线程回调
func (s *Station) FinishedProductDelivered(product types.ProductID) {
	s.warehouse.AddFinishedProduct(product)
	s.bus.Publish(event.Event{Type: event.FinishedProductStored, Product: product, OrderID: -1})
}

// lineLoop 是单条装配线的主循环：
// 取出预估加工时间最短的就绪订单，计算换型与虚拟完成时间，
// 模拟装配耗时，上报完成，并派发成品回库任务
func (s *Station) lineLoop(lineID int) {
	defer s.wg.Done()
	logger := s.logger.With("line", lineID)

	for {
		s.readyMu.Lock()
		for s.running.Load() && s.ready.Len() == 0 {
			s.readyCond.Wait()
		}
		if !s.running.Load() && s.ready.Len() == 0 {
			s.readyMu.Unlock()
			return
		}
		if s.ready.Len() == 0 {
			s.readyMu.Unlock()
			continue
		}
		slot := heap.Pop(&s.ready).(*readySlot)
		metrics.OrdersReady.Dec()
		s.readyMu.Unlock()

		order := slot.order
		baseTime := s.baseTime(order.ProductID)
		setupTime := s.cfg.SetupMinutes

		s.timingMu.Lock()
		// 同一条线上连续装配同一产品时免换型
		if s.lastProduct[lineID] == order.ProductID {
			setupTime = 0
		}
		s.lastProduct[lineID] = order.ProductID
		startTime := order.ReleaseTime
		if s.lineVirtual[lineID] > startTime {
			startTime = s.lineVirtual[lineID]
		}
		operationTime := baseTime + setupTime
		completionTime := startTime + operationTime
		s.lineVirtual[lineID] = completionTime
		s.timingMu.Unlock()

		s.busyMinutes.Add(int64(operationTime))
		metrics.AssemblyDuration.WithLabelValues(strconv.Itoa(lineID)).Observe(float64(operationTime))

		// 模拟装配耗时
		if operationTime > 0 {
			time.Sleep(time.Duration(operationTime) * s.cfg.Minute)
		}
		s.ordersCompleted.Add(1)
		logger.Info("订单装配完成",
			"order_id", order.OrderID, "product_id", order.ProductID,
			"operation_minutes", operationTime, "completion_time", completionTime)
		if s.control != nil {
			s.control.MarkOrderCompleted(order.OrderID, completionTime, lineID)
		}

		s.dispatchReturn(order, logger)
	}
}

// dispatchReturn 尝试派发成品回库任务
// 有限次重试后放弃并留诊断日志，不阻塞也不影响订单完成
func (s *Station) dispatchReturn(order types.Order, logger *slog.Logger) {
	task := types.TransportTask{
		ComponentID:     types.ComponentID(order.ProductID),
		Quantity:        1,
		Destination:     types.DestinationWarehouse,
		FinishedProduct: true,
		OrderID:         -1,
		Notify:          s,
	}
	for retry := 0; retry < s.cfg.MaxAssignRetries; retry++ {
		for _, unit := range s.fleet {
			if unit.AssignTask(task) {
				logger.Debug("成品回库任务已分派", "product_id", order.ProductID, "agv_id", unit.ID())
				return
			}
		}
		time.Sleep(s.cfg.AssignRetrySleep)
	}
	logger.Warn("成品回库任务暂时无法分派", "product_id", order.ProductID)
}

// baseTime 查询产品的基础装配时间，目录缺失时使用兜底值
func (s *Station) baseTime(id types.ProductID) int {
	if product, ok := s.products[id]; ok {
		return product.BaseAssemblyTime
	}
	return fallbackBaseMinutes
}
