package test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexible-assembly-sim/internal/agv"
	"flexible-assembly-sim/internal/control"
	"flexible-assembly-sim/internal/event"
	"flexible-assembly-sim/internal/handlers"
	"flexible-assembly-sim/internal/station"
	"flexible-assembly-sim/internal/types"
	"flexible-assembly-sim/internal/warehouse"
	"flexible-assembly-sim/internal/web"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cell 把一套最小装配单元组装起来，时间参数全部压缩以便测试快速收敛
type cell struct {
	warehouse *warehouse.Warehouse
	fleet     []*agv.AGV
	station   *station.Station
	center    *control.Center
	bus       *event.Bus
	tracker   *web.StateTracker
}

func buildCell(t *testing.T, fleetSize int, inventory map[types.ComponentID]int,
	products map[types.ProductID]*types.Product, orders []types.Order,
	stationCfg station.Config, controlCfg control.Config) *cell {
	t.Helper()
	logger := testLogger()
	bus := event.NewBus()

	wh := warehouse.New(logger)
	for id, qty := range inventory {
		wh.AddComponent(id, qty)
	}

	hub := web.NewHub()
	go hub.Run()
	tracker := web.NewStateTracker(hub, wh)
	handlers.RegisterEventHandlers(bus, tracker, logger)

	fleet := make([]*agv.AGV, fleetSize)
	for i := range fleet {
		fleet[i] = agv.New(i+1, agv.DefaultTiming(), time.Millisecond, logger, bus)
	}

	st := station.New(wh, fleet, stationCfg, logger, bus)

	center := control.New(controlCfg, nil, logger, bus)
	center.SetOrders(orders)
	center.SetProducts(products)

	return &cell{warehouse: wh, fleet: fleet, station: st, center: center, bus: bus, tracker: tracker}
}

func fastStationConfig(lines int) station.Config {
	return station.Config{
		Lines:                 lines,
		SetupMinutes:          5,
		Minute:                2 * time.Millisecond,
		AssignRetrySleep:      time.Millisecond,
		RequeueDelay:          time.Millisecond,
		MaxReservationRetries: 100,
		MaxAssignRetries:      50,
	}
}

func fastControlConfig() control.Config {
	return control.Config{
		Policy:       types.PolicyFIFO,
		ReleasePace:  5 * time.Millisecond,
		IdleSpinWait: 2 * time.Millisecond,
		MaxIdleSpins: 500,
	}
}

func runToCompletion(t *testing.T, c *cell) {
	t.Helper()
	c.center.Start(c.station, c.fleet)

	done := make(chan struct{})
	go func() {
		c.center.WaitUntilAllComplete()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("仿真收敛超时")
	}
	c.center.Stop()
}

// 单订单全链路：下达 -> 预留 -> 两次组件配送 -> 装配 -> 成品回库
func TestSingleOrderEndToEnd(t *testing.T) {
	products := map[types.ProductID]*types.Product{
		"P1": {ID: "P1", BaseAssemblyTime: 10, BOM: map[types.ComponentID]int{"C1": 2}},
	}
	orders := []types.Order{{OrderID: 1, ProductID: "P1", ReleaseTime: 0, DueDate: -1, CompletionTime: -1}}

	c := buildCell(t, 3,
		map[types.ComponentID]int{"C1": 2},
		products, orders,
		fastStationConfig(1), fastControlConfig())

	runToCompletion(t, c)

	final := c.center.Orders()
	require.Len(t, final, 1)
	assert.True(t, final[0].Completed)
	assert.False(t, final[0].Canceled)
	// 0 下达 + 基础装配 10 + 换型 5
	assert.Equal(t, 15, final[0].CompletionTime)

	kpi := c.center.KPI()
	assert.Equal(t, 1, kpi.CompletedCount)
	assert.Equal(t, 0, kpi.CanceledCount)
	assert.Equal(t, 15, kpi.SpanMinutes)
	assert.InDelta(t, 15.0, kpi.AvgLeadTime, 1e-9)
	assert.InDelta(t, 1.0, kpi.StationUtilization, 1e-9)
	assert.InDelta(t, 4.0, kpi.Throughput, 1e-9)
	// 2 次组件配送 + 1 次成品回库，每次 9 个繁忙分钟: 27 / (3 * 15)
	assert.InDelta(t, 0.6, kpi.FleetUtilization, 1e-9)

	assert.Equal(t, 0, c.warehouse.ComponentQuantity("C1"), "BOM 被整体扣减")
	assert.Equal(t, 1, c.warehouse.FinishedProductCount("P1"), "成品由 AGV 送回仓库")

	totalOps := 0
	for _, unit := range c.fleet {
		totalOps += unit.TotalOperations()
		assert.True(t, unit.IsIdle(), "停机后所有 AGV 回到空闲")
	}
	assert.Equal(t, 3, totalOps, "2 次配送任务 + 1 次回库任务")
}

// 缺料订单在重试上限之后被取消，库存不发生部分扣减
func TestShortageCancelsOrder(t *testing.T) {
	products := map[types.ProductID]*types.Product{
		"P1": {ID: "P1", BaseAssemblyTime: 10, BOM: map[types.ComponentID]int{"C1": 2}},
	}
	orders := []types.Order{{OrderID: 1, ProductID: "P1", ReleaseTime: 0, DueDate: -1, CompletionTime: -1}}

	stationCfg := fastStationConfig(1)
	stationCfg.MaxReservationRetries = 3

	c := buildCell(t, 2,
		map[types.ComponentID]int{"C1": 1}, // 只够一半
		products, orders,
		stationCfg, fastControlConfig())

	runToCompletion(t, c)

	final := c.center.Orders()
	require.Len(t, final, 1)
	assert.True(t, final[0].Canceled)
	assert.False(t, final[0].Completed)

	kpi := c.center.KPI()
	assert.Equal(t, 0, kpi.CompletedCount)
	assert.Equal(t, 1, kpi.CanceledCount)
	assert.Zero(t, kpi.Throughput)
	assert.Zero(t, kpi.AvgLeadTime, "取消订单不计入交付周期")

	assert.Equal(t, 1, c.warehouse.ComponentQuantity("C1"), "预留失败不产生部分扣减")
	assert.Equal(t, 0, c.warehouse.FinishedProductCount("P1"))
}

// 同一条线上连续装配同一产品免换型；换产品时重新付出换型时间
func TestSetupWaiverAcrossConsecutiveOrders(t *testing.T) {
	products := map[types.ProductID]*types.Product{
		"P1": {ID: "P1", BaseAssemblyTime: 10, BOM: map[types.ComponentID]int{"C1": 1}},
		"P2": {ID: "P2", BaseAssemblyTime: 15, BOM: map[types.ComponentID]int{"C1": 1}},
	}
	orders := []types.Order{
		{OrderID: 1, ProductID: "P1", ReleaseTime: 0, DueDate: -1, CompletionTime: -1},
		{OrderID: 2, ProductID: "P1", ReleaseTime: 0, DueDate: -1, CompletionTime: -1},
		{OrderID: 3, ProductID: "P2", ReleaseTime: 0, DueDate: -1, CompletionTime: -1},
	}

	c := buildCell(t, 3,
		map[types.ComponentID]int{"C1": 3},
		products, orders,
		fastStationConfig(1), fastControlConfig())

	runToCompletion(t, c)

	final := c.center.Orders()
	require.Len(t, final, 3)
	byID := make(map[int]types.Order, len(final))
	for _, o := range final {
		require.True(t, o.Completed, "订单 %d 应当完成", o.OrderID)
		byID[o.OrderID] = o
	}

	// 首件 P1: 10 + 换型 5
	assert.Equal(t, 15, byID[1].CompletionTime)
	// 第二件 P1 免换型: 15 + 10
	assert.Equal(t, 25, byID[2].CompletionTime)
	// 换 P2 重新换型: 25 + 15 + 5
	assert.Equal(t, 45, byID[3].CompletionTime)

	kpi := c.center.KPI()
	assert.Equal(t, 3, kpi.CompletedCount)
	assert.Equal(t, 45, kpi.SpanMinutes)
}

// 优先级策略下高优先级订单先下达
func TestPriorityPolicyReleasesHighFirst(t *testing.T) {
	products := map[types.ProductID]*types.Product{
		"P1": {ID: "P1", BaseAssemblyTime: 10, BOM: map[types.ComponentID]int{"C1": 1}},
	}
	orders := []types.Order{
		{OrderID: 1, ProductID: "P1", ReleaseTime: 0, Priority: 1, DueDate: -1, CompletionTime: -1},
		{OrderID: 2, ProductID: "P1", ReleaseTime: 0, Priority: 9, DueDate: -1, CompletionTime: -1},
	}

	controlCfg := fastControlConfig()
	controlCfg.Policy = types.PolicyPriority

	c := buildCell(t, 2,
		map[types.ComponentID]int{"C1": 2},
		products, orders,
		fastStationConfig(1), controlCfg)

	runToCompletion(t, c)

	byID := make(map[int]types.Order)
	for _, o := range c.center.Orders() {
		require.True(t, o.Completed)
		byID[o.OrderID] = o
	}
	// 高优先级的 2 号先上线: 15；随后 1 号免换型: 25
	assert.Equal(t, 15, byID[2].CompletionTime)
	assert.Equal(t, 25, byID[1].CompletionTime)
}

// 放行规则拦截的订单在下达环节被取消，不占用库存
func TestReleaseRuleHoldsLowPriorityOrders(t *testing.T) {
	products := map[types.ProductID]*types.Product{
		"P1": {ID: "P1", BaseAssemblyTime: 10, BOM: map[types.ComponentID]int{"C1": 1}},
	}
	orders := []types.Order{
		{OrderID: 1, ProductID: "P1", ReleaseTime: 0, Priority: 0, DueDate: -1, CompletionTime: -1},
		{OrderID: 2, ProductID: "P1", ReleaseTime: 0, Priority: 5, DueDate: -1, CompletionTime: -1},
	}

	controlCfg := fastControlConfig()
	controlCfg.ReleaseRule = "order.Priority >= 3"

	c := buildCell(t, 2,
		map[types.ComponentID]int{"C1": 2},
		products, orders,
		fastStationConfig(1), controlCfg)

	runToCompletion(t, c)

	byID := make(map[int]types.Order)
	for _, o := range c.center.Orders() {
		byID[o.OrderID] = o
	}
	assert.True(t, byID[1].Canceled, "低优先级订单被规则拦截")
	assert.True(t, byID[2].Completed)
	assert.Equal(t, 1, c.warehouse.ComponentQuantity("C1"), "被拦截的订单不消耗库存")

	kpi := c.center.KPI()
	assert.Equal(t, 1, kpi.CompletedCount)
	assert.Equal(t, 1, kpi.CanceledCount)
}

// 双装配线并行消费就绪订单
func TestTwoLinesProcessInParallel(t *testing.T) {
	products := map[types.ProductID]*types.Product{
		"P1": {ID: "P1", BaseAssemblyTime: 10, BOM: map[types.ComponentID]int{"C1": 1}},
	}
	orders := []types.Order{
		{OrderID: 1, ProductID: "P1", ReleaseTime: 0, DueDate: -1, CompletionTime: -1},
		{OrderID: 2, ProductID: "P1", ReleaseTime: 0, DueDate: -1, CompletionTime: -1},
	}

	c := buildCell(t, 4,
		map[types.ComponentID]int{"C1": 2},
		products, orders,
		fastStationConfig(2), fastControlConfig())

	runToCompletion(t, c)

	for _, o := range c.center.Orders() {
		require.True(t, o.Completed)
		// 每条线各接一单，都是该线的首件，各付一次换型
		assert.Equal(t, 15, o.CompletionTime)
	}
	assert.Equal(t, 2, c.center.KPI().CompletedCount)
}

// 看板状态跟踪：仿真结束后快照反映订单终态与入库成品
func TestDashboardStateReflectsOutcome(t *testing.T) {
	products := map[types.ProductID]*types.Product{
		"P1": {ID: "P1", BaseAssemblyTime: 10, BOM: map[types.ComponentID]int{"C1": 1}},
	}
	orders := []types.Order{{OrderID: 1, ProductID: "P1", ReleaseTime: 0, DueDate: -1, CompletionTime: -1}}

	c := buildCell(t, 2,
		map[types.ComponentID]int{"C1": 1},
		products, orders,
		fastStationConfig(1), fastControlConfig())

	runToCompletion(t, c)

	// 事件经总线异步投递，给处理器一点收敛时间
	require.Eventually(t, func() bool {
		snapshot := c.tracker.GetStateSnapshot()
		order, ok := snapshot.Orders[1]
		return ok && order.Status == "COMPLETED" && snapshot.Stored["P1"] == 1
	}, 5*time.Second, 5*time.Millisecond)

	snapshot := c.tracker.GetStateSnapshot()
	assert.Equal(t, 0, snapshot.Orders[1].Line, "单线场景下完成线号是 0")
	assert.Equal(t, web.QueueDepths{}, snapshot.Queues, "收敛后两级队列都为空")
	assert.Equal(t, 0, snapshot.Components["C1"], "快照携带仓库当前组件库存")
}
