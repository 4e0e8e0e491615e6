package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flexible-assembly-sim/internal/agv"
	"flexible-assembly-sim/internal/config"
	"flexible-assembly-sim/internal/control"
	"flexible-assembly-sim/internal/event"
	"flexible-assembly-sim/internal/handlers"
	"flexible-assembly-sim/internal/loader"
	"flexible-assembly-sim/internal/persistence"
	"flexible-assembly-sim/internal/station"
	"flexible-assembly-sim/internal/types"
	"flexible-assembly-sim/internal/warehouse"
	"flexible-assembly-sim/internal/web"
)

// main 是柔性装配单元仿真器的主入口
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("加载配置失败", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Files.LogFile), 0755); err != nil {
		logger.Error("创建输出目录失败", "error", err)
		os.Exit(1)
	}
	journal, err := persistence.OpenJournal(cfg.Files.LogFile)
	if err != nil {
		logger.Error("无法初始化仿真日志", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	// 加载输入文件
	orders, err := loader.LoadOrders(cfg.Files.OrdersFile)
	if err != nil {
		logger.Error("加载订单文件失败", "error", err)
		os.Exit(1)
	}
	products, err := loader.LoadProducts(cfg.Files.BOMFile)
	if err != nil {
		logger.Error("加载 BOM 文件失败", "error", err)
		os.Exit(1)
	}
	inventory, err := loader.LoadInventory(cfg.Files.WarehouseFile)
	if err != nil {
		logger.Error("加载仓库文件失败", "error", err)
		os.Exit(1)
	}
	logger.Info("输入文件加载完成", "orders", len(orders), "products", len(products), "components", len(inventory))

	// 初始化仓库并注入初始库存
	wh := warehouse.New(logger)
	for id, qty := range inventory {
		wh.AddComponent(id, qty)
	}

	// 初始化事件总线与看板，看板快照直接读取仓库库存
	bus := event.NewBus()
	hub := web.NewHub()
	go hub.Run()
	stateTracker := web.NewStateTracker(hub, wh)
	handlers.RegisterEventHandlers(bus, stateTracker, logger)

	// 初始化 AGV 车队
	timing := agv.Timing{
		ToWarehouse: cfg.AGV.ToWarehouseMinutes,
		ToStation:   cfg.AGV.ToStationMinutes,
		Picking:     cfg.AGV.PickingMinutes,
		Dropping:    cfg.AGV.DroppingMinutes,
		Return:      cfg.AGV.ReturnMinutes,
	}
	agvMinute := time.Duration(cfg.Pacing.AGVMinuteMs) * time.Millisecond
	fleet := make([]*agv.AGV, 0, cfg.FleetSize)
	for i := 1; i <= cfg.FleetSize; i++ {
		fleet = append(fleet, agv.New(i, timing, agvMinute, logger, bus))
	}

	// 初始化装配站
	stationCfg := station.DefaultConfig()
	stationCfg.Lines = cfg.AssemblyLines
	stationCfg.SetupMinutes = cfg.SetupMinutes
	stationCfg.Minute = time.Duration(cfg.Pacing.AssemblyMinuteMs) * time.Millisecond
	st := station.New(wh, fleet, stationCfg, logger, bus)

	// 初始化控制中心
	controlCfg := control.DefaultConfig()
	controlCfg.Policy = types.ParsePolicy(cfg.SchedulingPolicy)
	controlCfg.ReleaseRule = cfg.ReleaseRule
	controlCfg.ReleasePace = time.Duration(cfg.Pacing.ReleaseDelayMs) * time.Millisecond
	controlCfg.ReportPath = cfg.Files.KPIReportFile
	center := control.New(controlCfg, journal, logger, bus)
	center.SetOrders(orders)
	center.SetProducts(products)

	if cfg.Web.Enabled {
		go startAPIServer(cfg.Web.ListenAddr, hub, stateTracker, logger)
	}

	logger.Info("=== 柔性装配单元仿真启动 ===",
		"fleet_size", cfg.FleetSize, "assembly_lines", cfg.AssemblyLines, "policy", controlCfg.Policy)

	center.Start(st, fleet)

	// 等待全部订单完成或取消；收到停机信号时提前结束
	done := make(chan struct{})
	go func() {
		center.WaitUntilAllComplete()
		close(done)
	}()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
	case sig := <-sigChan:
		logger.Info("接收到停机信号，正在结束仿真", "signal", sig.String())
	}

	center.Stop()

	kpi := center.KPI()
	logger.Info("仿真结束",
		"avg_lead_time", kpi.AvgLeadTime,
		"station_utilization", kpi.StationUtilization,
		"throughput", kpi.Throughput,
		"fleet_utilization", kpi.FleetUtilization,
		"completed", kpi.CompletedCount,
		"canceled", kpi.CanceledCount)
}

// startAPIServer 启动指标与看板服务器
func startAPIServer(addr string, hub *web.Hub, st *web.StateTracker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st.GetStateSnapshot())
	})

	logger.Info("指标与看板服务器启动", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("API 服务器启动失败", "error", err)
	}
}
