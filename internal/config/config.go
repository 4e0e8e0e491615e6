package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// AGVTiming 定义 AGV 各段动作的仿真时长（分钟）
type AGVTiming struct {
	ToWarehouseMinutes int `mapstructure:"to_warehouse_minutes"` // 驶向仓库
	ToStationMinutes   int `mapstructure:"to_station_minutes"`   // 驶向装配站
	PickingMinutes     int `mapstructure:"picking_minutes"`      // 取货
	DroppingMinutes    int `mapstructure:"dropping_minutes"`     // 卸货
	ReturnMinutes      int `mapstructure:"return_minutes"`       // 返回待命位
}

// Pacing 定义仿真分钟与真实时间的换算
// 不同角色用不同的比例，保持与物理过程相称的观察节奏
type Pacing struct {
	AGVMinuteMs      int `mapstructure:"agv_minute_ms"`      // AGV 每仿真分钟的真实毫秒数
	AssemblyMinuteMs int `mapstructure:"assembly_minute_ms"` // 装配每仿真分钟的真实毫秒数
	ReleaseDelayMs   int `mapstructure:"release_delay_ms"`   // 每条订单下达之间的真实延时
}

// Files 定义输入输出文件路径
type Files struct {
	OrdersFile    string `mapstructure:"orders_file"`
	BOMFile       string `mapstructure:"bom_file"`
	WarehouseFile string `mapstructure:"warehouse_file"`
	LogFile       string `mapstructure:"log_file"`
	KPIReportFile string `mapstructure:"kpi_report_file"`
}

// Web 定义看板与指标服务的监听配置
type Web struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Config 定义应用程序的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	FleetSize        int       `mapstructure:"fleet_size"`         // AGV 数量
	AssemblyLines    int       `mapstructure:"assembly_lines"`     // 装配线数量
	SetupMinutes     int       `mapstructure:"setup_minutes"`      // 换型准备时间
	SchedulingPolicy string    `mapstructure:"scheduling_policy"`  // FIFO / PRIORITY / SPT / EDD
	ReleaseRule      string    `mapstructure:"release_rule"`       // 可选的订单放行规则表达式
	AGV              AGVTiming `mapstructure:"agv"`                //
	Pacing           Pacing    `mapstructure:"pacing"`             //
	Files            Files     `mapstructure:"files"`              //
	Web              Web       `mapstructure:"web"`                //
}

// LoadConfig 从 config.yaml 文件加载配置
// 使用 Viper 库来读取和解析配置文件
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	// 所有配置项都有默认值，配置文件只需覆盖关心的部分
	viper.SetDefault("fleet_size", 10)
	viper.SetDefault("assembly_lines", 1)
	viper.SetDefault("setup_minutes", 5)
	viper.SetDefault("scheduling_policy", "PRIORITY")
	viper.SetDefault("release_rule", "")
	viper.SetDefault("agv.to_warehouse_minutes", 2)
	viper.SetDefault("agv.to_station_minutes", 3)
	viper.SetDefault("agv.picking_minutes", 1)
	viper.SetDefault("agv.dropping_minutes", 1)
	viper.SetDefault("agv.return_minutes", 2)
	viper.SetDefault("pacing.agv_minute_ms", 100)
	viper.SetDefault("pacing.assembly_minute_ms", 10)
	viper.SetDefault("pacing.release_delay_ms", 100)
	viper.SetDefault("files.orders_file", "input/orders.txt")
	viper.SetDefault("files.bom_file", "input/bom.txt")
	viper.SetDefault("files.warehouse_file", "input/warehouse.txt")
	viper.SetDefault("files.log_file", "output/sim_log.txt")
	viper.SetDefault("files.kpi_report_file", "output/kpi_report.txt")
	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.listen_addr", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		// 找不到配置文件时全部使用默认值，其他错误照常上报
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &cfg, nil
}
