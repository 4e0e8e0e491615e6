package loader

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"flexible-assembly-sim/internal/types"
)

// 输入文件约定：空行和以 # 开头的行被跳过，字段用空白分隔

// LoadOrders 加载订单文件
// 每行格式: 小时 分钟 产品ID [优先级]，订单 ID 按行序从 1 开始分配
func LoadOrders(path string) ([]types.Order, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开订单文件 %s 失败: %w", path, err)
	}
	defer file.Close()

	var orders []types.Order
	orderID := 1
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields, skip := splitLine(scanner.Text())
		if skip {
			continue
		}
		if len(fields) < 3 {
			continue
		}
		hour, err1 := strconv.Atoi(fields[0])
		minute, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		priority := 0
		if len(fields) >= 4 {
			if p, err := strconv.Atoi(fields[3]); err == nil {
				priority = p
			}
		}
		orders = append(orders, types.Order{
			OrderID:        orderID,
			ProductID:      types.ProductID(fields[2]),
			ReleaseTime:    hour*60 + minute,
			Priority:       priority,
			DueDate:        -1,
			CompletionTime: -1,
		})
		orderID++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取订单文件 %s 失败: %w", path, err)
	}
	return orders, nil
}

// LoadProducts 加载 BOM 文件，返回产品目录
// 支持三种行格式:
//  1. 产品ID 基础装配时间
//  2. 产品ID 组件ID 数量
//  3. 组件ID 数量（沿用最近一次出现的产品）
func LoadProducts(path string) (map[types.ProductID]*types.Product, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 BOM 文件 %s 失败: %w", path, err)
	}
	defer file.Close()

	products := make(map[types.ProductID]*types.Product)
	var current types.ProductID

	ensure := func(id types.ProductID) *types.Product {
		if p, ok := products[id]; ok {
			return p
		}
		p := &types.Product{ID: id, BOM: make(map[types.ComponentID]int)}
		products[id] = p
		return p
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields, skip := splitLine(scanner.Text())
		if skip {
			continue
		}
		switch {
		case len(fields) == 2 && strings.HasPrefix(fields[0], "P"):
			// 产品ID 基础装配时间
			baseTime, err := strconv.Atoi(fields[1])
			if err != nil {
				continue
			}
			current = types.ProductID(fields[0])
			ensure(current).BaseAssemblyTime = baseTime
		case len(fields) == 3 && strings.HasPrefix(fields[0], "P") && strings.HasPrefix(fields[1], "C"):
			// 产品ID 组件ID 数量
			qty, err := strconv.Atoi(fields[2])
			if err != nil {
				continue
			}
			current = types.ProductID(fields[0])
			ensure(current).BOM[types.ComponentID(fields[1])] = qty
		case len(fields) == 2 && strings.HasPrefix(fields[0], "C") && current != "":
			// 组件ID 数量，归属最近的产品
			qty, err := strconv.Atoi(fields[1])
			if err != nil {
				continue
			}
			ensure(current).BOM[types.ComponentID(fields[0])] = qty
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取 BOM 文件 %s 失败: %w", path, err)
	}
	return products, nil
}

// LoadInventory 加载仓库初始库存文件
// 每行格式: 组件ID 数量
func LoadInventory(path string) (map[types.ComponentID]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开仓库文件 %s 失败: %w", path, err)
	}
	defer file.Close()

	inventory := make(map[types.ComponentID]int)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields, skip := splitLine(scanner.Text())
		if skip {
			continue
		}
		if len(fields) != 2 {
			continue
		}
		qty, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		inventory[types.ComponentID(fields[0])] = qty
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取仓库文件 %s 失败: %w", path, err)
	}
	return inventory, nil
}

// splitLine 拆分一行输入，第二个返回值表示该行应被跳过
func splitLine(line string) ([]string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, true
	}
	return strings.Fields(trimmed), false
}
