package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	"github.com/Woody4618/raspberry-token-minter/internal/hardware"
)

// MP3模块装机调试工具
// 直接操作串口上的播放模块，不经过机台协调器

func main() {
	var (
		port     = flag.String("port", "/dev/serial0", "串口设备路径")
		baud     = flag.Int("baud", 9600, "波特率")
		mockMode = flag.Bool("mock", false, "使用模拟控制器（无硬件调试）")
	)
	flag.Parse()

	cfg := &config.SerialConfig{
		Enabled:         true,
		Port:            *port,
		BaudRate:        *baud,
		DataBits:        8,
		StopBits:        1,
		Parity:          "N",
		ReadTimeout:     time.Second,
		GuardDelay:      100 * time.Millisecond,
		StatusReadDelay: 100 * time.Millisecond,
	}

	var controller hardware.MP3Controller
	if *mockMode {
		fmt.Println("模拟模式：指令帧只打印不发送")
		controller = hardware.NewMockMP3Controller()
	} else {
		controller = hardware.NewMP3Player(cfg)
	}

	fmt.Printf("连接MP3模块: %s @ %d\n", cfg.Port, cfg.BaudRate)
	if err := controller.Connect(); err != nil {
		fmt.Printf("连接失败: %v\n", err)
		os.Exit(1)
	}
	defer controller.Disconnect()

	runInteractive(controller)
}

// 交互式命令行界面
func runInteractive(controller hardware.MP3Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("\n=== MP3模块测试程序 ===")
	fmt.Println("输入 'help' 查看可用命令")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := parts[0]

		switch command {
		case "help":
			printHelp()

		case "play":
			if len(parts) < 2 {
				fmt.Println("用法: play <曲目号 1-255>")
				continue
			}
			track, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Printf("无效的曲目号: %s\n", parts[1])
				continue
			}
			report(controller.PlayTrack(track))

		case "folder":
			if len(parts) < 3 {
				fmt.Println("用法: folder <文件夹 1-99> <曲目号 1-255>")
				continue
			}
			folder, err1 := strconv.Atoi(parts[1])
			track, err2 := strconv.Atoi(parts[2])
			if err1 != nil || err2 != nil {
				fmt.Println("文件夹和曲目号必须是数字")
				continue
			}
			report(controller.PlayFolderTrack(folder, track))

		case "volume":
			if len(parts) < 2 {
				fmt.Println("用法: volume <音量 0-30>")
				continue
			}
			volume, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Printf("无效的音量: %s\n", parts[1])
				continue
			}
			report(controller.SetVolume(volume))

		case "pause":
			report(controller.Pause())

		case "resume":
			report(controller.Resume())

		case "stop":
			report(controller.Stop())

		case "next":
			report(controller.Next())

		case "prev":
			report(controller.Previous())

		case "random":
			report(controller.Random())

		case "loop":
			if len(parts) < 2 {
				fmt.Println("用法: loop <on|off>")
				continue
			}
			report(controller.SetLoop(parts[1] == "on"))

		case "status":
			data, err := controller.GetStatus()
			if err != nil {
				fmt.Printf("   ❌ 查询失败: %v\n", err)
				continue
			}
			if len(data) == 0 {
				fmt.Println("   ⚠️  模块无应答")
				continue
			}
			fmt.Printf("   ✅ 应答: %s\n", hex.EncodeToString(data))

		case "test":
			runTestSequence(controller)

		case "exit", "quit":
			fmt.Println("退出程序...")
			return

		default:
			fmt.Printf("未知命令: %s\n", command)
			fmt.Println("输入 'help' 查看可用命令")
		}
	}
}

// report 打印指令执行结果
func report(err error) {
	if err != nil {
		fmt.Printf("   ❌ 执行失败: %v\n", err)
	} else {
		fmt.Println("   ✅ 发送成功")
	}
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Print(`
可用命令:
  play <曲目号>            - 播放指定曲目
    示例: play 1

  folder <文件夹> <曲目号> - 播放指定文件夹内曲目
    示例: folder 1 3

  volume <音量>            - 设置音量（0-30）
  pause / resume / stop    - 暂停 / 恢复 / 停止
  next / prev              - 下一曲 / 上一曲
  random                   - 随机播放
  loop <on|off>            - 单曲循环开关
  status                   - 查询模块状态
  test                     - 运行测试序列
  help                     - 显示此帮助信息
  exit/quit                - 退出程序
`)
}

// runTestSequence 运行测试序列
// 按装机验收流程走一遍常用指令
func runTestSequence(controller hardware.MP3Controller) {
	fmt.Println("\n开始测试序列...")

	steps := []struct {
		desc string
		run  func() error
	}{
		{"设置音量为20", func() error { return controller.SetVolume(20) }},
		{"播放曲目1（玩家1音效）", func() error { return controller.PlayTrack(1) }},
		{"播放曲目2（玩家2音效）", func() error { return controller.PlayTrack(2) }},
		{"暂停播放", func() error { return controller.Pause() }},
		{"恢复播放", func() error { return controller.Resume() }},
		{"停止播放", func() error { return controller.Stop() }},
	}

	for _, step := range steps {
		fmt.Printf("\n📝 测试: %s\n", step.desc)

		if err := step.run(); err != nil {
			fmt.Printf("   ❌ 测试失败: %v\n", err)
		} else {
			fmt.Println("   ✅ 发送成功")
		}

		// 留出模块反应时间
		time.Sleep(time.Second)
	}

	fmt.Println("\n测试序列完成")
}
