package hardware

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// SerialPort 串口接口（用于测试）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// SerialOptions 串口打开参数
type SerialOptions struct {
	Port        string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

// openSerialPort 打开串口（9600 8-N-1为模块默认参数）
func openSerialPort(opts SerialOptions) (SerialPort, error) {
	// 解析校验位
	parity := serial.ParityNone
	switch opts.Parity {
	case "O", "odd":
		parity = serial.ParityOdd
	case "E", "even":
		parity = serial.ParityEven
	}

	cfg := &serial.Config{
		Name:        opts.Port,
		Baud:        opts.BaudRate,
		Size:        byte(opts.DataBits),
		Parity:      parity,
		StopBits:    serial.StopBits(opts.StopBits),
		ReadTimeout: opts.ReadTimeout,
	}

	return serial.OpenPort(cfg)
}
