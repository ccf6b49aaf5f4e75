package hardware

import (
	"encoding/binary"
	"fmt"
)

// 帧定义（MP3-TF-16P串口协议，固定10字节）
const (
	FrameStart   byte = 0x7E // 起始标志
	FrameVersion byte = 0xFF // 版本标志
	FrameLength  byte = 0x06 // 长度标志（版本标志到参数低位共6字节）
	FrameEnd     byte = 0xEF // 结束标志

	FrameSize = 10 // 帧总长度
)

// 命令码定义
const (
	CmdNext            byte = 0x01 // 下一曲
	CmdPrevious        byte = 0x02 // 上一曲
	CmdPause           byte = 0x02 // 暂停（该固件版本与上一曲共用命令码）
	CmdPlayTrack       byte = 0x03 // 按曲目编号播放
	CmdSetVolume       byte = 0x06 // 设置音量
	CmdResume          byte = 0x0D // 继续播放
	CmdPlayFolderTrack byte = 0x0F // 播放指定文件夹内曲目
	CmdStop            byte = 0x16 // 停止播放
	CmdRandom          byte = 0x18 // 随机播放
	CmdLoop            byte = 0x19 // 循环播放开关
	CmdGetStatus       byte = 0x42 // 状态查询
)

// 参数取值范围
const (
	MinTrack  = 1   // 最小曲目编号
	MaxTrack  = 255 // 最大曲目编号
	MinFolder = 1   // 最小文件夹编号
	MaxFolder = 99  // 最大文件夹编号
	MinVolume = 0   // 最小音量（静音）
	MaxVolume = 30  // 最大音量
)

// Frame MP3命令帧
// 固定布局：起始 版本 长度 命令 反馈 参数高 参数低 校验高 校验低 结束
type Frame struct {
	Command   byte   // 命令码
	Feedback  byte   // 反馈标志（播放命令恒为0，不使用应答通道）
	ParamHigh byte   // 参数高位
	ParamLow  byte   // 参数低位
	Checksum  uint16 // 校验和
}

// NewFrame 创建命令帧并计算校验和
func NewFrame(cmd byte, paramHigh, paramLow byte) *Frame {
	f := &Frame{
		Command:   cmd,
		ParamHigh: paramHigh,
		ParamLow:  paramLow,
	}
	f.Checksum = f.CalculateChecksum()
	return f
}

// CalculateChecksum 计算校验和
// 版本标志到参数低位共6字节求和取补码，大端序存入第8、9字节
func (f *Frame) CalculateChecksum() uint16 {
	sum := uint16(FrameVersion) + uint16(FrameLength) + uint16(f.Command) +
		uint16(f.Feedback) + uint16(f.ParamHigh) + uint16(f.ParamLow)
	return -sum
}

// Param 返回16位参数值
func (f *Frame) Param() uint16 {
	return uint16(f.ParamHigh)<<8 | uint16(f.ParamLow)
}

// ToBytes 将帧编码为10字节序列
func (f *Frame) ToBytes() []byte {
	buf := make([]byte, FrameSize)
	buf[0] = FrameStart
	buf[1] = FrameVersion
	buf[2] = FrameLength
	buf[3] = f.Command
	buf[4] = f.Feedback
	buf[5] = f.ParamHigh
	buf[6] = f.ParamLow
	binary.BigEndian.PutUint16(buf[7:9], f.Checksum)
	buf[9] = FrameEnd
	return buf
}

// FromBytes 从字节序列解析帧
func FromBytes(data []byte) (*Frame, error) {
	if len(data) != FrameSize {
		return nil, fmt.Errorf("frame length mismatch: %d != %d", len(data), FrameSize)
	}

	// 检查固定标志
	if data[0] != FrameStart {
		return nil, fmt.Errorf("invalid frame start: 0x%02X", data[0])
	}
	if data[1] != FrameVersion {
		return nil, fmt.Errorf("invalid version marker: 0x%02X", data[1])
	}
	if data[2] != FrameLength {
		return nil, fmt.Errorf("invalid length marker: 0x%02X", data[2])
	}
	if data[9] != FrameEnd {
		return nil, fmt.Errorf("invalid frame end: 0x%02X", data[9])
	}

	// 解析字段
	f := &Frame{
		Command:   data[3],
		Feedback:  data[4],
		ParamHigh: data[5],
		ParamLow:  data[6],
		Checksum:  binary.BigEndian.Uint16(data[7:9]),
	}

	// 验证校验和
	calc := f.CalculateChecksum()
	if calc != f.Checksum {
		return nil, fmt.Errorf("checksum mismatch: calc=0x%04X, recv=0x%04X", calc, f.Checksum)
	}

	return f, nil
}
