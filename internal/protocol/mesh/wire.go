package mesh

import "encoding/binary"

// 节点固件的默认单字节命令码与状态码
const (
	CmdList     byte = 'L'
	CmdGet      byte = 'G'
	StatusOK    byte = 'O'
	StatusError byte = 'E'
)

// HM-10 透传模块默认的服务与特征 UUID
const (
	DefaultServiceUUID        = "0000ffe0-0000-1000-8000-00805f9b34fb"
	DefaultCharacteristicUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"
)

const (
	recordIDLen   = 4
	listHeaderLen = 3 // status + countLE[2]
)

// Codes 协议命令码/状态码集合，配置常量，不做运行时协商
type Codes struct {
	List  byte
	Get   byte
	OK    byte
	Error byte
}

// DefaultCodes 返回节点固件使用的默认码表
func DefaultCodes() Codes {
	return Codes{List: CmdList, Get: CmdGet, OK: StatusOK, Error: StatusError}
}

// BuildList 构造 LIST 命令
func (c Codes) BuildList() []byte {
	return []byte{c.List}
}

// BuildGet 构造 GET 命令：cmd(1) + deviceIdLE(2) + sequenceLE(2)
func (c Codes) BuildGet(id RecordID) []byte {
	buf := make([]byte, 1+recordIDLen)
	buf[0] = c.Get
	putRecordID(buf[1:], id)
	return buf
}

// ListFrameLen 返回声明 n 条记录时 LIST 响应的完整长度
func ListFrameLen(n int) int {
	return listHeaderLen + recordIDLen*n
}

// FetchFrameLen GET 响应的完成阈值：状态字节 + 最大记录编码长度。
// 线上格式不携带记录长度，这是上界而非精确长度。
const FetchFrameLen = 1 + MaxRecordSize

func putRecordID(b []byte, id RecordID) {
	binary.LittleEndian.PutUint16(b[0:2], id.DeviceID)
	binary.LittleEndian.PutUint16(b[2:4], id.Sequence)
}

func readRecordID(b []byte) RecordID {
	return RecordID{
		DeviceID: binary.LittleEndian.Uint16(b[0:2]),
		Sequence: binary.LittleEndian.Uint16(b[2:4]),
	}
}
