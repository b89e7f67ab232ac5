package fake

import (
	"encoding/binary"
	"sync"

	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

// DefaultMTU BLE 默认 ATT_MTU(23) 去掉 3 字节头后的可用负载
const DefaultMTU = 20

// MeshNode 按节点固件协议应答 LIST/GET 的模拟节点
type MeshNode struct {
	Codes mesh.Codes
	MTU   int

	mu      sync.Mutex
	records []mesh.Record
	// failGet 命中的记录返回 ERROR；silent 命中的记录不应答
	failGet map[mesh.RecordID]bool
	silent  map[mesh.RecordID]bool
	gets    []mesh.RecordID
}

// NewMeshNode 创建持有给定记录的模拟节点，并返回可挂到 Link 上的 Node
func NewMeshNode(addr string, records ...mesh.Record) (*MeshNode, *Node) {
	m := &MeshNode{
		Codes:   mesh.DefaultCodes(),
		MTU:     DefaultMTU,
		records: records,
		failGet: make(map[mesh.RecordID]bool),
		silent:  make(map[mesh.RecordID]bool),
	}
	return m, &Node{Addr: addr, Label: "HMSoft", Handler: m.Handle}
}

// FailGet 对指定记录的 GET 返回 ERROR
func (m *MeshNode) FailGet(id mesh.RecordID) {
	m.mu.Lock()
	m.failGet[id] = true
	m.mu.Unlock()
}

// Silence 对指定记录的 GET 不作应答
func (m *MeshNode) Silence(id mesh.RecordID) {
	m.mu.Lock()
	m.silent[id] = true
	m.mu.Unlock()
}

// Gets 返回收到的 GET 请求顺序
func (m *MeshNode) Gets() []mesh.RecordID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mesh.RecordID(nil), m.gets...)
}

// Handle 处理一条命令并返回按 MTU 切分的应答分片
func (m *MeshNode) Handle(cmd []byte) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(cmd) == 0 {
		return nil
	}
	switch cmd[0] {
	case m.Codes.List:
		frame := make([]byte, 3, mesh.ListFrameLen(len(m.records)))
		frame[0] = m.Codes.OK
		binary.LittleEndian.PutUint16(frame[1:3], uint16(len(m.records)))
		for _, r := range m.records {
			frame = binary.LittleEndian.AppendUint16(frame, r.ID.DeviceID)
			frame = binary.LittleEndian.AppendUint16(frame, r.ID.Sequence)
		}
		return Split(frame, m.MTU)
	case m.Codes.Get:
		if len(cmd) < 5 {
			return [][]byte{{m.Codes.Error}}
		}
		id := mesh.RecordID{
			DeviceID: binary.LittleEndian.Uint16(cmd[1:3]),
			Sequence: binary.LittleEndian.Uint16(cmd[3:5]),
		}
		m.gets = append(m.gets, id)
		if m.silent[id] {
			return nil
		}
		if m.failGet[id] {
			return [][]byte{{m.Codes.Error}}
		}
		for _, r := range m.records {
			if r.ID == id {
				frame := append([]byte{m.Codes.OK}, mesh.EncodeRecord(r)...)
				return Split(frame, m.MTU)
			}
		}
		return [][]byte{{m.Codes.Error}}
	default:
		return [][]byte{{m.Codes.Error}}
	}
}
