package nodes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Node 节点目录条目
type Node struct {
	Address  string `yaml:"address" json:"address"`
	Label    string `yaml:"label" json:"label,omitempty"`
	Location string `yaml:"location" json:"location,omitempty"`
}

// Directory 节点目录：为日志与 API 提供地址到标签的映射
type Directory struct {
	Nodes []Node `yaml:"nodes"`

	index map[string]int
}

// LoadDirectory 从 YAML 文件加载节点目录
func LoadDirectory(path string) (*Directory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node directory: %w", err)
	}
	var d Directory
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("unmarshal node directory: %w", err)
	}
	for i, n := range d.Nodes {
		if Normalize(n.Address) == "" {
			return nil, fmt.Errorf("node directory entry %d: empty address", i)
		}
	}
	d.reindex()
	return &d, nil
}

// NewDirectory 由地址列表构造无标签的目录
func NewDirectory(addrs ...string) *Directory {
	d := &Directory{}
	for _, a := range addrs {
		d.Nodes = append(d.Nodes, Node{Address: a})
	}
	d.reindex()
	return d
}

func (d *Directory) reindex() {
	d.index = make(map[string]int, len(d.Nodes))
	for i, n := range d.Nodes {
		k := Normalize(n.Address)
		if _, dup := d.index[k]; !dup {
			d.index[k] = i
		}
	}
}

// Merge 追加目录中不存在的地址，已存在的条目保持不变
func (d *Directory) Merge(addrs ...string) {
	for _, a := range addrs {
		if _, ok := d.index[Normalize(a)]; ok || Normalize(a) == "" {
			continue
		}
		d.Nodes = append(d.Nodes, Node{Address: a})
		d.index[Normalize(a)] = len(d.Nodes) - 1
	}
}

// Lookup 按允许条目（规范化比较）查找节点
func (d *Directory) Lookup(addr string) (Node, bool) {
	if d == nil {
		return Node{}, false
	}
	i, ok := d.index[Normalize(addr)]
	if !ok {
		return Node{}, false
	}
	return d.Nodes[i], true
}

// Label 返回节点标签，未登记时返回地址本身
func (d *Directory) Label(addr string) string {
	if n, ok := d.Lookup(addr); ok && n.Label != "" {
		return n.Label
	}
	return addr
}

// AllowList 以目录中的全部地址构造白名单
func (d *Directory) AllowList() *AllowList {
	if d == nil {
		return NewAllowList()
	}
	addrs := make([]string, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		addrs = append(addrs, n.Address)
	}
	return NewAllowList(addrs...)
}
