package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
	"github.com/taoyao-code/mesh-reader/internal/sink"
)

// Redis Key设计
const (
	// mesh:latest:{deviceID} -> Hash{record, cycle_id, node, sequence, captured_at}
	keyLatestPrefix = "mesh:latest:"

	// mesh:recent:{deviceID} -> List[record JSON]，新记录在表头
	keyRecentPrefix = "mesh:recent:"

	// mesh:devices -> Set[deviceID]
	keyDevices = "mesh:devices"
)

// DefaultRecentLimit 每个设备默认保留的记录条数
const DefaultRecentLimit = 100

// RecordCache 设备最新状态缓存：每设备一个最新记录 Hash + 定长最近记录列表
type RecordCache struct {
	client redis.UniversalClient
	limit  int
}

var _ sink.Sink = (*RecordCache)(nil)

// NewRecordCache 创建记录缓存；limit<=0 时使用默认值
func NewRecordCache(client redis.UniversalClient, limit int) *RecordCache {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &RecordCache{client: client, limit: limit}
}

func deviceKey(id uint16) string { return strconv.Itoa(int(id)) }

// Deliver 在一个事务管道内写入整批记录
func (c *RecordCache) Deliver(ctx context.Context, b sink.Batch) error {
	if len(b.Records) == 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	for _, r := range b.Records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		dev := deviceKey(r.ID.DeviceID)

		pipe.HSet(ctx, keyLatestPrefix+dev, map[string]interface{}{
			"record":      data,
			"cycle_id":    b.CycleID,
			"node":        b.Node,
			"sequence":    r.ID.Sequence,
			"captured_at": r.CapturedAt.Format(time.RFC3339Nano),
		})
		pipe.LPush(ctx, keyRecentPrefix+dev, data)
		pipe.LTrim(ctx, keyRecentPrefix+dev, 0, int64(c.limit-1))
		pipe.SAdd(ctx, keyDevices, dev)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Latest 返回每个设备的最新记录，按设备号升序
func (c *RecordCache) Latest(ctx context.Context) ([]mesh.Record, error) {
	devs, err := c.client.SMembers(ctx, keyDevices).Result()
	if err != nil {
		return nil, err
	}
	out := make([]mesh.Record, 0, len(devs))
	for _, dev := range devs {
		val, err := c.client.HGet(ctx, keyLatestPrefix+dev, "record").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var r mesh.Record
		if err := json.Unmarshal([]byte(val), &r); err != nil {
			return nil, fmt.Errorf("decode latest record of device %s: %w", dev, err)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.DeviceID < out[j].ID.DeviceID })
	return out, nil
}

// Recent 返回最近的记录（新→旧）；deviceID 为 nil 时合并全部设备
func (c *RecordCache) Recent(ctx context.Context, deviceID *uint16, limit int) ([]mesh.Record, error) {
	if limit <= 0 || limit > c.limit {
		limit = c.limit
	}
	var devs []string
	if deviceID != nil {
		devs = []string{deviceKey(*deviceID)}
	} else {
		var err error
		if devs, err = c.client.SMembers(ctx, keyDevices).Result(); err != nil {
			return nil, err
		}
	}

	var out []mesh.Record
	for _, dev := range devs {
		vals, err := c.client.LRange(ctx, keyRecentPrefix+dev, 0, int64(limit-1)).Result()
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			var r mesh.Record
			if err := json.Unmarshal([]byte(v), &r); err != nil {
				return nil, fmt.Errorf("decode recent record of device %s: %w", dev, err)
			}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeviceCount 已缓存的设备数
func (c *RecordCache) DeviceCount(ctx context.Context) (int64, error) {
	return c.client.SCard(ctx, keyDevices).Result()
}
