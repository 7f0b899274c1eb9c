package repo

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dushixiang/selfmon/internal/models"
	bolt "go.etcd.io/bbolt"
)

var (
	samplesBucket = []byte("samples")
	latestBucket  = []byte("latest")
)

// BoltSampleRepo 基于 bbolt 的采样存储，每个探针一个子 bucket，
// key = 毫秒时间戳(8字节大端) + 序号(8字节大端)，天然按时间有序。
// latest bucket 记录每个探针最后写入的采样 key。
type BoltSampleRepo struct {
	db *bolt.DB
}

// NewBoltSampleRepo 打开（或创建）bbolt 数据文件
func NewBoltSampleRepo(path string) (*BoltSampleRepo, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开 bbolt 数据库失败: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(samplesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(latestBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltSampleRepo{db: db}, nil
}

func sampleKey(ts int64, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(ts))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func keyTimestamp(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[:8]))
}

func tsPrefix(ts int64) []byte {
	if ts < 0 {
		ts = 0
	}
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(ts))
	return prefix
}

// Append 追加采样
func (r *BoltSampleRepo) Append(ctx context.Context, sample *models.Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().UnixMilli()
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(samplesBucket).CreateBucketIfNotExists([]byte(sample.AgentName))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		sample.ID = uint(seq)

		value, err := json.Marshal(sample)
		if err != nil {
			return err
		}
		key := sampleKey(sample.Timestamp, seq)
		if err := b.Put(key, value); err != nil {
			return err
		}
		return tx.Bucket(latestBucket).Put([]byte(sample.AgentName), key)
	})
}

// QueryWindow 按时间窗口查询
func (r *BoltSampleRepo) QueryWindow(ctx context.Context, agentName string, since time.Time) ([]models.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	samples := make([]models.Sample, 0)
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(samplesBucket).Bucket([]byte(agentName))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(tsPrefix(since.UnixMilli())); k != nil; k, v = c.Next() {
			var sample models.Sample
			if err := json.Unmarshal(v, &sample); err != nil {
				return fmt.Errorf("解析采样失败: %w", err)
			}
			samples = append(samples, sample)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// GetLatest 最后写入的一条采样；该采样已被清理时退回到时间最新的一条
func (r *BoltSampleRepo) GetLatest(ctx context.Context, agentName string) (*models.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var latest *models.Sample
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(samplesBucket).Bucket([]byte(agentName))
		if b == nil {
			return nil
		}
		var v []byte
		if key := tx.Bucket(latestBucket).Get([]byte(agentName)); key != nil {
			v = b.Get(key)
		}
		if v == nil {
			_, v = b.Cursor().Last()
		}
		if v == nil {
			return nil
		}
		var sample models.Sample
		if err := json.Unmarshal(v, &sample); err != nil {
			return fmt.Errorf("解析采样失败: %w", err)
		}
		latest = &sample
		return nil
	})
	return latest, err
}

// DeleteOlderThan 删除指定时间之前的采样
func (r *BoltSampleRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoffMs := cutoff.UnixMilli()
	var deleted int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(samplesBucket)
		return root.ForEachBucket(func(name []byte) error {
			b := root.Bucket(name)
			// 先收集再删除，避免游标删除后跳过元素
			var expired [][]byte
			c := b.Cursor()
			for k, _ := c.First(); k != nil && keyTimestamp(k) < cutoffMs; k, _ = c.Next() {
				expired = append(expired, append([]byte(nil), k...))
			}
			for _, k := range expired {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			deleted += int64(len(expired))
			return nil
		})
	})
	return deleted, err
}

func (r *BoltSampleRepo) Close() error {
	return r.db.Close()
}
