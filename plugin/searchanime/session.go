package searchanime

import (
	"time"

	"github.com/RomiChan/syncx"
)

// searchSession 一次搜番等待，只会被 take 取走一次
type searchSession struct {
	uid     int64
	startAt time.Time
}

// sessionStore 以发起者为键的等待表。
// 图片到达与定时超时两条路径都通过 take 争夺同一条目，
// 先取到的一方负责收尾，另一方拿不到条目即放弃。
type sessionStore struct {
	m syncx.Map[int64, *searchSession]
}

// begin 登记等待，已有会话时返回 false 且不影响原会话
func (s *sessionStore) begin(uid int64) bool {
	_, loaded := s.m.LoadOrStore(uid, &searchSession{uid: uid, startAt: time.Now()})
	return !loaded
}

// waiting 是否有未完成的会话
func (s *sessionStore) waiting(uid int64) bool {
	_, ok := s.m.Load(uid)
	return ok
}

// take 原子取走会话，false 表示已被另一条路径取走
func (s *sessionStore) take(uid int64) (*searchSession, bool) {
	return s.m.LoadAndDelete(uid)
}
