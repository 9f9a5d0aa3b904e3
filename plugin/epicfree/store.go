package epicfree

import (
	"encoding/json"
	"os"
	"sync"

	fcext "github.com/FloatTech/floatbox/ctxext"
	"github.com/FloatTech/floatbox/file"
	zero "github.com/wdvxdr1123/ZeroBot"
	"github.com/wdvxdr1123/ZeroBot/message"
)

// subscriberSet 订阅了周免播报的群，变更即落盘
type subscriberSet struct {
	mu     sync.RWMutex
	path   string
	Groups map[int64]struct{} `json:"groups"`
}

var (
	subsMu sync.Mutex
	subs   *subscriberSet
)

// getSubs 懒加载订阅表。指令处理与定时推送跑在不同协程，
// 共用这一个入口，加载失败下次再试
func getSubs() (*subscriberSet, error) {
	subsMu.Lock()
	defer subsMu.Unlock()
	if subs != nil {
		return subs, nil
	}
	s, err := newSubscriberSet(engine.DataFolder() + "subscribers.json")
	if err != nil {
		return nil, err
	}
	subs = s
	return s, nil
}

var loadSubs = fcext.DoOnceOnSuccess(func(ctx *zero.Ctx) bool {
	if _, err := getSubs(); err != nil {
		ctx.SendChain(message.Text("[epicfree]初始化失败: ", err))
		return false
	}
	return true
})

func newSubscriberSet(path string) (*subscriberSet, error) {
	s := &subscriberSet{path: path, Groups: make(map[int64]struct{})}
	if file.IsNotExist(path) {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.Groups == nil {
		s.Groups = make(map[int64]struct{})
	}
	return s, nil
}

// save 调用方需持有写锁
func (s *subscriberSet) save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func (s *subscriberSet) add(gid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Groups[gid] = struct{}{}
	return s.save()
}

func (s *subscriberSet) del(gid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Groups, gid)
	return s.save()
}

func (s *subscriberSet) list() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gids := make([]int64, 0, len(s.Groups))
	for gid := range s.Groups {
		gids = append(gids, gid)
	}
	return gids
}
