package searchanime

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSessionSinglePerRequester(t *testing.T) {
	s := &sessionStore{}
	if !s.begin(1) {
		t.Fatal("first begin should succeed")
	}
	if s.begin(1) {
		t.Fatal("second begin while pending should be rejected")
	}
	if !s.waiting(1) {
		t.Fatal("session should still be pending after rejected begin")
	}
	if _, ok := s.take(1); !ok {
		t.Fatal("take should claim the pending session")
	}
	if s.waiting(1) {
		t.Fatal("session should be gone after take")
	}
	if _, ok := s.take(1); ok {
		t.Fatal("second take should find nothing")
	}
	if !s.begin(1) {
		t.Fatal("begin after take should succeed again")
	}
}

func TestSessionIndependentRequesters(t *testing.T) {
	s := &sessionStore{}
	if !s.begin(1) || !s.begin(2) {
		t.Fatal("different requesters must not block each other")
	}
	if _, ok := s.take(1); !ok {
		t.Fatal("take of requester 1 failed")
	}
	if !s.waiting(2) {
		t.Fatal("requester 2 session must be untouched")
	}
}

// 图片到达与超时两条路径争夺同一会话时，有且只有一方取走
func TestSessionTakeExactlyOnce(t *testing.T) {
	s := &sessionStore{}
	for i := 0; i < 200; i++ {
		if !s.begin(7) {
			t.Fatal("begin failed")
		}
		var wins int32
		var wg sync.WaitGroup
		wg.Add(2)
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				if _, ok := s.take(7); ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	}
}

// 超时清理后迟到的图片路径取不到会话，不会二次处理
func TestSessionLateArrivalIgnored(t *testing.T) {
	s := &sessionStore{}
	if !s.begin(3) {
		t.Fatal("begin failed")
	}
	if _, ok := s.take(3); !ok { // 超时方先到
		t.Fatal("expiry take failed")
	}
	if _, ok := s.take(3); ok { // 图片方迟到
		t.Fatal("late arrival must observe no session")
	}
}
