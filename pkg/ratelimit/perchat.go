package ratelimit

import (
	"sync"
	"time"
)

// PerChatLimiter enforces hourly and daily request caps per Telegram chat.
// It never blocks: handlers get an allow/deny plus a retry-after hint so
// they can answer the user instead of sleeping in the update loop.
type PerChatLimiter struct {
	perHour int
	perDay  int
	chats   map[int64]*chatWindows
	mu      sync.Mutex
}

type chatWindows struct {
	hourly *SlidingWindow
	daily  *SlidingWindow
}

// NewPerChatLimiter creates a per-chat limiter with the given caps
func NewPerChatLimiter(perHour, perDay int) *PerChatLimiter {
	return &PerChatLimiter{
		perHour: perHour,
		perDay:  perDay,
		chats:   make(map[int64]*chatWindows),
	}
}

// Allow records a request for the chat if both windows permit it.
// On denial it returns the time until the next request would be allowed.
func (l *PerChatLimiter) Allow(chatID int64) (bool, time.Duration) {
	w := l.windows(chatID)

	// Check the daily window first without consuming the hourly one
	if retry := w.daily.RetryAfter(); retry > 0 {
		return false, retry
	}
	if retry := w.hourly.RetryAfter(); retry > 0 {
		return false, retry
	}

	// Both windows have room; record the request in each
	w.hourly.Allow()
	w.daily.Allow()
	return true, 0
}

// Reset clears recorded requests for a chat
func (l *PerChatLimiter) Reset(chatID int64) {
	l.mu.Lock()
	w, ok := l.chats[chatID]
	l.mu.Unlock()
	if ok {
		w.hourly.Reset()
		w.daily.Reset()
	}
}

func (l *PerChatLimiter) windows(chatID int64) *chatWindows {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.chats[chatID]
	if !ok {
		w = &chatWindows{
			hourly: NewSlidingWindow(l.perHour, time.Hour),
			daily:  NewSlidingWindow(l.perDay, 24*time.Hour),
		}
		l.chats[chatID] = w
	}
	return w
}
