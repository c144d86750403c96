package realtime

import (
	"context"
	"sync"
)

const localBuffer = 64

// LocalHub рассылает события внутри процесса; источник для хранилища в памяти
type LocalHub struct {
	mu   sync.Mutex
	subs map[*LocalSource]struct{}
}

func NewLocalHub() *LocalHub {
	return &LocalHub{subs: make(map[*LocalSource]struct{})}
}

// Publish отправляет событие всем открытым источникам.
// Медленный подписчик теряет события сверх буфера, но получает хотя бы одно: для перезагрузки этого достаточно.
func (h *LocalHub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.events <- ev:
		default:
		}
	}
}

// Open реализует OpenFunc
func (h *LocalHub) Open(ctx context.Context) (Source, error) {
	s := &LocalSource{hub: h, events: make(chan Event, localBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s, nil
}

// LocalSource соединение с LocalHub
type LocalSource struct {
	hub    *LocalHub
	events chan Event
}

func (s *LocalSource) Listen(ctx context.Context, handle func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			handle(ev)
		}
	}
}

func (s *LocalSource) Close() error {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	return nil
}
