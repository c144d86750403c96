package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyChannel канал LISTEN/NOTIFY, в который пишет триггер таблицы recyclables
const NotifyChannel = "recyclables_changes"

const pingInterval = 90 * time.Second

// PGNotifySource слушает NOTIFY через lib/pq
type PGNotifySource struct {
	listener *pq.Listener
	logger   *zap.Logger
}

// OpenPGNotify возвращает OpenFunc, создающую отдельный pq.Listener на каждую подписку
func OpenPGNotify(dsn string, logger *zap.Logger) OpenFunc {
	return func(ctx context.Context) (Source, error) {
		listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("Событие соединения LISTEN", zap.Int("event", int(ev)), zap.Error(err))
			}
		})
		if err := listener.Listen(NotifyChannel); err != nil {
			listener.Close()
			return nil, err
		}
		return &PGNotifySource{listener: listener, logger: logger}, nil
	}
}

func (s *PGNotifySource) Listen(ctx context.Context, handle func(Event)) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-s.listener.Notify:
			if !ok {
				return errors.New("канал уведомлений закрыт")
			}
			// nil приходит после переподключения
			if n == nil {
				handle(Event{Type: EventResync, Table: ListingsTable, CommitTimestamp: time.Now().UTC()})
				continue
			}
			ev, err := DecodeEvent([]byte(n.Extra), ListingsTable)
			if err != nil {
				s.logger.Warn("Не удалось разобрать уведомление", zap.String("channel", n.Channel), zap.Error(err))
			}
			handle(ev)
		case <-ticker.C:
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.logger.Warn("Ping LISTEN соединения не прошел", zap.Error(err))
				}
			}()
		}
	}
}

func (s *PGNotifySource) Close() error {
	return s.listener.Close()
}
