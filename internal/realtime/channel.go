package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/metrics"
)

// ListingsTable таблица, за изменениями которой следит канал
const ListingsTable = "recyclables"

// Source одно долгоживущее соединение, поставляющее события
type Source interface {
	// Listen блокируется до отмены ctx или обрыва соединения, вызывая handle на каждое событие
	Listen(ctx context.Context, handle func(Event)) error
	// Close освобождает соединение
	Close() error
}

// OpenFunc открывает новое соединение для подписки
type OpenFunc func(ctx context.Context) (Source, error)

// Channel канал живых обновлений таблицы объявлений
type Channel struct {
	name   string
	open   OpenFunc
	logger *zap.Logger
}

// NewChannel создает канал; name используется в логах и метриках
func NewChannel(name string, open OpenFunc, logger *zap.Logger) *Channel {
	return &Channel{name: name, open: open, logger: logger}
}

// Subscription активная подписка
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe открывает отдельное соединение и вызывает handle на каждое событие без фильтрации.
// handle вызывается последовательно из одной горутины.
func (ch *Channel) Subscribe(ctx context.Context, handle func(Event)) (*Subscription, error) {
	src, err := ch.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к источнику %s: %w", ch.name, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer func() {
			if err := src.Close(); err != nil {
				ch.logger.Warn("Ошибка закрытия источника изменений", zap.String("source", ch.name), zap.Error(err))
			}
		}()

		err := src.Listen(subCtx, func(ev Event) {
			metrics.ChangeEventsTotal.WithLabelValues(ch.name).Inc()
			handle(ev)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			ch.logger.Error("Источник изменений остановился", zap.String("source", ch.name), zap.Error(err))
		}
	}()

	ch.logger.Info("Подписка на изменения открыта", zap.String("source", ch.name))
	return sub, nil
}

// Unsubscribe останавливает доставку и ждет освобождения соединения.
// После возврата handle больше не вызывается. Нельзя вызывать из самого handle.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Done закрывается, когда подписка завершилась
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
