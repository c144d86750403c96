// Package feed держит актуальный набор объявлений для страницы маркетплейса
// и перезагружает его по уведомлениям канала живых обновлений.
package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/metrics"
	"github.com/rajivgeraev/recyclables-api/internal/models"
	"github.com/rajivgeraev/recyclables-api/internal/query"
	"github.com/rajivgeraev/recyclables-api/internal/realtime"
)

// ErrClosed лента уже закрыта
var ErrClosed = errors.New("лента закрыта")

// maxWaitFactor во сколько окон debounce может растянуться непрерывный поток уведомлений
const maxWaitFactor = 4

// Lister источник полного набора объявлений
type Lister interface {
	ListAll(ctx context.Context) ([]models.Recyclable, error)
}

// Notifier получает сигнал после применения нового набора
type Notifier interface {
	ListingsChanged()
}

// View состояние страницы: отфильтрованные объявления, статистика и последняя ошибка загрузки
type View struct {
	Listings []models.Recyclable
	Stats    query.Statistics
	Loaded   bool
	Err      error
}

// Feed контроллер страницы объявлений
type Feed struct {
	lister   Lister
	channel  *realtime.Channel
	debounce time.Duration
	notifier Notifier
	logger   *zap.Logger

	generation atomic.Uint64

	mu       sync.RWMutex
	listings []models.Recyclable
	lastErr  error
	loaded   bool
	applied  uint64
	closed   bool
	pending  bool
	since    time.Time
	timer    *time.Timer
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *realtime.Subscription
}

// New создает ленту; channel может быть nil, тогда набор обновляется только через Refresh и Invalidate
func New(lister Lister, channel *realtime.Channel, debounce time.Duration, logger *zap.Logger) *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		lister:   lister,
		channel:  channel,
		debounce: debounce,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetNotifier подключает получателя сигналов об обновлении
func (f *Feed) SetNotifier(n Notifier) {
	f.mu.Lock()
	f.notifier = n
	f.mu.Unlock()
}

// Start загружает набор и подписывается на изменения.
// Ошибка первой загрузки сохраняется в состоянии ленты и не мешает подписке.
func (f *Feed) Start(ctx context.Context) error {
	if err := f.Refresh(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		f.logger.Warn("Первичная загрузка объявлений не удалась", zap.Error(err))
	}
	if f.channel == nil {
		return nil
	}

	sub, err := f.channel.Subscribe(f.ctx, func(realtime.Event) { f.Invalidate() })
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		sub.Unsubscribe()
		return ErrClosed
	}
	f.sub = sub
	f.mu.Unlock()
	return nil
}

// Invalidate помечает набор устаревшим; пачка вызовов в пределах окна дает одну перезагрузку.
// Непрерывный поток откладывает перезагрузку не дольше maxWaitFactor окон.
func (f *Feed) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	if f.debounce <= 0 {
		go f.reload()
		return
	}
	if f.pending {
		delay := f.debounce
		if left := f.maxWait() - time.Since(f.since); left < delay {
			delay = max(left, 0)
		}
		f.timer.Reset(delay)
		return
	}
	f.pending = true
	f.since = time.Now()
	if f.timer == nil {
		f.timer = time.AfterFunc(f.debounce, f.fire)
	} else {
		f.timer.Reset(f.debounce)
	}
}

func (f *Feed) maxWait() time.Duration {
	return maxWaitFactor * f.debounce
}

func (f *Feed) fire() {
	f.mu.Lock()
	f.pending = false
	f.mu.Unlock()
	f.reload()
}

func (f *Feed) reload() {
	if err := f.fetch(f.ctx); err != nil && !errors.Is(err, ErrClosed) {
		f.logger.Warn("Ошибка перезагрузки объявлений", zap.Error(err))
	}
}

// Refresh перезагружает набор немедленно
func (f *Feed) Refresh(ctx context.Context) error {
	return f.fetch(ctx)
}

// fetch загружает набор под новым номером поколения; применяется только самый свежий результат
func (f *Feed) fetch(ctx context.Context) error {
	gen := f.generation.Add(1)
	metrics.FeedRefetchTotal.Inc()

	listings, err := f.lister.ListAll(ctx)
	if err != nil {
		metrics.FeedRefetchErrorsTotal.Inc()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if gen < f.applied {
		f.mu.Unlock()
		f.logger.Debug("Устаревший результат загрузки отброшен", zap.Uint64("generation", gen))
		return err
	}

	f.applied = gen
	if err != nil {
		// прежний набор остается на странице вместе с ошибкой
		f.lastErr = err
	} else {
		f.listings = listings
		f.lastErr = nil
		f.loaded = true
		metrics.FeedListings.Set(float64(len(listings)))
	}
	notifier := f.notifier
	f.mu.Unlock()

	if err == nil && notifier != nil {
		notifier.ListingsChanged()
	}
	return err
}

// View применяет фильтр к текущему набору
func (f *Feed) View(filter query.Filter) View {
	f.mu.RLock()
	listings := f.listings
	v := View{Loaded: f.loaded, Err: f.lastErr}
	f.mu.RUnlock()

	v.Listings = query.Apply(listings, filter)
	v.Stats = query.Stats(listings)
	return v
}

// Close отписывается от изменений; результаты загрузок, завершившихся позже, отбрасываются
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
	}
	sub := f.sub
	f.sub = nil
	f.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	f.cancel()
}
