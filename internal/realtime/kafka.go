package realtime

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig параметры чтения CDC-топика
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaSource читает CDC-события таблицы из Kafka
type KafkaSource struct {
	reader *kafka.Reader
	logger *zap.Logger
}

// OpenKafka возвращает OpenFunc, создающую отдельный kafka.Reader на каждую подписку
func OpenKafka(cfg KafkaConfig, logger *zap.Logger) OpenFunc {
	return func(ctx context.Context) (Source, error) {
		readerCfg := kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		}
		if cfg.GroupID != "" {
			readerCfg.StartOffset = kafka.LastOffset
			readerCfg.CommitInterval = time.Second
		}
		if err := readerCfg.Validate(); err != nil {
			return nil, err
		}

		reader := kafka.NewReader(readerCfg)
		// Без группы читаем только новые сообщения
		if cfg.GroupID == "" {
			if err := reader.SetOffset(kafka.LastOffset); err != nil {
				reader.Close()
				return nil, err
			}
		}
		return &KafkaSource{reader: reader, logger: logger}, nil
	}
}

func (s *KafkaSource) Listen(ctx context.Context, handle func(Event)) error {
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("Ошибка чтения сообщения Kafka", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// tombstone после удаления в Debezium
		if len(m.Value) == 0 {
			continue
		}

		ev, err := DecodeEvent(m.Value, ListingsTable)
		if err != nil {
			s.logger.Warn("Не удалось разобрать сообщение Kafka",
				zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		}
		handle(ev)
	}
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
