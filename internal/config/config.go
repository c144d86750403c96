package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config структура конфигурации
type Config struct {
	TelegramBotToken string
	JWTSecret        string
	DatabaseURL      string
	DatabaseConfig   DatabaseConfig
	CloudinaryConfig CloudinaryConfig
	KafkaConfig      KafkaConfig
	AppEnv           string // Окружение приложения

	HTTPPort string
	WSPort   string

	// Storage выбирает хранилище объявлений: postgres или memory
	Storage string
	// ChangeFeed выбирает источник уведомлений об изменениях: postgres или kafka
	ChangeFeed string
	// FeedDebounce окно, в котором пачка уведомлений схлопывается в одну перезагрузку
	FeedDebounce time.Duration

	ListingTransitions string
	OrderTransitions   string
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	UploadPreset string
	UploadFolder string
}

// KafkaConfig содержит конфигурацию потока изменений из Kafka
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// LoadConfig загружает переменные из .env
func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("⚠️ .env файл не найден, используем переменные окружения")
	}

	cfg := FromEnv()

	if cfg.JWTSecret == "" {
		log.Fatal("❌ Ошибка: Не задана переменная окружения JWT_SECRET")
	}

	return cfg
}

// FromEnv собирает конфигурацию из переменных окружения без побочных эффектов
func FromEnv() *Config {
	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "recyclables_user"),
		Password: getEnv("PGPASSWORD", "recyclables_pass"),
		Name:     getEnv("PGDATABASE", "recyclables"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	// Формируем строку подключения к базе данных
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)

	cloudinaryConfig := CloudinaryConfig{
		CloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
		APIKey:       getEnv("CLOUDINARY_API_KEY", ""),
		APISecret:    getEnv("CLOUDINARY_API_SECRET", ""),
		UploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", "recyclables"),
		UploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "recyclables"),
	}

	kafkaConfig := KafkaConfig{
		Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		Topic:   getEnv("KAFKA_TOPIC", "public.recyclables"),
		GroupID: getEnv("KAFKA_GROUP_ID", ""),
	}

	debounce, err := time.ParseDuration(getEnv("FEED_DEBOUNCE", "250ms"))
	if err != nil || debounce < 0 {
		log.Printf("⚠️ Некорректное значение FEED_DEBOUNCE, используем 250ms")
		debounce = 250 * time.Millisecond
	}

	return &Config{
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		DatabaseURL:        getEnv("DATABASE_URL", dbURL),
		DatabaseConfig:     dbConfig,
		CloudinaryConfig:   cloudinaryConfig,
		KafkaConfig:        kafkaConfig,
		AppEnv:             getEnv("APP_ENV", "production"), // По умолчанию production
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		WSPort:             getEnv("WS_PORT", "8081"),
		Storage:            getEnv("STORAGE", "postgres"),
		ChangeFeed:         getEnv("CHANGE_FEED", "postgres"),
		FeedDebounce:       debounce,
		ListingTransitions: getEnv("LISTING_TRANSITIONS", ""),
		OrderTransitions:   getEnv("ORDER_TRANSITIONS", ""),
	}
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
