package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL        string
	RedisURL           string
	RedisSentinelAddrs []string // Адреса Sentinel (через запятую)
	RedisMasterName    string   // Имя мастера в Sentinel
	KafkaBrokers       string
	KafkaUsername      string
	KafkaPassword      string
	KafkaCACert        string
	KafkaChangeTopic   string // CDC-топик с изменениями orders/order_items/station_logs/stations
	KafkaGroupID       string
	RabbitMQURL        string
	AlertExchange      string // fanout exchange для звука/тостов
	ServerPort         string
	GRPCPort           string
	Environment        string

	BranchID           string `validate:"required"`
	ChangeFeed         string `validate:"oneof=kafka postgres redis none"`
	NotifyChannel      string // канал LISTEN/NOTIFY
	RedisChangeChannel string // канал Pub/Sub
	AlertStore         string `validate:"oneof=badger redis memory"`
	BadgerPath         string
	KitchenConfigPath  string

	Kitchen KitchenConfig
}

func Load() *Config {
	// Railway может использовать разные имена переменных для PostgreSQL
	databaseURL := firstEnv("DATABASE_URL", "POSTGRES_URL", "PGDATABASE_URL")
	// Если нет полного URL, пытаемся собрать из отдельных переменных
	if databaseURL == "" {
		pgHost := getEnv("PGHOST", "")
		pgPort := getEnv("PGPORT", "5432")
		pgUser := getEnv("PGUSER", "postgres")
		pgPassword := getEnv("PGPASSWORD", "")
		pgDatabase := getEnv("PGDATABASE", "kitchen")

		if pgHost != "" {
			if pgPassword != "" {
				databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
					pgUser, pgPassword, pgHost, pgPort, pgDatabase)
			} else {
				databaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
					pgUser, pgHost, pgPort, pgDatabase)
			}
		}
	}

	redisURL := firstEnv("REDIS_URL", "REDISCLOUD_URL")
	if redisURL == "" {
		redisHost := getEnv("REDISHOST", "")
		redisPort := getEnv("REDISPORT", "6379")
		redisPassword := getEnv("REDISPASSWORD", "")
		redisDB := getEnv("REDISDB", "0")

		if redisHost != "" {
			if redisPassword != "" {
				redisURL = fmt.Sprintf("redis://:%s@%s:%s/%s", redisPassword, redisHost, redisPort, redisDB)
			} else {
				redisURL = fmt.Sprintf("redis://%s:%s/%s", redisHost, redisPort, redisDB)
			}
		}
	}

	var sentinelAddrs []string
	if raw := getEnv("REDIS_SENTINEL_ADDRS", ""); raw != "" {
		for _, addr := range strings.Split(raw, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				sentinelAddrs = append(sentinelAddrs, addr)
			}
		}
	}

	changeFeed := getEnv("KITCHEN_CHANGE_FEED", "")
	if changeFeed == "" {
		// Без явного выбора: Kafka, если есть брокеры, иначе LISTEN/NOTIFY, если есть БД
		switch {
		case getEnv("KAFKA_BROKERS", "") != "":
			changeFeed = "kafka"
		case databaseURL != "":
			changeFeed = "postgres"
		default:
			changeFeed = "none"
		}
	}

	return &Config{
		DatabaseURL:        databaseURL,
		RedisURL:           redisURL,
		RedisSentinelAddrs: sentinelAddrs,
		RedisMasterName:    getEnv("REDIS_MASTER_NAME", "mymaster"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaUsername:      getEnv("KAFKA_USERNAME", ""),
		KafkaPassword:      getEnv("KAFKA_PASSWORD", ""),
		KafkaCACert:        getEnv("KAFKA_CA_CERT", ""),
		KafkaChangeTopic:   getEnv("KAFKA_CHANGE_TOPIC", "kitchen-changes"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "kitchen-monitor"),
		RabbitMQURL:        firstEnv("RABBITMQ_URL", "CLOUDAMQP_URL"),
		AlertExchange:      getEnv("RABBITMQ_ALERT_EXCHANGE", "kitchen_alerts"),
		ServerPort:         getEnv("PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "50051"),
		Environment:        getEnv("ENV", "development"),
		BranchID:           getEnv("BRANCH_ID", "default"),
		ChangeFeed:         changeFeed,
		NotifyChannel:      getEnv("KITCHEN_NOTIFY_CHANNEL", "kitchen_changes"),
		RedisChangeChannel: getEnv("KITCHEN_REDIS_CHANNEL", "kitchen:changes"),
		AlertStore:         getEnv("KITCHEN_ALERT_STORE", "badger"),
		BadgerPath:         getEnv("BADGER_PATH", "./data/alerts"),
		KitchenConfigPath:  getEnv("KITCHEN_CONFIG", ""),
		Kitchen:            DefaultKitchenConfig(),
	}
}

// Validate проверяет значения, которые нельзя исправить молча
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv первое непустое значение из списка переменных
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
