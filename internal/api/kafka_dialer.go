package api

import (
	"crypto/tls"
	"crypto/x509"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// CreateKafkaDialer dialer с SASL/PLAIN и TLS для управляемой Kafka.
// SASL всегда идет поверх TLS. Без CA сертификата используются системные.
func CreateKafkaDialer(username, password, caCert string) *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	useSASL := username != "" && password != ""
	if useSASL {
		dialer.SASLMechanism = plain.Mechanism{Username: username, Password: password}
		log.Printf("🔐 Kafka: SASL/PLAIN аутентификация включена (username: %s)", username)
	}
	if !useSASL && caCert == "" {
		return dialer
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(caCert)) {
			tlsConfig.RootCAs = pool
			log.Printf("🔒 Kafka: TLS с CA сертификатом включен")
		} else {
			log.Printf("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	} else {
		log.Printf("🔒 Kafka: TLS включен (системные сертификаты)")
	}
	dialer.TLS = tlsConfig
	return dialer
}

// ParseKafkaBrokers парсит строку с брокерами через запятую
func ParseKafkaBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
