package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenline/server/internal/models"
)

func TestDecodeChangeMessageNative(t *testing.T) {
	ev, err := DecodeChangeMessage([]byte(`{"table":"orders","op":"UPDATE","record_id":"o1","branch_id":"b1","new":{"id":"o1","status":"ready"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.TableOrders, ev.Table)
	assert.Equal(t, models.OpUpdate, ev.Op)
	assert.Equal(t, "o1", ev.RecordID)
	assert.Equal(t, "b1", ev.BranchID)

	var order models.Order
	require.NoError(t, ev.DecodeNew(&order))
	assert.Equal(t, models.OrderStatusReady, order.Status)
}

func TestDecodeChangeMessageDebezium(t *testing.T) {
	msg := `{"payload":{"op":"u","ts_ms":1710439200000,"source":{"table":"order_items"},
		"before":{"id":"i1","station_status":"waiting"},
		"after":{"id":"i1","station_status":"in_progress","branch_id":"b1"}}}`

	ev, err := DecodeChangeMessage([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, models.TableOrderItems, ev.Table)
	assert.Equal(t, models.OpUpdate, ev.Op)
	assert.Equal(t, "i1", ev.RecordID)
	assert.Equal(t, "b1", ev.BranchID)
	assert.True(t, ev.At.Equal(time.UnixMilli(1710439200000)))
	assert.NotEmpty(t, ev.Old)

	var item models.OrderItem
	require.NoError(t, ev.DecodeNew(&item))
	assert.Equal(t, models.ItemStatusInProgress, item.StationStatus)
}

func TestDecodeChangeMessageDebeziumDelete(t *testing.T) {
	ev, err := DecodeChangeMessage([]byte(`{"op":"d","source":{"table":"stations"},"before":{"id":"asm-1"},"after":null}`))
	require.NoError(t, err)
	assert.Equal(t, models.OpDelete, ev.Op)
	assert.Equal(t, "asm-1", ev.RecordID)
	assert.Nil(t, ev.New)
}

func TestDecodeChangeMessageRejectsUnknown(t *testing.T) {
	for name, msg := range map[string]string{
		"malformed":     `{"op":`,
		"unknown op":    `{"op":"t","source":{"table":"orders"}}`,
		"missing table": `{"op":"c","after":{"id":"x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeChangeMessage([]byte(msg))
			assert.Error(t, err)
		})
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, ParseKafkaBrokers(" k1:9092 ,k2:9092,"))
}

func TestCreateKafkaDialer(t *testing.T) {
	plainDialer := CreateKafkaDialer("", "", "")
	assert.Nil(t, plainDialer.TLS)
	assert.Nil(t, plainDialer.SASLMechanism)

	saslDialer := CreateKafkaDialer("kitchen", "secret", "")
	require.NotNil(t, saslDialer.TLS)
	assert.NotNil(t, saslDialer.SASLMechanism)
	assert.Nil(t, saslDialer.TLS.RootCAs)

	badCA := CreateKafkaDialer("", "", "not a pem")
	require.NotNil(t, badCA.TLS)
	assert.Nil(t, badCA.TLS.RootCAs)
}
