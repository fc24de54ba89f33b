package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"kitchenline/server/internal/models"
)

func TestMultiNotifierDeliversToAll(t *testing.T) {
	screens := &recordingNotifier{}
	failing := NotifierFunc(func(ctx context.Context, n models.Notification) error {
		return errors.New("broker unavailable")
	})
	audio := &recordingNotifier{}

	multi := MultiNotifier{screens, failing, nil, audio}
	err := multi.Notify(context.Background(), models.Notification{Kind: models.NotifyOrderReady})

	assert.EqualError(t, err, "broker unavailable")
	assert.Equal(t, []string{models.NotifyOrderReady}, screens.Kinds())
	assert.Equal(t, []string{models.NotifyOrderReady}, audio.Kinds())
	assert.NoError(t, MultiNotifier{}.Notify(context.Background(), models.Notification{}))
}
