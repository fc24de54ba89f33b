package services

import (
	"context"
	"errors"

	"kitchenline/server/internal/models"
)

// MultiNotifier рассылает уведомление всем подключенным каналам
type MultiNotifier []Notifier

// Notify отправляет во все каналы, ошибки объединяются
func (m MultiNotifier) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierFunc адаптер функции к Notifier
type NotifierFunc func(ctx context.Context, n models.Notification) error

// Notify вызывает функцию
func (f NotifierFunc) Notify(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}
