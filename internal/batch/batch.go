// Package batch прогоняет поштучные операции с ограничением параллельности.
// Ошибка одной записи не прерывает остальные: результат каждой записи возвращается как Outcome.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Outcome - итог обработки одной записи. Err == nil означает успех
type Outcome[T any] struct {
	Item T
	Err  error
}

func (o Outcome[T]) OK() bool { return o.Err == nil }

type Options struct {
	// Concurrency - сколько записей обрабатывается одновременно
	Concurrency int
	// Size - размер пачки, между пачками делается пауза Pause
	Size  int
	Pause time.Duration
}

// Run вызывает fn для каждого элемента и возвращает итоги в порядке items.
// Отмена ctx останавливает запуск новых пачек; необработанные элементы получают ctx.Err().
func Run[T any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) error) []Outcome[T] {
	outcomes := make([]Outcome[T], len(items))
	for i, item := range items {
		outcomes[i].Item = item
	}
	if len(items) == 0 {
		return outcomes
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	size := opts.Size
	if size < 1 {
		size = len(items)
	}

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				outcomes[i].Err = err
			}
			break
		}

		var g errgroup.Group
		g.SetLimit(concurrency)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i].Err = fn(ctx, items[i])
				return nil
			})
		}
		g.Wait()

		if end < len(items) && opts.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.Pause):
			}
		}
	}

	return outcomes
}

// Failed - количество неуспешных итогов
func Failed[T any](outcomes []Outcome[T]) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}
