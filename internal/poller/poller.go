// Package poller реализует отменяемую периодическую задачу обновления списков заказов.
package poller

import (
	"context"
	"sync"
	"time"
)

// Task — работа, выполняемая на каждом тике. Контекст отменяется при
// остановке опроса; задача обязана его уважать.
type Task func(ctx context.Context)

// Poller запускает задачу с фиксированным периодом. Живым может быть не более
// одного таймера: повторный Start сначала гасит предыдущий, Stop снимает
// текущий. Это единственный инвариант управления конкурентностью в клиенте.
type Poller struct {
	interval time.Duration
	task     Task

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New создаёт опрос с указанным периодом и задачей.
func New(interval time.Duration, task Task) *Poller {
	return &Poller{
		interval: interval,
		task:     task,
	}
}

// Start запускает периодическое выполнение задачи. Уже идущий опрос
// останавливается перед запуском нового. Отмена родительского контекста
// также завершает опрос.
func (p *Poller) Start(ctx context.Context) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.task(ctx)
			}
		}
	}()
}

// Stop завершает опрос и дожидается выхода его горутины. Идемпотентна.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running сообщает, идёт ли опрос в данный момент.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
