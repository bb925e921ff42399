package paneltest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remna-bot/internal/gates/remnawave"
	"remna-bot/internal/syncerr"
)

// Panel - часть клиента панели, которую проверяет тест
type Panel interface {
	Ping(ctx context.Context) error
	ListSquads(ctx context.Context) ([]remnawave.Squad, error)
}

// StartupProbe проверяет подключение к панели RemnaWave при старте приложения
type StartupProbe struct {
	panel    Panel
	addr     string
	notifyFn func(message string)
}

func NewStartupProbe(panel Panel, addr string, notifyFn func(string)) *StartupProbe {
	return &StartupProbe{
		panel:    panel,
		addr:     addr,
		notifyFn: notifyFn,
	}
}

// Run запускает проверку и отправляет итог администратору
func (p *StartupProbe) Run(ctx context.Context) error {
	slog.Info("Starting RemnaWave startup probe", "panel_url", p.addr)

	if err := p.testConnection(ctx); err != nil {
		hint := "Проверьте адрес панели и сеть"
		if syncerr.IsConfiguration(err) {
			hint = "Проверьте REMNAWAVE_URL и REMNAWAVE_TOKEN"
		}
		p.notifyFn(fmt.Sprintf("🚨 Панель RemnaWave недоступна при старте!\n\n❌ Ошибка: %v\n🌐 Адрес: %s\n\n⚠️ %s. Синхронизация работать не будет!", err, p.addr, hint))
		return err
	}

	squads, err := p.testSquads(ctx)
	if err != nil {
		p.notifyFn(fmt.Sprintf("⚠️ Панель RemnaWave подключена, но API сквадов работает некорректно!\n\n❌ Ошибка: %v\n🌐 Адрес: %s", err, p.addr))
		return err
	}

	slog.Info("RemnaWave startup probe passed", "squads", squads)
	p.notifyFn(fmt.Sprintf("✅ Панель RemnaWave подключена успешно!\n\n🌐 Адрес: %s\n📦 Сквадов: %d", p.addr, squads))
	return nil
}

func (p *StartupProbe) testConnection(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.panel.Ping(testCtx); err != nil {
		slog.Error("RemnaWave connection test failed", "error", err)
		return fmt.Errorf("тест подключения: %w", err)
	}
	return nil
}

func (p *StartupProbe) testSquads(ctx context.Context) (int, error) {
	testCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	squads, err := p.panel.ListSquads(testCtx)
	if err != nil {
		slog.Error("RemnaWave squads listing test failed", "error", err)
		return 0, fmt.Errorf("получение сквадов: %w", err)
	}
	return len(squads), nil
}
