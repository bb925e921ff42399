package paneltest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"remna-bot/internal/gates/remnawave"
	"remna-bot/internal/syncerr"
)

type fakePanel struct {
	pingErr  error
	squadErr error
}

func (p *fakePanel) Ping(context.Context) error { return p.pingErr }

func (p *fakePanel) ListSquads(context.Context) ([]remnawave.Squad, error) {
	if p.squadErr != nil {
		return nil, p.squadErr
	}
	return []remnawave.Squad{{UUID: "g1"}, {UUID: "g2"}}, nil
}

func TestStartupProbe(t *testing.T) {
	tests := []struct {
		name       string
		panel      *fakePanel
		wantErr    bool
		wantPrefix string
		wantText   string
	}{
		{name: "Healthy", panel: &fakePanel{}, wantPrefix: "✅", wantText: "Сквадов: 2"},
		{name: "Not configured", panel: &fakePanel{pingErr: syncerr.NotConfigured("REMNAWAVE_TOKEN must be set")}, wantErr: true, wantPrefix: "🚨", wantText: "REMNAWAVE_TOKEN"},
		{name: "Squads broken", panel: &fakePanel{squadErr: errors.New("decode")}, wantErr: true, wantPrefix: "⚠️", wantText: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var messages []string
			probe := NewStartupProbe(tt.panel, "https://panel.example", func(m string) { messages = append(messages, m) })

			err := probe.Run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(messages) != 1 {
				t.Fatalf("messages = %v, want exactly one", messages)
			}
			if !strings.HasPrefix(messages[0], tt.wantPrefix) || !strings.Contains(messages[0], tt.wantText) {
				t.Errorf("message = %q", messages[0])
			}
		})
	}
}
