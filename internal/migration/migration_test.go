package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"remna-bot/internal/batch"
	"remna-bot/internal/db"
	"remna-bot/internal/syncerr"
)

const (
	group1 = "11111111-0000-4000-8000-00000000000a"
	group2 = "22222222-0000-4000-8000-00000000000b"
	group3 = "33333333-0000-4000-8000-00000000000c"
)

type fakePanel struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string][]string
}

func (p *fakePanel) UpdateUserSquads(ctx context.Context, userUUID string, squads []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string][]string{}
	}
	p.calls[userUUID] = squads
	if p.fail[userUUID] {
		return errors.New("panel unavailable")
	}
	return nil
}

func setupRepo(t *testing.T) *db.Repository {
	t.Helper()

	repo, err := db.NewRepository("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	for _, s := range []db.Squad{{UUID: group1, Name: "Europe"}, {UUID: group2, Name: "Asia"}} {
		if _, _, err := repo.UpsertSquad(ctx, s); err != nil {
			t.Fatalf("UpsertSquad: %v", err)
		}
	}
	return repo
}

func userUUID(i int) string {
	return fmt.Sprintf("aaaaaaaa-0000-4000-8000-%012d", i)
}

func seedAccounts(t *testing.T, repo *db.Repository, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		id := userUUID(i)
		acc := &db.Account{
			Username:      fmt.Sprintf("user%d", i),
			RemnawaveUUID: &id,
			Squads:        []db.AccountSquad{{SquadUUID: group1}},
		}
		if _, err := repo.CreateAccount(context.Background(), acc); err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
	}
}

func newTestMigrator(repo *db.Repository, panel Panel) *Migrator {
	return NewMigrator(repo, panel, batch.Options{Concurrency: 3, Size: 10})
}

func TestMigrateToleratesPanelFailures(t *testing.T) {
	repo := setupRepo(t)
	seedAccounts(t, repo, 5)
	panel := &fakePanel{fail: map[string]bool{userUUID(2): true, userUUID(4): true}}
	m := newTestMigrator(repo, panel)
	ctx := context.Background()

	result, err := m.Migrate(ctx, group1, group2)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	want := Result{Total: 5, Updated: 5, PanelUpdated: 3, PanelFailed: 2}
	if *result != want {
		t.Errorf("result = %+v, want %+v", *result, want)
	}

	// локальный перенос не откатывается даже при ошибке панели
	if n, _ := m.CountActiveAccountsForGroup(ctx, group1); n != 0 {
		t.Errorf("accounts left in source = %d, want 0", n)
	}
	if n, _ := m.CountActiveAccountsForGroup(ctx, group2); n != 5 {
		t.Errorf("accounts in target = %d, want 5", n)
	}
	if sq := panel.calls[userUUID(1)]; len(sq) != 1 || sq[0] != group2 {
		t.Errorf("panel squads for user1 = %v, want [%s]", sq, group2)
	}
}

func TestMigrateKeepsOtherSquads(t *testing.T) {
	repo := setupRepo(t)
	id := userUUID(1)
	acc := &db.Account{
		Username:      "multi",
		RemnawaveUUID: &id,
		Squads:        []db.AccountSquad{{SquadUUID: group1}, {SquadUUID: group3}},
	}
	if _, err := repo.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	panel := &fakePanel{}

	if _, err := newTestMigrator(repo, panel).Migrate(context.Background(), group1, group2); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	sq := panel.calls[id]
	if len(sq) != 2 || sq[0] != group2 || sq[1] != group3 {
		t.Errorf("panel squads = %v, want [%s %s]", sq, group2, group3)
	}
}

func TestMigrateValidation(t *testing.T) {
	tests := []struct {
		name           string
		source, target string
	}{
		{name: "Same squad", source: group1, target: group1},
		{name: "Empty source", source: "", target: group2},
		{name: "Empty target", source: group1, target: ""},
		{name: "Unknown target", source: group1, target: group3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := setupRepo(t)
			seedAccounts(t, repo, 2)
			panel := &fakePanel{}
			m := newTestMigrator(repo, panel)

			result, err := m.Migrate(context.Background(), tt.source, tt.target)
			if !syncerr.IsValidation(err) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if result != nil {
				t.Errorf("result = %+v, want nil", result)
			}
			if len(panel.calls) != 0 {
				t.Errorf("panel called %d times on rejected migration", len(panel.calls))
			}
			if n, _ := m.CountActiveAccountsForGroup(context.Background(), group1); n != 2 {
				t.Errorf("source membership changed: %d", n)
			}
		})
	}
}

func TestMigrateMissingSourceIsEmpty(t *testing.T) {
	repo := setupRepo(t)
	m := newTestMigrator(repo, &fakePanel{})

	result, err := m.Migrate(context.Background(), group3, group2)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("Total = %d, want 0", result.Total)
	}
}

func TestMigrateUnlinkedAccountCountsAsPanelFailure(t *testing.T) {
	repo := setupRepo(t)
	acc := &db.Account{Username: "local-only", Squads: []db.AccountSquad{{SquadUUID: group1}}}
	if _, err := repo.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	result, err := newTestMigrator(repo, &fakePanel{}).Migrate(context.Background(), group1, group2)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if result.Updated != 1 || result.PanelFailed != 1 {
		t.Errorf("result = %+v, want updated=1 panel_failed=1", *result)
	}
}

func TestPrepareCountsAffected(t *testing.T) {
	repo := setupRepo(t)
	seedAccounts(t, repo, 3)

	plan, err := newTestMigrator(repo, &fakePanel{}).Prepare(context.Background(), group1, group2)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if plan.Affected != 3 {
		t.Errorf("Affected = %d, want 3", plan.Affected)
	}
}
