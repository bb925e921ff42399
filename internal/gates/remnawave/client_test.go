package remnawave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"remna-bot/internal/syncerr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mode string) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Token: "secret", Mode: mode, PageSize: 2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestListUsersPaginates(t *testing.T) {
	users := []User{
		{UUID: "u1", Username: "one", Status: UserStatusActive},
		{UUID: "u2", Username: "two", Status: UserStatusDisabled},
		{UUID: "u3", Username: "three", Status: UserStatusActive, ActiveInternalSquads: []SquadRef{{UUID: "g1"}}},
	}
	var calls int

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		end := start + size
		if end > len(users) {
			end = len(users)
		}
		json.NewEncoder(w).Encode(envelope[usersPage]{Response: usersPage{Users: users[start:end], Total: len(users)}})
	}, ModeRemote)

	got, err := client.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d users, want 3", len(got))
	}
	if calls != 2 {
		t.Errorf("requests = %d, want 2 pages", calls)
	}
	if ids := got[2].SquadIDs(); len(ids) != 1 || ids[0] != "g1" {
		t.Errorf("SquadIDs = %v", ids)
	}
}

func TestLocalModeHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") != "https" || r.Header.Get("X-Forwarded-For") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"response":{}}`))
	}, ModeLocal)

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping in local mode: %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantConfig bool
		wantCode   string
		notFound   bool
	}{
		{name: "Unauthorized", status: http.StatusUnauthorized, body: `{"message":"Unauthorized"}`, wantConfig: true},
		{name: "Panel error code", status: http.StatusBadRequest, body: `{"message":"User not found","errorCode":"A063","statusCode":400}`, wantCode: "A063"},
		{name: "Not found without body", status: http.StatusNotFound, body: ``, wantCode: syncerr.CodeNotFound, notFound: true},
		{name: "Rate limited", status: http.StatusTooManyRequests, body: `slow down`, wantCode: syncerr.CodeRateLimited},
		{name: "Server error", status: http.StatusInternalServerError, body: `oops`, wantCode: syncerr.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, ModeRemote)

			err := client.DisableUser(context.Background(), "u1")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := syncerr.IsConfiguration(err); got != tt.wantConfig {
				t.Errorf("IsConfiguration = %v, want %v (%v)", got, tt.wantConfig, err)
			}
			if got := syncerr.RemoteCode(err); got != tt.wantCode {
				t.Errorf("RemoteCode = %q, want %q", got, tt.wantCode)
			}
			if got := IsNotFound(err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
		})
	}
}

func TestUserStatusIsEnabled(t *testing.T) {
	tests := []struct {
		status UserStatus
		want   bool
	}{
		{UserStatusActive, true},
		{UserStatusLimited, true},
		{UserStatusDisabled, false},
		{UserStatusExpired, false},
		{UserStatus("UNKNOWN"), false},
	}

	for _, tt := range tests {
		if got := tt.status.IsEnabled(); got != tt.want {
			t.Errorf("%s.IsEnabled() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMissingCredentials(t *testing.T) {
	client, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.ListUsers(context.Background())
	if !syncerr.IsConfiguration(err) {
		t.Errorf("ListUsers without credentials = %v, want ConfigurationError", err)
	}
}

func TestUpdateUserSquadsSendsEmptyList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		squads, ok := body["activeInternalSquads"].([]interface{})
		if !ok || len(squads) != 0 {
			t.Errorf("activeInternalSquads = %v, want empty list", body["activeInternalSquads"])
		}
		w.Write([]byte(`{"response":{"uuid":"u1"}}`))
	}, ModeRemote)

	if err := client.UpdateUserSquads(context.Background(), "u1", nil); err != nil {
		t.Fatalf("UpdateUserSquads: %v", err)
	}
}

func TestListSquads(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/internal-squads" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"response":{"total":1,"internalSquads":[{"uuid":"g1","name":"Europe","info":{"membersCount":3,"inboundsCount":2}}]}}`))
	}, ModeRemote)

	squads, err := client.ListSquads(context.Background())
	if err != nil {
		t.Fatalf("ListSquads: %v", err)
	}
	if len(squads) != 1 || squads[0].Name != "Europe" || squads[0].Info.MembersCount != 3 {
		t.Errorf("squads = %+v", squads)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}); err == nil {
		t.Error("expected error for malformed url")
	}
}
