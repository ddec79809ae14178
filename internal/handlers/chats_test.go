package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/eldtechnologies/chatdeck/internal/models"
)

func TestChatLifecycle(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(env.user(t, "user_1"))

	chat := env.createChat(t, r)
	if chat.Title != defaultChatTitle {
		t.Fatalf("expected default title, got %q", chat.Title)
	}
	if chat.Model != "gpt-4o" {
		t.Fatalf("expected gpt-4o, got %q", chat.Model)
	}

	rec := do(t, r, http.MethodPost, "/api/chats", map[string]string{"title": "  Trip\tplans ", "model": "claude"})
	expectStatus(t, rec, http.StatusCreated)
	if got := decodeBody[models.Chat](t, rec).Title; got != "Tripplans" {
		t.Fatalf("expected sanitized title, got %q", got)
	}

	rec = do(t, r, http.MethodGet, "/api/chats", nil)
	expectStatus(t, rec, http.StatusOK)
	list := decodeBody[ChatListResponse](t, rec)
	if list.Total != 2 || len(list.Chats) != 2 {
		t.Fatalf("expected 2 chats, got total=%d len=%d", list.Total, len(list.Chats))
	}
	if list.Limit != 20 {
		t.Fatalf("expected default limit 20, got %d", list.Limit)
	}

	rec = do(t, r, http.MethodGet, "/api/chats?limit=1&offset=1", nil)
	expectStatus(t, rec, http.StatusOK)
	if page := decodeBody[ChatListResponse](t, rec); len(page.Chats) != 1 || page.Total != 2 {
		t.Fatalf("expected one chat of two, got len=%d total=%d", len(page.Chats), page.Total)
	}

	path := "/api/chats/" + chat.ID.String()
	rec = do(t, r, http.MethodPatch, path, map[string]string{"title": "Renamed"})
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[models.Chat](t, rec).Title; got != "Renamed" {
		t.Fatalf("expected Renamed, got %q", got)
	}

	rec = do(t, r, http.MethodGet, path, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[models.Chat](t, rec).Title; got != "Renamed" {
		t.Fatalf("expected persisted rename, got %q", got)
	}

	expectStatus(t, do(t, r, http.MethodDelete, path, nil), http.StatusNoContent)
	expectStatus(t, do(t, r, http.MethodGet, path, nil), http.StatusNotFound)
}

func TestCreateChatValidation(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(env.user(t, "user_1"))

	rec := do(t, r, http.MethodPost, "/api/chats", map[string]string{"title": "x"})
	expectStatus(t, rec, http.StatusBadRequest)
	resp := decodeBody[ValidationErrorResponse](t, rec)
	if resp.Error != "validation failed" {
		t.Fatalf("expected validation failed, got %q", resp.Error)
	}
	if len(resp.Issues) != 1 || resp.Issues[0].Field != "model" {
		t.Fatalf("expected model issue, got %+v", resp.Issues)
	}

	rec = do(t, r, http.MethodPost, "/api/chats", `{"model":`)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decodeBody[map[string]string](t, rec)["error"]; got != "invalid JSON body" {
		t.Fatalf("expected invalid JSON body, got %q", got)
	}
}

func TestRenameChatValidation(t *testing.T) {
	env := newTestEnv(t)
	r := env.router(env.user(t, "user_1"))
	chat := env.createChat(t, r)
	path := "/api/chats/" + chat.ID.String()

	for _, title := range []string{"", "   ", strings.Repeat("a", 201)} {
		rec := do(t, r, http.MethodPatch, path, map[string]string{"title": title})
		expectStatus(t, rec, http.StatusBadRequest)
		resp := decodeBody[ValidationErrorResponse](t, rec)
		if len(resp.Issues) == 0 || resp.Issues[0].Field != "title" {
			t.Fatalf("title %q: expected title issue, got %+v", title, resp.Issues)
		}
	}

	rec := do(t, r, http.MethodPatch, path, map[string]string{"title": strings.Repeat("é", 200)})
	expectStatus(t, rec, http.StatusOK)
}

func TestChatOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.router(env.user(t, "owner"))
	intruder := env.router(env.user(t, "intruder"))

	chat := env.createChat(t, owner)
	path := "/api/chats/" + chat.ID.String()

	expectStatus(t, do(t, intruder, http.MethodGet, path, nil), http.StatusNotFound)
	expectStatus(t, do(t, intruder, http.MethodPatch, path, map[string]string{"title": "mine"}), http.StatusNotFound)
	expectStatus(t, do(t, intruder, http.MethodDelete, path, nil), http.StatusNotFound)
	expectStatus(t, do(t, intruder, http.MethodGet, path+"/messages", nil), http.StatusNotFound)
	expectStatus(t, do(t, intruder, http.MethodPost, path+"/messages", map[string]string{"content": "hi", "role": "user"}), http.StatusNotFound)
	expectStatus(t, do(t, intruder, http.MethodGet, path+"/status", nil), http.StatusNotFound)

	rec := do(t, intruder, http.MethodGet, "/api/chats", nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decodeBody[ChatListResponse](t, rec); list.Total != 0 || len(list.Chats) != 0 {
		t.Fatalf("expected intruder to see no chats, got %d", list.Total)
	}

	// Owner still has it
	expectStatus(t, do(t, owner, http.MethodGet, path, nil), http.StatusOK)

	expectStatus(t, do(t, owner, http.MethodGet, "/api/chats/not-a-uuid", nil), http.StatusBadRequest)
}
