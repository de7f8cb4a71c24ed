package sessions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/haasonsaas/finch/pkg/models"
)

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{Title: "first"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.ID == "" {
		t.Fatal("Create did not assign an ID")
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "first" {
		t.Errorf("Title = %q", got.Title)
	}

	got.Title = "renamed"
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ := store.Get(ctx, session.ID)
	if again.Title != "renamed" {
		t.Errorf("Title after update = %q", again.Title)
	}
	if !again.UpdatedAt.After(again.CreatedAt) && !again.UpdatedAt.Equal(again.CreatedAt) {
		t.Error("UpdatedAt went backward")
	}

	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, &models.Session{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListOrderAndPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := &models.Session{
			ID:        fmt.Sprintf("s%d", i),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	list, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	// Newest first.
	if list[0].ID != "s2" || list[2].ID != "s0" {
		t.Errorf("order = %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}

	page, err := store.List(ctx, ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List paged: %v", err)
	}
	if len(page) != 1 || page[0].ID != "s1" {
		t.Errorf("page = %+v", page)
	}

	empty, err := store.List(ctx, ListOptions{Offset: 10})
	if err != nil || len(empty) != 0 {
		t.Errorf("offset beyond end = %v, %v", empty, err)
	}
}

func TestMemoryStoreMessageRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{ID: "sess"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	msgs := []models.Message{
		{ID: "m1", Role: models.RoleUser, Content: "hi", Sequence: 0},
		{ID: "m2", Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "clock", Input: []byte(`{}`)},
		}, Sequence: 1},
		{ID: "m3", Role: models.RoleTool, ToolCallID: "c1", ToolName: "clock", Content: "noon", IsError: false, Sequence: 2},
	}
	for i := range msgs {
		if err := store.AppendMessage(ctx, "sess", &msgs[i]); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	history, err := store.GetHistory(ctx, "sess", 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len = %d, want 3", len(history))
	}
	if history[1].ToolCalls[0].Name != "clock" {
		t.Errorf("tool calls lost: %+v", history[1])
	}
	if history[2].ToolCallID != "c1" {
		t.Errorf("tool message pairing lost: %+v", history[2])
	}

	// Bounded history returns the newest entries.
	tail, err := store.GetHistory(ctx, "sess", 2)
	if err != nil {
		t.Fatalf("GetHistory limited: %v", err)
	}
	if len(tail) != 2 || tail[0].ID != "m2" {
		t.Errorf("tail = %+v", tail)
	}
}

func TestMemoryStoreTrimsOldMessages(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < maxMessagesPerSession+50; i++ {
		msg := &models.Message{ID: fmt.Sprintf("m%d", i), Role: models.RoleUser, Sequence: int64(i)}
		if err := store.AppendMessage(ctx, "sess", msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	history, _ := store.GetHistory(ctx, "sess", 0)
	if len(history) != maxMessagesPerSession {
		t.Errorf("len = %d, want %d", len(history), maxMessagesPerSession)
	}
	if history[0].ID != "m50" {
		t.Errorf("oldest surviving = %s, want m50", history[0].ID)
	}
}

func TestMemoryStoreHistoryIsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	msg := &models.Message{ID: "m1", Role: models.RoleUser, Content: "original"}
	if err := store.AppendMessage(ctx, "sess", msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	history, _ := store.GetHistory(ctx, "sess", 0)
	history[0].Content = "tampered"

	again, _ := store.GetHistory(ctx, "sess", 0)
	if again[0].Content != "original" {
		t.Error("external mutation reached the store")
	}
}
