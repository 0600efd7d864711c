package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testAPI(t *testing.T, handler http.HandlerFunc) *api {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newAPI(srv.Client(), srv.URL, "TOKEN")
}

func TestSendMessageReturnsMessageID(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	a := testAPI(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(sendMessageResponse{
			OK:     true,
			Result: &message{MessageID: 555},
		})
	})

	id, err := a.sendMessage(context.Background(), -100, "hello", 42, nil)
	if err != nil {
		t.Fatalf("sendMessage() error = %v", err)
	}
	if id != 555 {
		t.Fatalf("message id = %d, want 555", id)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.ChatID != -100 || gotBody.Text != "hello" || gotBody.ReplyToMessageID != 42 {
		t.Fatalf("request body mismatch: %+v", gotBody)
	}
}

func TestSendMessageSurfacesAPIError(t *testing.T) {
	a := testAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(okResponse{
			OK:          false,
			ErrorCode:   400,
			Description: "Bad Request: chat not found",
		})
	})
	_, err := a.sendMessage(context.Background(), 1, "x", 0, nil)
	if err == nil {
		t.Fatalf("sendMessage() expected error")
	}
	reqErr, ok := err.(*requestError)
	if !ok {
		t.Fatalf("error type = %T, want *requestError", err)
	}
	if reqErr.ErrorCode != 400 || reqErr.Description == "" {
		t.Fatalf("request error mismatch: %+v", reqErr)
	}
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	a := testAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(getUpdatesResponse{
			OK: true,
			Result: []update{
				{UpdateID: 10},
				{UpdateID: 12},
			},
		})
	})
	updates, next, err := a.getUpdates(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("getUpdates() error = %v", err)
	}
	if len(updates) != 2 || next != 13 {
		t.Fatalf("got %d updates, next %d; want 2, 13", len(updates), next)
	}
}

func TestGetChatAdministrators(t *testing.T) {
	a := testAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(getChatAdministratorsResponse{
			OK: true,
			Result: []chatMember{
				{User: &user{ID: 7, FirstName: "Ada"}, Status: "administrator"},
				{User: &user{ID: 8, IsBot: true}, Status: "administrator"},
			},
		})
	})
	members, err := a.getChatAdministrators(context.Background(), -100)
	if err != nil {
		t.Fatalf("getChatAdministrators() error = %v", err)
	}
	if len(members) != 2 || members[0].User.ID != 7 {
		t.Fatalf("members mismatch: %+v", members)
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		name string
		u    *user
		want string
	}{
		{name: "nil", u: nil, want: ""},
		{name: "first and last", u: &user{FirstName: "Ada", LastName: "L"}, want: "Ada L"},
		{name: "first only", u: &user{FirstName: "Ada"}, want: "Ada"},
		{name: "username only", u: &user{Username: "ada"}, want: "@ada"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := displayName(tc.u); got != tc.want {
				t.Fatalf("displayName() = %q, want %q", got, tc.want)
			}
		})
	}
}
