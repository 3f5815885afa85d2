package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEscapeMarkdown(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Plush Pepe +4.2%", "Plush Pepe \\+4\\.2%"},
		{"a_b*c", "a\\_b\\*c"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := EscapeMarkdown(tc.in); got != tc.want {
			t.Errorf("EscapeMarkdown(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSendPhotoMultipart(t *testing.T) {
	var gotPath string
	var gotChatID, gotCaption string
	var gotPhoto []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotChatID = r.FormValue("chat_id")
		gotCaption = r.FormValue("caption")
		f, _, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("photo part missing: %v", err)
			return
		}
		defer f.Close()
		gotPhoto, _ = io.ReadAll(f)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token123", "-100555")
	n.apiBase = srv.URL

	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}
	if err := n.SendPhoto(context.Background(), jpeg, "Daily heatmap"); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/bottoken123/sendPhoto" {
		t.Errorf("path = %q", gotPath)
	}
	if gotChatID != "-100555" {
		t.Errorf("chat_id = %q", gotChatID)
	}
	if gotCaption != "Daily heatmap" {
		t.Errorf("caption = %q", gotCaption)
	}
	if !bytes.Equal(gotPhoto, jpeg) {
		t.Errorf("photo bytes mismatch: %v", gotPhoto)
	}
}

func TestSendPhotoErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"description":"bot was blocked"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("t", "c")
	n.apiBase = srv.URL

	if err := n.SendPhoto(context.Background(), []byte{1}, ""); err == nil {
		t.Fatal("expected error on 403")
	}
}
