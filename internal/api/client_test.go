package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestTranscribeSendsMultipartWithHints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model hint = %q", got)
		}
		if got := r.FormValue("language"); got != "ko" {
			t.Errorf("language = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "recording.ogg" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "oggdata" {
			t.Errorf("audio payload = %q", data)
		}
		fmt.Fprint(w, `{"transcription":"안녕하세요"}`)
	})

	text, err := client.Transcribe(context.Background(), []byte("oggdata"), "recording.ogg", TranscribeParams{Language: "ko", ModelHint: "whisper-1"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "안녕하세요" {
		t.Fatalf("transcript = %q", text)
	}
}

func TestTranscribeFallsBackToTextField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":"hello"}`)
	})
	text, err := client.Transcribe(context.Background(), []byte("x"), "recording.ogg", TranscribeParams{})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello" {
		t.Fatalf("transcript = %q", text)
	}
}

func TestSynthesizeReturnsAudioBytes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req SynthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Voice != "alloy" || req.Format != "mp3" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write([]byte("mp3-bytes"))
	})

	audio, err := client.Synthesize(context.Background(), SynthesizeRequest{Text: "hi", Voice: "alloy", Speed: 1.0, Format: "mp3"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestConversationsParsesDataEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "default-user" {
			t.Errorf("user = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q", got)
		}
		fmt.Fprint(w, `{"data":[{"id":"a","title":"First","timestamp":100},{"id":"b","title":"Second","timestamp":200}]}`)
	})

	conversations, err := client.Conversations(context.Background(), "default-user", 50)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(conversations) != 2 || conversations[1].ID != "b" {
		t.Fatalf("unexpected list %+v", conversations)
	}
}

func TestConversationsEscapesUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "kim lee&co" {
			t.Errorf("user = %q", got)
		}
		fmt.Fprint(w, `{"data":[]}`)
	})

	if _, err := client.Conversations(context.Background(), "kim lee&co", 50); err != nil {
		t.Fatalf("conversations: %v", err)
	}
}

func TestConversationMessagesEscapesID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.EscapedPath(), "/messages") {
			t.Errorf("path = %q", r.URL.EscapedPath())
		}
		if strings.Count(r.URL.EscapedPath(), "/") != 3 {
			t.Errorf("id with slash must stay one segment, path = %q", r.URL.EscapedPath())
		}
		fmt.Fprint(w, `{"messages":[]}`)
	})

	if _, err := client.ConversationMessages(context.Background(), "sess/1", "default-user", 100); err != nil {
		t.Fatalf("messages: %v", err)
	}
}

func TestDeleteConversationSendsUserBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/conversations/sess-1") {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"user":"default-user"`) {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.DeleteConversation(context.Background(), "sess-1", "default-user"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestDeleteConversationSurfacesDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"conversation not found"}`, http.StatusNotFound)
	})
	err := client.DeleteConversation(context.Background(), "ghost", "default-user")
	if err == nil || !strings.Contains(err.Error(), "conversation not found") {
		t.Fatalf("expected detail in error, got %v", err)
	}
}

func TestLoginStoresBearerToken(t *testing.T) {
	var sawAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			fmt.Fprint(w, `{"access_token":"tok-123"}`)
		case "/auth/verify":
			sawAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	creds, err := client.Login(context.Background(), "mina", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if creds.Username != "mina" || creds.Token != "tok-123" {
		t.Fatalf("credentials = %+v", creds)
	}
	if err := client.Verify(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sawAuth != "Bearer tok-123" {
		t.Fatalf("authorization header = %q", sawAuth)
	}
}

func TestUploadFileReturnsHandle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("user"); got != "default-user" {
			t.Errorf("user = %q", got)
		}
		fmt.Fprint(w, `{"upload_file_id":"up-9","name":"doc.pdf","type":"document","mime_type":"application/pdf"}`)
	})

	uploaded, err := client.UploadFile(context.Background(), "doc.pdf", "default-user", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if uploaded.UploadFileID != "up-9" || uploaded.Type != "document" {
		t.Fatalf("uploaded = %+v", uploaded)
	}
}
