package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockBackend создаёт mock HTTP-сервер backend.
func setupMockBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// mockTokenProvider возвращает фиксированный токен.
func mockTokenProvider(token string) TokenProvider {
	return func(ctx context.Context) (string, error) {
		return token, nil
	}
}

func newTestClient(t *testing.T, baseURL string, tokens TokenProvider) *Client {
	t.Helper()
	client, err := New(baseURL, "", 0, tokens, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return client
}

// TestClient_CredentialsForwarded проверяет передачу токена в Bearer и cookie.
func TestClient_CredentialsForwarded(t *testing.T) {
	server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, ожидается Bearer tok-1", got)
		}
		ck, err := r.Cookie("access_token")
		if err != nil || ck.Value != "tok-1" {
			t.Errorf("cookie access_token не передан: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Publication{ID: "p1", Status: model.StatusDraft})
	})

	client := newTestClient(t, server.URL, mockTokenProvider("tok-1"))
	pub, err := client.GetPublication(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Ошибка GetPublication: %v", err)
	}
	if pub.ID != "p1" || pub.Status != model.StatusDraft {
		t.Errorf("неожиданная публикация: %+v", pub)
	}
}

// TestClient_StatusMapping проверяет сопоставление статусов backend с ошибками пакета.
func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadGateway, ErrUnavailable},
		{http.StatusInternalServerError, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"detail":"nope"}`))
			})

			client := newTestClient(t, server.URL, mockTokenProvider("tok"))
			_, err := client.GetPublication(context.Background(), "p1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("ожидалась %v, получена %v", tt.want, err)
			}

			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Errorf("ожидалась StatusError со статусом %d, получена %v", tt.status, err)
			}
		})
	}
}

// TestClient_BadRequestNotMapped проверяет, что 400 не считается ошибкой авторизации.
func TestClient_BadRequestNotMapped(t *testing.T) {
	server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	client := newTestClient(t, server.URL, nil)
	_, err := client.GetPublication(context.Background(), "p1")
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	for _, target := range []error{ErrUnauthorized, ErrForbidden, ErrNotFound, ErrUnavailable} {
		if errors.Is(err, target) {
			t.Errorf("400 не должен сопоставляться с %v", target)
		}
	}
}

// TestClient_NetworkError проверяет ErrUnavailable при недоступном backend.
func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newTestClient(t, url, nil)
	_, err := client.FreeReviewStatus(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ожидалась ErrUnavailable, получена %v", err)
	}
}

// TestClient_Refresh проверяет обмен refresh token и поддержку обоих полей ответа.
func TestClient_Refresh(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"поле access", `{"access":"new-access"}`},
		{"поле access_token", `{"access_token":"new-access"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/token/refresh/" || r.Method != http.MethodPost {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				ck, err := r.Cookie("refresh_token")
				if err != nil || ck.Value != "rt" {
					t.Errorf("cookie refresh_token не передан")
				}
				if r.Header.Get("Authorization") != "" {
					t.Error("refresh не должен передавать Authorization")
				}
				io.WriteString(w, tt.body)
			})

			client := newTestClient(t, server.URL, mockTokenProvider("stale"))
			token, err := client.Refresh(context.Background(), "rt")
			if err != nil {
				t.Fatalf("Ошибка Refresh: %v", err)
			}
			if token != "new-access" {
				t.Errorf("token = %q, ожидается new-access", token)
			}
		})
	}
}

// TestClient_RefreshEmpty проверяет ошибку при ответе без access token.
func TestClient_RefreshEmpty(t *testing.T) {
	server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})

	client := newTestClient(t, server.URL, nil)
	if _, err := client.Refresh(context.Background(), "rt"); err == nil {
		t.Fatal("ожидалась ошибка для ответа без токена")
	}
}

// TestClient_LoginPassThrough проверяет передачу ответа login без интерпретации.
func TestClient_LoginPassThrough(t *testing.T) {
	server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"email":"a@b.c","password":"x"}` {
			t.Errorf("тело login изменено: %s", body)
		}
		if strings.Contains(string(body), "wrong") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt"})
		io.WriteString(w, `{"access":"at","refresh":"rt"}`)
	})

	client := newTestClient(t, server.URL, nil)
	res, err := client.Login(context.Background(), []byte(`{"email":"a@b.c","password":"x"}`))
	if err != nil {
		t.Fatalf("Ошибка Login: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", res.StatusCode)
	}
	if res.Tokens.AccessValue() != "at" || res.Tokens.RefreshValue() != "rt" {
		t.Errorf("токены не разобраны: %+v", res.Tokens)
	}
	if len(res.Cookies) != 1 || res.Cookies[0].Name != "refresh_token" {
		t.Errorf("Set-Cookie не передан: %+v", res.Cookies)
	}
}

// TestClient_UpdatePublication_Forms проверяет, что каждая форма кодирует только свои поля.
func TestClient_UpdatePublication_Forms(t *testing.T) {
	var got map[string][]string
	server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/publications/p1/update/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ожидался multipart: %v", err)
		}
		got = r.MultipartForm.Value
		json.NewEncoder(w).Encode(model.Publication{ID: "p1", Status: model.StatusPending})
	})
	client := newTestClient(t, server.URL, mockTokenProvider("tok"))

	t.Run("ResubmitForm", func(t *testing.T) {
		_, err := client.UpdatePublication(context.Background(), "p1", &ResubmitForm{IsFreeReview: true})
		if err != nil {
			t.Fatalf("Ошибка UpdatePublication: %v", err)
		}
		if v := got["status"]; len(v) != 1 || v[0] != "pending" {
			t.Errorf("status = %v", v)
		}
		if v := got["is_free_review"]; len(v) != 1 || v[0] != "true" {
			t.Errorf("is_free_review = %v", v)
		}
		if _, ok := got["title"]; ok {
			t.Error("ResubmitForm не должен передавать title")
		}
	})

	t.Run("DraftForm", func(t *testing.T) {
		_, err := client.UpdatePublication(context.Background(), "p1", &DraftForm{Title: "T", RemoveCover: true})
		if err != nil {
			t.Fatalf("Ошибка UpdatePublication: %v", err)
		}
		if _, ok := got["status"]; ok {
			t.Error("DraftForm не должен передавать status")
		}
		if v := got["cover_image"]; len(v) != 1 || v[0] != "" {
			t.Errorf("cover_image = %v, ожидается пустое значение", v)
		}
	})
}

// TestCreateForm_Files проверяет кодирование файлов и повторное открытие Upload.
func TestCreateForm_Files(t *testing.T) {
	opens := 0
	cover := &Upload{
		FileName: "cover.png",
		Open: func() (io.ReadCloser, error) {
			opens++
			return io.NopCloser(strings.NewReader("png-bytes")), nil
		},
	}
	form := &CreateForm{Title: "Заголовок", Category: "journal", Cover: cover}

	for i := 0; i < 2; i++ {
		body, ct, err := form.Encode()
		if err != nil {
			t.Fatalf("Ошибка Encode: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/", body)
		req.Header.Set("Content-Type", ct)
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		fh := req.MultipartForm.File["cover_image"]
		if len(fh) != 1 || fh[0].Filename != "cover.png" {
			t.Fatalf("cover_image не закодирован: %+v", fh)
		}
		if _, ok := req.MultipartForm.Value["co_authors"]; ok {
			t.Error("пустой co_authors не должен передаваться")
		}
	}
	if opens != 2 {
		t.Errorf("Open вызван %d раз, ожидается 2", opens)
	}
}

// TestCreateForm_OpenError проверяет передачу ошибки открытия файла.
func TestCreateForm_OpenError(t *testing.T) {
	form := &CreateForm{File: &Upload{FileName: "a.pdf", Open: func() (io.ReadCloser, error) {
		return nil, errors.New("диск недоступен")
	}}}
	if _, _, err := form.Encode(); err == nil {
		t.Fatal("ожидалась ошибка Encode")
	}
}

// TestClient_AnnotatePublication проверяет передачу аннотаций JSON-строкой.
func TestClient_AnnotatePublication(t *testing.T) {
	server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			EditorComments string `json:"editor_comments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("ожидалась JSON-строка editor_comments: %v", err)
		}
		var records []model.Highlight
		if err := json.Unmarshal([]byte(body.EditorComments), &records); err != nil {
			t.Fatalf("editor_comments не является JSON-списком: %v", err)
		}
		if len(records) != 1 || records[0].Comment.Text != "Уточнить" {
			t.Errorf("неожиданные аннотации: %+v", records)
		}
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, server.URL, mockTokenProvider("tok"))
	err := client.AnnotatePublication(context.Background(), "p1", []model.Highlight{
		{ID: "h1", Position: json.RawMessage(`{"page":1}`), Comment: model.HighlightComment{Text: "Уточнить"}},
	})
	if err != nil {
		t.Fatalf("Ошибка AnnotatePublication: %v", err)
	}
}

// TestClient_ListVariants проверяет разбор списков в виде массива и страницы DRF.
func TestClient_ListVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"массив", `[{"id":"n1"},{"id":"n2"}]`, 2},
		{"страница", `{"count":1,"results":[{"id":"n1"}]}`, 1},
		{"пусто", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			})
			client := newTestClient(t, server.URL, mockTokenProvider("tok"))
			items, err := client.Notifications(context.Background())
			if err != nil {
				t.Fatalf("Ошибка Notifications: %v", err)
			}
			if len(items) != tt.want {
				t.Errorf("получено %d уведомлений, ожидается %d", len(items), tt.want)
			}
		})
	}
}

// TestClient_InitializePayment проверяет тело запроса инициализации платежа.
func TestClient_InitializePayment(t *testing.T) {
	server := setupMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["payment_type"] != "review_fee" {
			t.Errorf("payment_type = %q", body["payment_type"])
		}
		if _, ok := body["publication_id"]; ok {
			t.Error("пустой publication_id не должен передаваться")
		}
		io.WriteString(w, `{"authorization_url":"https://pay.example.com/x","reference":"ref-1"}`)
	})

	client := newTestClient(t, server.URL, mockTokenProvider("tok"))
	res, err := client.InitializePayment(context.Background(), "", model.PaymentReviewFee, "")
	if err != nil {
		t.Fatalf("Ошибка InitializePayment: %v", err)
	}
	if res.Reference != "ref-1" {
		t.Errorf("Reference = %q", res.Reference)
	}
}
