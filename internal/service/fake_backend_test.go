package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/repository"
	"github.com/bigkaa/journivo/internal/session"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeBackend — in-memory имитация REST API backend.
type fakeBackend struct {
	mu       sync.Mutex
	pubs     map[string]*model.Publication
	profiles map[string]*model.Profile
	free     model.FreeReviewStatus
	verify   map[string]model.PaymentVerification
	comments map[string][]model.Comment
	viewer   model.ViewerReaction

	created       int
	statusUpdates int
	draftSaves    int
	reviewCalls   int
	initCalls     int
	verifyCalls   int
	lastAnnotated string
	lastStatus    map[string][]string

	draftFail bool
	// reactNoBody — PATCH реакции отвечает 204 без счётчиков.
	reactNoBody bool
	// freeStatusCode — если задан, /free-review-status/ отвечает этим статусом.
	freeStatusCode int
	// freeStatusHeld и freeStatusRelease задерживают один ответ /free-review-status/.
	freeStatusHeld    chan struct{}
	freeStatusRelease chan struct{}
	// updateGate — если задан, PATCH статуса ждёт закрытия канала.
	updateGate    chan struct{}
	updateStarted chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pubs: map[string]*model.Publication{},
		profiles: map[string]*model.Profile{
			"author-token": {ID: "author-1", Role: "publisher"},
			"editor-token": {ID: "editor-1", Role: "editor"},
			"reader-token": {ID: "reader-1", Role: "reader"},
		},
		free:     model.FreeReviewStatus{HasFreeReviewAvailable: true},
		verify:   map[string]model.PaymentVerification{},
		comments: map[string][]model.Comment{},
	}
}

// setupMockBackend запускает fakeBackend как HTTP-сервер.
func setupMockBackend(t *testing.T, fb *fakeBackend) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(fb)
	t.Cleanup(server.Close)
	return server
}

func (fb *fakeBackend) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	fb.mu.Lock()
	profile := fb.profiles[token]
	fb.mu.Unlock()

	if r.URL.Path == "/me/" {
		if profile == nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fb.writeJSON(w, http.StatusOK, profile)
		return
	}
	if profile == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/free-review-status/":
		fb.mu.Lock()
		snapshot, code := fb.free, fb.freeStatusCode
		held, release := fb.freeStatusHeld, fb.freeStatusRelease
		fb.freeStatusHeld, fb.freeStatusRelease = nil, nil
		fb.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		// Значение счётчика зафиксировано до задержки и к ответу устаревает
		if held != nil {
			held <- struct{}{}
			<-release
		}
		fb.writeJSON(w, http.StatusOK, snapshot)

	case r.URL.Path == "/payments/initialize/":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.initCalls++
		ref := fmt.Sprintf("ref-%d", fb.initCalls)
		fb.mu.Unlock()
		fb.writeJSON(w, http.StatusOK, model.PaymentInit{
			AuthorizationURL: "https://pay.example.com/" + ref,
			Reference:        ref,
		})

	case r.URL.Path == "/payments/verify/":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.verifyCalls++
		v, ok := fb.verify[body["reference"]]
		fb.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fb.writeJSON(w, http.StatusOK, v)

	case r.URL.Path == "/publications/" && r.Method == http.MethodPost:
		_ = r.ParseMultipartForm(1 << 20)
		fb.mu.Lock()
		fb.created++
		pub := &model.Publication{
			ID:       fmt.Sprintf("p-new-%d", fb.created),
			Title:    r.FormValue("title"),
			Category: r.FormValue("category"),
			Status:   model.StatusDraft,
		}
		fb.pubs[pub.ID] = pub
		cp := *pub
		fb.mu.Unlock()
		fb.writeJSON(w, http.StatusCreated, cp)

	case len(parts) >= 2 && parts[0] == "publications":
		fb.servePublication(w, r, parts[1], parts[2:])

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fb *fakeBackend) servePublication(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	fb.mu.Lock()
	pub, ok := fb.pubs[id]
	fb.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	action := ""
	if len(rest) > 0 {
		action = rest[0]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		fb.mu.Lock()
		cp := *pub
		fb.mu.Unlock()
		fb.writeJSON(w, http.StatusOK, cp)

	case action == "update":
		_ = r.ParseMultipartForm(1 << 20)
		if r.MultipartForm != nil && r.MultipartForm.Value["status"] != nil {
			fb.mu.Lock()
			started, gate := fb.updateStarted, fb.updateGate
			fb.mu.Unlock()
			if started != nil {
				started <- struct{}{}
			}
			if gate != nil {
				<-gate
			}
			fb.mu.Lock()
			fb.statusUpdates++
			fb.lastStatus = r.MultipartForm.Value
			pub.Status = model.PublicationStatus(r.FormValue("status"))
			pub.IsFreeReview = r.FormValue("is_free_review") == "true"
			pub.RejectionNote = ""
			if pub.IsFreeReview {
				fb.free.FreeReviewsUsed++
				fb.free.HasFreeReviewAvailable = fb.free.FreeReviewsUsed < 2
			}
			cp := *pub
			fb.mu.Unlock()
			fb.writeJSON(w, http.StatusOK, cp)
			return
		}
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.draftFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fb.draftSaves++
		pub.Title = r.FormValue("title")
		fb.writeJSON(w, http.StatusOK, *pub)

	case action == "review":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.reviewCalls++
		switch body["action"] {
		case "under_review":
			pub.Status = model.StatusUnderReview
		case "approve":
			pub.Status = model.StatusApproved
		case "reject":
			pub.Status = model.StatusRejected
			pub.RejectionNote = body["rejection_note"]
		}
		fb.writeJSON(w, http.StatusOK, *pub)

	case action == "annotate":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.lastAnnotated = body["editor_comments"]
		fb.mu.Unlock()
		w.WriteHeader(http.StatusOK)

	case action == "views" && len(rest) > 1 && rest[1] == "me":
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.writeJSON(w, http.StatusOK, fb.viewer)

	case action == "views":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		defer fb.mu.Unlock()
		counts := model.ReactionCounts{TotalLikes: pub.TotalLikes, TotalDislikes: pub.TotalDislikes}
		state := ApplyReaction(fb.viewer, counts, model.Reaction(body["action"]))
		fb.viewer = state.Viewer
		pub.TotalLikes, pub.TotalDislikes = state.Counts.TotalLikes, state.Counts.TotalDislikes
		if fb.reactNoBody {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		fb.writeJSON(w, http.StatusOK, state.Counts)

	case action == "comments":
		fb.mu.Lock()
		defer fb.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			fb.writeJSON(w, http.StatusOK, fb.comments[id])
		case http.MethodPatch:
			fb.writeJSON(w, http.StatusOK, model.Comment{ID: rest[1], Text: "изменён"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			fb.writeJSON(w, http.StatusCreated, model.Comment{ID: "c-new", Text: "новый"})
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// with изменяет состояние под мьютексом.
func (fb *fakeBackend) with(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

// stat читает счётчик fakeBackend под мьютексом.
func (fb *fakeBackend) stat(counter *int) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return *counter
}

// statusForm возвращает поля последнего PATCH статуса.
func (fb *fakeBackend) statusForm() map[string][]string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastStatus
}

// blockStatusUpdates задерживает PATCH статуса до закрытия gate.
// В started приходит сигнал, когда запрос дошёл до backend.
func (fb *fakeBackend) blockStatusUpdates() (started <-chan struct{}, gate chan struct{}) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.updateStarted = make(chan struct{}, 1)
	fb.updateGate = make(chan struct{})
	return fb.updateStarted, fb.updateGate
}

// holdFreeStatus задерживает следующий ответ /free-review-status/ до закрытия release.
// Счётчик читается в момент запроса; в held приходит сигнал, когда запрос получен.
func (fb *fakeBackend) holdFreeStatus() (held <-chan struct{}, release chan struct{}) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.freeStatusHeld = make(chan struct{}, 1)
	fb.freeStatusRelease = make(chan struct{})
	return fb.freeStatusHeld, fb.freeStatusRelease
}

func (fb *fakeBackend) publication(id string) model.Publication {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return *fb.pubs[id]
}

// --- Mock-репозитории ---

// mockLedger — in-memory журнал платежей с семантикой PostgreSQL-реализации.
type mockLedger struct {
	mu   sync.Mutex
	recs map[string]*model.PaymentRecord
}

func newMockLedger() *mockLedger {
	return &mockLedger{recs: map[string]*model.PaymentRecord{}}
}

func (m *mockLedger) Record(_ context.Context, rec *model.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.Reference]; ok {
		return repository.ErrConflict
	}
	cp := *rec
	cp.CreatedAt = time.Now()
	m.recs[rec.Reference] = &cp
	return nil
}

func (m *mockLedger) Get(_ context.Context, reference string) (*model.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[reference]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockLedger) SaveVerification(_ context.Context, rec *model.PaymentRecord) (*model.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cur, ok := m.recs[rec.Reference]
	switch {
	case !ok:
		cp := *rec
		cp.VerifiedAt = &now
		m.recs[rec.Reference] = &cp
		cur = &cp
	case cur.Status != model.PaymentSuccess:
		cur.Status = rec.Status
		cur.VerifiedAt = &now
		if cur.PublicationID == "" {
			cur.PublicationID = rec.PublicationID
		}
	}
	cp := *cur
	return &cp, nil
}

func (m *mockLedger) Consume(_ context.Context, reference, publicationID, consumedBy string) (*model.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[reference]
	switch {
	case !ok:
		return nil, repository.ErrNotFound
	case rec.IsConsumed():
		return nil, repository.ErrAlreadyConsumed
	case rec.Status != model.PaymentSuccess:
		return nil, repository.ErrNotVerified
	case rec.PublicationID != "" && rec.PublicationID != publicationID:
		return nil, repository.ErrPublicationMismatch
	}
	now := time.Now()
	rec.ConsumedAt = &now
	rec.ConsumedBy = consumedBy
	rec.PublicationID = publicationID
	cp := *rec
	return &cp, nil
}

func (m *mockLedger) Release(_ context.Context, reference, consumedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[reference]
	if !ok || rec.ConsumedBy != consumedBy {
		return repository.ErrNotFound
	}
	rec.ConsumedAt = nil
	rec.ConsumedBy = ""
	return nil
}

// mockClaims — in-memory заявки на бесплатную рецензию.
type mockClaims struct {
	mu       sync.Mutex
	active   map[string]*model.FreeReviewClaim
	claimed  int
	released int
}

func newMockClaims() *mockClaims {
	return &mockClaims{active: map[string]*model.FreeReviewClaim{}}
}

func (m *mockClaims) Claim(_ context.Context, claim *model.FreeReviewClaim, backendUsed, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.active {
		if c.UserID == claim.UserID {
			if c.PublicationID == claim.PublicationID {
				return repository.ErrConflict
			}
			n++
		}
	}
	if backendUsed+n >= limit {
		return repository.ErrLimitReached
	}
	claim.ID = fmt.Sprintf("claim-%d", m.claimed+1)
	m.claimed++
	cp := *claim
	m.active[claim.ID] = &cp
	return nil
}

func (m *mockClaims) Release(_ context.Context, claimID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[claimID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.active, claimID)
	m.released++
	return nil
}

func (m *mockClaims) Active(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.active {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

// --- Сборка сервисов ---

type testEnv struct {
	fb         *fakeBackend
	client     *backend.Client
	gate       *session.Gate
	ledger     *mockLedger
	claims     *mockClaims
	payments   *PaymentService
	submission *SubmissionService
	review     *ReviewService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fb := newFakeBackend()
	server := setupMockBackend(t, fb)

	client, err := backend.New(server.URL, "", 5*time.Second, session.AccessToken, testLogger())
	if err != nil {
		t.Fatalf("Ошибка создания backend-клиента: %v", err)
	}

	env := &testEnv{
		fb:     fb,
		client: client,
		gate:   session.NewGate(client, nil, nil, testLogger()),
		ledger: newMockLedger(),
		claims: newMockClaims(),
	}
	env.payments = NewPaymentService(client, env.ledger, "", testLogger())
	env.submission = NewSubmissionService(client, env.payments, env.claims, NewInFlightGuard(), 2, testLogger())
	env.review = NewReviewService(client, env.gate, testLogger())
	return env
}

// sessionCtx возвращает контекст с проверенной сессией владельца token.
func (env *testEnv) sessionCtx(t *testing.T, token string) (context.Context, *session.Session) {
	t.Helper()
	s := env.gate.Resolve(context.Background(), session.Tokens{Access: token})
	if !s.Authenticated() {
		t.Fatalf("сессия %s не аутентифицирована", token)
	}
	return session.WithSession(context.Background(), s), s
}

func (env *testEnv) addPublication(p model.Publication) {
	env.fb.mu.Lock()
	defer env.fb.mu.Unlock()
	env.fb.pubs[p.ID] = &p
}
