package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/journivo/internal/config"
	"github.com/bigkaa/journivo/internal/database"
	"github.com/bigkaa/journivo/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("journivo_test"),
		postgres.WithUsername("journivo"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("JV_DB_HOST", host)
	t.Setenv("JV_DB_PORT", port.Port())
	t.Setenv("JV_DB_NAME", "journivo_test")
	t.Setenv("JV_DB_USER", "journivo")
	t.Setenv("JV_DB_PASSWORD", "test-password")
	t.Setenv("JV_DB_SSL_MODE", "disable")
	t.Setenv("JV_BACKEND_URL", "http://localhost:8000/api")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты PaymentLedgerRepository ---

func TestPaymentLedger(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPaymentLedgerRepository(pool)

	ref := "ref-" + uuid.New().String()
	rec := &model.PaymentRecord{
		Reference:   ref,
		UserID:      "u1",
		PaymentType: model.PaymentReviewFee,
	}

	// Record
	if err := repo.Record(ctx, rec); err != nil {
		t.Fatalf("Record() ошибка: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}
	if err := repo.Record(ctx, rec); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Record() должен вернуть ErrConflict, получено %v", err)
	}

	// Consume до подтверждения
	if _, err := repo.Consume(ctx, ref, "p1", "resubmit:p1"); !errors.Is(err, ErrNotVerified) {
		t.Errorf("Consume() неподтверждённого платежа: ожидалась ErrNotVerified, получено %v", err)
	}

	// SaveVerification
	saved, err := repo.SaveVerification(ctx, &model.PaymentRecord{
		Reference:     ref,
		UserID:        "u1",
		PublicationID: "p1",
		PaymentType:   model.PaymentReviewFee,
		Amount:        "2000.00",
		Status:        model.PaymentSuccess,
	})
	if err != nil {
		t.Fatalf("SaveVerification() ошибка: %v", err)
	}
	if saved.Status != model.PaymentSuccess || saved.PublicationID != "p1" || saved.VerifiedAt == nil {
		t.Errorf("неожиданная запись после проверки: %+v", saved)
	}

	// success окончательный
	again, err := repo.SaveVerification(ctx, &model.PaymentRecord{
		Reference: ref, UserID: "u1", PaymentType: model.PaymentReviewFee, Status: model.PaymentFailed,
	})
	if err != nil {
		t.Fatalf("SaveVerification() ошибка: %v", err)
	}
	if again.Status != model.PaymentSuccess {
		t.Errorf("статус success перезаписан на %s", again.Status)
	}

	// Consume чужой публикацией
	if _, err := repo.Consume(ctx, ref, "p2", "resubmit:p2"); !errors.Is(err, ErrPublicationMismatch) {
		t.Errorf("ожидалась ErrPublicationMismatch, получено %v", err)
	}

	// Consume
	consumed, err := repo.Consume(ctx, ref, "p1", "resubmit:p1")
	if err != nil {
		t.Fatalf("Consume() ошибка: %v", err)
	}
	if !consumed.IsConsumed() || consumed.ConsumedBy != "resubmit:p1" {
		t.Errorf("reference не помечен использованным: %+v", consumed)
	}
	if _, err := repo.Consume(ctx, ref, "p1", "resubmit:p1"); !errors.Is(err, ErrAlreadyConsumed) {
		t.Errorf("повторный Consume(): ожидалась ErrAlreadyConsumed, получено %v", err)
	}

	// Release и повторное использование
	if err := repo.Release(ctx, ref, "resubmit:p1"); err != nil {
		t.Fatalf("Release() ошибка: %v", err)
	}
	if _, err := repo.Consume(ctx, ref, "p1", "resubmit:p1"); err != nil {
		t.Errorf("Consume() после Release(): %v", err)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() несуществующего: ожидалась ErrNotFound, получено %v", err)
	}
}

// --- Тесты FreeReviewClaimRepository ---

func TestFreeReviewClaims_Limit(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFreeReviewClaimRepository(pool, 5*time.Minute)
	user := "u-" + uuid.New().String()

	first := &model.FreeReviewClaim{UserID: user, PublicationID: "p1", Transition: "resubmit"}
	if err := repo.Claim(ctx, first, 1, 2); err != nil {
		t.Fatalf("Claim() ошибка: %v", err)
	}

	// backend уже учёл 1, плюс активная заявка — лимит 2 исчерпан
	second := &model.FreeReviewClaim{UserID: user, PublicationID: "p2", Transition: "resubmit"}
	if err := repo.Claim(ctx, second, 1, 2); !errors.Is(err, ErrLimitReached) {
		t.Errorf("ожидалась ErrLimitReached, получено %v", err)
	}

	if err := repo.Release(ctx, first.ID); err != nil {
		t.Fatalf("Release() ошибка: %v", err)
	}
	if err := repo.Claim(ctx, second, 1, 2); err != nil {
		t.Errorf("Claim() после Release(): %v", err)
	}

	n, err := repo.Active(ctx, user)
	if err != nil {
		t.Fatalf("Active() ошибка: %v", err)
	}
	if n != 1 {
		t.Errorf("Active() = %d, ожидается 1", n)
	}
}

func TestFreeReviewClaims_Concurrent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFreeReviewClaimRepository(pool, 5*time.Minute)
	user := "u-" + uuid.New().String()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claim := &model.FreeReviewClaim{
				UserID:        user,
				PublicationID: "p" + uuid.New().String(),
				Transition:    "submit",
			}
			if err := repo.Claim(ctx, claim, 0, 2); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if granted != 2 {
		t.Errorf("выдано %d бесплатных рецензий, ожидается 2", granted)
	}
}
