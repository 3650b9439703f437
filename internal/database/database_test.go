package database

import (
	"strings"
	"testing"

	"github.com/bigkaa/journivo/internal/config"
)

func TestMigrateURL(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "db",
		DBPort:     5432,
		DBName:     "journivo",
		DBUser:     "jv",
		DBPassword: "p@ss/word",
		DBSSLMode:  "disable",
	}

	got := migrateURL(cfg)
	if !strings.HasPrefix(got, "pgx5://jv:") {
		t.Errorf("migrateURL() = %q, ожидается схема pgx5 и пользователь jv", got)
	}
	if strings.Contains(got, "p@ss/word") {
		t.Errorf("пароль должен быть экранирован: %q", got)
	}
	if !strings.HasSuffix(got, "@db:5432/journivo?sslmode=disable") {
		t.Errorf("migrateURL() = %q", got)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("Ошибка чтения embedded миграций: %v", err)
	}

	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Errorf("миграций up=%d down=%d, ожидается равное ненулевое количество", up, down)
	}
}
