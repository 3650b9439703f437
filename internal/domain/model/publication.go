// Пакет model — доменные модели Journivo Gateway.
// Модели повторяют JSON-контракт backend (snake_case поля).
package model

import (
	"encoding/json"
	"time"
)

// PublicationStatus — статус публикации в жизненном цикле рецензирования.
type PublicationStatus string

const (
	StatusDraft       PublicationStatus = "draft"
	StatusPending     PublicationStatus = "pending"
	StatusUnderReview PublicationStatus = "under_review"
	StatusApproved    PublicationStatus = "approved"
	StatusRejected    PublicationStatus = "rejected"
)

// Publication — публикация автора.
type Publication struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Content  string `json:"content"`
	// Category — имя категории (journal, conference, ...)
	Category string `json:"category"`
	// Keywords — ключевые слова через запятую
	Keywords  string `json:"keywords"`
	CoAuthors string `json:"co_authors"`
	Volume    string `json:"volume"`
	// File — ссылка на документ (pdf/doc/docx)
	File string `json:"file,omitempty"`
	// VideoFile — ссылка на видео (опционально)
	VideoFile string `json:"video_file,omitempty"`
	// CoverImage — ссылка на обложку, nil если обложки нет
	CoverImage *string `json:"cover_image"`

	Status        PublicationStatus `json:"status"`
	RejectionNote string            `json:"rejection_note,omitempty"`
	IsFreeReview  bool              `json:"is_free_review"`

	TotalLikes    int `json:"total_likes"`
	TotalDislikes int `json:"total_dislikes"`
	Views         int `json:"views"`
	// EditorComments — JSON-список аннотаций редактора (см. Highlight)
	EditorComments json.RawMessage `json:"editor_comments,omitempty"`

	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsResubmittable — публикацию можно переотправить только из rejected.
func (p *Publication) IsResubmittable() bool {
	return p.Status == StatusRejected
}

// PublicationPage — страница списка публикаций (DRF pagination).
type PublicationPage struct {
	Count    int            `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []*Publication `json:"results"`
}

// Highlight — аннотация редактора к PDF.
// Position хранится как есть: формат определяет клиентский просмотрщик.
type Highlight struct {
	ID       string           `json:"id"`
	Content  json.RawMessage  `json:"content"`
	Position json.RawMessage  `json:"position"`
	Comment  HighlightComment `json:"comment"`
}

// HighlightComment — текст комментария к выделению.
type HighlightComment struct {
	Text string `json:"text"`
}

// Categories — допустимые категории публикаций.
var Categories = []string{
	"journal", "conference", "book", "thesis", "report",
	"review", "case_study", "editorial", "news", "other",
}

// IsKnownCategory проверяет, что категория входит в список Categories.
func IsKnownCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
