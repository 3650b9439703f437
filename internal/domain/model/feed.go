package model

import "time"

// Notification — уведомление пользователя.
type Notification struct {
	ID                 string    `json:"id"`
	Message            string    `json:"message"`
	IsRead             bool      `json:"is_read"`
	CreatedAt          time.Time `json:"created_at"`
	RelatedPublication *string   `json:"related_publication,omitempty"`
}

// Comment — комментарий к публикации.
type Comment struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
	Parent     *string   `json:"parent,omitempty"`
}

// CommentEditWindow — окно, в течение которого автор может изменить или удалить комментарий.
const CommentEditWindow = 20 * time.Minute

// CanModify проверяет, что комментарий ещё можно изменить в момент now.
func (c *Comment) CanModify(now time.Time) bool {
	return now.Sub(c.CreatedAt) <= CommentEditWindow
}

// Reaction — реакция зрителя на публикацию.
type Reaction string

const (
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// ViewerReaction — состояние реакций текущего зрителя (GET /views/me/).
type ViewerReaction struct {
	Liked    bool `json:"liked"`
	Disliked bool `json:"disliked"`
}

// ReactionCounts — счётчики реакций публикации.
type ReactionCounts struct {
	TotalLikes    int `json:"total_likes"`
	TotalDislikes int `json:"total_dislikes"`
}
