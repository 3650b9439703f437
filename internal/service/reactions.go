package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/model"
)

// ReactionState — реакции зрителя и счётчики после действия.
// Counts вычислены локально по предыдущему состоянию зрителя (оптимистично);
// Authoritative — счётчики из ответа backend, если он их вернул.
type ReactionState struct {
	Viewer        model.ViewerReaction  `json:"viewer"`
	Counts        model.ReactionCounts  `json:"counts"`
	Authoritative *model.ReactionCounts `json:"authoritative,omitempty"`
}

// ReactionService — лайки и дизлайки публикаций.
type ReactionService struct {
	backend *backend.Client
	logger  *slog.Logger
}

// NewReactionService создаёт сервис реакций.
func NewReactionService(backendClient *backend.Client, logger *slog.Logger) *ReactionService {
	return &ReactionService{
		backend: backendClient,
		logger:  logger.With(slog.String("component", "reactions")),
	}
}

// Current возвращает реакцию зрителя и текущие счётчики публикации.
func (s *ReactionService) Current(ctx context.Context, publicationID string) (*ReactionState, error) {
	pub, err := s.backend.GetPublication(ctx, publicationID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение публикации %s: %w", publicationID, err)
	}
	viewer, err := s.backend.MyReaction(ctx, publicationID)
	if err != nil {
		return nil, fmt.Errorf("получение реакции зрителя: %w", err)
	}
	return &ReactionState{
		Viewer: *viewer,
		Counts: model.ReactionCounts{TotalLikes: pub.TotalLikes, TotalDislikes: pub.TotalDislikes},
	}, nil
}

// React применяет реакцию. Противоположная реакция снимает предыдущую;
// повтор той же реакции снимает её.
func (s *ReactionService) React(ctx context.Context, publicationID string, reaction model.Reaction) (*ReactionState, error) {
	if reaction != model.ReactionLike && reaction != model.ReactionDislike {
		return nil, fmt.Errorf("%w: недопустимая реакция %q", ErrValidation, reaction)
	}

	before, err := s.Current(ctx, publicationID)
	if err != nil {
		return nil, err
	}

	counts, err := s.backend.React(ctx, publicationID, reaction)
	if err != nil {
		return nil, fmt.Errorf("реакция на публикацию %s: %w", publicationID, err)
	}

	state := ApplyReaction(before.Viewer, before.Counts, reaction)
	if counts != nil {
		state.Authoritative = counts
	}
	return state, nil
}

// ApplyReaction вычисляет новое состояние по предыдущему.
// Инвариант: активна не более чем одна из реакций like/dislike.
func ApplyReaction(viewer model.ViewerReaction, counts model.ReactionCounts, reaction model.Reaction) *ReactionState {
	switch reaction {
	case model.ReactionLike:
		if viewer.Liked {
			viewer.Liked = false
			counts.TotalLikes--
		} else {
			viewer.Liked = true
			counts.TotalLikes++
			if viewer.Disliked {
				viewer.Disliked = false
				counts.TotalDislikes--
			}
		}
	case model.ReactionDislike:
		if viewer.Disliked {
			viewer.Disliked = false
			counts.TotalDislikes--
		} else {
			viewer.Disliked = true
			counts.TotalDislikes++
			if viewer.Liked {
				viewer.Liked = false
				counts.TotalLikes--
			}
		}
	}

	counts.TotalLikes = max(counts.TotalLikes, 0)
	counts.TotalDislikes = max(counts.TotalDislikes, 0)
	return &ReactionState{Viewer: viewer, Counts: counts}
}
