package storage

import (
	"context"
	"errors"
	"testing"
)

func TestSetFeedbackRejectsUnknownRating(t *testing.T) {
	repo := NewInteractionRepo(&DB{})
	err := repo.SetFeedback(context.Background(), "id-1", "meh")
	if err == nil {
		t.Fatalf("expected error for unknown rating")
	}
}

func TestSetFeedbackMalformedIDIsNotFound(t *testing.T) {
	repo := NewInteractionRepo(&DB{})
	err := repo.SetFeedback(context.Background(), "not-a-uuid", "positive")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetInteractionMalformedIDIsNotFound(t *testing.T) {
	repo := NewInteractionRepo(&DB{})
	_, err := repo.GetInteraction(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
