package embedding

import (
	"fmt"

	"github.com/hyperjump/yomu/internal/models"
)

func errCountMismatch(want, got int) error {
	return fmt.Errorf("%w: expected %d embeddings, got %d", models.ErrEmbeddingUnavailable, want, got)
}
