package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/yomu/pkg/utils"
)

func TestMockEmbedder_deterministicAndNormalized(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Revenue grew in the north")
	b, _ := e.Embed(ctx, "Revenue grew in the north")
	if utils.CosineSimilarity(a, b) < 0.9999 {
		t.Error("same text should embed identically")
	}
	var sum float64
	for _, v := range a {
		sum += float64(v * v)
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("expected unit norm, got %f", sum)
	}
	empty, _ := e.Embed(ctx, "")
	if utils.CosineSimilarity(empty, empty) == 0 {
		t.Error("empty text must not embed to the zero vector")
	}
}

func TestMockEmbedder_sharedWordsAreCloser(t *testing.T) {
	e := NewMockEmbedder(256)
	ctx := context.Background()
	vecs, err := e.EmbedBatch(ctx, []string{"revenue growth north", "north revenue", "penguins swim"})
	if err != nil {
		t.Fatal(err)
	}
	related := utils.CosineSimilarity(vecs[0], vecs[1])
	unrelated := utils.CosineSimilarity(vecs[0], vecs[2])
	if related <= unrelated {
		t.Errorf("related %f should exceed unrelated %f", related, unrelated)
	}
}
