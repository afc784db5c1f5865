package knol

import (
	"testing"

	"github.com/conorfennell/knoldeck/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.NormalizedCard{
		Front: "  What is a Casa? \r\n",
		Back:  "A house.",
		Audio: &domain.MediaAsset{Name: "Casa.mp3"},
	}
	expected := "what is a casa?\na house.\n\ncasa.mp3"
	normalized := Normalize(card)

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		card := domain.NormalizedCard{Front: "Q", Back: "A"}
		// Hash for "q\na\n\n"
		expectedHash := "bdd47ebfa213575854e0a550a800d3e7cc490ab6962e1c613bd2ca3187aa8a3a"
		hash := Hash(card)

		if hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("hash ignores ids, tags and decks", func(t *testing.T) {
		card1 := domain.NormalizedCard{ID: 1, Front: "Test", DeckName: "A", Tags: []string{"x"}}
		card2 := domain.NormalizedCard{ID: 2, Front: "Test", DeckName: "B"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes for identical content to be the same")
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		card1 := domain.NormalizedCard{Front: "  o gato ", Back: "The cat."}
		card2 := domain.NormalizedCard{Front: "O Gato", Back: "The cat."}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("different cards have different hashes", func(t *testing.T) {
		testCases := []struct {
			name string
			a, b domain.NormalizedCard
		}{
			{"front", domain.NormalizedCard{Front: "Card 1"}, domain.NormalizedCard{Front: "Card 2"}},
			{"side swap", domain.NormalizedCard{Front: "a", Back: "b"}, domain.NormalizedCard{Front: "b", Back: "a"}},
			{"image", domain.NormalizedCard{Front: "a", Image: &domain.MediaAsset{Name: "1.png"}}, domain.NormalizedCard{Front: "a"}},
		}
		for _, tc := range testCases {
			if Hash(tc.a) == Hash(tc.b) {
				t.Errorf("%s: expected hashes for different cards to be different", tc.name)
			}
		}
	})
}
