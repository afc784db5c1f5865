package fieldmap

import (
	"errors"
	"testing"

	"github.com/conorfennell/knoldeck/internal/domain"
)

func TestStripMarkup(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Plain text", input: "Bonjour", expected: "Bonjour"},
		{name: "Block tags become lines", input: "<div>Hello</div><div>World&nbsp;!</div>", expected: "Hello\nWorld !"},
		{name: "Line breaks", input: "one<br>two<br/>three", expected: "one\ntwo\nthree"},
		{name: "Inline tags dropped", input: "<b>big</b> <i>cat</i>", expected: "big cat"},
		{name: "Sound tokens dropped", input: "Bom dia[sound:bomdia.mp3]", expected: "Bom dia"},
		{name: "Scripts removed", input: "cat<script>alert(1)</script>", expected: "cat"},
		{name: "Image only", input: `<img src="dog.jpg">`, expected: ""},
		{name: "Entities decoded", input: "caf&eacute; &amp; p&atilde;o", expected: "café & pão"},
		{name: "Empty", input: "", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripMarkup(tc.input); got != tc.expected {
				t.Errorf("Expected %q, but got %q", tc.expected, got)
			}
		})
	}
}

func TestStripBoilerplate(t *testing.T) {
	p := DefaultPolicy()
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "No trigger", input: "Olá mundo", expected: "Olá mundo"},
		{name: "Translate instructions", input: "Olá\nChange Google Translate to your language do as the following: step 1", expected: "Olá"},
		{name: "Tools menu with spacing", input: "house Select Tools  >  Manage Tools Type > Basic", expected: "house"},
		{name: "Earliest trigger wins", input: "word https://translate.google.com/ then change google translate to your language", expected: "word"},
		{name: "Only boilerplate", input: "https://translate.google.com/?sl=en", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.StripBoilerplate(tc.input); got != tc.expected {
				t.Errorf("Expected %q, but got %q", tc.expected, got)
			}
		})
	}
}

func TestIsMetadataLike(t *testing.T) {
	testCases := map[string]bool{
		"":            true,
		"123":         true,
		"12345678":    true,
		"ab12":        true,
		"a-b":         true,
		"abcde":       false,
		"cão":         false,
		"Hello world": false,
		"Bonjour":     false,
	}
	for input, expected := range testCases {
		if got := IsMetadataLike(input); got != expected {
			t.Errorf("IsMetadataLike(%q) = %v, expected %v", input, got, expected)
		}
	}
}

func TestRank(t *testing.T) {
	p := DefaultPolicy()

	t.Run("Native language wins the back", func(t *testing.T) {
		fields := []string{"The information", "A informação"}
		ranked := p.Rank(fields, nil, Back)
		if len(ranked) != 2 {
			t.Fatalf("Expected 2 candidates, got %d", len(ranked))
		}
		if ranked[0].Index != 1 {
			t.Errorf("Expected the Portuguese field first, got %+v", ranked)
		}
	})

	t.Run("Back weighting exceeds front weighting", func(t *testing.T) {
		text := "A informação"
		if p.Score(text, Back) <= p.Score(text, Front) {
			t.Errorf("Expected back score to exceed front score for %q", text)
		}
	})

	t.Run("Excluded and metadata fields are skipped", func(t *testing.T) {
		fields := []string{"42", "", "Hello there", "Olá"}
		ranked := p.Rank(fields, []int{3}, Front)
		if len(ranked) != 1 || ranked[0].Index != 2 {
			t.Errorf("Expected only index 2, got %+v", ranked)
		}
	})

	t.Run("Ties keep field order", func(t *testing.T) {
		ranked := p.Rank([]string{"xyzzy", "plugh"}, nil, Front)
		if len(ranked) != 2 || ranked[0].Index != 0 {
			t.Errorf("Expected stable order, got %+v", ranked)
		}
	})
}

func TestMap(t *testing.T) {
	p := DefaultPolicy()

	testCases := []struct {
		name          string
		fields        []string
		names         []string
		expectedFront string
		expectedBack  string
		expectedErr   error
	}{
		{
			name:          "Labelled template",
			fields:        []string{"<b>house</b>", "casa"},
			names:         []string{"Front", "Back"},
			expectedFront: "house",
			expectedBack:  "casa",
		},
		{
			name:          "Labels found out of order",
			fields:        []string{"a casa", "the house", "noun"},
			names:         []string{"Meaning", "Word", "Notes"},
			expectedFront: "the house",
			expectedBack:  "a casa",
		},
		{
			name:          "Metadata front triggers alternate search",
			fields:        []string{"123", "Bonjour", "Hello"},
			names:         []string{"Field 1", "Field 2", "Field 3"},
			expectedFront: "Hello",
			expectedBack:  "Bonjour",
		},
		{
			name:          "Metadata back replaced by best field",
			fields:        []string{"How are you?", "42", "Olá, como você está?"},
			names:         []string{"Front", "Back", "Extra"},
			expectedFront: "How are you?",
			expectedBack:  "Olá, como você está?",
		},
		{
			name:          "Short word kept without a better field",
			fields:        []string{"dog", "cão"},
			names:         []string{"Front", "Back"},
			expectedFront: "dog",
			expectedBack:  "cão",
		},
		{
			name:          "Boilerplate stripped",
			fields:        []string{"apple", "maçã<br>Change Google Translate to your language do as the following"},
			names:         []string{"Front", "Back"},
			expectedFront: "apple",
			expectedBack:  "maçã",
		},
		{
			name:          "One empty side is kept",
			fields:        []string{"<img src=\"x.jpg\">", "gato"},
			names:         []string{"Front", "Back"},
			expectedFront: "",
			expectedBack:  "gato",
		},
		{
			name:        "Single field",
			fields:      []string{"lonely"},
			names:       []string{"Front"},
			expectedErr: ErrUnrecognizedLayout,
		},
		{
			name:        "Both sides empty",
			fields:      []string{"", "<br>"},
			names:       []string{"Front", "Back"},
			expectedErr: ErrEmptyNote,
		},
		{
			name:        "Label points past the fields",
			fields:      []string{"only", "two"},
			names:       []string{"Extra", "Notes", "Back"},
			expectedErr: ErrUnrecognizedLayout,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := p.Map(tc.fields, tc.names)
			if tc.expectedErr != nil {
				if !errors.Is(err, tc.expectedErr) {
					t.Fatalf("Expected error %v, got %v", tc.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Map() returned an unexpected error: %v", err)
			}
			if m.Front != tc.expectedFront {
				t.Errorf("Expected front %q, got %q", tc.expectedFront, m.Front)
			}
			if m.Back != tc.expectedBack {
				t.Errorf("Expected back %q, got %q", tc.expectedBack, m.Back)
			}
			if m.FrontIndex == m.BackIndex {
				t.Errorf("Expected distinct indices, got %d for both", m.FrontIndex)
			}
		})
	}
}

func TestMapNote(t *testing.T) {
	p := DefaultPolicy()
	templates := map[int64]domain.Template{
		10: {ID: 10, Name: "Basic", FieldNames: []string{"Front", "Back"}},
	}

	t.Run("Known template", func(t *testing.T) {
		note := domain.RawNote{ID: 1, TemplateID: 10, Fields: "sun\x1fsol"}
		m, err := p.MapNote(note, templates)
		if err != nil {
			t.Fatalf("MapNote() returned an unexpected error: %v", err)
		}
		if m.Front != "sun" || m.Back != "sol" {
			t.Errorf("Expected sun/sol, got %q/%q", m.Front, m.Back)
		}
	})

	t.Run("Unknown template", func(t *testing.T) {
		note := domain.RawNote{ID: 2, TemplateID: 99, Fields: "a\x1fb"}
		if _, err := p.MapNote(note, templates); !errors.Is(err, ErrUnknownTemplate) {
			t.Errorf("Expected ErrUnknownTemplate, got %v", err)
		}
	})
}

func TestNewPolicy(t *testing.T) {
	if _, err := NewPolicy("es"); err != nil {
		t.Errorf("Expected es to be known, got %v", err)
	}
	if _, err := NewPolicy("xx"); err == nil {
		t.Error("Expected an error for an unknown language")
	}
}
