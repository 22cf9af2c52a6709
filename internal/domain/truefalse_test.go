package domain_test

import (
	"testing"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

func alts(texts ...string) []domain.Alternative {
	out := make([]domain.Alternative, len(texts))
	for i, tx := range texts {
		out[i] = domain.Alternative{ID: string(rune('a' + i)), Text: tx}
	}
	return out
}

func TestClassifyTrueFalseCanonicalText(t *testing.T) {
	// Storage order reversed: text wins over position.
	as := alts("Falso", "Verdadeiro")
	tr, fa := domain.ClassifyTrueFalse(as)
	if tr == nil || fa == nil {
		t.Fatalf("expected both slots filled")
	}
	if tr.Text != "Verdadeiro" || fa.Text != "Falso" {
		t.Fatalf("got true=%q false=%q", tr.Text, fa.Text)
	}
}

func TestClassifyTrueFalseShortForms(t *testing.T) {
	as := alts(" F ", "v")
	tr, fa := domain.ClassifyTrueFalse(as)
	if tr.Text != "v" || fa.Text != " F " {
		t.Fatalf("got true=%q false=%q", tr.Text, fa.Text)
	}
}

func TestClassifyTrueFalsePositionalFallback(t *testing.T) {
	as := alts("Sim", "Nao")
	tr, fa := domain.ClassifyTrueFalse(as)
	if tr.Text != "Sim" || fa.Text != "Nao" {
		t.Fatalf("fallback should follow position, got true=%q false=%q", tr.Text, fa.Text)
	}
}

func TestClassifyTrueFalsePartialMatch(t *testing.T) {
	// Only one alternative carries canonical text; the other takes the free slot.
	as := alts("Certo", "Falso")
	tr, fa := domain.ClassifyTrueFalse(as)
	if tr.Text != "Certo" || fa.Text != "Falso" {
		t.Fatalf("got true=%q false=%q", tr.Text, fa.Text)
	}
}

func TestClassifyTrueFalseTooFewAlternatives(t *testing.T) {
	tr, fa := domain.ClassifyTrueFalse(alts("Sozinha"))
	if tr != nil || fa != nil {
		t.Fatalf("expected nil slots for a single alternative")
	}
}
