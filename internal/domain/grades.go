package domain

// Decision is a tri-state approval flag: undecided until a human explicitly
// approves or rejects a stage.
type Decision int

const (
	Undecided Decision = iota
	Approved
	Rejected
)

// DecisionFromBool maps a persisted nullable boolean onto the enum.
func DecisionFromBool(b *bool) Decision {
	switch {
	case b == nil:
		return Undecided
	case *b:
		return Approved
	default:
		return Rejected
	}
}

// BoolPtr maps the enum back onto a nullable boolean column.
func (d Decision) BoolPtr() *bool {
	switch d {
	case Approved:
		v := true
		return &v
	case Rejected:
		v := false
		return &v
	default:
		return nil
	}
}

func (d Decision) String() string {
	switch d {
	case Approved:
		return "aprovado"
	case Rejected:
		return "reprovado"
	default:
		return "indefinido"
	}
}

// ConceptGrade is the fixed seven-point ordinal scale used by the dynamic,
// interview, and training-case evaluations. It carries no automatic pass/fail
// semantics; approval is always a separate explicit decision.
type ConceptGrade string

const (
	GradeA      ConceptGrade = "A"
	GradePMais  ConceptGrade = "P_MAIS"
	GradePAlto  ConceptGrade = "P_ALTO"
	GradeP      ConceptGrade = "P"
	GradePBaixo ConceptGrade = "P_BAIXO"
	GradePMenos ConceptGrade = "P_MENOS"
	GradeR      ConceptGrade = "R"
)

// conceptOrder lists the scale from best to worst. Rank, label, and color are all
// derived from this single table so sorting and rendering cannot drift apart.
var conceptOrder = []ConceptGrade{
	GradeA, GradePMais, GradePAlto, GradeP, GradePBaixo, GradePMenos, GradeR,
}

var conceptLabels = map[ConceptGrade]string{
	GradeA:      "Aprovado",
	GradePMais:  "Parcial +",
	GradePAlto:  "Parcial alto",
	GradeP:      "Parcial",
	GradePBaixo: "Parcial baixo",
	GradePMenos: "Parcial -",
	GradeR:      "Reprovado",
}

var conceptColors = map[ConceptGrade]string{
	GradeA:      "green",
	GradePMais:  "teal",
	GradePAlto:  "cyan",
	GradeP:      "yellow",
	GradePBaixo: "orange",
	GradePMenos: "amber",
	GradeR:      "red",
}

// Valid reports whether the grade is one of the seven scale values.
func (g ConceptGrade) Valid() bool {
	_, ok := conceptLabels[g]
	return ok
}

// Rank returns the position in the scale, zero being best. Unknown grades sort last.
func (g ConceptGrade) Rank() int {
	for i, c := range conceptOrder {
		if c == g {
			return i
		}
	}
	return len(conceptOrder)
}

// Better reports whether g outranks other on the scale.
func (g ConceptGrade) Better(other ConceptGrade) bool {
	return g.Rank() < other.Rank()
}

// Label returns the display label for the grade.
func (g ConceptGrade) Label() string {
	if l, ok := conceptLabels[g]; ok {
		return l
	}
	return string(g)
}

// Color returns the display color token for the grade.
func (g ConceptGrade) Color() string {
	if c, ok := conceptColors[g]; ok {
		return c
	}
	return "gray"
}

// Percent maps the grade linearly onto 0..100 (A=100, R=0) for the training
// progress computation.
func (g ConceptGrade) Percent() float64 {
	steps := len(conceptOrder) - 1
	rank := g.Rank()
	if rank > steps {
		return 0
	}
	return float64(steps-rank) / float64(steps) * 100
}
