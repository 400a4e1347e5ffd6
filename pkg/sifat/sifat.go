// Package sifat defines the phonetic feature levels (sifat) classified by the
// recitation model and the per-phoneme-group record that carries them.
//
// Levels are an explicit enumerated set. Each level maps to one typed slot in
// [Sifa]; there is no field access by name.
package sifat

// Level names one classification head of the model.
type Level string

const (
	// Phonemes is the main phoneme head.
	Phonemes Level = "phonemes"

	HamsOrJahr       Level = "hams_or_jahr"
	ShiddaOrRakhawa  Level = "shidda_or_rakhawa"
	TafkheemOrTaqeeq Level = "tafkheem_or_taqeeq"
	Itbaq            Level = "itbaq"
	Safeer           Level = "safeer"
	Qalqla           Level = "qalqla"
	Tikraar          Level = "tikraar"
	Tafashie         Level = "tafashie"
	Istitala         Level = "istitala"
	Ghonna           Level = "ghonna"
)

// Features lists the ten feature levels in canonical order.
var Features = []Level{
	HamsOrJahr,
	ShiddaOrRakhawa,
	TafkheemOrTaqeeq,
	Itbaq,
	Safeer,
	Qalqla,
	Tikraar,
	Tafashie,
	Istitala,
	Ghonna,
}

// AllLevels returns the phoneme level followed by every feature level.
func AllLevels() []Level {
	out := make([]Level, 0, len(Features)+1)
	out = append(out, Phonemes)
	return append(out, Features...)
}

// IsFeature reports whether l is one of the ten feature levels.
func (l Level) IsFeature() bool {
	switch l {
	case HamsOrJahr, ShiddaOrRakhawa, TafkheemOrTaqeeq, Itbaq, Safeer,
		Qalqla, Tikraar, Tafashie, Istitala, Ghonna:
		return true
	}
	return false
}

// IsValid reports whether l is a recognised level.
func (l Level) IsValid() bool {
	return l == Phonemes || l.IsFeature()
}

// ArabicName returns the Arabic display name of a feature level, or the
// level string itself for levels without one.
func (l Level) ArabicName() string {
	switch l {
	case HamsOrJahr:
		return "الهمس/الجهر"
	case ShiddaOrRakhawa:
		return "الشدة/الرخاوة"
	case TafkheemOrTaqeeq:
		return "التفخيم/الترقيق"
	case Ghonna:
		return "الغنة"
	case Qalqla:
		return "القلقلة"
	case Safeer:
		return "الصفير"
	case Tikraar:
		return "التكرار"
	case Tafashie:
		return "التفشي"
	case Istitala:
		return "الاستطالة"
	case Itbaq:
		return "الإطباق"
	}
	return string(l)
}

// SingleUnit is one predicted (or expected) label of a feature level.
type SingleUnit struct {
	Text string  `json:"text"`
	Prob float64 `json:"prob"`
	Idx  int     `json:"idx"`
}

// Sifa is the feature record of one reference phoneme group. A nil slot
// means the level has no decoded occurrence at this position.
type Sifa struct {
	PhonemesGroup string `json:"phonemes_group"`

	HamsOrJahr       *SingleUnit `json:"hams_or_jahr"`
	ShiddaOrRakhawa  *SingleUnit `json:"shidda_or_rakhawa"`
	TafkheemOrTaqeeq *SingleUnit `json:"tafkheem_or_taqeeq"`
	Itbaq            *SingleUnit `json:"itbaq"`
	Safeer           *SingleUnit `json:"safeer"`
	Qalqla           *SingleUnit `json:"qalqla"`
	Tikraar          *SingleUnit `json:"tikraar"`
	Tafashie         *SingleUnit `json:"tafashie"`
	Istitala         *SingleUnit `json:"istitala"`
	Ghonna           *SingleUnit `json:"ghonna"`
}

// Get returns the slot for level l. It returns nil for the phoneme level and
// for unknown levels.
func (s *Sifa) Get(l Level) *SingleUnit {
	switch l {
	case HamsOrJahr:
		return s.HamsOrJahr
	case ShiddaOrRakhawa:
		return s.ShiddaOrRakhawa
	case TafkheemOrTaqeeq:
		return s.TafkheemOrTaqeeq
	case Itbaq:
		return s.Itbaq
	case Safeer:
		return s.Safeer
	case Qalqla:
		return s.Qalqla
	case Tikraar:
		return s.Tikraar
	case Tafashie:
		return s.Tafashie
	case Istitala:
		return s.Istitala
	case Ghonna:
		return s.Ghonna
	}
	return nil
}

// Set stores u in the slot for level l. It reports false when l is not a
// feature level.
func (s *Sifa) Set(l Level, u *SingleUnit) bool {
	switch l {
	case HamsOrJahr:
		s.HamsOrJahr = u
	case ShiddaOrRakhawa:
		s.ShiddaOrRakhawa = u
	case TafkheemOrTaqeeq:
		s.TafkheemOrTaqeeq = u
	case Itbaq:
		s.Itbaq = u
	case Safeer:
		s.Safeer = u
	case Qalqla:
		s.Qalqla = u
	case Tikraar:
		s.Tikraar = u
	case Tafashie:
		s.Tafashie = u
	case Istitala:
		s.Istitala = u
	case Ghonna:
		s.Ghonna = u
	default:
		return false
	}
	return true
}

// Equal reports whether a and b hold the same group text and the same
// label, probability and index in every slot.
func Equal(a, b Sifa) bool {
	if a.PhonemesGroup != b.PhonemesGroup {
		return false
	}
	for _, l := range Features {
		ua, ub := a.Get(l), b.Get(l)
		if (ua == nil) != (ub == nil) {
			return false
		}
		if ua != nil && *ua != *ub {
			return false
		}
	}
	return true
}
