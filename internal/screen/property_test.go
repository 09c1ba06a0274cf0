package screen

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/sells-group/txscreen/internal/model"
)

var countryPool = []string{"Iran", "North Korea", "United States", "Canada", "France", "Atlantis", "Springfield", ""}

func addressGen() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		parts := rapid.SliceOfN(rapid.SampledFrom(countryPool), 0, 4).Draw(t, "parts")
		sep := rapid.SampledFrom([]string{",", ";", " , ", "; "}).Draw(t, "sep")
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += sep
			}
			out += p
		}
		return out
	})
}

func txGen() *rapid.Generator[model.Transaction] {
	names := rapid.SampledFrom([]string{"Osama bin Laden", "Usama Bin Laden", "Alice Martin", "viktor bout", "", "  "})
	return rapid.Custom(func(t *rapid.T) model.Transaction {
		return model.Transaction{
			ID:              rapid.StringMatching(`T-[0-9]{1,4}`).Draw(t, "id"),
			SenderName:      names.Draw(t, "sender_name"),
			ReceiverName:    names.Draw(t, "receiver_name"),
			SenderAddress:   addressGen().Draw(t, "sender_address"),
			ReceiverAddress: addressGen().Draw(t, "receiver_address"),
			Amount:          "1",
		}
	})
}

func TestNormalizeName_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "name")
		once := NormalizeName(s)
		if twice := NormalizeName(once); twice != once {
			t.Fatalf("NormalizeName not idempotent: %q -> %q -> %q", s, once, twice)
		}
	})
}

func TestClassify_TotalAndDeterministic(t *testing.T) {
	c := testClassifier()
	rapid.Check(t, func(t *rapid.T) {
		tx := txGen().Draw(t, "tx")
		first := c.Classify(tx)
		if !first.Label.Valid() {
			t.Fatalf("invalid label %q", first.Label)
		}
		if second := c.Classify(tx); second.Label != first.Label {
			t.Fatalf("label changed between runs: %q vs %q", first.Label, second.Label)
		}
		if (first.Label == model.LabelFlagged) != (len(first.Detections) > 0) {
			t.Fatalf("flagged label and detections disagree: %+v", first)
		}
	})
}

func TestScore_SymmetricAndBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.StringMatching(`[a-zA-Z ]{0,20}`).Draw(t, "a")
		b := rapid.StringMatching(`[a-zA-Z ]{0,20}`).Draw(t, "b")
		s := Score(a, b)
		if s < 0 || s > 100 {
			t.Fatalf("score out of range: %d", s)
		}
		if s != Score(b, a) {
			t.Fatalf("score not symmetric for %q, %q", a, b)
		}
	})
}
