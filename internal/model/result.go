package model

// Label is the outcome of screening one transaction.
type Label string

const (
	LabelPass    Label = "pass"
	LabelReview  Label = "review"
	LabelFlagged Label = "flagged"
)

// Valid reports whether l is one of the three screening outcomes.
func (l Label) Valid() bool {
	switch l {
	case LabelPass, LabelReview, LabelFlagged:
		return true
	default:
		return false
	}
}

// Party identifies which side of a transaction a detection concerns.
type Party string

const (
	PartySender   Party = "sender"
	PartyReceiver Party = "receiver"
)

// DetectionKind says which list produced a hit.
type DetectionKind string

const (
	DetectionCountry DetectionKind = "country"
	DetectionName    DetectionKind = "name"
)

// Detection is an auditable sanction hit: what matched, against which list,
// and how strongly.
type Detection struct {
	TransactionID string        `json:"transaction_id" yaml:"transaction_id"`
	Party         Party         `json:"party" yaml:"party"`
	Kind          DetectionKind `json:"kind" yaml:"kind"`
	List          string        `json:"list" yaml:"list"`
	Value         string        `json:"value" yaml:"value"`     // the address token or name that was screened
	Matched       string        `json:"matched" yaml:"matched"` // the list entry it hit
	Score         int           `json:"score" yaml:"score"`     // 100 for exact country hits
}

// Result pairs a transaction with its label. Seq is the transaction's
// zero-based position in the source.
type Result struct {
	Seq         int64       `json:"seq"`
	Transaction Transaction `json:"transaction"`
	Label       Label       `json:"label"`
	Reasons     []string    `json:"reasons,omitempty"`
	Malformed   bool        `json:"malformed,omitempty"`
	Detections  []Detection `json:"detections,omitempty"`
}

// Summary counts the outcomes of a run.
type Summary struct {
	Total     int64 `json:"total" yaml:"total"`
	Flagged   int64 `json:"flagged" yaml:"flagged"`
	Review    int64 `json:"review" yaml:"review"`
	Passed    int64 `json:"passed" yaml:"passed"`
	Malformed int64 `json:"malformed" yaml:"malformed"`
}

// Add counts r in the summary.
func (s *Summary) Add(r Result) {
	s.Total++
	switch r.Label {
	case LabelFlagged:
		s.Flagged++
	case LabelReview:
		s.Review++
	default:
		s.Passed++
	}
	if r.Malformed {
		s.Malformed++
	}
}
