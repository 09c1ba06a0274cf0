package screen

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/model"
)

// MalformedPolicy decides what happens to transactions missing a required field.
type MalformedPolicy string

const (
	// MalformedReview routes malformed records to review.
	MalformedReview MalformedPolicy = "review"
	// MalformedAbort makes Check fail so the run stops.
	MalformedAbort MalformedPolicy = "abort"
)

// List names used in detections.
const (
	ListSanctionedCountries = "sanctioned_countries"
	ListBlacklist           = "blacklist"
)

// Classifier labels transactions. It only reads its reference data and is
// safe for concurrent use.
type Classifier struct {
	jurisdictions *Jurisdictions
	extractor     *Extractor
	matcher       *Matcher
	policy        MalformedPolicy
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithExtractionMode selects the address extraction mode.
func WithExtractionMode(mode ExtractionMode) ClassifierOption {
	return func(c *Classifier) { c.extractor = NewExtractor(c.jurisdictions, mode) }
}

// WithMalformedPolicy selects the malformed-record policy.
func WithMalformedPolicy(p MalformedPolicy) ClassifierOption {
	return func(c *Classifier) { c.policy = p }
}

// NewClassifier returns a Classifier. A nil matcher means an empty blacklist.
func NewClassifier(j *Jurisdictions, m *Matcher, opts ...ClassifierOption) *Classifier {
	if m == nil {
		m = NewMatcher(nil, DefaultThreshold)
	}
	c := &Classifier{
		jurisdictions: j,
		extractor:     NewExtractor(j, ExtractStrict),
		matcher:       m,
		policy:        MalformedReview,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check returns a malformed-record error when the policy is MalformedAbort
// and tx is missing a required field or carries a wrongly typed value.
func (c *Classifier) Check(tx model.Transaction) error {
	if c.policy != MalformedAbort {
		return nil
	}
	if problems := tx.Problems(); len(problems) > 0 {
		return model.NewError(model.KindMalformedRecord,
			"transaction "+quoteID(tx.ID)+" "+strings.Join(problems, ", "), nil)
	}
	return nil
}

func quoteID(id string) string {
	if id == "" {
		return "<no id>"
	}
	return id
}

// Classify labels tx. Rules apply in order and the first that holds wins:
//
//  1. a sanctioned country in either address: flagged
//  2. either name matches the blacklist: flagged
//  3. a required field is missing or wrongly typed: review
//  4. either address ends in an unrecognized fragment: review
//  5. otherwise: pass
//
// Country and name hits are independent; either alone flags.
func (c *Classifier) Classify(tx model.Transaction) model.Result {
	res := model.Result{Transaction: tx, Label: model.LabelPass}

	senderCountry, senderOK := c.extractor.Extract(tx.SenderAddress)
	receiverCountry, receiverOK := c.extractor.Extract(tx.ReceiverAddress)

	for _, p := range []struct {
		party   model.Party
		country string
		ok      bool
	}{
		{model.PartySender, senderCountry, senderOK},
		{model.PartyReceiver, receiverCountry, receiverOK},
	} {
		if p.ok && c.jurisdictions.IsSanctioned(p.country) {
			res.Detections = append(res.Detections, model.Detection{
				TransactionID: tx.ID,
				Party:         p.party,
				Kind:          model.DetectionCountry,
				List:          ListSanctionedCountries,
				Value:         p.country,
				Matched:       p.country,
				Score:         100,
			})
		}
	}

	// Names are screened even after a country hit; every hit is recorded.
	for _, p := range []struct {
		party model.Party
		name  string
	}{
		{model.PartySender, tx.SenderName},
		{model.PartyReceiver, tx.ReceiverName},
	} {
		m, ok := c.matcher.Best(p.name)
		if !ok || m.Score < c.matcher.Threshold() {
			continue
		}
		res.Detections = append(res.Detections, model.Detection{
			TransactionID: tx.ID,
			Party:         p.party,
			Kind:          model.DetectionName,
			List:          ListBlacklist,
			Value:         p.name,
			Matched:       m.Entry.Name,
			Score:         m.Score,
		})
	}

	if len(res.Detections) > 0 {
		res.Label = model.LabelFlagged
		for _, d := range res.Detections {
			res.Reasons = append(res.Reasons, string(d.Party)+" "+string(d.Kind)+" hit: "+d.Matched)
			zap.L().Info("screen: sanction detected",
				zap.String("transaction_id", tx.ID),
				zap.String("party", string(d.Party)),
				zap.String("kind", string(d.Kind)),
				zap.String("value", d.Value),
				zap.String("matched", d.Matched),
				zap.Int("score", d.Score),
			)
		}
		res.Malformed = len(tx.Problems()) > 0
		return res
	}

	if problems := tx.Problems(); len(problems) > 0 {
		res.Label = model.LabelReview
		res.Malformed = true
		res.Reasons = append(res.Reasons, problems...)
		return res
	}

	if senderOK && !c.jurisdictions.IsKnown(senderCountry) {
		res.Label = model.LabelReview
		res.Reasons = append(res.Reasons, "unresolved sender country: "+senderCountry)
	}
	if receiverOK && !c.jurisdictions.IsKnown(receiverCountry) {
		res.Label = model.LabelReview
		res.Reasons = append(res.Reasons, "unresolved receiver country: "+receiverCountry)
	}
	return res
}
