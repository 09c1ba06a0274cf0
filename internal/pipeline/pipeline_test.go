package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/metrics"
	"github.com/sells-group/txscreen/internal/model"
	"github.com/sells-group/txscreen/internal/refdata"
	"github.com/sells-group/txscreen/internal/screen"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// sliceSource yields txs, then err (io.EOF when nil).
type sliceSource struct {
	txs []model.Transaction
	err error
	pos int
}

func (s *sliceSource) Next(ctx context.Context) (model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return model.Transaction{}, err
	}
	if s.pos < len(s.txs) {
		tx := s.txs[s.pos]
		s.pos++
		return tx, nil
	}
	if s.err != nil {
		return model.Transaction{}, s.err
	}
	return model.Transaction{}, io.EOF
}

// recordingSink keeps every batch it receives.
type recordingSink struct {
	batches [][]model.Result
	failOn  int // 1-based batch number that fails; 0 never
	closed  bool
}

func (s *recordingSink) WriteBatch(_ context.Context, results []model.Result) error {
	if s.failOn > 0 && len(s.batches)+1 == s.failOn {
		return errors.New("disk full")
	}
	s.batches = append(s.batches, append([]model.Result(nil), results...))
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) sizes() []int {
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

func (s *recordingSink) ids() []string {
	var out []string
	for _, b := range s.batches {
		for _, r := range b {
			out = append(out, r.Transaction.ID)
		}
	}
	return out
}

type recordingAuditor struct {
	detections []model.Detection
	calls      int
}

func (a *recordingAuditor) Record(_ context.Context, d []model.Detection) error {
	a.calls++
	a.detections = append(a.detections, d...)
	return nil
}

func testClassifier(opts ...screen.ClassifierOption) *screen.Classifier {
	j := screen.NewJurisdictions(
		[]string{"Iran", "North Korea"},
		[]string{"Iran", "North Korea", "United States", "Canada", "France"},
	)
	m := screen.NewMatcher([]model.BlacklistEntry{{Name: "Osama bin Laden"}}, screen.DefaultThreshold)
	return screen.NewClassifier(j, m, opts...)
}

func tx(id, senderAddr, receiverAddr string) model.Transaction {
	return model.Transaction{
		ID:              id,
		SenderName:      "Alice Martin",
		ReceiverName:    "Bob Keller",
		SenderAddress:   senderAddr,
		ReceiverAddress: receiverAddr,
		Amount:          "10.00",
	}
}

func flaggedTx(id string) model.Transaction { return tx(id, "Tehran, Iran", "Canada") }
func reviewTx(id string) model.Transaction  { return tx(id, "Springfield", "Canada") }
func passTx(id string) model.Transaction    { return tx(id, "Canada", "France") }

func TestRun_BatchBoundaries(t *testing.T) {
	src := &sliceSource{txs: []model.Transaction{
		flaggedTx("F1"), flaggedTx("F2"), flaggedTx("F3"), flaggedTx("F4"), flaggedTx("F5"),
	}}
	flagged, review := &recordingSink{}, &recordingSink{}

	sum, err := Run(context.Background(), src, testClassifier(), flagged, review, Options{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, flagged.sizes())
	assert.Equal(t, []string{"F1", "F2", "F3", "F4", "F5"}, flagged.ids())
	assert.Empty(t, review.batches)
	assert.Equal(t, model.Summary{Total: 5, Flagged: 5}, sum)
	assert.False(t, flagged.closed, "Run must not close sinks")
}

func TestRun_RoutesByLabel(t *testing.T) {
	src := &sliceSource{txs: []model.Transaction{
		passTx("P1"), flaggedTx("F1"), reviewTx("R1"), passTx("P2"), reviewTx("R2"), flaggedTx("F2"),
	}}
	flagged, review := &recordingSink{}, &recordingSink{}

	sum, err := Run(context.Background(), src, testClassifier(), flagged, review, Options{BatchSize: 10})
	require.NoError(t, err)

	assert.Equal(t, []string{"F1", "F2"}, flagged.ids())
	assert.Equal(t, []string{"R1", "R2"}, review.ids())
	assert.Equal(t, model.Summary{Total: 6, Flagged: 2, Review: 2, Passed: 2}, sum)

	// Seq is the position in the source.
	assert.Equal(t, int64(1), flagged.batches[0][0].Seq)
	assert.Equal(t, int64(5), flagged.batches[0][1].Seq)
}

func TestRun_EmptySource(t *testing.T) {
	flagged, review := &recordingSink{}, &recordingSink{}
	sum, err := Run(context.Background(), &sliceSource{}, testClassifier(), flagged, review, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.Summary{}, sum)
	assert.Empty(t, flagged.batches)
	assert.Empty(t, review.batches)
}

func TestRun_SourceErrorFlushesHeldBatches(t *testing.T) {
	srcErr := model.NewError(model.KindSourceRead, "decode", errors.New("unexpected EOF"))
	src := &sliceSource{
		txs: []model.Transaction{flaggedTx("F1"), flaggedTx("F2"), flaggedTx("F3"), reviewTx("R1")},
		err: srcErr,
	}
	flagged, review := &recordingSink{}, &recordingSink{}

	sum, err := Run(context.Background(), src, testClassifier(), flagged, review, Options{BatchSize: 2})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindSourceRead))

	assert.Equal(t, []int{2, 1}, flagged.sizes())
	assert.Equal(t, []string{"R1"}, review.ids())
	assert.Equal(t, int64(4), sum.Total)
}

func TestRun_MalformedReview(t *testing.T) {
	bad := passTx("M1")
	bad.ReceiverName = ""
	src := &sliceSource{txs: []model.Transaction{bad, passTx("P1")}}
	flagged, review := &recordingSink{}, &recordingSink{}

	sum, err := Run(context.Background(), src, testClassifier(), flagged, review, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"M1"}, review.ids())
	assert.Equal(t, []string{"missing receiver_name"}, review.batches[0][0].Reasons)
	assert.Equal(t, int64(1), sum.Malformed)
}

func TestRun_MalformedAbort(t *testing.T) {
	bad := passTx("M1")
	bad.SenderAddress = "  "
	src := &sliceSource{txs: []model.Transaction{flaggedTx("F1"), bad, flaggedTx("F2")}}
	flagged, review := &recordingSink{}, &recordingSink{}

	cls := testClassifier(screen.WithMalformedPolicy(screen.MalformedAbort))
	sum, err := Run(context.Background(), src, cls, flagged, review, Options{BatchSize: 10})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindMalformedRecord))
	assert.Contains(t, err.Error(), "M1")

	assert.Equal(t, []string{"F1"}, flagged.ids())
	assert.Equal(t, int64(1), sum.Total)
}

func TestRun_SinkError(t *testing.T) {
	src := &sliceSource{txs: []model.Transaction{flaggedTx("F1"), flaggedTx("F2")}}
	flagged := &recordingSink{failOn: 1}

	_, err := Run(context.Background(), src, testClassifier(), flagged, &recordingSink{}, Options{BatchSize: 1})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindSinkWrite))
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flagged := &recordingSink{}
	_, err := Run(ctx, &sliceSource{txs: []model.Transaction{flaggedTx("F1")}}, testClassifier(), flagged, &recordingSink{}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, flagged.batches)
}

// cancellingSource cancels the run after handing out n transactions.
type cancellingSource struct {
	sliceSource
	n      int
	cancel context.CancelFunc
}

func (s *cancellingSource) Next(ctx context.Context) (model.Transaction, error) {
	if s.pos == s.n {
		s.cancel()
	}
	return s.sliceSource.Next(ctx)
}

func TestRun_CancelMidRunFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{
		sliceSource: sliceSource{txs: []model.Transaction{flaggedTx("F1"), flaggedTx("F2"), flaggedTx("F3")}},
		n:           2,
		cancel:      cancel,
	}
	flagged := &recordingSink{}

	sum, err := Run(ctx, src, testClassifier(), flagged, &recordingSink{}, Options{BatchSize: 10})
	require.Error(t, err)
	assert.Equal(t, []string{"F1", "F2"}, flagged.ids())
	assert.Equal(t, int64(2), sum.Total)
}

func TestRun_AuditAndMetrics(t *testing.T) {
	src := &sliceSource{txs: []model.Transaction{flaggedTx("F1"), reviewTx("R1"), flaggedTx("F2"), flaggedTx("F3")}}
	flagged, review := &recordingSink{}, &recordingSink{}
	auditor := &recordingAuditor{}
	m := metrics.New()

	_, err := Run(context.Background(), src, testClassifier(), flagged, review, Options{
		BatchSize: 2,
		Audit:     auditor,
		Metrics:   m,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, auditor.calls)
	require.Len(t, auditor.detections, 3)
	assert.Equal(t, "F1", auditor.detections[0].TransactionID)
	assert.Equal(t, model.DetectionCountry, auditor.detections[0].Kind)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "txscreen_transactions_total")
	assert.Contains(t, names, "txscreen_batch_flushes_total")
}

func TestRun_WorkersPreserveOrder(t *testing.T) {
	var txs []model.Transaction
	for i := range 50 {
		id := fmt.Sprintf("T%02d", i)
		switch i % 3 {
		case 0:
			txs = append(txs, flaggedTx(id))
		case 1:
			txs = append(txs, reviewTx(id))
		default:
			txs = append(txs, passTx(id))
		}
	}

	seqFlagged, seqReview := &recordingSink{}, &recordingSink{}
	seqSum, err := Run(context.Background(), &sliceSource{txs: txs}, testClassifier(), seqFlagged, seqReview, Options{BatchSize: 7})
	require.NoError(t, err)

	parFlagged, parReview := &recordingSink{}, &recordingSink{}
	parSum, err := Run(context.Background(), &sliceSource{txs: txs}, testClassifier(), parFlagged, parReview, Options{BatchSize: 7, Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, seqSum, parSum)
	assert.Equal(t, seqFlagged.ids(), parFlagged.ids())
	assert.Equal(t, seqReview.ids(), parReview.ids())
	assert.Equal(t, seqFlagged.sizes(), parFlagged.sizes())
}

const feedWithBadlyTypedRecord = `{"transactions":[
	{"transaction_id":"T1","sender_name":"Alice Martin","receiver_name":"Bob Keller","sender_address":"Tehran, Iran","receiver_address":"Canada","amount":1},
	{"transaction_id":"T2","sender_name":["x"],"receiver_name":"Bob Keller","sender_address":"Canada","receiver_address":"France","amount":2},
	{"transaction_id":"T3","sender_name":"Alice Martin","receiver_name":"Bob Keller","sender_address":"Canada","receiver_address":"France","amount":3}
]}`

func TestRun_BadlyTypedRecordGoesToReview(t *testing.T) {
	src := refdata.NewTransactionSource(io.NopCloser(strings.NewReader(feedWithBadlyTypedRecord)), "inline", "transactions")
	flagged, review := &recordingSink{}, &recordingSink{}

	sum, err := Run(context.Background(), src, testClassifier(), flagged, review, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Total: 3, Flagged: 1, Review: 1, Passed: 1, Malformed: 1}, sum)
	assert.Equal(t, []string{"T1"}, flagged.ids())
	assert.Equal(t, []string{"T2"}, review.ids())
	assert.Equal(t, []string{"invalid sender_name", "missing sender_name"}, review.batches[0][0].Reasons)
}

func TestRun_BadlyTypedRecordAbortsUnderAbortPolicy(t *testing.T) {
	src := refdata.NewTransactionSource(io.NopCloser(strings.NewReader(feedWithBadlyTypedRecord)), "inline", "transactions")
	flagged, review := &recordingSink{}, &recordingSink{}

	cls := testClassifier(screen.WithMalformedPolicy(screen.MalformedAbort))
	sum, err := Run(context.Background(), src, cls, flagged, review, Options{})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindMalformedRecord))
	assert.Contains(t, err.Error(), "T2 invalid sender_name")
	assert.Equal(t, []string{"T1"}, flagged.ids())
	assert.Equal(t, int64(1), sum.Total)
}
