package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"cyberdesk/backend/services/desk-service/internal/models"
)

func successBody(token, amount, receipt string) []byte {
	return []byte(fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": %q,
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": %s},
						{"Name": "MpesaReceiptNumber", "Value": %q},
						{"Name": "Balance"},
						{"Name": "TransactionDate", "Value": 20191219102115},
						{"Name": "PhoneNumber", "Value": 254708374149}
					]
				}
			}
		}
	}`, token, amount, receipt))
}

func failureBody(token string) []byte {
	return []byte(fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-2",
				"CheckoutRequestID": %q,
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`, token))
}

type ReconcilerServiceTestSuite struct {
	suite.Suite
	db         *memDB
	marker     *memMarker
	reconciler *ReconcilerService
	student    *models.Student
	ctx        context.Context
}

func (s *ReconcilerServiceTestSuite) SetupTest() {
	s.db = newMemDB()
	s.marker = newMemMarker()
	s.reconciler = NewReconcilerService(memSessions{db: s.db}, memPayments{db: s.db}, nil, zaptest.NewLogger(s.T()))
	s.student = s.db.addStudent("S1", "0712345678")
	s.ctx = context.Background()
}

func TestReconcilerServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerServiceTestSuite))
}

func (s *ReconcilerServiceTestSuite) pendingSession(token string) *models.UsageSession {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	return s.db.addSession(models.UsageSession{
		StudentID:         s.student.ID,
		StartTime:         start,
		EndTime:           &end,
		AmountCharged:     decimal.RequireFromString("100.00"),
		PaymentStatus:     models.SessionPending,
		CheckoutRequestID: strPtr(token),
	})
}

func (s *ReconcilerServiceTestSuite) TestSuccessMarksOnlyTheMatchingSession() {
	target := s.pendingSession("tok-1")
	other := s.pendingSession("tok-2")

	ack, err := s.reconciler.HandleCallback(s.ctx, successBody("tok-1", "150", "ABC123"))
	s.Require().NoError(err)
	s.Equal(Acknowledgement{ResultCode: 0, ResultDesc: "Accepted"}, ack)

	got := s.db.session(target.ID)
	s.Equal(models.SessionPaid, got.PaymentStatus)
	s.Require().NotNil(got.ReceiptNumber)
	s.Equal("ABC123", *got.ReceiptNumber)
	s.Require().NotNil(got.MpesaPhone)
	s.Equal("254708374149", *got.MpesaPhone)
	s.Equal("150.00", got.AmountCharged.StringFixed(2))

	untouched := s.db.session(other.ID)
	s.Equal(models.SessionPending, untouched.PaymentStatus)
	s.Nil(untouched.ReceiptNumber)
	s.Equal("100.00", untouched.AmountCharged.StringFixed(2))
}

func (s *ReconcilerServiceTestSuite) TestReplayIsIdempotent() {
	target := s.pendingSession("tok-1")
	body := successBody("tok-1", "150", "ABC123")

	_, err := s.reconciler.HandleCallback(s.ctx, body)
	s.Require().NoError(err)
	first := s.db.session(target.ID)
	writes := s.db.writeCount()

	ack, err := s.reconciler.HandleCallback(s.ctx, body)
	s.Require().NoError(err)
	s.Equal(0, ack.ResultCode)
	s.Equal(first, s.db.session(target.ID))
	s.Equal(writes, s.db.writeCount())
}

func (s *ReconcilerServiceTestSuite) TestUnknownTokenIsAcceptedWithoutWrites() {
	s.pendingSession("tok-1")
	writes := s.db.writeCount()

	ack, err := s.reconciler.HandleCallback(s.ctx, successBody("tok-unknown", "150", "ABC123"))
	s.Require().NoError(err)
	s.Equal(Acknowledgement{ResultCode: 0, ResultDesc: "Accepted"}, ack)
	s.Equal(writes, s.db.writeCount())
}

func (s *ReconcilerServiceTestSuite) TestMalformedBody() {
	ack, err := s.reconciler.HandleCallback(s.ctx, []byte(`{"Body": {`))
	s.Require().ErrorIs(err, ErrParse)
	s.Equal(1, ack.ResultCode)
}

func (s *ReconcilerServiceTestSuite) TestWellFormedWithoutCallbackIsAccepted() {
	ack, err := s.reconciler.HandleCallback(s.ctx, []byte(`{"hello": "world"}`))
	s.Require().NoError(err)
	s.Equal(0, ack.ResultCode)
}

func (s *ReconcilerServiceTestSuite) TestFailureKeepsAmountAndReceipt() {
	target := s.pendingSession("tok-1")

	_, err := s.reconciler.HandleCallback(s.ctx, failureBody("tok-1"))
	s.Require().NoError(err)

	got := s.db.session(target.ID)
	s.Equal(models.SessionFailed, got.PaymentStatus)
	s.Nil(got.ReceiptNumber)
	s.Equal("100.00", got.AmountCharged.StringFixed(2))
}

func (s *ReconcilerServiceTestSuite) TestPaidIsTerminal() {
	target := s.pendingSession("tok-1")

	_, err := s.reconciler.HandleCallback(s.ctx, successBody("tok-1", "150", "ABC123"))
	s.Require().NoError(err)
	_, err = s.reconciler.HandleCallback(s.ctx, failureBody("tok-1"))
	s.Require().NoError(err)

	s.Equal(models.SessionPaid, s.db.session(target.ID).PaymentStatus)
}

func (s *ReconcilerServiceTestSuite) TestUnparseableAmountIsIgnored() {
	target := s.pendingSession("tok-1")

	_, err := s.reconciler.HandleCallback(s.ctx, successBody("tok-1", `"n/a"`, "ABC123"))
	s.Require().NoError(err)

	got := s.db.session(target.ID)
	s.Equal(models.SessionPaid, got.PaymentStatus)
	s.Equal("100.00", got.AmountCharged.StringFixed(2))
}

func (s *ReconcilerServiceTestSuite) TestFallsBackToPayment() {
	payment := s.db.addPayment(models.Payment{
		StudentID:         s.student.ID,
		Amount:            decimal.RequireFromString("150.00"),
		MpesaStatus:       models.PaymentPending,
		CheckoutRequestID: strPtr("tok-p"),
	})

	_, err := s.reconciler.HandleCallback(s.ctx, successBody("tok-p", "99", "PAY1"))
	s.Require().NoError(err)

	got := s.db.payment(payment.ID)
	s.Equal(models.PaymentPaid, got.MpesaStatus)
	s.Require().NotNil(got.ReceiptNumber)
	s.Equal("PAY1", *got.ReceiptNumber)
	s.Equal("150.00", got.Amount.StringFixed(2))
}

func (s *ReconcilerServiceTestSuite) TestMarkerShortCircuitsReplays() {
	s.reconciler = NewReconcilerService(memSessions{db: s.db}, memPayments{db: s.db}, s.marker, zaptest.NewLogger(s.T()))
	target := s.pendingSession("tok-1")

	_, err := s.reconciler.HandleCallback(s.ctx, successBody("tok-1", "150", "ABC123"))
	s.Require().NoError(err)
	done, _ := s.marker.Processed(s.ctx, "tok-1", 0)
	s.True(done)

	writes := s.db.writeCount()
	_, err = s.reconciler.HandleCallback(s.ctx, successBody("tok-1", "150", "ABC123"))
	s.Require().NoError(err)
	s.Equal(writes, s.db.writeCount())
	s.Equal(models.SessionPaid, s.db.session(target.ID).PaymentStatus)
}

func TestParseCallbackMetadata(t *testing.T) {
	cb, ok, err := ParseCallback(successBody("tok-1", "150.5", "ABC123"))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "tok-1", cb.CheckoutRequestID)
	assert.True(t, cb.Success())
	require.NotNil(t, cb.Amount)
	assert.Equal(t, "150.50", cb.Amount.StringFixed(2))
	assert.Equal(t, "ABC123", cb.ReceiptNumber)
	assert.Equal(t, "254708374149", cb.PhoneNumber)
}

func TestParseCallbackMissingResultCode(t *testing.T) {
	_, ok, err := ParseCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"tok-1"}}}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseCallbackUnexpectedShapesAreNotErrors(t *testing.T) {
	bodies := map[string]string{
		"numeric token":        `{"Body":{"stkCallback":{"CheckoutRequestID":123,"ResultCode":0}}}`,
		"text result code":     `{"Body":{"stkCallback":{"CheckoutRequestID":"tok-1","ResultCode":"abc"}}}`,
		"fractional code":      `{"Body":{"stkCallback":{"CheckoutRequestID":"tok-1","ResultCode":0.5}}}`,
		"body is a string":     `{"Body":"x"}`,
		"callback is a list":   `{"Body":{"stkCallback":[1,2]}}`,
		"top level array":      `[{"Body":{}}]`,
		"metadata is a string": `{"Body":{"stkCallback":{"CheckoutRequestID":123,"ResultCode":0,"CallbackMetadata":"x"}}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, ok, err := ParseCallback([]byte(body))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestParseCallbackOddMetadataStillParses(t *testing.T) {
	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"tok-1","ResultCode":"0",
		"CallbackMetadata":{"Item":["junk",{"Name":7},{"Name":"MpesaReceiptNumber","Value":"R1"}]}}}}`

	cb, ok, err := ParseCallback([]byte(body))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, cb.ResultCode)
	assert.Equal(t, "R1", cb.ReceiptNumber)
	assert.Nil(t, cb.Amount)
}

func TestParseCallbackRejectsTrailingData(t *testing.T) {
	for _, body := range []string{
		string(failureBody("tok-1")) + ` trailing-garbage{`,
		`{"Body":{}} {"Body":{}}`,
		``,
	} {
		_, ok, err := ParseCallback([]byte(body))
		assert.ErrorIs(t, err, ErrParse, body)
		assert.False(t, ok)
	}
}

func (s *ReconcilerServiceTestSuite) TestWrongFieldTypesAreAccepted() {
	target := s.pendingSession("tok-1")
	writes := s.db.writeCount()

	for _, body := range []string{
		`{"Body":{"stkCallback":{"CheckoutRequestID":123,"ResultCode":0}}}`,
		`{"Body":{"stkCallback":{"CheckoutRequestID":"tok-1","ResultCode":"abc"}}}`,
		`{"Body":"x"}`,
	} {
		ack, err := s.reconciler.HandleCallback(s.ctx, []byte(body))
		s.Require().NoError(err, body)
		s.Equal(Acknowledgement{ResultCode: 0, ResultDesc: "Accepted"}, ack, body)
	}
	s.Equal(writes, s.db.writeCount())
	s.Equal(models.SessionPending, s.db.session(target.ID).PaymentStatus)
}

func (s *ReconcilerServiceTestSuite) TestTrailingGarbageIsRejectedWithoutWrites() {
	target := s.pendingSession("tok-1")
	body := append(successBody("tok-1", "150", "ABC123"), []byte(" trailing-garbage{")...)

	ack, err := s.reconciler.HandleCallback(s.ctx, body)
	s.Require().ErrorIs(err, ErrParse)
	s.Equal(1, ack.ResultCode)
	s.Equal(models.SessionPending, s.db.session(target.ID).PaymentStatus)
}
