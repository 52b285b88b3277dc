package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/reconciler"
	"github.com/jwalitptl/notify-engine/internal/repository/memory"
)

func setup(t *testing.T) (*gin.Engine, *memory.QueueRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	queue := memory.NewQueueRepository()
	rec := reconciler.New(queue, nil, nil, nil)
	rec.Register("sms", reconciler.SMSNormalizer{})
	rec.Register("email", reconciler.EmailNormalizer{})

	r := gin.New()
	api := r.Group("/api/v1")
	NewHandler(rec).RegisterRoutes(api)
	return r, queue
}

func seedSentJob(t *testing.T, queue *memory.QueueRepository, externalID string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	n := &model.Notification{
		BranchID:   uuid.New(),
		CustomerID: uuid.New(),
		Type:       model.ChannelSMS,
		Recipient:  "+15550006666",
		Content:    "code is 123456",
		MaxRetries: 3,
	}
	require.NoError(t, queue.Enqueue(ctx, n))
	claimed, err := queue.ClaimDue(ctx, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, queue.RecordOutcome(ctx, n.ID, model.Outcome{Success: true, ExternalID: externalID}))
	return n.ID
}

func post(r *gin.Engine, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIntakeAppliesDeliveryReport(t *testing.T) {
	r, queue := setup(t)
	id := seedSentJob(t, queue, "SM900")

	w := post(r, "/api/v1/webhooks/sms", "application/x-www-form-urlencoded",
		"MessageSid=SM900&MessageStatus=delivered")
	assert.Equal(t, http.StatusOK, w.Code)

	stored, err := queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, stored.DeliveryStatus)
}

func TestIntakeUnknownProviderIs404(t *testing.T) {
	r, _ := setup(t)

	w := post(r, "/api/v1/webhooks/pager", "application/json", "{}")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIntakeBadPayloadIs400(t *testing.T) {
	r, _ := setup(t)

	w := post(r, "/api/v1/webhooks/email", "application/json", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntakeUnknownExternalIDIs404(t *testing.T) {
	r, _ := setup(t)

	w := post(r, "/api/v1/webhooks/sms", "application/x-www-form-urlencoded",
		"MessageSid=SM404&MessageStatus=delivered")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
