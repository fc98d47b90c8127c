package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"keyshop-bot/internal/metrics"
	"keyshop-bot/internal/model"
	"keyshop-bot/internal/pkg/logging"
	"keyshop-bot/internal/service"
	"keyshop-bot/pkg/apierror"
	"keyshop-bot/pkg/response"

	"go.uber.org/zap"
)

// maxWebhookBody caps the payment notification size.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment notifications from the gateway.
// The shared secret is checked by middleware before this handler runs.
type WebhookHandler struct {
	shop    *service.Shop
	metrics *metrics.Metrics
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(shop *service.Shop, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{shop: shop, metrics: m}
}

// WebhookResponse is the body returned for an accepted notification.
type WebhookResponse struct {
	Status    string `json:"status"`
	OrderID   string `json:"order_id,omitempty"`
	Delivered bool   `json:"delivered"`
}

// notification is the raw gateway body. The amount is only parsed for
// completed transfers so other statuses are ignored whatever they carry.
type notification struct {
	Content        string          `json:"content"`
	TransferAmount json.RawMessage `json:"transferAmount"`
	Status         string          `json:"status"`
}

func (n notification) payment() (model.Payment, error) {
	p := model.Payment{Content: n.Content, Status: n.Status}
	if !p.Completed() {
		return p, nil
	}
	if len(n.TransferAmount) == 0 || string(n.TransferAmount) == "null" {
		return p, errors.New("missing transferAmount")
	}
	if err := json.Unmarshal(n.TransferAmount, &p.TransferAmount); err != nil {
		return p, fmt.Errorf("invalid transferAmount %s: %w", n.TransferAmount, err)
	}
	return p, nil
}

// Payment handles POST /webhook
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	var n notification
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&n); err != nil {
		h.metrics.Webhook("bad_request")
		logger.Warn("webhook_bad_request", zap.Error(err))
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	p, err := n.payment()
	if err != nil {
		h.metrics.Webhook("bad_request")
		logger.Warn("webhook_bad_request", zap.Error(err))
		response.Error(w, apierror.BadRequest("transferAmount must be an integer"))
		return
	}

	result, err := h.shop.ConfirmPayment(r.Context(), p)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrOrderNotFound):
			h.metrics.Webhook("not_found")
			response.Error(w, apierror.NotFound("no pending order matches this payment"))
		case errors.Is(err, model.ErrInsufficientInventory):
			h.metrics.Webhook("conflict")
			response.Error(w, apierror.Conflict("not enough keys in stock to fulfil order"))
		default:
			h.metrics.Webhook("error")
			logger.Error("webhook_failed", zap.Error(err))
			response.Error(w, apierror.InternalError("failed to process payment"))
		}
		return
	}

	if result.Outcome == service.PaymentIgnored {
		h.metrics.Webhook("ignored")
		response.OK(w, WebhookResponse{Status: string(service.PaymentIgnored)})
		return
	}

	h.metrics.Webhook("paid")
	response.OK(w, WebhookResponse{
		Status:    string(service.PaymentPaid),
		OrderID:   result.Order.ID,
		Delivered: result.Delivered,
	})
}
