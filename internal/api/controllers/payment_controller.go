package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"payflow/internal/models/request_models"
	"payflow/internal/services"
	"payflow/pkg/middleware"
	"payflow/pkg/utils"
)

// payOS webhook bodies are small; anything larger is not a webhook.
const maxWebhookBytes = 1 << 20

// SignatureHeader optionally carries the webhook signature; payOS itself puts
// it in the body.
const SignatureHeader = "X-Signature"

type PaymentController struct {
	paymentService services.PaymentService
	webhooks       services.WebhookIngestor
	logger         *zap.Logger
}

func NewPaymentController(paymentService services.PaymentService, webhooks services.WebhookIngestor, logger *zap.Logger) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		webhooks:       webhooks,
		logger:         logger,
	}
}

// CreatePayment godoc
// @Summary Create a payment link for an order
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body request_models.CreatePaymentRequest true "Create Payment Request"
// @Success 201 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/create [post]
func (p *PaymentController) CreatePayment(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var request request_models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	resp, err := p.paymentService.CreatePayment(c.Request.Context(), caller, request)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondCreated(c, resp, "Payment link created successfully")
}

// HandleWebhook godoc
// @Summary Receive payOS payment webhooks
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /payments/webhook [post]
func (p *PaymentController) HandleWebhook(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := p.webhooks.Handle(c.Request.Context(), raw, c.GetHeader(SignatureHeader))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	if result.Confirmation {
		utils.RespondSuccess(c, gin.H{"confirmed": true}, "Webhook confirmed")
		return
	}
	utils.RespondSuccess(c, gin.H{
		"orderCode":       result.OrderCode,
		"transactionId":   result.TransactionID,
		"status":          result.Status,
		"applied":         result.Applied,
		"alreadyTerminal": result.AlreadyTerminal,
	}, "Webhook processed")
}

// VerifyPayment godoc
// @Summary Poll the gateway for a payment's status and apply it
// @Tags Payments
// @Produce json
// @Param orderCode path int true "Gateway order code"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/verify/{orderCode} [get]
func (p *PaymentController) VerifyPayment(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	orderCode, ok := orderCodeParam(c)
	if !ok {
		return
	}

	resp, err := p.paymentService.VerifyPayment(c.Request.Context(), caller, orderCode)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, resp, "Payment verified")
}

// CancelPayment godoc
// @Summary Cancel a pending payment and release the order's reservations
// @Tags Payments
// @Accept json
// @Produce json
// @Param orderCode path int true "Gateway order code"
// @Param request body request_models.CancelPaymentRequest false "Cancel Payment Request"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/cancel/{orderCode} [post]
func (p *PaymentController) CancelPayment(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	orderCode, ok := orderCodeParam(c)
	if !ok {
		return
	}

	var request request_models.CancelPaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	resp, err := p.paymentService.CancelPayment(c.Request.Context(), caller, orderCode, request.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, resp, "Payment cancelled")
}

// ListTransactions godoc
// @Summary List the caller's payment transactions
// @Tags Payments
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size (1-100)" default(20)
// @Param status query string false "Filter by status"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/transactions [get]
func (p *PaymentController) ListTransactions(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var query request_models.ListTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	page, err := p.paymentService.ListTransactions(c.Request.Context(), caller, query)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, page, "Fetched transactions successfully")
}

// GetTransaction godoc
// @Summary Get one of the caller's payment transactions
// @Tags Payments
// @Produce json
// @Param id path string true "Transaction id"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /payments/transactions/{id} [get]
func (p *PaymentController) GetTransaction(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	txn, err := p.paymentService.GetTransaction(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, txn, "Fetched transaction successfully")
}

func orderCodeParam(c *gin.Context) (int64, bool) {
	orderCode, err := strconv.ParseInt(c.Param("orderCode"), 10, 64)
	if err != nil || orderCode <= 0 {
		utils.RespondError(c, http.StatusBadRequest, "Invalid order code")
		return 0, false
	}
	return orderCode, true
}
