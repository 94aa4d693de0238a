package request_models

type CreatePaymentRequest struct {
	OrderID       string `json:"orderId" binding:"required,uuid"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty" binding:"omitempty,email"`
	CustomerPhone string `json:"customerPhone,omitempty"`
}

type CancelPaymentRequest struct {
	Reason string `json:"reason,omitempty" binding:"max=255"`
}

type ListTransactionsQuery struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"pageSize,default=20"`
	Status   string `form:"status"`
}
