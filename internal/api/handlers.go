// Package api serves the exchange over HTTP with gin.
package api

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	wyvern "github.com/HappyFeet07/WyvernV3Fork"
	"github.com/HappyFeet07/WyvernV3Fork/chain"
	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/HappyFeet07/WyvernV3Fork/internal/events"
	"github.com/HappyFeet07/WyvernV3Fork/proxy"
	"github.com/HappyFeet07/WyvernV3Fork/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// Service is the part of *wyvern.Client the API drives
type Service interface {
	Info(ctx context.Context) (*wyvern.InfoResponse, error)
	HashOrder(ctx context.Context, order *chain.Order) (common.Hash, error)
	HashToSign(ctx context.Context, orderHash common.Hash) (common.Hash, error)
	ValidateOrderParameters(ctx context.Context, order *chain.Order) (bool, error)
	ValidateOrderAuthorization(ctx context.Context, sender common.Address, hash common.Hash, maker common.Address, signature []byte) (bool, error)
	Fill(ctx context.Context, maker common.Address, hash common.Hash) (*big.Int, error)
	Approved(ctx context.Context, maker common.Address, hash common.Hash) (bool, error)
	AtomicMatch(ctx context.Context, from common.Address, m *exchange.Match) (*wyvern.TransactionResult, error)
	ExecuteAction(ctx context.Context, req wyvern.ActionRequest) (*wyvern.ActionResult, error)
	ProxyOf(ctx context.Context, user common.Address) (common.Address, error)
	GrantState(ctx context.Context, contract common.Address) (*wyvern.GrantResponse, error)
	Events(ctx context.Context, eventType string, limit int) ([]events.Envelope, error)
}

type Handler struct {
	Service  Service
	Operator common.Address
	Logger   *slog.Logger
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// maxEventsLimit caps /v1/events pages
const maxEventsLimit = 1000

// New creates a handler that submits matches as operator
func New(service Service, operator common.Address, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: service, Operator: operator, Logger: logger}
}

func (h *Handler) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.GET("/info", h.Info)
	v1.POST("/orders/hash", h.HashOrder)
	v1.POST("/orders/validate", h.ValidateOrder)
	v1.GET("/orders/:hash/fill", h.GetFill)
	v1.GET("/orders/:hash/approved", h.GetApproved)
	v1.POST("/match", h.Match)
	v1.POST("/actions", h.ExecuteAction)
	v1.GET("/registry/proxies/:user", h.GetProxy)
	v1.GET("/registry/grants/:contract", h.GetGrant)
	v1.GET("/events", h.ListEvents)
}

func (h *Handler) Info(c *gin.Context) {
	info, err := h.Service.Info(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	info.Operator = h.Operator.Hex()
	c.JSON(http.StatusOK, info)
}

func (h *Handler) HashOrder(c *gin.Context) {
	var req wyvern.OrderJSON
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	order, err := wyvern.OrderFromJSON(req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	ctx := c.Request.Context()
	hash, err := h.Service.HashOrder(ctx, order)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	hashToSign, err := h.Service.HashToSign(ctx, hash)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, wyvern.HashResponse{Hash: hash.Hex(), HashToSign: hashToSign.Hex()})
}

// ValidateOrder checks an order the way atomicMatch would. Sender defaults to the operator.
func (h *Handler) ValidateOrder(c *gin.Context) {
	var req wyvern.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	order, err := wyvern.OrderFromJSON(req.Order)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	signature, err := wyvern.ParseBytes("signature", req.Signature)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	sender := h.Operator
	if req.Sender != "" {
		if sender, err = wyvern.ParseAddress("sender", req.Sender); err != nil {
			h.writeServiceError(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	hash, err := h.Service.HashOrder(ctx, order)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	paramsValid, err := h.Service.ValidateOrderParameters(ctx, order)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	authorized, err := h.Service.ValidateOrderAuthorization(ctx, sender, hash, order.Maker, signature)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, wyvern.ValidateResponse{
		Hash:            hash.Hex(),
		ParametersValid: paramsValid,
		Authorized:      authorized,
	})
}

func (h *Handler) GetFill(c *gin.Context) {
	hash, maker, ok := h.hashAndMaker(c)
	if !ok {
		return
	}
	fill, err := h.Service.Fill(c.Request.Context(), maker, hash)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, wyvern.FillResponse{Maker: maker.Hex(), Hash: hash.Hex(), Fill: fill.String()})
}

func (h *Handler) GetApproved(c *gin.Context) {
	hash, maker, ok := h.hashAndMaker(c)
	if !ok {
		return
	}
	approved, err := h.Service.Approved(c.Request.Context(), maker, hash)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, wyvern.ApprovedResponse{Maker: maker.Hex(), Hash: hash.Hex(), Approved: approved})
}

func (h *Handler) Match(c *gin.Context) {
	var req wyvern.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	m, err := wyvern.MatchFromRequest(req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	result, err := h.Service.AtomicMatch(c.Request.Context(), h.Operator, m)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExecuteAction runs a signed action as the account that signed it
func (h *Handler) ExecuteAction(c *gin.Context) {
	var req wyvern.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	result, err := h.Service.ExecuteAction(c.Request.Context(), req)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetProxy(c *gin.Context) {
	user, err := wyvern.ParseAddress("user", c.Param("user"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	addr, err := h.Service.ProxyOf(c.Request.Context(), user)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, wyvern.ProxyResponse{
		User:       user.Hex(),
		Proxy:      addr.Hex(),
		Registered: addr != (common.Address{}),
	})
}

func (h *Handler) GetGrant(c *gin.Context) {
	contract, err := wyvern.ParseAddress("contract", c.Param("contract"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	grant, err := h.Service.GrantState(c.Request.Context(), contract)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

func (h *Handler) ListEvents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxEventsLimit {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	envs, err := h.Service.Events(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if envs == nil {
		envs = []events.Envelope{}
	}
	c.JSON(http.StatusOK, wyvern.EventsResponse{Events: envs})
}

func (h *Handler) hashAndMaker(c *gin.Context) (common.Hash, common.Address, bool) {
	hash, err := wyvern.ParseHash("hash", c.Param("hash"))
	if err != nil {
		h.writeServiceError(c, err)
		return common.Hash{}, common.Address{}, false
	}
	maker, err := wyvern.ParseAddress("maker", c.Query("maker"))
	if err != nil {
		h.writeServiceError(c, err)
		return common.Hash{}, common.Address{}, false
	}
	return hash, maker, true
}

var actionErrors = []struct {
	err    error
	status int
	code   string
}{
	{wyvern.ErrActionSignature, http.StatusUnauthorized, "INVALID_ACTION_SIGNATURE"},
	{wyvern.ErrActionDomain, http.StatusUnauthorized, "WRONG_EXCHANGE"},
	{wyvern.ErrActionExpired, http.StatusUnauthorized, "ACTION_EXPIRED"},
	{wyvern.ErrActionReplayed, http.StatusConflict, "ACTION_REPLAYED"},
}

var protocolErrors = []struct {
	err  error
	code string
}{
	{exchange.ErrSelfMatch, "SELF_MATCH"},
	{exchange.ErrInvalidOrderParameters, "INVALID_ORDER_PARAMETERS"},
	{exchange.ErrOrderFilled, "ORDER_FILLED"},
	{exchange.ErrOrderUnauthorized, "ORDER_UNAUTHORIZED"},
	{exchange.ErrPredicateRejected, "PREDICATE_REJECTED"},
	{exchange.ErrFillExceedsMaximum, "FILL_EXCEEDS_MAXIMUM"},
	{exchange.ErrRegistryNotAllowed, "REGISTRY_NOT_ALLOWED"},
	{exchange.ErrCallTargetMissing, "CALL_TARGET_MISSING"},
	{exchange.ErrProxyNotFound, "PROXY_NOT_FOUND"},
	{exchange.ErrProxyImplementationMismatch, "PROXY_IMPLEMENTATION_MISMATCH"},
	{exchange.ErrInvalidSignatures, "INVALID_SIGNATURES"},
	{proxy.ErrUnauthorized, "PROXY_UNAUTHORIZED"},
	{exchange.ErrCallFailed, "CALL_FAILED"},
	{registry.ErrInvalidGrantState, "INVALID_GRANT_STATE"},
	{exchange.ErrAlreadyApproved, "ALREADY_APPROVED"},
	{exchange.ErrNotMaker, "NOT_MAKER"},
	{exchange.ErrFillUnchanged, "FILL_UNCHANGED"},
	{registry.ErrNotOwner, "NOT_REGISTRY_OWNER"},
	{registry.ErrAlreadyHasProxy, "ALREADY_HAS_PROXY"},
	{registry.ErrAlreadyInitialized, "ALREADY_INITIALIZED"},
	{proxy.ErrNotUser, "NOT_PROXY_USER"},
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	var paramErr *wyvern.InvalidParamError
	if errors.As(err, &paramErr) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", paramErr.Message)
		return
	}
	if errors.Is(err, wyvern.ErrJournalDisabled) {
		writeError(c, http.StatusServiceUnavailable, "EVENTS_DISABLED", err.Error())
		return
	}
	for _, ae := range actionErrors {
		if errors.Is(err, ae.err) {
			writeError(c, ae.status, ae.code, err.Error())
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(c, http.StatusGatewayTimeout, "TIMEOUT", "request timed out")
		return
	}
	for _, pe := range protocolErrors {
		if errors.Is(err, pe.err) {
			writeError(c, http.StatusUnprocessableEntity, pe.code, err.Error())
			return
		}
	}

	reqID, _ := c.Get(requestIDHeader)
	h.Logger.Error("request failed", "path", c.FullPath(), "request_id", reqID, "error", err)
	writeError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}
