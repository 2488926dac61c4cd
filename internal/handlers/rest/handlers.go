package rest

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/openbid/auction-server/internal/auction"
	"github.com/openbid/auction-server/internal/database"
	apperrors "github.com/openbid/auction-server/pkg/errors"
	"github.com/openbid/auction-server/pkg/types"
)

// Handler exposes the administrative auction operations over HTTP.
type Handler struct {
	engine *auction.Engine
	db     database.Service
}

func NewHandler(engine *auction.Engine, db database.Service) *Handler {
	return &Handler{engine: engine, db: db}
}

// NewRouter mounts the REST surface and the websocket endpoint.
func NewRouter(h *Handler, wsHandler http.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.Health)
	api := router.Group("/api")
	{
		api.POST("/auctions", h.CreateAuction)
		api.GET("/auctions/:id", h.GetAuction)
		api.GET("/auctions/:id/bids", h.GetBids)
		api.POST("/auctions/:id/cancel", h.CancelAuction)
	}

	if wsHandler != nil {
		router.GET("/ws/auctions", gin.WrapF(wsHandler))
	}
	return router
}

// statusForReason maps rejection reasons to HTTP status codes.
func statusForReason(reason apperrors.Reason) int {
	switch reason {
	case apperrors.ReasonAuctionNotFound:
		return http.StatusNotFound
	case apperrors.ReasonInvalidWindow, apperrors.ReasonInvalidPrice, apperrors.ReasonBadMessage,
		apperrors.ReasonBidTooLow, apperrors.ReasonSelfBid,
		apperrors.ReasonAuctionNotActive, apperrors.ReasonAuctionExpired:
		return http.StatusBadRequest
	case apperrors.ReasonListingAuctioned, apperrors.ReasonRaceLost,
		apperrors.ReasonAlreadyTerminal, apperrors.ReasonInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	reason := apperrors.ReasonOf(err)
	status := statusForReason(reason)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"reason": apperrors.ReasonInternal, "message": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"reason": reason, "message": err.Error()})
}

// CreateAuction handles POST /api/auctions
func (h *Handler) CreateAuction(c *gin.Context) {
	var params auction.CreateAuctionParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"reason": apperrors.ReasonBadMessage, "message": "invalid request body"})
		return
	}

	created, err := h.engine.CreateAuction(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetAuction handles GET /api/auctions/:id
func (h *Handler) GetAuction(c *gin.Context) {
	found, err := h.engine.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// GetBids handles GET /api/auctions/:id/bids
func (h *Handler) GetBids(c *gin.Context) {
	bids, err := h.engine.GetBids(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if bids == nil {
		bids = []types.Bid{}
	}
	c.JSON(http.StatusOK, bids)
}

// CancelAuction handles POST /api/auctions/:id/cancel
func (h *Handler) CancelAuction(c *gin.Context) {
	cancelled, err := h.engine.CancelAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.db.Health())
}
