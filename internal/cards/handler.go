package cards

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Handler struct {
	Service *Service
	log     zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{Service: svc, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/meta", h.meta)

	sets := rg.Group("/sets")
	sets.GET("", h.listSets)               // GET /sets?includeOnlineOnly=true
	sets.POST("", h.setsByCodes)           // POST /sets {"setCodes": [...]}
	sets.GET("/:code", h.getSet)           // GET /sets/:code
	sets.GET("/:code/cards", h.cardsOfSet) // GET /sets/:code/cards

	cards := rg.Group("/cards")
	cards.POST("", h.cardsBySetCodes)   // POST /cards {"setCodes": [...]}
	cards.POST("/uuids", h.cardsByUUID) // POST /cards/uuids {"uuids": [...]}
	cards.GET("/search", h.search)      // GET /cards/search?q=bolt&limit=20

	rg.GET("/symbols", h.symbols)
}

type setCodesRequest struct {
	SetCodes []string `json:"setCodes"`
}

type uuidsRequest struct {
	UUIDs []string `json:"uuids"`
}

func (h *Handler) meta(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Metadata())
}

func (h *Handler) listSets(c *gin.Context) {
	includeOnline := parseBool(c.Query("includeOnlineOnly"), false)
	sets := h.Service.AvailableSets(!includeOnline)
	if len(sets) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sets found"})
		return
	}
	out := make([]any, 0, len(sets))
	for _, s := range sets {
		out = append(out, s.Listing())
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) setsByCodes(c *gin.Context) {
	var req setCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid setCodes parameter"})
		return
	}
	sets, err := h.Service.SetsByCodes(req.SetCodes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sets)
}

func (h *Handler) getSet(c *gin.Context) {
	set, ok := h.Service.SetByCode(c.Param("code"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "set " + c.Param("code") + " not found"})
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *Handler) cardsOfSet(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.CardsBySetCode(c.Param("code")))
}

func (h *Handler) cardsBySetCodes(c *gin.Context) {
	var req setCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid setCodes parameter"})
		return
	}
	cards, err := h.Service.CardsBySetCodes(req.SetCodes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *Handler) cardsByUUID(c *gin.Context) {
	var req uuidsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuids parameter"})
		return
	}
	if len(req.UUIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uuids must not be empty"})
		return
	}
	cards, err := h.Service.CardsByUUID(c.Request.Context(), req.UUIDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *Handler) search(c *gin.Context) {
	q := c.Query("q")
	limit := parseInt(c.Query("limit"), DefaultSearchLimit)
	cards, err := h.Service.SearchByName(c.Request.Context(), q, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query": strings.TrimSpace(q),
		"limit": ClampLimit(limit),
		"items": cards,
	})
}

func (h *Handler) symbols(c *gin.Context) {
	blob := h.Service.Symbols()
	if blob == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbols not loaded"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", blob)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return b
}
