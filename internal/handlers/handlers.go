package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/SatyamPandey-07/lms--3/internal/auth"
	"github.com/SatyamPandey-07/lms--3/internal/models"
	"github.com/SatyamPandey-07/lms--3/internal/services"
)

type LibraryHandler struct {
	svc  services.LibraryService
	ping func() error
}

// RegisterRoutes mounts the API. Every route except /health and the
// catalogue reads needs a bearer token.
func RegisterRoutes(r *gin.Engine, svc services.LibraryService, jwtSecret string, ping func() error) {
	h := &LibraryHandler{svc: svc, ping: ping}

	r.GET("/health", h.health)
	r.GET("/titles", h.listTitles)
	r.GET("/titles/:id", h.getTitle)

	authed := r.Group("/", auth.Middleware(jwtSecret))

	// Librarian endpoints
	admin := authed.Group("/", auth.RequireRole(models.RoleAdmin))
	admin.POST("/titles", h.addTitle)
	admin.POST("/titles/:id/copies", h.addTitleCopies)
	admin.GET("/titles/:id/audit", h.auditTitle)
	admin.POST("/patrons", h.registerPatron)
	admin.GET("/patrons", h.listPatrons)
	admin.GET("/patrons/unverified", h.listUnverifiedPatrons)
	admin.POST("/patrons/:id/verify", h.verifyPatron)
	admin.POST("/rentals/:id/approve", h.transition(svc.ApproveRental))
	admin.POST("/rentals/:id/collect", h.transition(svc.CollectRental))
	admin.POST("/rentals/:id/close", h.transition(svc.CloseRental))
	admin.GET("/rentals/pending", h.listPendingRentals)
	admin.GET("/rentals/collected", h.listCollectedRentals)
	admin.GET("/rentals/summary", h.rentalSummary)

	// Patron endpoints
	patron := authed.Group("/", auth.RequireRole(models.RolePatron))
	patron.POST("/rentals", h.createRental)
	patron.GET("/me/rentals", h.listMyRentals)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrTitleNotFound),
		errors.Is(err, services.ErrRentalNotFound),
		errors.Is(err, services.ErrPatronNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrOutOfStock),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrDuplicateISBN),
		errors.Is(err, services.ErrDuplicatePatron),
		errors.Is(err, services.ErrPatronAlreadyVerified):
		return http.StatusConflict
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrPatronNotVerified):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, services.ErrConsistencyViolation) {
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *LibraryHandler) health(c *gin.Context) {
	if err := h.ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// ─── Titles ───────────────────────────────────────────────────────────────────

type addTitleRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	ISBN        string `json:"isbn" binding:"required"`
	Description string `json:"description"`
	CoverURL    string `json:"cover_url" binding:"omitempty,url"`
	Copies      int    `json:"copies" binding:"min=0"`
}

func (h *LibraryHandler) addTitle(c *gin.Context) {
	var req addTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, _ := auth.ActorFrom(c)

	title, err := h.svc.AddTitle(c.Request.Context(), actor, services.NewTitle{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Description: req.Description,
		CoverURL:    req.CoverURL,
		Copies:      req.Copies,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, title)
}

type addCopiesRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}

func (h *LibraryHandler) addTitleCopies(c *gin.Context) {
	titleID, ok := parseID(c, "title")
	if !ok {
		return
	}
	var req addCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, _ := auth.ActorFrom(c)

	title, err := h.svc.AddTitleCopies(c.Request.Context(), actor, titleID, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, title)
}

func (h *LibraryHandler) listTitles(c *gin.Context) {
	titles, err := h.svc.ListTitles(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, titles)
}

func (h *LibraryHandler) getTitle(c *gin.Context) {
	titleID, ok := parseID(c, "title")
	if !ok {
		return
	}
	title, err := h.svc.GetTitle(c.Request.Context(), titleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, title)
}

func (h *LibraryHandler) auditTitle(c *gin.Context) {
	titleID, ok := parseID(c, "title")
	if !ok {
		return
	}
	audit, err := h.svc.AuditTitle(c.Request.Context(), titleID)
	if err != nil {
		if audit != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "audit": audit})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, audit)
}

// ─── Patrons ──────────────────────────────────────────────────────────────────

type registerPatronRequest struct {
	FullName string `json:"fullname" binding:"required"`
	Surname  string `json:"surname" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Verified bool   `json:"is_verified"`
}

func (h *LibraryHandler) registerPatron(c *gin.Context) {
	var req registerPatronRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, _ := auth.ActorFrom(c)

	patron, err := h.svc.RegisterPatron(c.Request.Context(), actor, services.NewPatron{
		FullName: req.FullName,
		Surname:  req.Surname,
		Email:    req.Email,
		Verified: req.Verified,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, patron)
}

func (h *LibraryHandler) listPatrons(c *gin.Context) {
	patrons, err := h.svc.ListPatronsWithIssuedCount(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, patrons)
}

func (h *LibraryHandler) listUnverifiedPatrons(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	patrons, err := h.svc.ListUnverifiedPatrons(c.Request.Context(), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, patrons)
}

func (h *LibraryHandler) verifyPatron(c *gin.Context) {
	patronID, ok := parseID(c, "patron")
	if !ok {
		return
	}
	actor, _ := auth.ActorFrom(c)

	patron, err := h.svc.VerifyPatron(c.Request.Context(), actor, patronID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, patron)
}

// ─── Rentals ──────────────────────────────────────────────────────────────────

// createRentalRequest names the title by id or by ISBN, never both.
type createRentalRequest struct {
	TitleID string `json:"title_id" binding:"required_without=ISBN,excluded_with=ISBN"`
	ISBN    string `json:"isbn" binding:"required_without=TitleID,excluded_with=TitleID"`
}

func (h *LibraryHandler) createRental(c *gin.Context) {
	var req createRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, _ := auth.ActorFrom(c)
	ctx := c.Request.Context()

	var (
		rental *models.Rental
		err    error
	)
	if req.TitleID != "" {
		titleID, perr := uuid.Parse(req.TitleID)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
			return
		}
		rental, err = h.svc.CreateRental(ctx, actor, titleID)
	} else {
		rental, err = h.svc.CreateRentalByISBN(ctx, actor, req.ISBN)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rental)
}

type transitionFunc func(ctx context.Context, actor models.Actor, rentalID uuid.UUID) (*models.Rental, error)

// transition adapts one lifecycle operation to a POST /rentals/:id/<event> route.
func (h *LibraryHandler) transition(apply transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := parseID(c, "rental")
		if !ok {
			return
		}
		actor, _ := auth.ActorFrom(c)

		rental, err := apply(c.Request.Context(), actor, rentalID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rental)
	}
}

func (h *LibraryHandler) listPendingRentals(c *gin.Context) {
	rentals, err := h.svc.ListPendingRentals(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rentals)
}

func (h *LibraryHandler) listCollectedRentals(c *gin.Context) {
	rentals, err := h.svc.ListCollectedRentals(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rentals)
}

func (h *LibraryHandler) rentalSummary(c *gin.Context) {
	summary, err := h.svc.RentalSummary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *LibraryHandler) listMyRentals(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "active must be a boolean"})
			return
		}
		activeOnly = v
	}

	rentals, err := h.svc.ListPatronRentals(c.Request.Context(), actor.ID, activeOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rentals)
}
