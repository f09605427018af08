package blog

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nordmedica/siteapi/media"
)

// Handler exposes the blog store over HTTP: public reads, admin writes.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates a blog handler over the given store.
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts the blog routes on g. The caller mounts g behind a
// public-read/admin-write gate; the handlers themselves do no auth.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/search/:query", h.Search)
	g.GET("/:id", h.Get)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// postRequest is the JSON body for create and update. Pointer fields
// distinguish absent from empty so the merge policy can tell them apart.
type postRequest struct {
	Title    *string          `json:"title"`
	Subtitle *string          `json:"subtitle"`
	Body     *string          `json:"body"`
	Date     *string          `json:"date"`
	Author   *string          `json:"author"`
	Photos   []media.FileInfo `json:"photos"`
}

// List returns all posts, newest first.
func (h *Handler) List(c echo.Context) error {
	posts, err := h.store.List()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

// Get returns one post by id.
func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
	}
	post, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
		}
		return err
	}
	return c.JSON(http.StatusOK, post)
}

// Create adds a new post.
func (h *Handler) Create(c echo.Context) error {
	var req postRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	post, err := h.store.Create(Draft{
		Title:    deref(req.Title),
		Subtitle: deref(req.Subtitle),
		Body:     deref(req.Body),
		Date:     deref(req.Date),
		Author:   deref(req.Author),
		Photos:   req.Photos,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Title and body are required"})
		}
		return err
	}
	return c.JSON(http.StatusCreated, post)
}

// Update applies a partial update to an existing post.
func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
	}
	var req postRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	post, err := h.store.Update(id, Patch{
		Title:     req.Title,
		Subtitle:  req.Subtitle,
		Body:      req.Body,
		Date:      req.Date,
		Author:    req.Author,
		Photos:    req.Photos,
		HasPhotos: req.Photos != nil,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
		}
		return err
	}
	return c.JSON(http.StatusOK, post)
}

// Delete removes a post and cascades deletion of its photos.
func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
	}
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Post not found"})
		}
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Post deleted successfully"})
}

// Search returns posts matching the query.
func (h *Handler) Search(c echo.Context) error {
	query := c.Param("query")
	if unescaped, err := url.PathUnescape(query); err == nil {
		query = unescaped
	}
	posts, err := h.store.Search(query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
