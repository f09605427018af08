package media

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler exposes the media store over HTTP.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates an upload handler over the given store.
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes mounts the upload routes on g. Write operations and the
// listing run behind requireAdmin; single-file metadata is public.
func (h *Handler) RegisterRoutes(g *echo.Group, requireAdmin echo.MiddlewareFunc) {
	g.POST("/single", h.UploadSingle, requireAdmin)
	g.POST("/multiple", h.UploadMultiple, requireAdmin)
	g.GET("", h.List, requireAdmin)
	g.GET("/:filename", h.Get)
	g.DELETE("/:filename", h.Delete, requireAdmin)
}

// UploadSingle accepts one multipart file under the "photo" field.
func (h *Handler) UploadSingle(c echo.Context) error {
	fh, err := c.FormFile("photo")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No file uploaded"})
	}
	info, err := h.storeHeader(fh)
	if err != nil {
		return h.uploadError(c, err)
	}
	info.URL = publicURL(c, info.Filename)
	return c.JSON(http.StatusOK, info)
}

// UploadMultiple accepts up to MaxBatchSize files under "photos". The whole
// batch is validated before anything is written; an invalid batch persists
// zero files.
func (h *Handler) UploadMultiple(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No files uploaded"})
	}
	files := form.File["photos"]
	if len(files) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No files uploaded"})
	}
	if len(files) > MaxBatchSize {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Too many files"})
	}
	for _, fh := range files {
		if err := h.store.Validate(fh.Header.Get("Content-Type"), fh.Size); err != nil {
			return h.uploadError(c, err)
		}
	}

	infos := make([]FileInfo, 0, len(files))
	for _, fh := range files {
		info, err := h.storeHeader(fh)
		if err != nil {
			// Roll back files already written so a failed batch leaves
			// nothing behind.
			for _, stored := range infos {
				if derr := h.store.Delete(stored.Filename); derr != nil && !errors.Is(derr, ErrNotFound) {
					h.logger.Warn("batch rollback failed",
						zap.String("filename", stored.Filename), zap.Error(derr))
				}
			}
			return h.uploadError(c, err)
		}
		info.URL = publicURL(c, info.Filename)
		infos = append(infos, info)
	}
	return c.JSON(http.StatusOK, infos)
}

// Get returns metadata for one stored file.
func (h *Handler) Get(c echo.Context) error {
	info, err := h.store.Get(c.Param("filename"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "File not found"})
		}
		return err
	}
	info.URL = publicURL(c, info.Filename)
	return c.JSON(http.StatusOK, info)
}

// List returns metadata for all stored files.
func (h *Handler) List(c echo.Context) error {
	infos, err := h.store.List()
	if err != nil {
		return err
	}
	for i := range infos {
		infos[i].URL = publicURL(c, infos[i].Filename)
	}
	return c.JSON(http.StatusOK, infos)
}

// Delete removes a stored file.
func (h *Handler) Delete(c echo.Context) error {
	if err := h.store.Delete(c.Param("filename")); err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "File not found"})
		}
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "File deleted successfully"})
}

func (h *Handler) storeHeader(fh *multipart.FileHeader) (FileInfo, error) {
	src, err := fh.Open()
	if err != nil {
		return FileInfo{}, err
	}
	defer src.Close()
	return h.store.StoreOne(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, src)
}

func (h *Handler) uploadError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrTooLarge):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "File too large"})
	case errors.Is(err, ErrTooManyFiles):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Too many files"})
	case errors.Is(err, ErrInvalidFileType):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "File type not allowed",
			"message": err.Error(),
		})
	default:
		return err
	}
}

// publicURL derives the absolute URL a browser can fetch the file from,
// honoring forwarded proto/host headers set by a fronting proxy.
func publicURL(c echo.Context, filename string) string {
	host := c.Request().Header.Get("X-Forwarded-Host")
	if host == "" {
		host = c.Request().Host
	}
	return c.Scheme() + "://" + host + "/uploads/" + filename
}
