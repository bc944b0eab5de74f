package pubdocs

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/eringen/pubdocs/content"
)

const (
	maxImageWidth = 800
	jpegQuality   = 80
	maxUploadSize = 10 << 20
)

// processImage decodes src, scales it down to maxImageWidth when wider and
// re-encodes it as JPEG.
func processImage(src io.Reader) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if w, h := bounds.Dx(), bounds.Dy(); w > maxImageWidth {
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, h*maxImageWidth/w))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// uniqueFilename slugs the upload's base name and appends a counter until
// it does not collide with a file already in dir.
func uniqueFilename(dir, original string) string {
	base := content.Slugify(strings.TrimSuffix(original, filepath.Ext(original)))
	if base == "" {
		base = "image"
	}
	candidate := base + ".jpg"
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, n)
	}
}

// handleAPIImageUpload stores a hero image and answers with its public URL.
func (a *App) handleAPIImageUpload(c echo.Context) error {
	ip := c.RealIP()
	if !a.authLimiter.Check(ip) {
		return c.JSON(http.StatusTooManyRequests, apiMessage{Message: tooManyAttempts})
	}
	token := requestToken(c, c.FormValue("idToken"))
	if _, ok := a.auth.Verify(c.Request().Context(), token); !ok {
		a.authLimiter.Record(ip)
		return c.JSON(http.StatusUnauthorized, apiMessage{Message: "Unauthorized"})
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiMessage{Message: "No image file provided"})
	}
	if file.Size > maxUploadSize {
		return c.JSON(http.StatusBadRequest, apiMessage{Message: "File too large (max 10MB)"})
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := processImage(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiMessage{Message: "Invalid image"})
	}

	dir := a.Config.UploadsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	name := uniqueFilename(dir, file.Filename)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	a.Logger.Info("image uploaded", zap.String("file", name), zap.Int("bytes", len(data)))
	return c.JSON(http.StatusCreated, imageResponse{URL: "/uploads/" + name})
}
