package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"anymusic/internal/tools"
)

const maxJSONRequest = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return false
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONRequest)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func handleQRCode(w http.ResponseWriter, r *http.Request) {
	var req tools.QRCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	img, err := placeholderPNG(req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tools.QRCodeResponse{
		Success: true,
		Image:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
	})
}

func handleQRCodeDownload(w http.ResponseWriter, r *http.Request) {
	var req tools.QRCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	img, err := placeholderPNG(req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "qrcode.png"}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// placeholderPNG draws a 21x21 module grid from the content hash. It looks
// like a QR code but does not scan.
func placeholderPNG(content string) ([]byte, error) {
	const modules, scale = 21, 4
	sum := sha256.Sum256([]byte(content))
	img := image.NewGray(image.Rect(0, 0, modules*scale, modules*scale))
	for y := 0; y < modules; y++ {
		for x := 0; x < modules; x++ {
			bit := (y*modules + x) % (len(sum) * 8)
			c := color.Gray{Y: 255}
			if sum[bit/8]>>(bit%8)&1 == 1 {
				c.Y = 0
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetGray(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// handleShorten answers with a stable fake alias instead of calling out.
func handleShorten(w http.ResponseWriter, r *http.Request) {
	var req tools.ShortenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "Please enter a URL")
		return
	}
	writeJSON(w, http.StatusOK, tools.ShortenResponse{
		Success:  true,
		Original: req.URL,
		Short:    fmt.Sprintf("https://tinyurl.com/%08x", crc32.ChecksumIEEE([]byte(req.URL))),
	})
}

func handleMaskText(w http.ResponseWriter, r *http.Request) {
	var req tools.MaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	masked, items := tools.Mask(req.Text, req.Patterns, req.MaskChar)
	writeJSON(w, http.StatusOK, tools.MaskResponse{
		Success:  true,
		Original: req.Text,
		Masked:   masked,
		Items:    items,
	})
}

func nobgName(upload string) string {
	base := path.Base(upload)
	return "nobg_" + strings.TrimSuffix(base, path.Ext(base)) + ".png"
}
