package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/intake"
)

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

// readFile reads a multipart file field in full.
func readFile(c *gin.Context, field string) ([]byte, *multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %q file field required", errBadRequest, field)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, fh, nil
}

// readFrame accepts a multipart "image" file or a JSON body {"image": "<base64>"}.
func readFrame(c *gin.Context) (intake.Frame, error) {
	if isMultipart(c) {
		data, _, err := readFile(c, "image")
		if err != nil {
			return intake.Frame{}, err
		}
		return intake.Decode(data)
	}
	var body struct {
		Image string `json:"image" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return intake.Frame{}, err
		}
		return intake.Frame{}, fmt.Errorf("%w: provide a multipart \"image\" file or {\"image\": \"<base64>\"}", errBadRequest)
	}
	return decodeImage(body.Image)
}

func decodeImage(b64 string) (intake.Frame, error) {
	if b64 == "" {
		return intake.Frame{}, fmt.Errorf("%w: image is required", errBadRequest)
	}
	return intake.DecodeBase64(b64)
}
