package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"rollcall/internal/intake"
)

// Client calls the face detection/embedding microservice (YuNet + SFace).
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client with a configurable timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type detectResponse struct {
	Faces []struct {
		Box       [4]int    `json:"box"`
		Score     float64   `json:"score"`
		Embedding []float32 `json:"embedding"`
	} `json:"faces"`
}

// Extract posts the frame as multipart "image" to /detect.
func (c *Client) Extract(ctx context.Context, frame intake.Frame) ([]Face, error) {
	data, contentType, err := frameBytes(frame)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="frame`+frame.Extension()+`"`)
	h.Set("Content-Type", contentType)
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(body))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode face service response: %w", err)
	}
	faces := make([]Face, 0, len(out.Faces))
	for _, f := range out.Faces {
		faces = append(faces, Face{
			Box:       image.Rect(f.Box[0], f.Box[1], f.Box[0]+f.Box[2], f.Box[1]+f.Box[3]),
			Score:     f.Score,
			Embedding: f.Embedding,
		})
	}
	return faces, nil
}

// Health checks if the face service is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

func frameBytes(frame intake.Frame) ([]byte, string, error) {
	if len(frame.Raw) > 0 {
		return frame.Raw, frame.ContentType, nil
	}
	if frame.Image == nil {
		return nil, "", intake.ErrInvalidImage
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}
