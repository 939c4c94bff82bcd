package image

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"quizrally/internal/config"
	"quizrally/internal/models"
)

var ErrUnavailable = errors.New("image generation server unavailable")

var stylePrompts = map[string]string{
	"vibrant":   "vibrant colors, digital art, cinematic lighting, 8k resolution, highly detailed",
	"neon":      "neon glow, dark background, glowing lines, futuristic, cyberpunk style",
	"realistic": "photorealistic, sharp focus, 8k, professional photography",
}

const negativePrompt = "text, watermark, logo, low quality, blurry, distorted, ugly"

// Engine proxies image generation to a local Stable Diffusion server.
type Engine struct {
	cfg    *config.Config
	apiURL string
	client *http.Client
	probe  *http.Client
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		cfg:    cfg,
		apiURL: cfg.SDAPIURL,
		// generation regularly takes minutes on consumer hardware
		client: &http.Client{Timeout: 120 * time.Second},
		probe:  &http.Client{Timeout: 2 * time.Second},
	}
}

// Available reports whether the server is up with a model loaded.
func (e *Engine) Available() bool {
	resp, err := e.probe.Get(e.apiURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var status struct {
		ModelLoaded bool `json:"model_loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.ModelLoaded
}

// Generate returns a base64-encoded PNG for the prompt, or an error when the
// server fails or returns something oversized or malformed.
func (e *Engine) Generate(prompt, style string) (string, error) {
	suffix, ok := stylePrompts[style]
	if !ok {
		suffix = stylePrompts["vibrant"]
	}
	payload := map[string]any{
		"prompt":              prompt + ", " + suffix,
		"negative_prompt":     negativePrompt,
		"num_inference_steps": 20,
		"width":               768,
		"height":              432,
		"guidance_scale":      7.5,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Post(e.apiURL+"/generate", "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("calling image server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image server returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var result struct {
		ImageB64 string `json:"image_base64"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding image response: %w", err)
	}
	if result.ImageB64 == "" {
		return "", errors.New("image response missing image data")
	}
	if len(result.ImageB64) > e.cfg.MaxImageSizeBytes {
		return "", fmt.Errorf("image too large (%d bytes)", len(result.ImageB64))
	}
	if _, err := base64.StdEncoding.DecodeString(result.ImageB64); err != nil {
		return "", fmt.Errorf("invalid base64 in image response: %w", err)
	}
	return result.ImageB64, nil
}

// GenerateForQuiz produces an image for every question carrying an image
// prompt, mapping question id to base64 PNG. Per-question failures are
// logged and skipped.
func (e *Engine) GenerateForQuiz(questions []models.Question) map[int]string {
	images := make(map[int]string)
	if !e.Available() {
		log.Printf("Image server not available, skipping quiz images")
		return images
	}
	for _, q := range questions {
		if q.ImagePrompt == "" {
			continue
		}
		img, err := e.Generate(q.ImagePrompt, "vibrant")
		if err != nil {
			log.Printf("Image generation failed for question %d: %v", q.ID, err)
			continue
		}
		images[q.ID] = img
	}
	return images
}
