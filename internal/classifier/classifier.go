// Package classifier is the narrow HTTP adapter to the third-party image
// classification service (spec §6): a Google Vision label-detection
// request per dropped image, with the verdict reduced to a single bool
// via a keyword list.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const visionURL = "https://vision.googleapis.com/v1/images:annotate"

// EnvAPIKey is the environment variable the spec requires to be set;
// its absence is a startup error for the camera coordinator.
const EnvAPIKey = "GOOGLE_API_KEY"

// Classifier calls the Google Vision label-detection endpoint and reduces
// its response to a boolean incident verdict using a keyword list.
type Classifier struct {
	BaseURL  string
	APIKey   string
	Keywords []string

	HTTP *http.Client
}

// New builds a Classifier. apiKey must be non-empty; keywords is the
// incident-keywords list from spec §6 (case-insensitive substring match
// against returned label descriptions).
func New(apiKey string, keywords []string) (*Classifier, error) {
	if apiKey == "" {
		return nil, &ClassifierError{Reason: "GOOGLE_API_KEY not set"}
	}
	normalized := make([]string, len(keywords))
	for i, kw := range keywords {
		normalized[i] = strings.ToLower(kw)
	}
	return &Classifier{
		BaseURL:  visionURL,
		APIKey:   apiKey,
		Keywords: normalized,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// NewFromEnv reads GOOGLE_API_KEY from the environment, per spec §6's
// "absence is a startup error of the camera coordinator".
func NewFromEnv(keywords []string) (*Classifier, error) {
	return New(os.Getenv(EnvAPIKey), keywords)
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionRequestEntry struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionRequest struct {
	Requests []visionRequestEntry `json:"requests"`
}

type entityAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type annotateImageResponse struct {
	LabelAnnotations []entityAnnotation `json:"labelAnnotations"`
}

type visionResponse struct {
	Responses []annotateImageResponse `json:"responses"`
}

// Classify reads imagePath, sends it to the Vision API for label
// detection, and reports whether any returned label matches an
// incident keyword. A classifier failure is reported as a
// *ClassifierError and the caller should treat it as non-incident per
// spec §9 (ClassifierError is explicitly "do not crash").
func (c *Classifier) Classify(ctx context.Context, imagePath string) (bool, error) {
	correlationID := uuid.NewString()

	content, err := os.ReadFile(imagePath)
	if err != nil {
		return false, &ClassifierError{Reason: "reading image", Path: imagePath, CorrelationID: correlationID, Err: err}
	}

	reqBody := visionRequest{Requests: []visionRequestEntry{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(content)},
		Features: []visionFeature{{Type: "LABEL_DETECTION"}},
	}}}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return false, &ClassifierError{Reason: "encoding request", Path: imagePath, CorrelationID: correlationID, Err: err}
	}

	url := fmt.Sprintf("%s?key=%s", c.BaseURL, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, &ClassifierError{Reason: "building request", Path: imagePath, CorrelationID: correlationID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, &ClassifierError{Reason: "calling vision API", Path: imagePath, CorrelationID: correlationID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &ClassifierError{Reason: fmt.Sprintf("vision API status %d", resp.StatusCode), Path: imagePath, CorrelationID: correlationID}
	}

	var parsed visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, &ClassifierError{Reason: "decoding response", Path: imagePath, CorrelationID: correlationID, Err: err}
	}

	labels := 0
	for _, annotation := range parsed.Responses {
		labels += len(annotation.LabelAnnotations)
	}
	if labels == 0 {
		return false, &ClassifierError{Reason: "no labels returned", Path: imagePath, CorrelationID: correlationID}
	}
	return c.matchesIncident(parsed), nil
}

func (c *Classifier) matchesIncident(resp visionResponse) bool {
	for _, annotation := range resp.Responses {
		for _, label := range annotation.LabelAnnotations {
			lower := strings.ToLower(label.Description)
			for _, kw := range c.Keywords {
				if strings.Contains(lower, kw) {
					return true
				}
			}
		}
	}
	return false
}

// LoadKeywords reads a newline-delimited incident-keywords file, skipping
// blank lines.
func LoadKeywords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keywords []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		keywords = append(keywords, line)
	}
	return keywords, nil
}
