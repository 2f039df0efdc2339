package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/Malik434/TaskWiser-V2-sub000/chain"
	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
)

// ArbitrationService calls an external model endpoint for an advisory
// dispute recommendation. The recommendation never settles funds; an
// admin reviews it and resolves the dispute themselves.
type ArbitrationService struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewArbitrationService creates an arbitration service from the
// environment. ARBITER_API_URL selects the endpoint; when unset the
// service still works but always falls back to manual review.
func NewArbitrationService() *ArbitrationService {
	return &ArbitrationService{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: os.Getenv("ARBITER_API_URL"),
		apiKey:   os.Getenv("ARBITER_API_KEY"),
	}
}

type arbiterRequest struct {
	TaskTitle         string `json:"task_title"`
	TaskDescription   string `json:"task_description"`
	SubmissionContent string `json:"submission_content"`
	DisputeReason     string `json:"dispute_reason"`
}

type arbiterResponse struct {
	Analysis       string `json:"analysis"`
	Recommendation string `json:"recommendation"`
	Confidence     int    `json:"confidence"`
}

// AnalyzeDispute asks the model endpoint for a recommendation. Any
// failure degrades to a manual-review answer instead of an error so a
// flaky upstream never blocks dispute handling.
func (s *ArbitrationService) AnalyzeDispute(ctx context.Context, dc escrow.DisputeContext) (*escrow.DisputeAnalysis, error) {
	if s.endpoint == "" {
		log.Printf("Arbiter endpoint not configured, falling back to manual review")
		return manualReviewAnalysis("no analysis endpoint configured"), nil
	}

	payload, err := json.Marshal(arbiterRequest{
		TaskTitle:         dc.TaskTitle,
		TaskDescription:   dc.TaskDescription,
		SubmissionContent: dc.SubmissionContent,
		DisputeReason:     dc.DisputeReason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode dispute context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build arbiter request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("Arbiter request failed: %v", err)
		return manualReviewAnalysis("analysis service unreachable"), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Arbiter response read failed: %v", err)
		return manualReviewAnalysis("analysis service unreachable"), nil
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("Arbiter returned status %d: %s", resp.StatusCode, body)
		return manualReviewAnalysis(fmt.Sprintf("analysis service returned status %d", resp.StatusCode)), nil
	}

	var out arbiterResponse
	if err := json.Unmarshal(body, &out); err != nil {
		log.Printf("Arbiter returned malformed response: %v", err)
		return manualReviewAnalysis("analysis service returned a malformed response"), nil
	}

	winner, ok := parseRecommendation(out.Recommendation)
	if !ok {
		log.Printf("Arbiter returned unknown recommendation %q", out.Recommendation)
		return manualReviewAnalysis("analysis service returned an unknown recommendation"), nil
	}

	confidence := out.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return &escrow.DisputeAnalysis{
		Analysis:       out.Analysis,
		Recommendation: winner,
		Confidence:     confidence,
	}, nil
}

func parseRecommendation(raw string) (escrow.DisputeWinner, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "assignee", "contributor":
		return escrow.WinnerAssignee, true
	case "owner", "creator":
		return escrow.WinnerOwner, true
	case "manual_review":
		return escrow.WinnerManualReview, true
	}
	return "", false
}

// manualReviewAnalysis is the degraded answer when automated analysis
// is unavailable. Confidence 0 signals the admin to review evidence
// directly.
func manualReviewAnalysis(reason string) *escrow.DisputeAnalysis {
	return &escrow.DisputeAnalysis{
		Analysis:       "Automated analysis unavailable (" + reason + "). Review the submitted evidence manually before resolving.",
		Recommendation: escrow.WinnerManualReview,
		Confidence:     0,
	}
}

// ReceiptService renders payment receipts as QR codes pointing at the
// block explorer entry for a settlement transaction.
type ReceiptService struct {
	network *chain.NetworkConfig
}

// NewReceiptService creates a new receipt service
func NewReceiptService(network *chain.NetworkConfig) *ReceiptService {
	return &ReceiptService{network: network}
}

// TransactionQRCode generates a PNG QR code linking to the explorer
// page of a transaction
func (s *ReceiptService) TransactionQRCode(txHash string) ([]byte, error) {
	if txHash == "" {
		return nil, fmt.Errorf("transaction hash is required")
	}
	url := s.network.TxExplorerURL(txHash)

	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// PaymentQRCode generates a PNG QR code for a direct token payment
// request: recipient address plus a human-readable amount.
func (s *ReceiptService) PaymentQRCode(address string, amount float64, token string) ([]byte, error) {
	if !chain.IsAddress(address) {
		return nil, fmt.Errorf("invalid recipient address: %s", address)
	}

	qr, err := qrcode.New(fmt.Sprintf("%s?amount=%g&token=%s", address, amount, token), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// HealthService handles health check business logic
type HealthService struct {
	network *chain.NetworkConfig
}

// NewHealthService creates a new health service
func NewHealthService(network *chain.NetworkConfig) *HealthService {
	return &HealthService{network: network}
}

// HealthStatus is the health endpoint payload
type HealthStatus struct {
	Status    string `json:"status"`
	Network   string `json:"network"`
	ChainID   string `json:"chain_id"`
	Timestamp int64  `json:"timestamp"`
}

// GetHealthStatus returns current health status
func (s *HealthService) GetHealthStatus() *HealthStatus {
	return &HealthStatus{
		Status:    "healthy",
		Network:   s.network.Name,
		ChainID:   s.network.ChainID,
		Timestamp: time.Now().Unix(),
	}
}
