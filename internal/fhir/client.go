package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultDevices are the device suggestions shown under the care plan.
var DefaultDevices = []string{
	"Catéter venoso periférico",
	"Catéter venoso central",
	"Sonda vesical",
	"Sonda nasogástrica",
	"Drenaje",
	"Oxigenoterapia",
	"Ventilación mecánica",
	"Bomba de infusión",
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// ListPatients accepts a bare array, {"patients": [...]} or a FHIR Bundle.
func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/Patient", nil, &raw); err != nil {
		return nil, err
	}
	return decodePatients(raw)
}

// ListDevices returns the active device names for a patient. Anything other
// than a JSON array of strings is treated as no devices.
func (c *Client) ListDevices(ctx context.Context, patientID string) ([]string, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, errors.New("patient id is required")
	}
	var raw json.RawMessage
	path := "/Patient/" + url.PathEscape(patientID) + "/devices"
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	var devices []string
	if err := json.Unmarshal(raw, &devices); err != nil {
		c.log.Debug("device list is not a string array", zap.String("patient_id", patientID))
		return []string{}, nil
	}
	return devices, nil
}

// SaveDocument is the structured commit call.
func (c *Client) SaveDocument(ctx context.Context, doc Document) error {
	return c.do(ctx, http.MethodPost, "/documents", doc, nil)
}

// SaveDocumentPositional is the legacy commit call kept for older upstreams.
func (c *Client) SaveDocumentPositional(ctx context.Context, patientID, category, title, content string) error {
	body := map[string]string{
		"category": category,
		"title":    title,
		"content":  content,
	}
	return c.do(ctx, http.MethodPost, "/Patient/"+url.PathEscape(patientID)+"/documents", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, req any, out any) error {
	var body io.Reader
	if req != nil {
		payload, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s %s: http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func decodePatients(raw json.RawMessage) ([]Patient, error) {
	var list []Patient
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Patients []Patient `json:"patients"`
		Entry    []struct {
			Resource Patient `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return []Patient{}, nil
	}
	if wrapped.Patients != nil {
		return wrapped.Patients, nil
	}
	out := make([]Patient, 0, len(wrapped.Entry))
	for _, e := range wrapped.Entry {
		out = append(out, e.Resource)
	}
	return out, nil
}
