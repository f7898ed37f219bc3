package axeos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"github.com/kha1n3vol3/BitaxePID/internal/lib"
	"github.com/kha1n3vol3/BitaxePID/internal/pools"
	"github.com/kha1n3vol3/BitaxePID/internal/tuner"
)

var (
	ErrDeviceRequest  = errors.New("device request failed")
	ErrDeviceStatus   = errors.New("device returned error status")
	ErrRestartTimeout = errors.New("device not responding after restart")
)

// RetryPolicy is the explicit transport retry configuration injected into
// the client: attempt budget, backoff schedule and the statuses worth
// retrying.
type RetryPolicy struct {
	MaxAttempts      int
	Backoff          time.Duration
	RetryableStatus  []int
	RequestTimeout   time.Duration
	SettleDelay      time.Duration // pause after a successful settings PATCH
	RestartDelay     time.Duration // pause before polling a restarted device
	RestartPollCount int
	RestartPollDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      5,
		Backoff:          time.Second,
		RetryableStatus:  []int{500, 502, 503, 504},
		RequestTimeout:   15 * time.Second,
		SettleDelay:      2 * time.Second,
		RestartDelay:     5 * time.Second,
		RestartPollCount: 3,
		RestartPollDelay: 2 * time.Second,
	}
}

func (p RetryPolicy) retryable(status int) bool {
	for _, s := range p.RetryableStatus {
		if s == status {
			return true
		}
	}
	return false
}

// Client is the hardware gateway for the AxeOS HTTP control plane. Requests
// are clamped to the envelope before they reach the device, mirroring what
// the firmware would do anyway.
type Client struct {
	baseURL  string
	http     *http.Client
	retry    RetryPolicy
	envelope tuner.Envelope
	log      interfaces.ILogger
}

func NewClient(address string, envelope tuner.Envelope, retry RetryPolicy, log interfaces.ILogger) *Client {
	baseURL := address
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: retry.RequestTimeout},
		retry:    retry,
		envelope: envelope,
		log:      log,
	}
}

// GetSystemInfo fetches one telemetry sample.
func (c *Client) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/system/info", nil)
	if err != nil {
		return nil, err
	}
	info := &SystemInfo{}
	if err := json.Unmarshal(body, info); err != nil {
		return nil, lib.WrapError(ErrDeviceRequest, err)
	}
	return info, nil
}

// ApplySettings pushes an operating point and returns the frequency that
// was actually applied (normalized to the envelope).
func (c *Client) ApplySettings(ctx context.Context, p tuner.OperatingPoint) (int, error) {
	p = c.envelope.Normalize(p)
	payload, _ := json.Marshal(settingsPatch{CoreVoltage: p.Voltage, Frequency: p.Frequency})

	if _, err := c.do(ctx, http.MethodPatch, "/api/system", payload); err != nil {
		return p.Frequency, err
	}
	c.log.Infof("applied settings: voltage=%dmV frequency=%dMHz", p.Voltage, p.Frequency)
	c.sleep(ctx, c.retry.SettleDelay)
	return p.Frequency, nil
}

// SetStratum configures the primary and backup endpoints on the device.
func (c *Client) SetStratum(ctx context.Context, a pools.Assignment) error {
	payload, _ := json.Marshal(stratumPatch{
		StratumURL:          a.Primary.Hostname,
		StratumPort:         a.Primary.Port,
		StratumUser:         a.Primary.User,
		FallbackStratumURL:  a.Backup.Hostname,
		FallbackStratumPort: a.Backup.Port,
		FallbackStratumUser: a.Backup.User,
	})

	if _, err := c.do(ctx, http.MethodPatch, "/api/system", payload); err != nil {
		return err
	}
	c.log.Infof("set stratum: primary=%s backup=%s", a.Primary.Addr(), a.Backup.Addr())
	return nil
}

// Restart reboots the device and polls until it answers again, bounded by
// the policy's poll budget.
func (c *Client) Restart(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/system/restart", nil); err != nil {
		return err
	}
	c.log.Info("device restart requested")
	c.sleep(ctx, c.retry.RestartDelay)

	for i := 0; i < c.retry.RestartPollCount; i++ {
		if _, err := c.GetSystemInfo(ctx); err == nil {
			return nil
		}
		c.sleep(ctx, c.retry.RestartPollDelay)
	}
	return ErrRestartTimeout
}

// Close releases idle transport connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(ctx, c.retry.Backoff)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, lib.WrapError(ErrDeviceRequest, err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return data, nil
		}

		lastErr = fmt.Errorf("%w: %s %s: %d", ErrDeviceStatus, method, path, resp.StatusCode)
		if !c.retry.retryable(resp.StatusCode) {
			return nil, lastErr
		}
	}

	return nil, lib.WrapError(ErrDeviceRequest, lastErr)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
