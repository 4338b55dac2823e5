// Package backend is the HTTP client for the service-agreement backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	userAgent       = "careportal/0.1"
	maxJSONBody     = 4 << 20  // 4MB
	maxDocumentBody = 64 << 20 // 64MB
)

// TokenSource yields the current bearer token, or "" when logged out.
type TokenSource interface {
	Token() string
}

// Client calls the backend API. It never retries; every failure is returned
// to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	newKey     func() string

	jsonLimit     int64
	documentLimit int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBodyLimits caps response sizes for JSON calls and document
// downloads. A larger response fails instead of being cut short.
func WithBodyLimits(jsonBytes, documentBytes int64) Option {
	return func(c *Client) {
		if jsonBytes > 0 {
			c.jsonLimit = jsonBytes
		}
		if documentBytes > 0 {
			c.documentLimit = documentBytes
		}
	}
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     slog.Default(),
		newKey:     uuid.NewString,

		jsonLimit:     maxJSONBody,
		documentLimit: maxDocumentBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoginResult is the token grant returned by /login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

// Login exchanges form-encoded credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	body, err := c.do(ctx, request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/login",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}

	var res LoginResult
	if err := json.Unmarshal(body, &res); err != nil || res.AccessToken == "" {
		return nil, &TransportError{Op: "login", Err: ErrMalformedResponse}
	}
	return &res, nil
}

// SignupRequest registers a new account.
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Signup registers an account and returns the backend's message, if any.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (string, error) {
	body, err := c.doJSON(ctx, "signup", http.MethodPost, "/signup", req, false)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "message").String(), nil
}

// ForgotPassword asks the backend to e-mail a reset link and returns its
// message verbatim.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	body, err := c.doJSON(ctx, "forgot password", http.MethodPost, "/forgot-password",
		map[string]string{"email": email}, false)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "message").String(), nil
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	body, err := c.doJSON(ctx, "reset password", http.MethodPost, "/reset-password",
		map[string]string{"token": token, "new_password": newPassword}, false)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "message").String(), nil
}

// wireAgreement is the subset of the backend's agreement record we project.
type wireAgreement struct {
	ID               int64   `json:"id"`
	ClientFirstName  string  `json:"clt_first_name"`
	ClientLastName   string  `json:"clt_last_name"`
	ResponsibleParty string  `json:"responsible_party"`
	CareLastName     string  `json:"care_last_name"`
	BranchCode       string  `json:"branch_code"`
	HourlyRate       float64 `json:"hourly_rate"`
	Status           string  `json:"status"`
}

func (w wireAgreement) summary() domain.AgreementSummary {
	payer := strings.TrimSpace(w.ClientFirstName + " " + w.ClientLastName)
	if payer == "" {
		payer = w.ResponsibleParty
	}
	return domain.AgreementSummary{
		ID:            w.ID,
		PayerName:     payer,
		RecipientLast: w.CareLastName,
		BranchCode:    w.BranchCode,
		HourlyRate:    w.HourlyRate,
		Status:        w.Status,
	}
}

// ListAgreements fetches every agreement visible to the session.
func (c *Client) ListAgreements(ctx context.Context) ([]domain.AgreementSummary, error) {
	body, err := c.do(ctx, request{op: "list agreements", method: http.MethodGet, path: "/agreements", auth: true})
	if err != nil {
		return nil, err
	}

	var wire []wireAgreement
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &TransportError{Op: "list agreements", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	out := make([]domain.AgreementSummary, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.summary())
	}
	return out, nil
}

// CreateAgreement submits one agreement. Each call carries a fresh
// Idempotency-Key so a backend that honours it never double-creates.
func (c *Client) CreateAgreement(ctx context.Context, sub domain.AgreementSubmission) (domain.AgreementSummary, error) {
	body, err := c.doJSON(ctx, "create agreement", http.MethodPost, "/agreements", sub, true)
	if err != nil {
		return domain.AgreementSummary{}, err
	}

	var created wireAgreement
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &created); err != nil {
			return domain.AgreementSummary{}, &TransportError{Op: "create agreement", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
		}
	}
	return created.summary(), nil
}

// FetchAgreementPDF downloads the generated document for one agreement.
func (c *Client) FetchAgreementPDF(ctx context.Context, id int64) ([]byte, error) {
	return c.do(ctx, request{
		op:      "fetch agreement pdf",
		method:  http.MethodGet,
		path:    "/agreements/" + strconv.FormatInt(id, 10) + "/pdf",
		auth:    true,
		accept:   "application/pdf",
		document: true,
	})
}

// ListBranches returns the branch lookup. The state is read from
// state_code, falling back to branch_state.
func (c *Client) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	body, err := c.do(ctx, request{op: "list branches", method: http.MethodGet, path: "/branches"})
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, &TransportError{Op: "list branches", Err: ErrMalformedResponse}
	}
	var branches []domain.Branch
	parsed.ForEach(func(_, item gjson.Result) bool {
		code := item.Get("branch_code").String()
		if code == "" {
			return true
		}
		b := domain.Branch{
			Code:      code,
			Name:      item.Get("branch_name").String(),
			StateCode: item.Get("state_code").String(),
		}
		if b.Name == "" {
			b.Name = code
		}
		if b.StateCode == "" {
			b.StateCode = item.Get("branch_state").String()
		}
		branches = append(branches, b)
		return true
	})
	return branches, nil
}

// Health probes the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, request{op: "health", method: http.MethodGet, path: "/health"})
	return err
}

type request struct {
	op          string
	method      string
	path        string
	body        []byte
	contentType string
	accept      string
	auth        bool
	headers     map[string]string
	document    bool
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any, auth bool) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}
	req := request{
		op:          op,
		method:      method,
		path:        path,
		body:        raw,
		contentType: "application/json",
		auth:        auth,
	}
	if method == http.MethodPost && auth {
		req.headers = map[string]string{"Idempotency-Key": c.newKey()}
	}
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var token string
	if r.auth {
		if c.tokens != nil {
			token = c.tokens.Token()
		}
		if token == "" {
			return nil, &APIError{StatusCode: http.StatusUnauthorized, Detail: "not logged in"}
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, bytes.NewReader(r.body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", r.op, err)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", "op", r.op, "error", err)
		return nil, &TransportError{Op: r.op, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Failed to close response body", "op", r.op, "error", closeErr)
		}
	}()

	limit := c.jsonLimit
	if r.document {
		limit = c.documentLimit
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &TransportError{Op: r.op, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > limit {
		c.logger.Warn("Backend response too large", "op", r.op, "limit", limit)
		return nil, &TransportError{Op: r.op, Err: fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)}
	}

	c.logger.Debug("Backend request complete",
		"op", r.op,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}
