package csrf

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"ledger-gate/internal/audit"
	"ledger-gate/internal/cookies"
)

const (
	CookieName = "csrf_token"
	HeaderName = "X-CSRF-Token"
	FieldName  = "csrf_token"

	tokenBytes = 32
	TokenTTL   = 2 * time.Hour

	maxBodyBytes = 1 << 20
)

// Reason is the server-side detail of a failed validation. Clients only ever
// see ErrValidationFailed.
type Reason string

const (
	ReasonMissing   Reason = "missing"
	ReasonMalformed Reason = "malformed"
	ReasonMismatch  Reason = "mismatch"
)

var ErrValidationFailed = errors.New("CSRF validation failed")

type Result struct {
	OK     bool
	Reason Reason
}

// Manager issues, rotates and validates anti-forgery tokens stored in an
// http-only cookie. One token is active per browser at a time.
type Manager struct {
	codec    *cookies.Codec
	random   io.Reader
	recorder audit.Recorder
}

type Option func(*Manager)

// WithRecorder audits rejected requests.
func WithRecorder(r audit.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithRandom replaces crypto/rand, for tests.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.random = r }
}

func NewManager(codec *cookies.Codec, opts ...Option) *Manager {
	m := &Manager{codec: codec, random: rand.Reader, recorder: audit.Nop{}}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Issue generates a fresh token and stores it in the cookie, replacing any previous one.
func (m *Manager) Issue(w http.ResponseWriter, r *http.Request) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(m.random, buf); err != nil {
		return "", fmt.Errorf("csrf: generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	m.codec.Set(w, r, CookieName, token, cookies.Options{
		HTTPOnly: true,
		MaxAge:   int(TokenTTL.Seconds()),
	})
	return token, nil
}

// GetOrCreate returns the current well-formed token or issues a new one.
func (m *Manager) GetOrCreate(w http.ResponseWriter, r *http.Request) (string, error) {
	if v, ok := m.codec.Get(r, CookieName); ok && wellFormed(v) {
		return v, nil
	}
	return m.Issue(w, r)
}

// Rotate issues a new token and exposes it in the response header so client
// code can use it for its next mutation.
func (m *Manager) Rotate(w http.ResponseWriter, r *http.Request) (string, error) {
	token, err := m.Issue(w, r)
	if err != nil {
		return "", err
	}
	w.Header().Set(HeaderName, token)
	return token, nil
}

// Clear removes the token cookie, e.g. on sign-out.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) {
	m.codec.Remove(w, r, CookieName, cookies.Options{HTTPOnly: true})
}

// Validate compares the cookie token with the one presented in the request:
// header first, then a JSON body field, then a form field. A body read to find
// the token is restored for downstream handlers.
func (m *Manager) Validate(r *http.Request) Result {
	expected, _ := m.codec.Get(r, CookieName)
	presented := presentedToken(r)

	if expected == "" || presented == "" {
		return Result{Reason: ReasonMissing}
	}
	// Lengths are compared before ConstantTimeCompare, which returns early on
	// length mismatch. Only "malformed" is learned from this branch.
	if len(expected) != len(presented) || !wellFormed(expected) {
		return Result{Reason: ReasonMalformed}
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		return Result{Reason: ReasonMismatch}
	}
	return Result{OK: true}
}

// IsSafeMethod reports whether method is read-only and exempt from CSRF checks.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func presentedToken(r *http.Request) string {
	if v := r.Header.Get(HeaderName); v != "" {
		return v
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch mediaType {
	case "application/json":
		body, ok := bufferBody(r)
		if !ok {
			return ""
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return ""
		}
		s, _ := payload[FieldName].(string)
		return s
	case "application/x-www-form-urlencoded", "multipart/form-data":
		body, ok := bufferBody(r)
		if !ok {
			return ""
		}
		clone := r.Clone(r.Context())
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.Form, clone.PostForm, clone.MultipartForm = nil, nil, nil
		if mediaType == "multipart/form-data" {
			if err := clone.ParseMultipartForm(maxBodyBytes); err != nil {
				return ""
			}
		} else if err := clone.ParseForm(); err != nil {
			return ""
		}
		return clone.PostFormValue(FieldName)
	default:
		return ""
	}
}

// bufferBody reads the body and puts an identical reader back on r.
func bufferBody(r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) > maxBodyBytes {
		return nil, false
	}
	return body, true
}

func wellFormed(v string) bool {
	if len(v) != hex.EncodedLen(tokenBytes) {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
