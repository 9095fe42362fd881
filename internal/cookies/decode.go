package cookies

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Base64Prefix marks a cookie value holding base64url-encoded JSON.
const Base64Prefix = "base64-"

type Encoding int

const (
	EncodingPlain Encoding = iota
	EncodingURI
	EncodingBase64
)

var (
	ErrBadEscape = errors.New("cookies: invalid percent-encoding")
	ErrBadBase64 = errors.New("cookies: invalid base64 payload")
	ErrBadJSON   = errors.New("cookies: payload is not valid JSON")
)

// Result is the tagged outcome of Decode: either Decoded (OK) with a Value,
// or Failed with the Stage that rejected the input and why.
type Result struct {
	Value string
	OK    bool
	Stage string
	Err   error
}

func decoded(v string) Result { return Result{Value: v, OK: true} }

func failed(stage string, err error) Result { return Result{Stage: stage, Err: err} }

type decodeState struct {
	value      string
	fromBase64 bool
}

// stage is one (predicate, decoder) step of the pipeline.
type stage struct {
	name    string
	applies func(decodeState) bool
	decode  func(decodeState) (decodeState, error)
}

// pipeline order is fixed: URI-decode, prefix check + base64, JSON check.
var pipeline = []stage{
	{
		name:    "uri",
		applies: func(s decodeState) bool { return strings.Contains(s.value, "%") },
		decode: func(s decodeState) (decodeState, error) {
			v, err := url.PathUnescape(s.value)
			if err != nil {
				return s, fmt.Errorf("%w: %v", ErrBadEscape, err)
			}
			return decodeState{value: v}, nil
		},
	},
	{
		name:    "base64",
		applies: func(s decodeState) bool { return strings.HasPrefix(s.value, Base64Prefix) },
		decode: func(s decodeState) (decodeState, error) {
			raw, err := decodeBase64(strings.TrimPrefix(s.value, Base64Prefix))
			if err != nil {
				return s, err
			}
			return decodeState{value: string(raw), fromBase64: true}, nil
		},
	},
	{
		name:    "json",
		applies: func(s decodeState) bool { return s.fromBase64 },
		decode: func(s decodeState) (decodeState, error) {
			if !json.Valid([]byte(s.value)) {
				return s, ErrBadJSON
			}
			return s, nil
		},
	},
}

// Decode runs raw through the pipeline. It never panics; any stage failure
// yields a Failed result and callers treat the cookie as absent.
func Decode(raw string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = failed("panic", fmt.Errorf("cookies: decode panic: %v", p))
		}
	}()

	s := decodeState{value: raw}
	for _, st := range pipeline {
		if !st.applies(s) {
			continue
		}
		next, err := st.decode(s)
		if err != nil {
			return failed(st.name, err)
		}
		s = next
	}
	return decoded(s.value)
}

// Encode is the inverse of Decode for the given encoding. EncodingBase64 is
// meant for JSON payloads; Decode rejects base64 content that is not JSON.
func Encode(value string, enc Encoding) string {
	switch enc {
	case EncodingURI:
		return url.PathEscape(value)
	case EncodingBase64:
		return Base64Prefix + base64.RawURLEncoding.EncodeToString([]byte(value))
	default:
		return value
	}
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, ErrBadBase64
}
