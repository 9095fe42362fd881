package cookies

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRef(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://abcd1234.supabase.co", "abcd1234"},
		{"https://ABCD1234.supabase.co/", "abcd1234"},
		{"http://localhost:54321", DefaultProjectRef},
		{"http://127.0.0.1:54321", DefaultProjectRef},
		{"https://api.internal.example.co.uk", DefaultProjectRef},
		{"::not a url", DefaultProjectRef},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectRef(tt.url))
		})
	}
}

func TestCodec_NamesAreStableAcrossInstances(t *testing.T) {
	a := NewCodec("https://abcd1234.supabase.co", true, "")
	b := NewCodec("https://abcd1234.supabase.co", false, "")

	assert.Equal(t, "sb-abcd1234-auth-token", a.SessionCookieName())
	assert.Equal(t, a.SessionCookieName(), b.SessionCookieName())
}

func TestDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
		enc   Encoding
	}{
		{"plain", "abc123", EncodingPlain},
		{"uri reserved", "a b;c,d=e&f/g%h", EncodingURI},
		{"uri unicode", "zürich €", EncodingURI},
		{"base64 json", `{"access_token":"tok","user":{"id":"u-1"}}`, EncodingBase64},
		{"base64 json array", `["a","b"]`, EncodingBase64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decode(Encode(tt.value, tt.enc))
			require.True(t, res.OK, "stage=%s err=%v", res.Stage, res.Err)
			assert.Equal(t, tt.value, res.Value)
		})
	}
}

func TestDecode_URIEncodedStdBase64(t *testing.T) {
	payload := `{"id":"u-1","note":"a>b?"}`
	raw := Base64Prefix + base64.StdEncoding.EncodeToString([]byte(payload))

	res := Decode(url.QueryEscape(raw))
	require.True(t, res.OK, "stage=%s err=%v", res.Stage, res.Err)
	assert.Equal(t, payload, res.Value)
}

func TestDecode_CorruptedValuesFail(t *testing.T) {
	valid := Encode(`{"access_token":"tok"}`, EncodingBase64)

	tests := []struct {
		name  string
		raw   string
		stage string
	}{
		{"bad escape", "abc%zz", "uri"},
		{"bad base64", Base64Prefix + "!!!***", "base64"},
		{"truncated json", valid[:len(valid)-6], "json"},
		{"base64 non json", Encode("plain text", EncodingBase64), "json"},
		{"empty payload", Base64Prefix, "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res Result
			require.NotPanics(t, func() { res = Decode(tt.raw) })
			assert.False(t, res.OK)
			assert.Equal(t, tt.stage, res.Stage)
			assert.Error(t, res.Err)
		})
	}
}

func TestCodec_GetTreatsCorruptAsAbsent(t *testing.T) {
	c := NewCodec("https://abcd1234.supabase.co", false, "")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: c.SessionCookieName(), Value: Base64Prefix + "eyJhY2Nlc3Nf"})

	v, ok := c.Get(r, c.SessionCookieName())
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestCodec_GetReassemblesChunks(t *testing.T) {
	c := NewCodec("https://abcd1234.supabase.co", false, "")
	enc := Encode(`{"access_token":"a-rather-long-token"}`, EncodingBase64)
	name := c.SessionCookieName()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: name + ".0", Value: enc[:10]})
	r.AddCookie(&http.Cookie{Name: name + ".1", Value: enc[10:]})

	v, ok := c.Get(r, name)
	require.True(t, ok)
	assert.Equal(t, `{"access_token":"a-rather-long-token"}`, v)
}

func TestCodec_ResolveDomain(t *testing.T) {
	prod := NewCodec("https://abcd1234.supabase.co", true, "")
	dev := NewCodec("https://abcd1234.supabase.co", false, "")
	override := NewCodec("https://abcd1234.supabase.co", false, ".books.example")

	assert.Equal(t, "example.com", prod.ResolveDomain("app.example.com"))
	assert.Equal(t, "example.co.uk", prod.ResolveDomain("app.example.co.uk:443"))
	assert.Equal(t, "", prod.ResolveDomain("localhost:3000"))
	assert.Equal(t, "", prod.ResolveDomain("10.0.0.5"))
	assert.Equal(t, "", dev.ResolveDomain("app.example.com"))
	assert.Equal(t, "books.example", override.ResolveDomain("anything"))
}

func TestCodec_SetDefaultsAndSensitiveOverride(t *testing.T) {
	c := NewCodec("https://abcd1234.supabase.co", false, "")
	r := httptest.NewRequest(http.MethodGet, "http://localhost/", nil)

	w := httptest.NewRecorder()
	c.Set(w, r, "plain", "v", Options{HTTPOnly: true, MaxAge: 60})
	c.Set(w, r, "strict", "v", Options{Sensitive: true})

	cks := w.Result().Cookies()
	require.Len(t, cks, 2)

	assert.Equal(t, "/", cks[0].Path)
	assert.Equal(t, http.SameSiteLaxMode, cks[0].SameSite)
	assert.False(t, cks[0].Secure)
	assert.True(t, cks[0].HttpOnly)
	assert.Equal(t, 60, cks[0].MaxAge)
	assert.Empty(t, cks[0].Domain)

	assert.Equal(t, http.SameSiteStrictMode, cks[1].SameSite)
	assert.True(t, cks[1].Secure)
}

func TestCodec_RemoveMatchesSetAttributes(t *testing.T) {
	c := NewCodec("https://abcd1234.supabase.co", true, "")
	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)

	set := httptest.NewRecorder()
	c.Set(set, r, "x", "v", Options{HTTPOnly: true})
	del := httptest.NewRecorder()
	c.Remove(del, r, "x", Options{HTTPOnly: true})

	s := set.Result().Cookies()[0]
	d := del.Result().Cookies()[0]
	assert.Equal(t, s.Domain, d.Domain)
	assert.Equal(t, s.Path, d.Path)
	assert.Equal(t, "example.com", d.Domain)
	assert.Equal(t, -1, d.MaxAge)
	assert.Empty(t, d.Value)
}

func TestCodec_RemoveStale(t *testing.T) {
	c := NewCodec("https://abcd1234.supabase.co", false, "")
	r := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
	r.AddCookie(&http.Cookie{Name: "sb-abcd1234-auth-token", Value: "keep"})
	r.AddCookie(&http.Cookie{Name: "sb-oldref-auth-token", Value: "stale"})
	r.AddCookie(&http.Cookie{Name: "sb-oldref-auth-token.0", Value: "stale"})
	r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "unrelated"})

	w := httptest.NewRecorder()
	removed := c.RemoveStale(w, r, "auth-token")

	assert.Equal(t, []string{"sb-oldref-auth-token", "sb-oldref-auth-token.0"}, removed)
	for _, ck := range w.Result().Cookies() {
		assert.Equal(t, -1, ck.MaxAge)
		assert.NotEqual(t, "sb-abcd1234-auth-token", ck.Name)
	}
}
