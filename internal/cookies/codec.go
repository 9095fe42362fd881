package cookies

import (
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"ledger-gate/pkg/logger"

	"golang.org/x/net/publicsuffix"
)

// DefaultProjectRef is used when the backend URL does not carry a project reference.
const DefaultProjectRef = "default"

// maxChunks bounds how many "<name>.<n>" fragments Get will reassemble.
const maxChunks = 10

var projectRefPattern = regexp.MustCompile(`^([a-z0-9][a-z0-9-]{0,62})\.[a-z0-9-]+\.[a-z]{2,}$`)

// ProjectRef derives the project reference from the backend URL: the first DNS
// label of a hosted project domain such as https://abcd1234.supabase.co.
// Localhost, IP addresses and unparsable URLs fall back to DefaultProjectRef.
func ProjectRef(backendURL string) string {
	u, err := url.Parse(strings.TrimSpace(backendURL))
	if err != nil {
		return DefaultProjectRef
	}
	host := strings.ToLower(u.Hostname())
	if _, err := netip.ParseAddr(host); err == nil {
		return DefaultProjectRef
	}
	m := projectRefPattern.FindStringSubmatch(host)
	if m == nil {
		return DefaultProjectRef
	}
	return m[1]
}

// Options are per-call overrides merged onto the environment defaults.
type Options struct {
	Path     string
	MaxAge   int
	Expires  time.Time
	HTTPOnly bool
	SameSite http.SameSite

	// Sensitive forces SameSite=Strict and Secure regardless of environment.
	Sensitive bool
}

// Codec names, reads and writes cookies for one deployment. Every process
// built from the same config produces the same names and domains.
type Codec struct {
	projectRef     string
	production     bool
	domainOverride string
}

func NewCodec(backendURL string, production bool, domainOverride string) *Codec {
	return &Codec{
		projectRef:     ProjectRef(backendURL),
		production:     production,
		domainOverride: strings.TrimPrefix(strings.TrimSpace(domainOverride), "."),
	}
}

func (c *Codec) ProjectRef() string { return c.projectRef }

// NameFor returns the stable cookie name for a purpose, e.g. "sb-abcd-auth-token".
func (c *Codec) NameFor(purpose string) string {
	return "sb-" + c.projectRef + "-" + purpose
}

// SessionCookieName is the cookie carrying the identity session.
func (c *Codec) SessionCookieName() string {
	return c.NameFor("auth-token")
}

// ResolveDomain computes the Domain attribute for host. Set and Remove both go
// through here so a cookie is always removed with the attributes it was set with.
func (c *Codec) ResolveDomain(host string) string {
	if c.domainOverride != "" {
		return c.domainOverride
	}
	if !c.production {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ""
	}
	if _, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return ""
	}
	parent, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return parent
}

// Get returns the decoded value of the named cookie. A missing cookie, a cookie
// split into "<name>.0".."<name>.N" chunks that cannot be reassembled, or a value
// that fails decoding are all reported as absent.
func (c *Codec) Get(r *http.Request, name string) (string, bool) {
	raw, ok := rawValue(r, name)
	if !ok {
		return "", false
	}
	res := Decode(raw)
	if !res.OK {
		logger.From(r.Context()).Warn("cookie decode failed",
			"cookie", name,
			"stage", res.Stage,
			"err", res.Err,
		)
		return "", false
	}
	return res.Value, true
}

func rawValue(r *http.Request, name string) (string, bool) {
	if ck, err := r.Cookie(name); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	var b strings.Builder
	for i := 0; i < maxChunks; i++ {
		ck, err := r.Cookie(name + "." + strconv.Itoa(i))
		if err != nil {
			break
		}
		b.WriteString(ck.Value)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

// Set writes the cookie with environment-derived defaults: Path "/",
// SameSite=Lax, Secure in production, and the resolved parent domain.
func (c *Codec) Set(w http.ResponseWriter, r *http.Request, name, value string, opts Options) {
	ck := c.base(r, name, opts)
	ck.Value = value
	ck.MaxAge = opts.MaxAge
	if !opts.Expires.IsZero() {
		ck.Expires = opts.Expires
	}
	http.SetCookie(w, ck)
}

// Remove expires the cookie immediately using the same path/domain resolution as Set.
func (c *Codec) Remove(w http.ResponseWriter, r *http.Request, name string, opts Options) {
	ck := c.base(r, name, opts)
	ck.Value = ""
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	http.SetCookie(w, ck)
}

// RemoveStale expires cookies of the same purpose whose names differ from the
// active one, e.g. left behind after the backend project changed.
func (c *Codec) RemoveStale(w http.ResponseWriter, r *http.Request, purpose string) []string {
	active := c.NameFor(purpose)
	var removed []string
	for _, ck := range r.Cookies() {
		base := ck.Name
		if i := strings.LastIndexByte(base, '.'); i > 0 {
			if _, err := strconv.Atoi(base[i+1:]); err == nil {
				base = base[:i]
			}
		}
		if base == active || !strings.HasPrefix(base, "sb-") || !strings.HasSuffix(base, "-"+purpose) {
			continue
		}
		c.Remove(w, r, ck.Name, Options{HTTPOnly: true})
		removed = append(removed, ck.Name)
	}
	sort.Strings(removed)
	return removed
}

func (c *Codec) base(r *http.Request, name string, opts Options) *http.Cookie {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	sameSite := opts.SameSite
	if sameSite == 0 || sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	secure := c.production
	if opts.Sensitive {
		sameSite = http.SameSiteStrictMode
		secure = true
	}
	return &http.Cookie{
		Name:     name,
		Path:     path,
		Domain:   c.ResolveDomain(r.Host),
		HttpOnly: opts.HTTPOnly,
		Secure:   secure,
		SameSite: sameSite,
	}
}
