package cookies

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cookie is one stored cookie with the attributes the Netscape cookie file
// format persists.
type Cookie struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	HTTPOnly          bool
	Expires           int64 // unix seconds, 0 = session cookie
	Name              string
	Value             string
}

// Jar stores cookies for one file runner. It is owned by exactly one job and
// never shared, so it needs no locking.
type Jar struct {
	cookies []Cookie
}

func NewJar() *Jar {
	return &Jar{}
}

// All returns the stored cookies, ordered by domain then name.
func (j *Jar) All() []Cookie {
	out := make([]Cookie, len(j.cookies))
	copy(out, j.cookies)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Domain != out[b].Domain {
			return out[a].Domain < out[b].Domain
		}
		return out[a].Name < out[b].Name
	})
	return out
}

func (j *Jar) Len() int { return len(j.cookies) }

// Set stores a cookie, replacing any existing cookie with the same
// (domain, path, name) key.
func (j *Jar) Set(c Cookie) {
	if c.Path == "" {
		c.Path = "/"
	}
	for i, existing := range j.cookies {
		if existing.Domain == c.Domain && existing.Path == c.Path && existing.Name == c.Name {
			j.cookies[i] = c
			return
		}
	}
	j.cookies = append(j.cookies, c)
}

// Clear drops every stored cookie.
func (j *Jar) Clear() {
	j.cookies = nil
}

// UpdateFromResponse stores the cookies of one response against the request
// URL. Called on every attempt, whatever the assert outcome.
func (j *Jar) UpdateFromResponse(rawURL string, setCookies []SetCookieSource) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	host := u.Hostname()
	now := time.Now()
	for _, sc := range setCookies {
		c := Cookie{
			Name:     sc.Name,
			Value:    sc.Value,
			Path:     sc.Path,
			Secure:   sc.Secure,
			HTTPOnly: sc.HTTPOnly,
		}
		if sc.Domain != "" {
			c.Domain = strings.ToLower(sc.Domain)
			c.IncludeSubdomains = true
		} else {
			c.Domain = strings.ToLower(host)
		}
		if c.Path == "" {
			c.Path = defaultPath(u.Path)
		}
		if sc.MaxAge != "" {
			if secs, err := strconv.ParseInt(sc.MaxAge, 10, 64); err == nil {
				if secs <= 0 {
					j.remove(c.Domain, c.Path, c.Name)
					continue
				}
				c.Expires = now.Add(time.Duration(secs) * time.Second).Unix()
			}
		} else if sc.Expires != "" {
			if t, err := parseCookieTime(sc.Expires); err == nil {
				if t.Before(now) {
					j.remove(c.Domain, c.Path, c.Name)
					continue
				}
				c.Expires = t.Unix()
			}
		}
		j.Set(c)
	}
}

// SetCookieSource decouples the jar from the http package response type.
type SetCookieSource struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	Expires  string
	MaxAge   string
}

func (j *Jar) remove(domain, path, name string) {
	out := j.cookies[:0]
	for _, c := range j.cookies {
		if c.Domain == domain && c.Path == path && c.Name == name {
			continue
		}
		out = append(out, c)
	}
	j.cookies = out
}

// RequestCookies returns the cookies to send for a URL, longest path first,
// expired and non-matching cookies excluded.
func (j *Jar) RequestCookies(rawURL string) []Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	secure := u.Scheme == "https"
	now := time.Now().Unix()

	var out []Cookie
	for _, c := range j.cookies {
		if c.Expires != 0 && c.Expires <= now {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		if !domainMatch(host, c.Domain, c.IncludeSubdomains) {
			continue
		}
		if !pathMatch(u.EscapedPath(), c.Path) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return len(out[a].Path) > len(out[b].Path)
	})
	return out
}

// HeaderValue renders cookies as one Cookie request header value.
func HeaderValue(cs []Cookie) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

func domainMatch(host, domain string, includeSubdomains bool) bool {
	if host == domain {
		return true
	}
	return includeSubdomains && strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if reqPath == cookiePath {
		return true
	}
	if strings.HasPrefix(reqPath, cookiePath) {
		return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
	}
	return false
}

func defaultPath(reqPath string) string {
	if reqPath == "" || !strings.HasPrefix(reqPath, "/") {
		return "/"
	}
	idx := strings.LastIndexByte(reqPath, '/')
	if idx == 0 {
		return "/"
	}
	return reqPath[:idx]
}

var cookieTimeFormats = []string{
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700",
	time.ANSIC,
}

func parseCookieTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range cookieTimeFormats {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
