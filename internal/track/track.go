package track

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrNoStreamURL = errors.New("track has no playable stream url")

// Request is one resolved, playable audio item plus the user who asked for it.
// Values are treated as immutable once handed to a session.
type Request struct {
	Title       string
	WebpageURL  string
	StreamURL   string
	Headers     map[string]string
	Duration    time.Duration // zero when unknown
	Thumbnail   string
	RequestedBy string
}

// Validate checks the fields a player needs and fills the title fallback.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.StreamURL) == "" {
		return ErrNoStreamURL
	}
	u, err := url.Parse(r.StreamURL)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported stream url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(r.Title) == "" {
		r.Title = r.WebpageURL
		if r.Title == "" {
			r.Title = "Unknown title"
		}
	}
	return nil
}

// WithRequester returns a copy tagged with the requesting user.
func (r Request) WithRequester(userID string) Request {
	r.RequestedBy = userID
	if r.Headers != nil {
		h := make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			h[k] = v
		}
		r.Headers = h
	}
	return r
}

// DisplayTitle cuts the title at the first "(" the way now-playing cards show it.
func (r Request) DisplayTitle() string {
	t := r.Title
	if i := strings.Index(t, "("); i > 0 {
		t = strings.TrimSpace(t[:i])
	}
	if t == "" {
		return r.Title
	}
	return t
}
