package logger

import "net/url"

const redacted = "***REDACTED***"

// SensitiveQueryParams are the query keys whose values never reach a log line.
var SensitiveQueryParams = []string{"appid", "key", "api_key", "token"}

// RedactURL returns raw with the values of sensitive query parameters replaced.
// Unparseable input is dropped entirely.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return RedactedURL(u)
}

func RedactedURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	changed := false
	for _, k := range SensitiveQueryParams {
		if q.Has(k) {
			q.Set(k, redacted)
			changed = true
		}
	}
	if !changed {
		return u.String()
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}

// RedactPath keeps only scheme and host. Webhook URLs carry their secret in the path.
func RedactPath(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/" + redacted
}
