package navigation

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BuildNextAddress returns current with the page parameter set to page.
// The path, the fragment and all other parameters are kept in their original
// order; repeated page parameters collapse into one.
func BuildNextAddress(current string, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page must be >= 1 (got %d)", page)
	}

	u, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse address: %w", err)
	}

	u.RawQuery = setQueryParam(u.RawQuery, PageParam, strconv.Itoa(page))
	u.ForceQuery = false

	return u.String(), nil
}

// setQueryParam replaces the first occurrence of key in rawQuery, drops any
// further occurrences and appends key when absent. Other pairs are copied
// byte for byte.
func setQueryParam(rawQuery, key, value string) string {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	if rawQuery == "" {
		return pair
	}

	var out []string
	replaced := false
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}

		name := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			name = part[:i]
		}
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}

		if name != key {
			out = append(out, part)
			continue
		}
		if !replaced {
			out = append(out, pair)
			replaced = true
		}
	}

	if !replaced {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}
