// Package classify decides whether a URL is likely to point at a content
// page worth crawling. It rejects clearly-non-content URLs instead of
// allowlisting "content" paths, which keeps recall high on sites whose
// shapes we cannot predict.
package classify

import (
	"net/url"
	"path"
	"strings"
)

// systemSegments are path segments that mark admin areas, machine
// endpoints, feeds, and commerce flows. Entries containing "?" or "="
// are matched against the path+query string as-is; entries ending in
// "/" match a leading path segment; the rest match whole segments.
var systemSegments = []string{
	"wp-admin", "wp-login", "wp-includes", "wp-json",
	"admin", "login", "logout", "signin", "signup",
	"dashboard", "panel", "cpanel",
	"node_modules", ".git", ".env", "cgi-bin",
	"api/", "rest/", "graphql",
	"feed", "rss", "atom",
	"cart", "checkout", "payment",
	"search?", "ajax", "action=",
}

// nonPageExtensions are file extensions that never serve an HTML page.
var nonPageExtensions = map[string]struct{}{
	// images
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "svg": {}, "webp": {}, "ico": {}, "bmp": {},
	// styles
	"css": {}, "scss": {}, "less": {},
	// scripts
	"js": {}, "mjs": {},
	// documents
	"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "ppt": {}, "pptx": {},
	// archives
	"zip": {}, "rar": {}, "tar": {}, "gz": {}, "7z": {},
	// media
	"mp3": {}, "wav": {}, "ogg": {}, "mp4": {}, "avi": {}, "mov": {}, "webm": {},
	// data
	"xml": {}, "json": {}, "txt": {}, "log": {}, "csv": {},
	// fonts
	"woff": {}, "woff2": {}, "ttf": {}, "otf": {}, "eot": {},
	// source maps
	"map": {},
}

// blockedQueryParams name query parameters that indicate machine
// endpoints rather than pages.
var blockedQueryParams = map[string]struct{}{
	"action": {}, "ajax": {}, "callback": {}, "jsonp": {},
}

// maxQueryParams is the largest number of distinct query parameters a
// content page plausibly carries.
const maxQueryParams = 5

// IsLikelyContentURL reports whether rawURL probably serves a content
// page. contentType, when non-empty, is the Content-Type reported for
// the URL and must be text/html or text/plain. The function is pure:
// it performs no I/O and is deterministic in its inputs.
func IsLikelyContentURL(rawURL, contentType string) bool {
	if contentType != "" {
		mime := strings.ToLower(strings.TrimSpace(contentType))
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
		if mime != "text/html" && mime != "text/plain" {
			return false
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if hasSystemSegment(u) {
		return false
	}
	if hasNonPageExtension(u.Path) {
		return false
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return false
	}
	for name := range query {
		if _, blocked := blockedQueryParams[strings.ToLower(name)]; blocked {
			return false
		}
	}
	if len(query) > maxQueryParams {
		return false
	}

	return true
}

func hasSystemSegment(u *url.URL) bool {
	p := strings.ToLower(u.EscapedPath())
	pathAndQuery := p
	if u.RawQuery != "" {
		pathAndQuery += "?" + strings.ToLower(u.RawQuery)
	}

	segments := strings.Split(strings.Trim(p, "/"), "/")

	for _, kw := range systemSegments {
		switch {
		case strings.ContainsAny(kw, "?="):
			if strings.Contains(pathAndQuery, kw) {
				return true
			}
		case strings.HasSuffix(kw, "/"):
			// Only matches when followed by more path, e.g. /api/v2.
			if strings.Contains(p, "/"+kw) {
				return true
			}
		default:
			for _, seg := range segments {
				if seg == kw {
					return true
				}
			}
		}
	}
	return false
}

func hasNonPageExtension(p string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "" {
		return false
	}
	_, blocked := nonPageExtensions[ext]
	return blocked
}
