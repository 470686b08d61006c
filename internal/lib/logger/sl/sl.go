package sl

import (
	"log/slog"
)

// Err creates a slog.Attr with the given error.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Cookie groups the key of a cookie. Values are never logged.
func Cookie(domain, path, name string) slog.Attr {
	return slog.Group("cookie",
		slog.String("domain", domain),
		slog.String("path", path),
		slog.String("name", name),
	)
}
