// Package logtail reads the tail of roomwatch's own log for the Logs view.
//
// Read uses a ring buffer of maxLines entries so only one pass over the file
// is needed and memory stays proportional to the lines kept. A missing file
// is not an error; it simply has no lines yet.
//
// Parse understands the key=value records written by slog's text handler:
//
//	time=2025-10-08T21:01:05.123+02:00 level=WARN msg="refresh fetch failed" loop=alerts id=r1
//
// Filter applies a minimum level. Lines that are not slog records, such as
// output from the standard library logger, are kept at info level.
package logtail
