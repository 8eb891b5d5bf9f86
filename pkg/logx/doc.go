// Package logx is padcast's structured logger: a zerolog wrapper with
// field helpers, a console sink on stderr, a rotated JSON file sink and
// per-key warning throttling.
package logx
