package host

import (
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"

	logx "padcast/pkg/logx"
)

var profileLoadOptions = ini.LoadOptions{
	Insensitive:             true,
	IgnoreInlineComment:     true,
	IgnoreContinuation:      true,
	SkipUnrecognizableLines: true,
	PreserveSurroundedQuote: true,
}

// Profiles reads plugin argument files. Parsed files are cached until
// Forget is called for their path.
type Profiles struct {
	log logx.Logger

	mu    sync.Mutex
	files map[string]*ini.File
}

func NewProfiles(log logx.Logger) *Profiles {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Profiles{log: log.With(logx.String("comp", "profiles")), files: map[string]*ini.File{}}
}

// Load parses path, returning the error instead of caching an empty file.
func (p *Profiles) Load(path string) error {
	f, err := ini.LoadSources(profileLoadOptions, path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.files[path] = f
	p.mu.Unlock()
	return nil
}

func (p *Profiles) Forget(path string) {
	p.mu.Lock()
	delete(p.files, path)
	p.mu.Unlock()
}

func (p *Profiles) GetString(path, section, key, def string) string {
	k := p.key(path, section, key)
	if k == nil {
		return def
	}
	return k.Value()
}

// GetInteger returns def when the key is absent or not a decimal integer.
func (p *Profiles) GetInteger(path, section, key string, def int) int {
	k := p.key(path, section, key)
	if k == nil {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(k.Value()))
	if err != nil {
		return def
	}
	return n
}

func (p *Profiles) key(path, section, key string) *ini.Key {
	f := p.file(path)
	if section == "" {
		section = ini.DefaultSection
	}
	sec, err := f.GetSection(section)
	if err != nil {
		return nil
	}
	k, err := sec.GetKey(key)
	if err != nil {
		return nil
	}
	return k
}

func (p *Profiles) file(path string) *ini.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.files[path]; ok {
		return f
	}
	f, err := ini.LoadSources(profileLoadOptions, path)
	if err != nil {
		// Cache the empty file so a missing path warns once per load.
		p.log.Warn("failed to read argument file", logx.String("path", path), logx.Err(err))
		f = ini.Empty(profileLoadOptions)
	}
	p.files[path] = f
	return f
}
