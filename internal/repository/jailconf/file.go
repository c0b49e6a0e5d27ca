package jailconf

import (
	"bufio"
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/jail-release/internal/logger"

	// Register SHA-256 for go-update checksum verification.
	_ "crypto/sha256"
)

// DefaultFileMode is applied to configuration files written into a jail root.
const DefaultFileMode os.FileMode = 0o644

// Format selects the value syntax of a configuration file.
type Format int

const (
	// RCConf renders `key="value"` with booleans as YES/NO.
	RCConf Format = iota
	// SysctlConf renders `key=value` with booleans as 1/0.
	SysctlConf
)

var errUnsupportedValue = errors.New("unsupported value type")

// Setting is one key/value pair applied to a File.
type Setting struct {
	Key   string
	Value any
}

// line is a parsed line; key is empty for comments and blanks.
type line struct {
	raw   string
	key   string
	value string
}

// File is a key/value configuration file loaded into memory.
type File struct {
	// path is the filesystem location of the file.
	path   string
	format Format
	// mu protects lines and dirty.
	mu     sync.Mutex
	lines  []line
	exists bool
	dirty  bool
}

// Load reads the file at path. A missing file yields an empty File.
func Load(path string, format Format) (*File, error) {
	f := &File{
		path:   filepath.Clean(path),
		format: format,
	}

	contents, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}

		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	f.exists = true

	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		f.lines = append(f.lines, parseLine(scanner.Text()))
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}

	return f, nil
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Get returns the unquoted value of key.
func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.lines) - 1; i >= 0; i-- {
		if f.lines[i].key == key {
			return f.lines[i].value, true
		}
	}

	return "", false
}

// Set assigns a value to key. The File only becomes dirty when the rendered
// value differs from the stored one.
func (f *File) Set(key string, value any) error {
	rendered, err := f.render(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.lines) - 1; i >= 0; i-- {
		if f.lines[i].key != key {
			continue
		}

		if f.lines[i].value == rendered {
			return nil
		}

		f.lines[i] = f.newLine(key, rendered)
		f.dirty = true

		return nil
	}

	f.lines = append(f.lines, f.newLine(key, rendered))
	f.dirty = true

	return nil
}

// Apply sets every setting in order.
func (f *File) Apply(settings []Setting) error {
	for _, setting := range settings {
		if err := f.Set(setting.Key, setting.Value); err != nil {
			return err
		}
	}

	return nil
}

// Save writes the file when a value changed and reports whether it did.
func (f *File) Save(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		logger.DebugKV(ctx, "Configuration unchanged", "path", f.path)
		return false, nil
	}

	var buf bytes.Buffer
	for _, l := range f.lines {
		buf.WriteString(l.raw)
		buf.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(f.path), err)
	}

	// go-update renames the previous file aside, so it has to exist.
	if !f.exists {
		placeholder, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, DefaultFileMode)
		if err != nil {
			return false, fmt.Errorf("create %s: %w", f.path, err)
		}

		if err = placeholder.Close(); err != nil {
			return false, err
		}
	}

	checksum := crypto.SHA256.New()
	checksum.Write(buf.Bytes())

	options := goupdate.Options{
		TargetPath: f.path,
		TargetMode: DefaultFileMode,
		Checksum:   checksum.Sum(nil),
		Hash:       crypto.SHA256,
	}

	if err := goupdate.Apply(bytes.NewReader(buf.Bytes()), options); err != nil {
		return false, fmt.Errorf("write %s: %w", f.path, err)
	}

	f.exists = true
	f.dirty = false

	logger.DebugKV(ctx, "Configuration saved", "path", f.path)

	return true, nil
}

func (f *File) newLine(key, value string) line {
	raw := key + "=" + value
	if f.format == RCConf {
		raw = key + "=" + strconv.Quote(value)
	}

	return line{raw: raw, key: key, value: value}
}

func (f *File) render(value any) (string, error) {
	switch v := value.(type) {
	case bool:
		if f.format == RCConf {
			if v {
				return "YES", nil
			}

			return "NO", nil
		}

		if v {
			return "1", nil
		}

		return "0", nil
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("%T: %w", value, errUnsupportedValue)
	}
}

func parseLine(raw string) line {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return line{raw: raw}
	}

	key, value, ok := strings.Cut(trimmed, "=")
	if !ok {
		return line{raw: raw}
	}

	value = strings.TrimSpace(value)
	if quote := value[:min(1, len(value))]; quote == `"` || quote == "'" {
		if end := strings.Index(value[1:], quote); end >= 0 {
			value = value[1 : end+1]
		}
	} else if comment := strings.Index(value, "#"); comment >= 0 {
		value = strings.TrimSpace(value[:comment])
	}

	return line{raw: raw, key: strings.TrimSpace(key), value: value}
}
