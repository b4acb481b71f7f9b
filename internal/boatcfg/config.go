// Package boatcfg loads the server's gcfg-style INI configuration, the
// way this project's teacher loads its ingester configs: a typed struct
// decoded with gravwell's gcfg fork, a [global] section, and named
// subsections for per-entity configuration (here, [User "name"] instead
// of the teacher's [Listener "name"]).
package boatcfg

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gravwell/gcfg"

	"github.com/boatd/boatd/internal/auth"
	"github.com/boatd/boatd/internal/boatlog"
	"github.com/boatd/boatd/internal/registry"
)

// maxConfigSize bounds how large a config file this loader will read,
// mirroring the defensive bound the teacher's loader applies.
const maxConfigSize = 2 * 1024 * 1024

// saltHexLength is the length of a hex-encoded auth.SaltLength-byte salt.
const saltHexLength = auth.SaltLength * 2

var errConfigTooLarge = errors.New("boatcfg: config file too large")

type global struct {
	Listen_Address   string
	Listen_Port      int
	Repository_Root  string
	SSL_Cert_File    string
	SSL_Key_File     string
	Log_File         string
	Log_Level        string
	Max_Connections  int64
}

type userSection struct {
	Password           string // hex(salt) ‖ hex(digest), saltHexLength+64 hex chars
	Repository         string
	Versioning_Enabled bool
}

type fileFormat struct {
	Global global
	User   map[string]*userSection
}

// Config is the fully validated, in-memory form of the server's
// configuration: everything the Connection Supervisor and the process
// entrypoint need, decoupled from the on-disk INI shape.
type Config struct {
	ListenAddress  string
	ListenPort     int
	RepositoryRoot string
	SSLCertFile    string
	SSLKeyFile     string
	LogFile        string
	LogLevel       boatlog.Level
	MaxConnections int64
	Users          []registry.User
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxConfigSize {
		return nil, errConfigTooLarge
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, f, fi.Size()); err != nil {
		return nil, fmt.Errorf("boatcfg: reading %s: %w", path, err)
	}

	var raw fileFormat
	if err := gcfg.ReadStringInto(&raw, buf.String()); err != nil {
		return nil, fmt.Errorf("boatcfg: parsing %s: %w", path, err)
	}

	return fromRaw(&raw)
}

func fromRaw(raw *fileFormat) (*Config, error) {
	if raw.Global.Repository_Root == "" {
		return nil, errors.New("boatcfg: Repository-Root is required")
	}
	if raw.Global.Listen_Address == "" {
		return nil, errors.New("boatcfg: Listen-Address is required")
	}
	if raw.Global.SSL_Cert_File == "" || raw.Global.SSL_Key_File == "" {
		return nil, errors.New("boatcfg: SSL-Cert-File and SSL-Key-File are required")
	}

	level := boatlog.INFO
	if raw.Global.Log_Level != "" {
		var err error
		if level, err = boatlog.LevelFromString(raw.Global.Log_Level); err != nil {
			return nil, fmt.Errorf("boatcfg: %w", err)
		}
	}

	maxConns := raw.Global.Max_Connections
	if maxConns <= 0 {
		maxConns = 64
	}

	users := make([]registry.User, 0, len(raw.User))
	for name, u := range raw.User {
		if u == nil {
			continue
		}
		record, err := decodePasswordField(u.Password)
		if err != nil {
			return nil, fmt.Errorf("boatcfg: user %q: %w", name, err)
		}
		users = append(users, registry.User{
			Username:          name,
			PasswordRecord:    record,
			Repository:        u.Repository,
			VersioningEnabled: u.Versioning_Enabled,
		})
	}

	return &Config{
		ListenAddress:  raw.Global.Listen_Address,
		ListenPort:     raw.Global.Listen_Port,
		RepositoryRoot: raw.Global.Repository_Root,
		SSLCertFile:    raw.Global.SSL_Cert_File,
		SSLKeyFile:     raw.Global.SSL_Key_File,
		LogFile:        raw.Global.Log_File,
		LogLevel:       level,
		MaxConnections: maxConns,
		Users:          users,
	}, nil
}

// decodePasswordField turns a config file's hex(salt)‖hex(digest) text
// form into the raw-salt‖hex-digest record auth.Verify expects.
func decodePasswordField(s string) ([]byte, error) {
	if len(s) != saltHexLength+auth.DigestHexLength {
		return nil, fmt.Errorf("password field has wrong length %d, want %d", len(s), saltHexLength+auth.DigestHexLength)
	}
	salt, err := hex.DecodeString(s[:saltHexLength])
	if err != nil {
		return nil, fmt.Errorf("password field salt is not valid hex: %w", err)
	}
	digestHex := s[saltHexLength:]
	return append(salt, digestHex...), nil
}
