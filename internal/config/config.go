// Package config holds the server configuration: the serial line, the
// emulated drive model, the shared directories or disk image, and the
// client compatibility options.
//
// Precedence is defaults, then the JSON config file, then environment
// variables, then command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tpdd-server/internal/fname"
)

// Banks is how many share directories a drive can expose; the second one
// backs TPDD2 bank 1.
const Banks = 2

type Config struct {
	// Serial line.
	Device string `json:"device"` // e.g. "/dev/ttyUSB0"
	Baud   int    `json:"baud"`
	RTSCTS bool   `json:"rtscts"`

	// Model is the emulated hardware: 1 or 2. Zero means detect from the
	// disk image, falling back to 1.
	Model int `json:"model"`

	// SharePaths are the host directories served in file-access mode,
	// one per bank. An empty list means the current directory.
	SharePaths []string `json:"share_paths"`

	// DiskImage switches the server to sector-access mode against a
	// .pdd1/.pdd2 image file instead of the share directories.
	DiskImage string `json:"disk_image"`

	// LibDir is searched for loader files (DOS100.CO and friends) and
	// bootstrap images that are not present in the share itself.
	LibDir string `json:"lib_dir"`

	// ROMFile optionally backs the TPDD2 ROM address range with a real
	// mask-ROM dump.
	ROMFile string `json:"rom_file"`

	// Client compatibility.
	Profile     string `json:"profile"`      // fname profile name or "#.#p" spec
	DefaultAttr string `json:"default_attr"` // single char; empty = profile default
	DME         *bool  `json:"dme"`          // nil = profile default
	MagicFiles  *bool  `json:"magic_files"`  // nil = profile default
	Upcase      *bool  `json:"upcase"`       // nil = profile default
	Tildes      bool   `json:"tildes"`       // mark truncated names
	RootLabel   string `json:"root_label"`   // DME label of the share root
	ParentLabel string `json:"parent_label"` // DME label of ".."

	// XattrName stores the attribute byte on host files.
	XattrName string `json:"xattr_name"`

	// StartInFDCMode boots the drive in FDC mode, like a real TPDD1
	// powering up with the DIP switch set.
	StartInFDCMode bool `json:"start_in_fdc_mode"`

	// ReplyBadChecksum answers a corrupt request with a parameter error
	// instead of staying silent. Real drives stay silent; some very old
	// clients retry faster on an error reply.
	ReplyBadChecksum bool `json:"reply_bad_checksum"`

	// BootstrapPaceMS is the per-byte delay when feeding a BASIC loader
	// to a machine that is typing it into its own prompt.
	BootstrapPaceMS int `json:"bootstrap_pace_ms"`

	// Verbose is the log level: 0 quiet, 1 operations, 2+ protocol bytes.
	Verbose int `json:"verbose"`
}

func Default() Config {
	return Config{
		Baud:            19200,
		Model:           0, // detect from the image; directories serve as TPDD1
		SharePaths:      nil,
		Profile:         fname.DefaultProfile,
		Tildes:          true,
		RootLabel:       fname.DefaultRootLabel,
		ParentLabel:     fname.DefaultParentLabel,
		BootstrapPaceMS: 8,
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv folds environment variables over the loaded config. The names
// follow the conventions TPDD server wrappers already use, so existing
// setups keep working.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("CLIENT_TTY"); ok {
		c.Device = v
	}
	if v, ok := os.LookupEnv("BAUD"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Baud = n
		}
	}
	if v, ok := os.LookupEnv("RTSCTS"); ok {
		c.RTSCTS = atobool(v)
	}
	if v, ok := os.LookupEnv("PROFILE"); ok {
		c.Profile = v
	}
	if v, ok := os.LookupEnv("ATTR"); ok && v != "" {
		c.DefaultAttr = v[:1]
	}
	if v, ok := os.LookupEnv("DME"); ok {
		b := atobool(v)
		c.DME = &b
	}
	if v, ok := os.LookupEnv("TSLOAD"); ok {
		b := atobool(v)
		c.MagicFiles = &b
	}
	if v, ok := os.LookupEnv("TILDES"); ok {
		c.Tildes = atobool(v)
	}
	if v, ok := os.LookupEnv("FDC_MODE"); ok {
		c.StartInFDCMode = atobool(v)
	}
	if v, ok := os.LookupEnv("ROOT_LABEL"); ok {
		c.RootLabel = v
	}
	if v, ok := os.LookupEnv("PARENT_LABEL"); ok {
		c.ParentLabel = v
	}
	if v, ok := os.LookupEnv("XATTR_NAME"); ok {
		c.XattrName = v
	}
}

func (c *Config) Validate() error {
	if c.Baud <= 0 {
		c.Baud = 19200
	}
	if c.Model < 0 || c.Model > 2 {
		return fmt.Errorf("model must be 1 or 2, got %d", c.Model)
	}
	if len(c.SharePaths) > Banks {
		return fmt.Errorf("at most %d share paths (one per bank), got %d", Banks, len(c.SharePaths))
	}
	if len(c.SharePaths) > 0 && c.DiskImage != "" {
		return fmt.Errorf("share_paths and disk_image are mutually exclusive")
	}
	if c.Profile == "" {
		c.Profile = fname.DefaultProfile
	}
	if _, err := fname.Lookup(c.Profile); err != nil {
		return err
	}
	if len(c.DefaultAttr) > 1 {
		return fmt.Errorf("default_attr must be a single character")
	}
	c.RootLabel = fixLabel(c.RootLabel, fname.DefaultRootLabel)
	c.ParentLabel = fixLabel(c.ParentLabel, fname.DefaultParentLabel)
	if c.BootstrapPaceMS < 0 {
		c.BootstrapPaceMS = 0
	}
	if c.Verbose < 0 {
		c.Verbose = 0
	}
	return nil
}

// ResolveProfile returns the effective naming profile after the per-field
// overrides are applied.
func (c Config) ResolveProfile() (fname.Profile, error) {
	p, err := fname.Lookup(c.Profile)
	if err != nil {
		return fname.Profile{}, err
	}
	if c.DefaultAttr != "" {
		p.DefaultAttr = c.DefaultAttr[0]
	}
	if c.DME != nil {
		p.DME = *c.DME
	}
	if c.MagicFiles != nil {
		p.MagicFiles = *c.MagicFiles
	}
	if c.Upcase != nil {
		p.Upcase = *c.Upcase
	}
	return p, nil
}

// SharePath returns the share directory backing one bank, defaulting to
// the current directory, with bank 1 falling back to bank 0's path.
func (c Config) SharePath(bank int) string {
	if len(c.SharePaths) == 0 {
		return "."
	}
	if bank >= len(c.SharePaths) {
		bank = 0
	}
	return c.SharePaths[bank]
}

// fixLabel pads or truncates a DME label to exactly 6 bytes.
func fixLabel(s, def string) string {
	if s == "" {
		return def
	}
	if len(s) > 6 {
		return s[:6]
	}
	return s + strings.Repeat(" ", 6-len(s))
}

// atobool reads the usual spellings of a flag value; anything not
// recognizably false is true.
func atobool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "n", "no", "off", "false", "":
		return false
	}
	return true
}
