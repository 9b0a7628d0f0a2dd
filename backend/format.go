package backend

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/otpuri"
)

// Format is an interchange format for Import and Export.
type Format int

const (
	// FormatURI is one otpauth URI per line.
	FormatURI Format = iota
	// FormatJSON is a plaintext backup keeping IDs and every code parameter.
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "uri"
}

// FormatFromPath picks FormatJSON for .json files and FormatURI otherwise.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatURI
}

const backupVersion = 1

type backup struct {
	Version int           `json:"version"`
	Entries []entry.Entry `json:"entries"`
}

func decodeEntries(r io.Reader, f Format, log *slog.Logger) ([]entry.Entry, error) {
	if f == FormatJSON {
		var b backup
		if err := json.NewDecoder(r).Decode(&b); err != nil {
			return nil, errs.Wrap(errs.KindValidation, "decode json backup", err)
		}
		if b.Version != backupVersion {
			return nil, errs.New(errs.KindValidation, "unsupported json backup version")
		}
		return b.Entries, nil
	}

	res, err := otpuri.ParseBatch(r, log)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func encodeEntries(w io.Writer, f Format, entries []entry.Entry) error {
	if f != FormatJSON {
		return otpuri.WriteBatch(w, entries)
	}

	if len(entries) == 0 {
		return errs.Wrap(errs.KindNotFound, "export", otpuri.ErrNoEntries)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(backup{Version: backupVersion, Entries: entries}); err != nil {
		return errs.Wrap(errs.KindIO, "write json backup", err)
	}
	return nil
}
