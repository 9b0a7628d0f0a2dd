package otpuri

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
)

// ErrNoEntries is returned when an export has nothing to write.
var ErrNoEntries = errors.New("no entries found to export")

// LineError records an import line that was skipped.
type LineError struct {
	Line int
	Err  error
}

// BatchResult is the outcome of ParseBatch.
type BatchResult struct {
	Entries []entry.Entry
	Skipped []LineError
}

// ParseBatch reads one URI per line. Blank lines and lines starting with '#'
// are ignored; lines that fail to parse are logged and skipped. Only a read
// failure aborts the batch.
func ParseBatch(r io.Reader, log *slog.Logger) (BatchResult, error) {
	if log == nil {
		log = slog.Default()
	}

	var res BatchResult
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, err := ParseEntry(line, log)
		if err != nil {
			log.Warn("skipping otp uri", slog.Int("line", n), slog.Any("error", err))
			res.Skipped = append(res.Skipped, LineError{Line: n, Err: err})
			continue
		}
		res.Entries = append(res.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return res, errs.Wrap(errs.KindIO, "read otp uri batch", err)
	}

	return res, nil
}

// WriteBatch writes one URI per line in the given order.
func WriteBatch(w io.Writer, entries []entry.Entry) error {
	if len(entries) == 0 {
		return errs.Wrap(errs.KindNotFound, "export", ErrNoEntries)
	}

	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := bw.WriteString(Serialize(e) + "\n"); err != nil {
			return errs.Wrap(errs.KindIO, "write otp uri batch", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errs.Wrap(errs.KindIO, "write otp uri batch", err)
	}
	return nil
}
