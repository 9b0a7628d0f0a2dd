package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fahmaliyi/otpvault/backend"
	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/fsutil"
	"github.com/fahmaliyi/otpvault/otpuri"
	"github.com/fahmaliyi/otpvault/qr"
	"github.com/fahmaliyi/otpvault/totp"
)

const help = `Commands:
  l          list entries with current codes
  a          add an entry
  c N        copy code of entry N
  s N        show entry N
  r N NAME   rename entry N
  d N        delete entry N
  q N [PNG]  show QR code of entry N, optionally writing a PNG
  i PATH     import otpauth URIs (or a .json backup)
  e PATH     export otpauth URIs (or a .json backup)
  p          change master password
  h          help
  x          quit`

// ShellOption configures a Shell.
type ShellOption func(*Shell)

func WithIO(in io.Reader, out io.Writer) ShellOption {
	return func(s *Shell) {
		s.in = bufio.NewReader(in)
		s.out = out
	}
}

// WithSecretReader replaces the masked terminal prompt used for secrets and
// passwords.
func WithSecretReader(read PasswordFunc) ShellOption {
	return func(s *Shell) { s.readSecret = read }
}

func WithClipboard(c *Clipboard) ShellOption {
	return func(s *Shell) { s.clip = c }
}

func WithClock(c totp.Clock) ShellOption {
	return func(s *Shell) { s.clock = c }
}

func WithShellLogger(log *slog.Logger) ShellOption {
	return func(s *Shell) { s.log = log }
}

// Shell is the line oriented interface. Item numbers refer to the most recent
// listing and are invalidated by every change.
type Shell struct {
	b          backend.Backend
	in         *bufio.Reader
	out        io.Writer
	readSecret PasswordFunc
	clip       *Clipboard
	clock      totp.Clock
	log        *slog.Logger

	listed []entry.Entry
}

func NewShell(b backend.Backend, opts ...ShellOption) *Shell {
	s := &Shell{
		b:          b,
		in:         bufio.NewReader(os.Stdin),
		out:        os.Stdout,
		readSecret: ReadPasswordMasked,
		clock:      totp.SystemClock{},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clip == nil {
		s.clip = NewClipboard(30 * time.Second)
	}
	return s
}

// RunCommands runs a Shell on stdin and stdout until the user quits.
func RunCommands(ctx context.Context, b backend.Backend, opts ...ShellOption) error {
	return NewShell(b, opts...).Run(ctx)
}

// Run reads commands until x, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	defer s.clip.Close()

	fmt.Fprintln(s.out, help)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(s.out, "> ")
		line, err := s.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			continue
		}

		if quit := s.dispatch(ctx, parts); quit {
			fmt.Fprintln(s.out, "Exiting.")
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func (s *Shell) dispatch(ctx context.Context, parts []string) bool {
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "x", "quit", "exit":
		return true
	case "h", "?", "help":
		fmt.Fprintln(s.out, help)
	case "l":
		s.handleList(ctx)
	case "a":
		s.handleAdd(ctx)
		s.listed = nil
	case "c", "s", "d", "r", "q":
		e, ok := s.pick(args)
		if !ok {
			return false
		}
		switch cmd {
		case "c":
			s.handleCopy(ctx, e)
		case "s":
			s.handleShow(e)
		case "d":
			s.handleDelete(ctx, e)
		case "r":
			s.handleRename(ctx, e, strings.Join(args[1:], " "))
		case "q":
			s.handleQR(e, args[1:])
		}
	case "i", "e":
		if len(args) == 0 {
			fmt.Fprintln(s.out, "Specify a file path")
			return false
		}
		if cmd == "i" {
			s.handleImport(ctx, args[0])
		} else {
			s.handleExport(ctx, args[0])
		}
	case "p":
		s.handleChangePassword(ctx)
	default:
		fmt.Fprintln(s.out, "Unknown command, h for help")
	}
	return false
}

func (s *Shell) pick(args []string) (entry.Entry, bool) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Specify item number")
		return entry.Entry{}, false
	}
	if s.listed == nil {
		fmt.Fprintln(s.out, "List entries first (l)")
		return entry.Entry{}, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(s.listed) {
		fmt.Fprintln(s.out, "Invalid item number")
		return entry.Entry{}, false
	}
	return s.listed[n-1], true
}

func (s *Shell) prompt(label string) (string, error) {
	fmt.Fprint(s.out, label)
	line, err := s.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// --- Individual command handlers ---

func (s *Shell) handleList(ctx context.Context) {
	entries, err := s.b.Refresh(ctx)
	if err != nil {
		s.printError(err)
		return
	}
	s.listed = entries
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "No entries. Add one with a, or import with i.")
		return
	}

	now := s.clock.Now()
	for i, e := range entries {
		left := totp.Remaining(e.Config.Step, now)
		fmt.Fprintf(s.out, "%2d) %-32s %s  %2ds\n", i+1, e.Name, formatCode(e.Code), int(left.Seconds()))
	}
}

func (s *Shell) handleCopy(ctx context.Context, e entry.Entry) {
	code, err := e.Generate(s.clock.Now())
	if err != nil {
		s.printError(err)
		return
	}
	if err := s.clip.Copy(code); err != nil {
		s.log.WarnContext(ctx, "clipboard unavailable", slog.Any("error", err))
		fmt.Fprintln(s.out, "Clipboard unavailable:", err)
		return
	}
	if d := s.clip.ClearAfter(); d > 0 {
		fmt.Fprintf(s.out, "Code copied to clipboard. Clearing in %s...\n", d)
	} else {
		fmt.Fprintln(s.out, "Code copied to clipboard.")
	}
}

func (s *Shell) handleShow(e entry.Entry) {
	issuer, account := entry.SplitName(e.Name)
	fmt.Fprintf(s.out, "Name: %s\nIssuer: %s\nAccount: %s\nAlgorithm: %s\nDigits: %d\nStep: %ds\nCode: %s\nURI: %s\n",
		e.Name, issuer, account, e.Config.Algorithm, e.Config.Digits, e.Config.Step, formatCode(e.Code), otpuri.Serialize(e))
}

func (s *Shell) handleDelete(ctx context.Context, e entry.Entry) {
	if err := s.b.Delete(ctx, e.ID); err != nil {
		s.printError(err)
		return
	}
	s.listed = nil
	fmt.Fprintln(s.out, "Entry deleted!")
}

func (s *Shell) handleRename(ctx context.Context, e entry.Entry, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Fprintln(s.out, "Specify the new name")
		return
	}
	e.Name = name
	if _, err := s.b.Upsert(ctx, e); err != nil {
		s.printError(err)
		return
	}
	s.listed = nil
	fmt.Fprintln(s.out, "Entry renamed!")
}

func (s *Shell) handleQR(e entry.Entry, args []string) {
	uri := otpuri.Serialize(e)
	if len(args) > 0 {
		if err := qr.WritePNG(args[0], uri, 0); err != nil {
			s.printError(err)
			return
		}
		fmt.Fprintln(s.out, "QR code written to", args[0])
		return
	}

	art, err := qr.Terminal(uri)
	if err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.out, art)
}

func (s *Shell) handleImport(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		s.printError(err)
		return
	}
	defer f.Close()

	n, err := s.b.Import(ctx, f, backend.FormatFromPath(path))
	if err != nil {
		s.printError(err)
		return
	}
	s.listed = nil
	fmt.Fprintf(s.out, "Imported %d entries.\n", n)
}

// handleExport writes the file only once the export succeeded, so an existing
// file at path is never lost.
func (s *Shell) handleExport(ctx context.Context, path string) {
	var buf bytes.Buffer
	if err := s.b.Export(ctx, &buf, backend.FormatFromPath(path)); err != nil {
		s.printError(err)
		return
	}
	if err := fsutil.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.out, "Exported to", path)
}

func (s *Shell) handleChangePassword(ctx context.Context) {
	vb, ok := s.b.(*backend.VaultBackend)
	if !ok {
		fmt.Fprintf(s.out, "Changing the password is not supported for %s files.\n", s.b.Kind())
		return
	}

	pw, err := NewPassword(s.readSecret, s.out)
	if err != nil {
		s.printError(err)
		return
	}
	defer zero(pw)

	if err := vb.ChangePassword(ctx, pw); err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.out, "Master password changed.")
}

// formatCode groups a code for reading, e.g. "287 082".
func formatCode(code string) string {
	if len(code) < 6 {
		return code
	}
	half := len(code) / 2
	return code[:half] + " " + code[half:]
}
