package x11

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/moby/sys/atomicwriter"

	"reprounzip/internal/rootfs"
)

// XauthorityPath is the cookie file written inside the root.
const XauthorityPath = "/.reprounzip_xauthority"

// DefaultChrootDisplay is the display number exposed inside a chroot.
const DefaultChrootDisplay = 15

// Options configures a forwarding session.
type Options struct {
	Root     string
	Display  int
	Host     Display
	Hostname string
	// AuthFile is the host Xauthority; empty means $XAUTHORITY or
	// ~/.Xauthority.
	AuthFile string
	UID, GID int
	Chown    bool
	Logger   hclog.Logger
}

// Session is a running relay plus the environment pointing to it.
type Session struct {
	relay   *Relay
	environ map[string]string
}

// Start writes the cookie and starts the relay on 127.0.0.1:6000+Display.
func Start(ctx context.Context, opts Options) (*Session, error) {
	s := &Session{environ: map[string]string{
		"DISPLAY": fmt.Sprintf("localhost:%d", opts.Display),
	}}
	if err := writeCookie(opts); err != nil {
		opts.Logger.Warn("X11 authorization not forwarded", "error", err)
	} else {
		s.environ["XAUTHORITY"] = XauthorityPath
	}

	host := opts.Host
	s.relay = &Relay{Dial: host.Dial, Logger: opts.Logger}
	if err := s.relay.Start(ctx, fmt.Sprintf("127.0.0.1:%d", BasePort+opts.Display)); err != nil {
		return nil, fmt.Errorf("cannot listen for display %d: %w", opts.Display, err)
	}
	opts.Logger.Info("forwarding X11", "display", opts.Display, "host_display", host.String())
	return s, nil
}

// Environ holds DISPLAY and, when a cookie was found, XAUTHORITY.
func (s *Session) Environ() map[string]string { return s.environ }

// Close stops the relay.
func (s *Session) Close() {
	if s != nil && s.relay != nil {
		s.relay.Close()
	}
}

func authFile(opts Options) string {
	if opts.AuthFile != "" {
		return opts.AuthFile
	}
	if p := os.Getenv("XAUTHORITY"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".Xauthority")
}

func writeCookie(opts Options) error {
	f, err := os.Open(authFile(opts))
	if err != nil {
		return err
	}
	entries, err := ReadAuthority(f)
	f.Close()
	if err != nil {
		return err
	}
	cookie, ok := FindCookie(entries, opts.Hostname, opts.Host)
	if !ok {
		return fmt.Errorf("no %s for display %s", CookieName, opts.Host)
	}
	cookie.Family = FamilyWild
	cookie.Address = ""
	cookie.Number = fmt.Sprint(opts.Display)

	var buf bytes.Buffer
	if err := WriteAuthority(&buf, []AuthEntry{cookie}); err != nil {
		return err
	}
	dest := rootfs.Join(opts.Root, XauthorityPath)
	if err := atomicwriter.WriteFile(dest, buf.Bytes(), 0o600); err != nil {
		return err
	}
	if opts.Chown {
		return os.Chown(dest, opts.UID, opts.GID)
	}
	return nil
}
