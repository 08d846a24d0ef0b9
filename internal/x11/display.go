// Package x11 forwards an X display into a chroot target.
package x11

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// BasePort is the TCP port of display 0.
const BasePort = 6000

// SocketDir holds the local X server sockets.
var SocketDir = "/tmp/.X11-unix"

// Display is a parsed DISPLAY value.
type Display struct {
	Host   string
	Number int
	Screen int
}

// ParseDisplay accepts "[host]:number[.screen]". An empty host or "unix"
// means the local socket.
func ParseDisplay(s string) (Display, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return Display{}, fmt.Errorf("invalid DISPLAY %q", s)
	}
	d := Display{Host: s[:i]}
	num, screen, _ := strings.Cut(s[i+1:], ".")
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return Display{}, fmt.Errorf("invalid DISPLAY %q", s)
	}
	d.Number = n
	if screen != "" {
		if d.Screen, err = strconv.Atoi(screen); err != nil {
			return Display{}, fmt.Errorf("invalid DISPLAY %q", s)
		}
	}
	return d, nil
}

// Local tells whether the display is reached through a unix socket.
func (d Display) Local() bool {
	return d.Host == "" || d.Host == "unix"
}

func (d Display) String() string {
	return fmt.Sprintf("%s:%d.%d", d.Host, d.Number, d.Screen)
}

// Dial connects to the X server of the display.
func (d Display) Dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	if d.Local() {
		return dialer.DialContext(ctx, "unix", fmt.Sprintf("%s/X%d", SocketDir, d.Number))
	}
	return dialer.DialContext(ctx, "tcp", net.JoinHostPort(d.Host, strconv.Itoa(BasePort+d.Number)))
}
