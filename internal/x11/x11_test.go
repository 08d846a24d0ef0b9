package x11

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"
)

func TestParseDisplay(t *testing.T) {
	cases := map[string]Display{
		":0":             {Number: 0},
		":1.2":           {Number: 1, Screen: 2},
		"unix:3":         {Host: "unix", Number: 3},
		"localhost:10.0": {Host: "localhost", Number: 10},
	}
	for in, want := range cases {
		got, err := ParseDisplay(in)
		assert.NilError(t, err, in)
		assert.Equal(t, got, want, in)
	}
	for _, bad := range []string{"", "host", ":x", ":-1", ":1.y"} {
		_, err := ParseDisplay(bad)
		assert.Assert(t, err != nil, bad)
	}
	d, _ := ParseDisplay(":0")
	assert.Assert(t, d.Local())
}

func TestAuthorityRoundTripAndLookup(t *testing.T) {
	entries := []AuthEntry{
		{Family: FamilyLocal, Address: "other", Number: "0", Name: CookieName, Data: []byte{1}},
		{Family: FamilyLocal, Address: "box", Number: "1", Name: CookieName, Data: []byte{2}},
		{Family: FamilyLocal, Address: "box", Number: "0", Name: "XDM-AUTHORIZATION-1", Data: []byte{3}},
		{Family: FamilyLocal, Address: "box", Number: "0", Name: CookieName, Data: []byte{4, 5}},
	}
	var buf bytes.Buffer
	assert.NilError(t, WriteAuthority(&buf, entries))
	got, err := ReadAuthority(&buf)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, entries)

	cookie, ok := FindCookie(got, "box", Display{Number: 0})
	assert.Assert(t, ok)
	assert.DeepEqual(t, cookie.Data, []byte{4, 5})

	_, ok = FindCookie(got, "box", Display{Number: 7})
	assert.Assert(t, !ok)
}

func TestReadAuthorityTruncated(t *testing.T) {
	_, err := ReadAuthority(bytes.NewReader([]byte{0x01, 0x00, 0x00, 0x05, 'a'}))
	assert.ErrorContains(t, err, "invalid Xauthority")
}

func TestRelayForwards(t *testing.T) {
	upstream, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	defer upstream.Close()
	go func() {
		for {
			c, err := upstream.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()

	r := &Relay{
		Dial: func(ctx context.Context) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, "tcp", upstream.Addr().String())
		},
		Logger: hclog.NewNullLogger(),
	}
	assert.NilError(t, r.Start(context.Background(), "127.0.0.1:0"))

	conn, err := net.Dial("tcp", r.Addr().String())
	assert.NilError(t, err)
	_, err = conn.Write([]byte("hello"))
	assert.NilError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	assert.NilError(t, err)
	assert.Equal(t, string(buf), "hello")

	r.Close()
	_, err = conn.Read(buf)
	assert.Assert(t, err != nil)
	conn.Close()
}

func TestWriteCookieRewritesDisplay(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Xauthority")
	var buf bytes.Buffer
	assert.NilError(t, WriteAuthority(&buf, []AuthEntry{
		{Family: FamilyLocal, Address: "box", Number: "0", Name: CookieName, Data: []byte("secret")},
	}))
	assert.NilError(t, os.WriteFile(src, buf.Bytes(), 0o600))

	root := filepath.Join(dir, "root")
	assert.NilError(t, os.Mkdir(root, 0o755))
	assert.NilError(t, writeCookie(Options{
		Root: root, Display: 15, Host: Display{Number: 0}, Hostname: "box",
		AuthFile: src, Logger: hclog.NewNullLogger(),
	}))

	f, err := os.Open(filepath.Join(root, XauthorityPath))
	assert.NilError(t, err)
	defer f.Close()
	entries, err := ReadAuthority(f)
	assert.NilError(t, err)
	assert.DeepEqual(t, entries, []AuthEntry{
		{Family: FamilyWild, Number: "15", Name: CookieName, Data: []byte("secret")},
	})
}
