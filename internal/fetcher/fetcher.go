package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Downloader fetches a remote URL. The caller closes the returned body.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Opener resolves an input location to a stream. Locations are local
// paths, "-" for standard input, http(s):// URLs or ftp:// URLs.
type Opener struct {
	HTTP  Downloader
	FTP   Downloader
	Stdin io.Reader
}

// NewOpener returns an Opener backed by the HTTP and FTP fetchers.
func NewOpener(httpOpts HTTPOptions) *Opener {
	return &Opener{
		HTTP:  NewHTTPFetcher(httpOpts),
		FTP:   NewFTPFetcher(FTPOptions{Timeout: httpOpts.Timeout}),
		Stdin: os.Stdin,
	}
}

func scheme(location string) string {
	if i := strings.Index(location, "://"); i > 0 {
		return strings.ToLower(location[:i])
	}
	return ""
}

// IsRemote reports whether location is a URL rather than a local path.
func IsRemote(location string) bool {
	switch scheme(location) {
	case "http", "https", "ftp":
		return true
	default:
		return false
	}
}

// Ext returns the lower-cased file extension of location, looking at the
// URL path for remote locations.
func Ext(location string) string {
	if IsRemote(location) {
		if u, err := url.Parse(location); err == nil {
			return strings.ToLower(path.Ext(u.Path))
		}
	}
	return strings.ToLower(filepath.Ext(location))
}

// Open returns a stream over location. The caller must close it.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch scheme(location) {
	case "http", "https":
		if o.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http downloader for %s", location)
		}
		return o.HTTP.Download(ctx, location)
	case "ftp":
		if o.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp downloader for %s", location)
		}
		return o.FTP.Download(ctx, location)
	}

	if location == "-" {
		if o.Stdin == nil {
			return nil, eris.New("fetcher: stdin not available")
		}
		return io.NopCloser(o.Stdin), nil
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", location)
	}
	return f, nil
}

// LocalPath returns a filesystem path for location, downloading remote
// locations to a temporary file first. cleanup removes that file and is
// never nil.
func (o *Opener) LocalPath(ctx context.Context, location string) (string, func(), error) {
	noop := func() {}
	if !IsRemote(location) {
		if location == "-" {
			return "", noop, eris.New("fetcher: stdin has no local path")
		}
		return location, noop, nil
	}

	tmp, err := os.CreateTemp("", "txscreen-*"+Ext(location))
	if err != nil {
		return "", noop, eris.Wrap(err, "fetcher: create temp file")
	}
	name := tmp.Name()
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(name) }

	body, err := o.Open(ctx, location)
	if err != nil {
		cleanup()
		return "", noop, err
	}
	defer body.Close() //nolint:errcheck

	if _, err := copyToFile(body, name); err != nil {
		cleanup()
		return "", noop, eris.Wrapf(err, "fetcher: save %s", location)
	}
	return name, cleanup, nil
}
