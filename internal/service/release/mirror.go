package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"

	domain "github.com/oshokin/jail-release/internal/domain/release"
)

const (
	// defaultFTPPort is used when an ftp:// URL carries no port.
	defaultFTPPort = "21"
	// anonymousFTPUser logs into public mirrors.
	anonymousFTPUser = "anonymous"
	// DefaultMirrorTimeout bounds one mirror request, body included.
	DefaultMirrorTimeout = 30 * time.Minute
)

var (
	errBadHTTPStatus     = errors.New("unexpected http status")
	errUnsupportedScheme = errors.New("unsupported url scheme")
)

// Mirror retrieves release files over HTTP(S) and FTP.
type Mirror struct {
	client  *http.Client
	timeout time.Duration
}

// NewMirror returns a Mirror whose requests time out after timeout,
// DefaultMirrorTimeout when zero.
func NewMirror(timeout time.Duration) *Mirror {
	if timeout <= 0 {
		timeout = DefaultMirrorTimeout
	}

	return &Mirror{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Probe reports whether rawURL exists on the mirror. Transport failures are
// returned as *domain.NetworkError; a missing resource is false without error.
func (m *Mirror) Probe(ctx context.Context, rawURL string) (bool, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return false, &domain.NetworkError{URL: rawURL, Err: err}
	}

	switch target.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, http.NoBody)
		if err != nil {
			return false, &domain.NetworkError{URL: rawURL, Err: err}
		}

		response, err := m.client.Do(req)
		if err != nil {
			return false, &domain.NetworkError{URL: rawURL, Err: err}
		}

		_ = response.Body.Close()

		return response.StatusCode == http.StatusOK, nil
	case "ftp":
		conn, err := m.dialFTP(ctx, target)
		if err != nil {
			return false, &domain.NetworkError{URL: rawURL, Err: err}
		}

		defer func() {
			_ = conn.Quit()
		}()

		return conn.ChangeDir(target.Path) == nil, nil
	default:
		return false, &domain.NetworkError{URL: rawURL, Err: fmt.Errorf("%q: %w", target.Scheme, errUnsupportedScheme)}
	}
}

// Open starts retrieving rawURL and returns the body with its size, -1 when unknown.
// Failures are returned as *domain.NetworkError.
func (m *Mirror) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, &domain.NetworkError{URL: rawURL, Err: err}
	}

	switch target.Scheme {
	case "http", "https":
		return m.openHTTP(ctx, rawURL)
	case "ftp":
		return m.openFTP(ctx, target)
	default:
		return nil, 0, &domain.NetworkError{URL: rawURL, Err: fmt.Errorf("%q: %w", target.Scheme, errUnsupportedScheme)}
	}
}

func (m *Mirror) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, 0, &domain.NetworkError{URL: rawURL, Err: err}
	}

	response, err := m.client.Do(req)
	if err != nil {
		return nil, 0, &domain.NetworkError{URL: rawURL, Err: err}
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, 0, &domain.NetworkError{
			URL: rawURL,
			Err: fmt.Errorf("%s: %w", response.Status, errBadHTTPStatus),
		}
	}

	return response.Body, response.ContentLength, nil
}

func (m *Mirror) openFTP(ctx context.Context, target *url.URL) (io.ReadCloser, int64, error) {
	rawURL := target.String()

	conn, err := m.dialFTP(ctx, target)
	if err != nil {
		return nil, 0, &domain.NetworkError{URL: rawURL, Err: err}
	}

	size, err := conn.FileSize(target.Path)
	if err != nil {
		size = -1
	}

	response, err := conn.Retr(target.Path)
	if err != nil {
		_ = conn.Quit()

		return nil, 0, &domain.NetworkError{URL: rawURL, Err: err}
	}

	return &ftpBody{Response: response, conn: conn}, size, nil
}

func (m *Mirror) dialFTP(ctx context.Context, target *url.URL) (*ftp.ServerConn, error) {
	port := target.Port()
	if port == "" {
		port = defaultFTPPort
	}

	conn, err := ftp.Dial(
		net.JoinHostPort(target.Hostname(), port),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(m.timeout),
	)
	if err != nil {
		return nil, err
	}

	user, password := anonymousFTPUser, anonymousFTPUser
	if target.User != nil {
		user = target.User.Username()
		if secret, ok := target.User.Password(); ok {
			password = secret
		}
	}

	if err = conn.Login(user, password); err != nil {
		_ = conn.Quit()

		return nil, err
	}

	return conn, nil
}

// ftpBody closes the control connection together with the data stream.
type ftpBody struct {
	*ftp.Response

	conn *ftp.ServerConn
}

func (b *ftpBody) Close() error {
	err := b.Response.Close()
	if quitErr := b.conn.Quit(); err == nil {
		err = quitErr
	}

	return err
}
