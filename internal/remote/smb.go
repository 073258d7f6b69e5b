package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/hirochachacha/go-smb2"
	"github.com/rs/zerolog"

	"github.com/postersync/postersync/internal/pathutil"
)

// ProtocolSession is a Storage that drives an SMB session directly, for
// hosts where mounting the share is not an option.
type ProtocolSession struct {
	server   string
	share    string
	username string
	password string
	domain   string

	conn    net.Conn
	session *smb2.Session
	fs      *smb2.Share

	logger zerolog.Logger
}

// NewProtocolSession creates an SMB-backed storage. The session is opened on
// Connect and torn down on Disconnect.
func NewProtocolSession(server, share, username, password, domain string, logger zerolog.Logger) *ProtocolSession {
	return &ProtocolSession{
		server:   server,
		share:    share,
		username: username,
		password: password,
		domain:   domain,
		logger:   logger.With().Str("component", "remote").Str("mode", "smb").Logger(),
	}
}

// Connect dials the server on port 445, authenticates and mounts the share.
func (p *ProtocolSession) Connect(ctx context.Context) error {
	p.logger.Debug().Str("server", p.server).Str("share", p.share).Msg("Connecting to SMB share")

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(p.server, "445"))
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.server, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     p.username,
			Password: p.password,
			Domain:   p.domain,
		},
	}

	session, err := d.Dial(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smb session to %s: %w", p.server, err)
	}

	fs, err := session.Mount(p.share)
	if err != nil {
		_ = session.Logoff()
		conn.Close()
		return fmt.Errorf("mount share %s: %w", p.share, err)
	}

	p.conn = conn
	p.session = session
	p.fs = fs
	p.logger.Debug().Msg("SMB share mounted")
	return nil
}

// Disconnect unmounts the share and tears the session down. Errors during
// teardown are logged, not returned; the session is gone either way.
func (p *ProtocolSession) Disconnect() error {
	if p.fs != nil {
		if err := p.fs.Umount(); err != nil {
			p.logger.Warn().Err(err).Msg("Error unmounting SMB share")
		}
		p.fs = nil
	}
	if p.session != nil {
		if err := p.session.Logoff(); err != nil {
			p.logger.Warn().Err(err).Msg("Error logging off SMB session")
		}
		p.session = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// PathExists checks if a path exists on the share.
func (p *ProtocolSession) PathExists(remotePath string) (bool, error) {
	if p.fs == nil {
		return false, ErrNotConnected
	}
	_, err := p.fs.Stat(smbPath(remotePath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateDirectory creates a directory (and parents) on the share.
func (p *ProtocolSession) CreateDirectory(remotePath string) error {
	if p.fs == nil {
		return ErrNotConnected
	}
	if err := p.fs.MkdirAll(smbPath(remotePath), 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", remotePath, err)
	}
	return nil
}

// UploadFile writes a local file to the share. An existing destination is
// left untouched unless overwrite is set; skipping is not an error.
func (p *ProtocolSession) UploadFile(localPath, remotePath string, overwrite bool) (bool, error) {
	if p.fs == nil {
		return false, ErrNotConnected
	}

	dest := smbPath(remotePath)

	if _, err := p.fs.Stat(dest); err == nil && !overwrite {
		p.logger.Debug().Str("remotePath", remotePath).Msg("Remote file exists, skipping")
		return false, nil
	}

	if parent := parentPath(remotePath); parent != "" {
		if err := p.fs.MkdirAll(smbPath(parent), 0o755); err != nil {
			return false, fmt.Errorf("create parent directory: %w", err)
		}
	}

	in, err := os.Open(localPath)
	if err != nil {
		return false, fmt.Errorf("open local file: %w", err)
	}
	defer in.Close()

	out, err := p.fs.Create(dest)
	if err != nil {
		return false, fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return false, fmt.Errorf("upload %s: %w", remotePath, err)
	}

	p.logger.Info().Str("local", localPath).Str("remote", remotePath).Msg("Uploaded file")
	return true, nil
}

// ListDirectory lists the entries directly under a path on the share. A
// missing path yields an empty listing.
func (p *ProtocolSession) ListDirectory(remotePath string) ([]Entry, error) {
	if p.fs == nil {
		return nil, ErrNotConnected
	}

	infos, err := p.fs.ReadDir(smbPath(remotePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list directory %s: %w", remotePath, err)
	}

	result := make([]Entry, 0, len(infos))
	for _, info := range infos {
		result = append(result, Entry{
			Name:         info.Name(),
			Size:         info.Size(),
			IsDir:        info.IsDir(),
			ModifiedTime: info.ModTime(),
		})
	}
	return result, nil
}

// smbPath converts a slash-separated remote path to the share's separator.
func smbPath(remotePath string) string {
	return strings.ReplaceAll(pathutil.TrimRemoteRoot(remotePath), "/", `\`)
}

func parentPath(remotePath string) string {
	trimmed := pathutil.TrimRemoteRoot(remotePath)
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return ""
	}
	return trimmed[:idx]
}
