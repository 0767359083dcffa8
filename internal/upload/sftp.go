package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/dandantas/grabber/internal/model"
)

// SFTPConfig describes a password authenticated SFTP destination.
type SFTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// DestPath is the remote file. A trailing "/" makes it a directory the
	// local base name is appended to.
	DestPath string
	Timeout  time.Duration
}

// SFTP opens a fresh connection per upload.
type SFTP struct {
	cfg SFTPConfig
}

// NewSFTP creates an SFTP destination
func NewSFTP(cfg SFTPConfig) *SFTP {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SFTP{cfg: cfg}
}

func (s *SFTP) Name() string { return "sftp" }

func (s *SFTP) Close(context.Context) error { return nil }

// ResolveDestPath returns the remote path a local file is written to.
func ResolveDestPath(dest, local string) string {
	base := filepath.Base(local)
	switch {
	case dest == "":
		return base
	case dest[len(dest)-1] == '/':
		return path.Join(dest, base)
	default:
		return dest
	}
}

func (s *SFTP) Upload(ctx context.Context, local string, run model.RunContext) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	remote := ResolveDestPath(s.cfg.DestPath, local)

	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()

	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.cfg.Timeout,
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("failed to start sftp session: %w", err)
	}
	defer client.Close()

	slog.Debug("Uploading via SFTP", "run_id", run.ID, "host", s.cfg.Host, "remote_path", remote)

	dst, err := client.Create(remote)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Error("Remote directory does not exist", "remote_path", remote)
		case errors.Is(err, os.ErrPermission):
			slog.Error("Permission denied on remote path", "remote_path", remote)
		}
		return fmt.Errorf("failed to create %s: %w", remote, err)
	}
	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write %s: %w", remote, err)
	}
	return dst.Close()
}
