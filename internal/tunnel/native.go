package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/arung-agamani/pgtun/internal/logger"
	"github.com/arung-agamani/pgtun/internal/port"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// defaultIdentities are tried in order when no identity file is given.
var defaultIdentities = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// NativeLauncher forwards in-process over a golang.org/x/crypto/ssh client.
// It is used when the tunnel URL carries a password, which the system ssh
// client cannot accept non-interactively.
type NativeLauncher struct {
	AllowAgent      bool
	InsecureHostKey bool
	KnownHostsFile  string // defaults to ~/.ssh/known_hosts
	DialTimeout     time.Duration
	// PromptPassword is consulted when no other method is configured and for
	// encrypted identity files. Nil disables prompting.
	PromptPassword func(prompt string) (string, error)
	Log            logrus.FieldLogger
}

func (l *NativeLauncher) Launch(ctx context.Context, spec Spec) (Forwarder, error) {
	timeout := l.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	addr := spec.Bastion.Address()

	// conn is set before the handshake can call the prompt.
	var conn net.Conn
	prompt := func(p string) (string, error) {
		// Time spent typing does not count against the handshake.
		_ = conn.SetDeadline(time.Time{})
		defer func() { _ = conn.SetDeadline(time.Now().Add(timeout)) }()
		return l.PromptPassword(p)
	}
	cfg, agentConn, err := l.clientConfig(spec, prompt)
	if err != nil {
		return nil, err
	}
	closeAgent := func() {
		if agentConn != nil {
			agentConn.Close()
		}
	}

	d := net.Dialer{Timeout: timeout, KeepAlive: 5 * time.Second}
	conn, err = d.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeAgent()
		return nil, fmt.Errorf("dial bastion %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))
	unwatch := context.AfterFunc(ctx, func() { conn.Close() })

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		unwatch()
		conn.Close()
		closeAgent()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ssh handshake with %s: %w", addr, context.Cause(ctx))
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	if !unwatch() {
		c.Close()
		closeAgent()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, context.Cause(ctx))
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	ln, err := net.Listen("tcp", net.JoinHostPort(port.LoopbackHost, strconv.Itoa(spec.LocalPort)))
	if err != nil {
		client.Close()
		closeAgent()
		return nil, fmt.Errorf("listen on local port %d: %w", spec.LocalPort, err)
	}

	log := l.Log
	if log == nil {
		log = logger.Discard()
	}
	f := &nativeForwarder{
		client: client,
		agent:  agentConn,
		ln:     ln,
		remote: spec.RemoteAddress(),
		log:    log.WithField("package", "tunnel"),
		done:   make(chan struct{}),
	}
	go f.serve()
	go func() {
		err := client.Wait()
		f.fail(err)
	}()
	return f, nil
}

// clientConfig builds the auth chain. The returned agent connection, if any,
// belongs to the caller. prompt asks for the account password during the
// handshake.
func (l *NativeLauncher) clientConfig(spec Spec, prompt func(string) (string, error)) (*ssh.ClientConfig, net.Conn, error) {
	u := spec.Bastion.User
	if u == "" {
		u = currentUser()
	}

	var (
		methods   []ssh.AuthMethod
		agentConn net.Conn
	)
	fail := func(err error) (*ssh.ClientConfig, net.Conn, error) {
		if agentConn != nil {
			agentConn.Close()
		}
		return nil, nil, err
	}

	if spec.Bastion.Password != "" {
		methods = append(methods, ssh.Password(spec.Bastion.Password))
	}
	if l.AllowAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if ac, err := net.Dial("unix", sock); err == nil {
				agentConn = ac
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(ac).Signers))
			}
		}
	}
	signers, err := l.identitySigners(spec.IdentityFile)
	if err != nil {
		return fail(err)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if spec.Bastion.Password == "" && l.PromptPassword != nil {
		text := fmt.Sprintf("%s@%s's password: ", u, spec.Bastion.Host)
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			return prompt(text)
		}))
	}
	if len(methods) == 0 {
		return fail(errors.New("no ssh authentication method available"))
	}

	hostKey, err := l.hostKeyCallback()
	if err != nil {
		return fail(err)
	}
	return &ssh.ClientConfig{
		User:            u,
		Auth:            methods,
		HostKeyCallback: hostKey,
	}, agentConn, nil
}

func (l *NativeLauncher) identitySigners(explicit string) ([]ssh.Signer, error) {
	var candidates []string
	if explicit != "" {
		candidates = []string{expandHome(explicit)}
	} else if home, err := os.UserHomeDir(); err == nil {
		for _, name := range defaultIdentities {
			candidates = append(candidates, filepath.Join(home, ".ssh", name))
		}
	}

	var signers []ssh.Signer
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit != "" {
				return nil, fmt.Errorf("read identity file: %w", err)
			}
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && l.PromptPassword != nil {
			pass, perr := l.PromptPassword(fmt.Sprintf("Enter passphrase for key '%s': ", path))
			if perr != nil {
				return nil, perr
			}
			signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(pass))
		}
		if err != nil {
			if explicit != "" {
				return nil, fmt.Errorf("parse identity file %s: %w", path, err)
			}
			continue
		}
		signers = append(signers, signer)
	}
	return signers, nil
}

func (l *NativeLauncher) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if l.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := l.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(expandHome(file))
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

type nativeForwarder struct {
	client *ssh.Client
	agent  net.Conn // nil without ssh-agent
	ln     net.Listener
	remote string
	log    logrus.FieldLogger

	mu      sync.Mutex
	lastErr error
	once    sync.Once
	done    chan struct{}
}

func (f *nativeForwarder) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			f.fail(err)
			return
		}
		go f.forward(conn)
	}
}

func (f *nativeForwarder) forward(local net.Conn) {
	remote, err := f.client.Dial("tcp", f.remote)
	if err != nil {
		f.log.WithFields(logrus.Fields{"remote": f.remote, "error": err}).Warn("ssh dial through bastion failed")
		f.record(err)
		local.Close()
		return
	}
	bidirectionalCopy(local, remote)
}

func bidirectionalCopy(a, b net.Conn) {
	done := make(chan struct{}, 2)
	cp := func(dst, src net.Conn) {
		defer func() { done <- struct{}{} }()
		_, _ = io.Copy(dst, src)
	}
	go cp(a, b)
	go cp(b, a)
	<-done
	a.Close()
	b.Close()
	<-done
}

func (f *nativeForwarder) record(err error) {
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
}

// fail shuts everything down once; err is kept for diagnostics.
func (f *nativeForwarder) fail(err error) {
	f.once.Do(func() {
		if err != nil && !errors.Is(err, net.ErrClosed) {
			f.record(err)
		}
		f.ln.Close()
		f.client.Close()
		if f.agent != nil {
			f.agent.Close()
		}
		close(f.done)
	})
}

func (f *nativeForwarder) Done() <-chan struct{} { return f.done }

func (f *nativeForwarder) Terminate() error {
	f.fail(nil)
	return nil
}

func (f *nativeForwarder) Kill() error { return f.Terminate() }

func (f *nativeForwarder) Diagnostics() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr == nil {
		return ""
	}
	return f.lastErr.Error()
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func expandHome(p string) string {
	if len(p) > 1 && p[0] == '~' && (p[1] == '/' || p[1] == filepath.Separator) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
