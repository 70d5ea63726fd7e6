// Package sshd exposes the shell over SSH so sandboxed sessions can be
// reached remotely, one independent shell instance per connection.
package sshd

import (
	"context"
	"fmt"
	"log"

	"github.com/abiosoft/readline"
	"github.com/gliderlabs/ssh"
	gossh "golang.org/x/crypto/ssh"
	"josephlewis.net/gosh/core/config"
	"josephlewis.net/gosh/core/logger"
	"josephlewis.net/gosh/core/shell"
)

type Server struct {
	configuration *config.Configuration
	logger        *logger.Logger
	sshServer     *ssh.Server
}

func New(configuration *config.Configuration, lg *logger.Logger) (*Server, error) {
	server := &Server{
		configuration: configuration,
		logger:        lg,
	}

	server.sshServer = &ssh.Server{
		Addr: fmt.Sprintf(":%d", configuration.SSH.Port),
		Handler: func(s ssh.Session) {
			server.HandleConnection(s)
		},
	}

	if keyPem, err := configuration.PrivateKeyPem(); err == nil {
		signer, err := gossh.ParsePrivateKey(keyPem)
		if err != nil {
			return nil, fmt.Errorf("sshd: bad host key: %v", err)
		}
		server.sshServer.AddHostKey(signer)
	}

	return server, nil
}

// HandleConnection runs one shell session over the SSH channel.
func (s *Server) HandleConnection(sess ssh.Session) error {
	sessionLogger := s.logger.NewSession()

	ptyInfo, winch, isPty := sess.Pty()
	windowWidth := ptyInfo.Window.Width
	go func() {
		for window := range winch {
			windowWidth = window.Width
		}
	}()

	sessionLogger.SessionStart(&logger.SessionStart{
		User:       sess.User(),
		RemoteAddr: fmt.Sprintf("%s", sess.RemoteAddr()),
		PTY:        isPty,
	})

	if banner := s.configuration.SSH.Banner; banner != "" {
		fmt.Fprintln(sess, banner)
	}

	sh := shell.New(s.configuration, sessionLogger, sess, sess, sess.Stderr())
	sh.Setenv(shell.EnvUser, sess.User())
	if ptyInfo.Term != "" {
		sh.Setenv("TERM", ptyInfo.Term)
	}
	for _, kv := range sess.Environ() {
		if split := splitEnv(kv); split != nil {
			sh.Setenv(split[0], split[1])
		}
	}

	cfg := &readline.Config{
		Stdin:  readline.NewCancelableStdin(sess),
		Stdout: sess,
		Stderr: sess.Stderr(),
		FuncGetWidth: func() int {
			return windowWidth
		},
		FuncIsTerminal: func() bool {
			return isPty
		},
		AutoComplete:    shell.NewCompleter(sh),
		InterruptPrompt: "^C",
	}
	if err := cfg.Init(); err != nil {
		sess.Exit(1)
		return err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		sess.Exit(1)
		return err
	}

	code, err := sh.RunWithReadline(rl)
	sess.Exit(code)
	return err
}

func (s *Server) ListenAndServe() error {
	log.Printf("Starting SSH server on %s", s.sshServer.Addr)
	return s.sshServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.sshServer.Shutdown(ctx)
}

func splitEnv(kv string) []string {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return []string{kv[:i], kv[i+1:]}
		}
	}
	return nil
}
