package shell

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/anmitsu/go-shlex"
	"github.com/spf13/afero"
)

// completer offers tab completion: command names in the first position,
// paths everywhere else.
type completer struct {
	shell *Shell
}

func NewCompleter(s *Shell) readline.AutoCompleter {
	return &completer{shell: s}
}

func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	before := string(line[:pos])

	prefix := before
	commandPosition := true
	if tokens, err := shlex.Split(before, true); err == nil {
		switch {
		case strings.HasSuffix(before, " "):
			prefix = ""
			commandPosition = len(tokens) == 0
		case len(tokens) > 0:
			prefix = tokens[len(tokens)-1]
			commandPosition = len(tokens) == 1
		}
	}

	var candidates []string
	if commandPosition && !strings.Contains(prefix, "/") {
		candidates = c.commandNames()
	} else {
		candidates = c.pathEntries(prefix)
	}

	var out [][]rune
	for _, cand := range candidates {
		if strings.HasPrefix(cand, prefix) {
			out = append(out, []rune(cand[len(prefix):]))
		}
	}
	return out, len(prefix)
}

// commandNames collects everything runnable: builtins, aliases, plugin
// commands and executables on PATH.
func (c *completer) commandNames() []string {
	seen := make(map[string]bool)

	for name := range c.shell.Builtins() {
		seen[name] = true
	}
	for name := range c.shell.Aliases() {
		seen[name] = true
	}
	for _, p := range c.shell.Plugins().GetAllPlugins() {
		for name := range p.Commands {
			seen[name] = true
		}
	}

	for _, dir := range filepath.SplitList(c.shell.Getenv(EnvPath)) {
		if dir == "" {
			dir = "."
		}
		infos, err := afero.ReadDir(c.shell.fs, dir)
		if err != nil {
			continue
		}
		for _, info := range infos {
			if !info.IsDir() && info.Mode()&0111 != 0 {
				seen[info.Name()] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// pathEntries lists directory entries matching the partially typed path,
// resolved against the shell's working directory. Directories gain a
// trailing slash so completion can continue into them.
func (c *completer) pathEntries(prefix string) []string {
	dir, _ := filepath.Split(prefix)

	searchDir := dir
	if !filepath.IsAbs(searchDir) {
		searchDir = filepath.Join(c.shell.Getwd(), searchDir)
	}
	if searchDir == "" {
		searchDir = c.shell.Getwd()
	}

	infos, err := afero.ReadDir(c.shell.fs, searchDir)
	if err != nil {
		return nil
	}

	var out []string
	for _, info := range infos {
		name := dir + info.Name()
		if info.IsDir() {
			name += "/"
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
