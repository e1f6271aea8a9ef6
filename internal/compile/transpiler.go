package compile

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strings"
)

// inlineMapPrefix starts the trailing comment that carries an inline source map.
const inlineMapPrefix = "//# sourceMappingURL=data:application/json;base64,"

// Result is the output of a transpiler run.
type Result struct {
	Code      string
	SourceMap []byte
}

// Transpiler turns source text of a given language into runnable JavaScript
// plus a source map.
type Transpiler interface {
	Transpile(ctx context.Context, src, lang, sourceFile string) (Result, error)
}

// CommandTranspiler runs an esbuild-compatible command, feeding the source on
// stdin and reading code with an inline source map from stdout.
type CommandTranspiler struct {
	Command string
	Args    []string
}

// NewCommandTranspiler creates a transpiler backed by command.
func NewCommandTranspiler(command string, args ...string) *CommandTranspiler {
	return &CommandTranspiler{Command: command, Args: args}
}

// loaders maps section languages to esbuild loaders.
var loaders = map[string]string{
	"":    "js",
	"js":  "js",
	"mjs": "js",
	"jsx": "jsx",
	"ts":  "ts",
	"tsx": "tsx",
}

// Transpile runs the command once for src.
func (t *CommandTranspiler) Transpile(ctx context.Context, src, lang, sourceFile string) (Result, error) {
	loader, ok := loaders[lang]
	if !ok {
		return Result{}, fmt.Errorf("cannot compile language %q", lang)
	}

	args := append([]string{}, t.Args...)
	args = append(args,
		"--loader="+loader,
		"--sourcemap=inline",
		"--sourcefile="+sourceFile,
		"--format=esm",
	)

	cmd := exec.CommandContext(ctx, t.Command, args...)
	cmd.Stdin = strings.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("%s failed: %w: %s", t.Command, err, strings.TrimSpace(stderr.String()))
	}

	code, sourceMap, err := splitInlineMap(stdout.String())
	if err != nil {
		return Result{}, fmt.Errorf("%s output: %w", t.Command, err)
	}
	return Result{Code: code, SourceMap: sourceMap}, nil
}

// splitInlineMap separates code from its trailing inline source map comment.
func splitInlineMap(out string) (code string, sourceMap []byte, err error) {
	idx := strings.LastIndex(out, inlineMapPrefix)
	if idx < 0 {
		return out, nil, nil
	}
	encoded := strings.TrimSpace(out[idx+len(inlineMapPrefix):])
	sourceMap, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decoding inline source map: %w", err)
	}
	return strings.TrimRight(out[:idx], "\n"), sourceMap, nil
}
