package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/dkozel/graphchat/config"
	"github.com/dkozel/graphchat/errors"
)

// ReadFileTool reads a file, honoring the hidden-path globs.
type ReadFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file. Args: path (string)."
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'path' argument")
	}

	if err := t.checkReadable(path); err != nil {
		return "", err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return string(content), nil
}

func (t *ReadFileTool) checkReadable(path string) error {
	hidden, err := pathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", path)
	}
	return nil
}

// WriteFileTool replaces a file's content, honoring both the hidden and
// read-only globs.
type WriteFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Args: path (string), content (string)."
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, pathOk := args["path"].(string)
	content, contentOk := args["content"].(string)
	if !pathOk || !contentOk {
		return "", errors.New("missing or invalid 'path' or 'content' arguments")
	}

	for _, check := range []struct {
		patterns []string
		label    string
	}{
		{t.fsAccess.Hidden, "hidden"},
		{t.fsAccess.ReadOnly, "read-only"},
	} {
		restricted, err := pathRestricted(path, check.patterns)
		if err != nil {
			return "", err
		}
		if restricted {
			return "", errors.New("access denied: path '%s' is %s", path, check.label)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}
