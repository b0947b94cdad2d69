// Package logging routes diagnostic output to a file so the terminal stays
// reserved for styled chat output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPath is where the chat binary writes its log unless configured
// otherwise.
const DefaultPath = ".graphchat/logs/graphchat.log"

var root = logrus.New()

func init() {
	root.SetOutput(io.Discard)
	root.SetFormatter(plainFormatter{})
}

// Setup directs all log output to the file at path, creating parent
// directories as needed. The returned closer releases the file.
func Setup(path string) (io.Closer, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	root.SetOutput(f)
	return f, nil
}

// SetLevel adjusts the root logger verbosity.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}

// Named returns an entry tagged with a component field.
func Named(component string) *logrus.Entry {
	entry := logrus.NewEntry(root)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return entry
}

// plainFormatter renders "[timestamp] [LEVEL] [component] message k=v ...".
type plainFormatter struct{}

func (plainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	parts := []string{
		fmt.Sprintf("[%s]", entry.Time.UTC().Format(time.RFC3339)),
		fmt.Sprintf("[%s]", strings.ToUpper(entry.Level.String())),
	}
	if component, ok := entry.Data["component"].(string); ok && component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	parts = append(parts, entry.Message)
	if fields := formatFields(entry.Data); fields != "" {
		parts = append(parts, fields)
	}
	return []byte(strings.Join(parts, " ") + "\n"), nil
}

func formatFields(data logrus.Fields) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "component" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}
