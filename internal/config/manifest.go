package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MCPServer describes one MCP server transcripts are published to. Either
// URL (websocket) or Command (stdio) must be set.
type MCPServer struct {
	Name    string            `yaml:"name" json:"name"`
	URL     string            `yaml:"url" json:"url,omitempty"`
	Command string            `yaml:"command" json:"command,omitempty"`
	Args    []string          `yaml:"args" json:"args,omitempty"`
	Env     map[string]string `yaml:"env" json:"env,omitempty"`
	Enabled *bool             `yaml:"enabled" json:"enabled,omitempty"`
}

// EnabledValue reports whether the server should be used; unset means yes.
func (s MCPServer) EnabledValue() bool { return s.Enabled == nil || *s.Enabled }

// manifest is the editor-style {"mcpServers": {...}} file.
type manifest struct {
	Servers map[string]struct {
		Transport *struct {
			Type string `json:"type"`
			URL  string `json:"url,omitempty"`
		} `json:"transport,omitempty"`
		Command string            `json:"command,omitempty"`
		Args    []string          `json:"args,omitempty"`
		Env     map[string]string `json:"env,omitempty"`
		Enabled *bool             `json:"enabled,omitempty"`
	} `json:"mcpServers"`
}

func loadManifest(readFile func(string) ([]byte, error), path string) ([]MCPServer, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read mcp manifest %s: %w", path, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parse mcp manifest %s: %w", path, err)
	}
	names := make([]string, 0, len(m.Servers))
	for name := range m.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]MCPServer, 0, len(names))
	for _, name := range names {
		s := m.Servers[name]
		srv := MCPServer{Name: name, Command: s.Command, Args: s.Args, Env: s.Env, Enabled: s.Enabled}
		if s.Transport != nil {
			srv.URL = s.Transport.URL
		}
		out = append(out, normalizeServer(srv))
	}
	return out, nil
}

// mergeServers appends extra, replacing entries with the same name.
func mergeServers(base, extra []MCPServer) []MCPServer {
	idx := make(map[string]int, len(base))
	out := append([]MCPServer(nil), base...)
	for i, s := range out {
		idx[s.Name] = i
	}
	for _, s := range extra {
		if i, ok := idx[s.Name]; ok {
			out[i] = s
			continue
		}
		idx[s.Name] = len(out)
		out = append(out, s)
	}
	return out
}

func normalizeServer(s MCPServer) MCPServer {
	if s.Command != "" {
		if v, err := expandPath(s.Command); err == nil {
			s.Command = v
		}
	}
	for i, a := range s.Args {
		if v, err := expandPath(a); err == nil {
			s.Args[i] = v
		}
	}
	return s
}

func expandPath(value string) (string, error) {
	if !strings.HasPrefix(value, "~") {
		return value, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return value, err
	}
	if value == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(value[1:], "/")), nil
}
