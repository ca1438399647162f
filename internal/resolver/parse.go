package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Server is one server declaration from the MCP configuration.
type Server struct {
	Name    string   `json:"name" yaml:"name"`
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
	Cwd     string   `json:"cwd" yaml:"cwd"`
	URL     string   `json:"url" yaml:"url"`
	// Path is set for bare path entries such as {"servers": ["a.sh"]}.
	Path string `json:"path" yaml:"path"`
}

// document is the subset of an MCP client configuration that names servers.
type document struct {
	MCPServers serverList `json:"mcpServers" yaml:"mcpServers"`
	Servers    serverList `json:"servers" yaml:"servers"`
}

// serverList decodes either an object keyed by server name or a list, keeping
// document order.
type serverList []Server

func (l *serverList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(data))
		if _, err := dec.Token(); err != nil {
			return err
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			name, _ := tok.(string)
			var s Server
			if err := dec.Decode(&s); err != nil {
				return fmt.Errorf("server %q: %w", name, err)
			}
			s.Name = name
			*l = append(*l, s)
		}
		return nil

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		for i, raw := range items {
			raw = bytes.TrimSpace(raw)
			if len(raw) > 0 && raw[0] == '"' {
				var p string
				if err := json.Unmarshal(raw, &p); err != nil {
					return err
				}
				*l = append(*l, pathServer(p))
				continue
			}
			var s Server
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("server #%d: %w", i+1, err)
			}
			*l = append(*l, s.withDefaultName(i))
		}
		return nil
	}

	return fmt.Errorf("servers must be an object or a list, got %s", firstToken(data))
}

func (l *serverList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			var s Server
			if err := node.Content[i+1].Decode(&s); err != nil {
				return fmt.Errorf("server %q: %w", name, err)
			}
			s.Name = name
			*l = append(*l, s)
		}
		return nil

	case yaml.SequenceNode:
		for i, item := range node.Content {
			if item.Kind == yaml.ScalarNode {
				*l = append(*l, pathServer(item.Value))
				continue
			}
			var s Server
			if err := item.Decode(&s); err != nil {
				return fmt.Errorf("server #%d: %w", i+1, err)
			}
			*l = append(*l, s.withDefaultName(i))
		}
		return nil

	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return nil
		}
	}

	return fmt.Errorf("line %d: servers must be a mapping or a sequence", node.Line)
}

func pathServer(p string) Server {
	return Server{Name: p, Path: p}
}

func (s Server) withDefaultName(i int) Server {
	if s.Name == "" {
		switch {
		case s.Path != "":
			s.Name = s.Path
		default:
			s.Name = fmt.Sprintf("server-%d", i+1)
		}
	}
	return s
}

func firstToken(data []byte) string {
	switch data[0] {
	case '"':
		return "a string"
	case 't', 'f':
		return "a boolean"
	default:
		return "a number"
	}
}

func topLevelKind(data []byte) string {
	switch data[0] {
	case '[':
		return "an array"
	case 'n':
		return "null"
	}
	return firstToken(data)
}

// isYAML reports whether path should be parsed as YAML rather than JSON.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ParseConfig extracts the declared servers from raw configuration bytes, in
// document order. mcpServers entries come before servers entries.
func ParseConfig(path string, data []byte) ([]Server, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("configuration is empty")
	}

	var doc document
	if isYAML(path) {
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, err
		}
		if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
			return nil, fmt.Errorf("configuration must be a mapping")
		}
		if err := root.Content[0].Decode(&doc); err != nil {
			return nil, err
		}
	} else {
		if trimmed := bytes.TrimSpace(data); trimmed[0] != '{' {
			return nil, fmt.Errorf("configuration must be a JSON object, got %s", topLevelKind(trimmed))
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	servers := make([]Server, 0, len(doc.MCPServers)+len(doc.Servers))
	servers = append(servers, doc.MCPServers...)
	servers = append(servers, doc.Servers...)
	return servers, nil
}

// Summary describes the configured servers in one line.
func Summary(servers []Server) string {
	if len(servers) == 0 {
		return "no MCP servers configured"
	}
	names := make([]string, len(servers))
	for i, s := range servers {
		names[i] = s.Name
	}
	return fmt.Sprintf("%d server(s): %s", len(servers), strings.Join(names, ", "))
}
