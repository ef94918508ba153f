package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SaveFolderPairs updates the folder_pairs section of the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveFolderPairs(configPath string, pairs []FolderPairConfig) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := setKey(&doc, "folder_pairs", buildFolderPairsNode(pairs)); err != nil {
		return err
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// AddFolderPair appends pair to the pairs in cfg and saves them.
func AddFolderPair(configPath string, existing []FolderPairConfig, pair FolderPairConfig) error {
	pairs := append(append([]FolderPairConfig{}, existing...), pair)
	if err := ValidateFolderPairs(pairs); err != nil {
		return err
	}
	return SaveFolderPairs(configPath, pairs)
}

// setKey replaces or appends a top-level key of the document.
func setKey(doc *yaml.Node, key string, value *yaml.Node) error {
	if doc.Kind == 0 {
		*doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{Kind: yaml.MappingNode},
			},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config root is not a mapping")
	}

	root := doc.Content[0]
	for i := 0; i < len(root.Content)-1; i += 2 {
		if root.Content[i].Value == key {
			root.Content[i+1] = value
			return nil
		}
	}
	root.Content = append(root.Content, scalar(key), value)
	return nil
}

func buildFolderPairsNode(pairs []FolderPairConfig) *yaml.Node {
	node := &yaml.Node{
		Kind:    yaml.SequenceNode,
		Content: make([]*yaml.Node, 0, len(pairs)),
	}

	for _, p := range pairs {
		pairNode := &yaml.Node{Kind: yaml.MappingNode}
		add := func(key, value string) {
			pairNode.Content = append(pairNode.Content, scalar(key), scalar(value))
		}
		addBool := func(key string, value bool) {
			if value {
				pairNode.Content = append(pairNode.Content,
					scalar(key), &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(value)})
			}
		}

		add("name", p.Name)
		if p.SingleFile() {
			add("local_file", p.LocalFile)
			add("remote_file", p.RemoteFile)
		} else {
			add("local", p.Local)
			add("remote", p.Remote)
		}
		if p.BackupDir != "" {
			add("backup_dir", p.BackupDir)
		}
		addBool("include_subdirectories", p.IncludeSubdirectories)
		addBool("auto_connect", p.AutoConnect)
		addBool("auto_realtime", p.AutoRealtime)

		node.Content = append(node.Content, pairNode)
	}

	return node
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

// writeAtomic writes to a temp file in the same directory, then renames.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".fsync.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
