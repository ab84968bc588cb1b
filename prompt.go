package skiff

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxIndexEntries caps the workspace file index embedded in the system
// prompt so a large workspace cannot blow up the context.
const maxIndexEntries = 200

// PromptBuilder assembles the system prompt from workspace files:
// persona, long-term memory, curated knowledge, and an index of files the
// model may read_file.
type PromptBuilder struct {
	// WorkspaceDir is the root all paths resolve against.
	WorkspaceDir string
	// PersonaFile, MemoryFile are workspace-relative; missing files are skipped.
	PersonaFile string
	MemoryFile  string
	// KnowledgeDir holds curated .md notes appended verbatim.
	KnowledgeDir string
}

// NewPromptBuilder returns a builder with the dashboard's default layout.
func NewPromptBuilder(workspace string) *PromptBuilder {
	return &PromptBuilder{
		WorkspaceDir: workspace,
		PersonaFile:  "persona.md",
		MemoryFile:   "memory.md",
		KnowledgeDir: "knowledge",
	}
}

// Build assembles the system prompt. Every section is best-effort: a missing
// persona file or empty workspace produces a smaller prompt, not an error.
func (b *PromptBuilder) Build() string {
	var sb strings.Builder

	if persona := b.readFile(b.PersonaFile); persona != "" {
		sb.WriteString(persona)
	} else {
		sb.WriteString("You are a helpful assistant with access to web search, URL fetching, and workspace files.")
	}

	if memory := b.readFile(b.MemoryFile); memory != "" {
		sb.WriteString("\n\n## Memory\n")
		sb.WriteString(memory)
	}

	if knowledge := b.readKnowledge(); knowledge != "" {
		sb.WriteString("\n\n## Knowledge\n")
		sb.WriteString(knowledge)
	}

	if index := b.fileIndex(); len(index) > 0 {
		sb.WriteString("\n\n## Workspace files\nThese files are available via read_file:\n")
		for _, p := range index {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func (b *PromptBuilder) readFile(rel string) string {
	if rel == "" || b.WorkspaceDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(b.WorkspaceDir, rel))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (b *PromptBuilder) readKnowledge() string {
	if b.KnowledgeDir == "" || b.WorkspaceDir == "" {
		return ""
	}
	dir := filepath.Join(b.WorkspaceDir, b.KnowledgeDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var parts []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// fileIndex walks the workspace and returns relative paths, sorted, capped
// at maxIndexEntries. Hidden files and directories are skipped.
func (b *PromptBuilder) fileIndex() []string {
	if b.WorkspaceDir == "" {
		return nil
	}
	var paths []string
	_ = filepath.WalkDir(b.WorkspaceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != b.WorkspaceDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.WorkspaceDir, path)
		if err != nil {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		if len(paths) >= maxIndexEntries {
			return filepath.SkipAll
		}
		return nil
	})
	sort.Strings(paths)
	return paths
}
