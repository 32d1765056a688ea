// Package exportcmder provides the export command, which writes every live
// memory as JSON or YAML.
package exportcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

type exportCommander struct {
	format string
	output string
}

// Document is the export file layout.
type Document struct {
	ExportedAt time.Time `json:"exported_at" yaml:"exported_at"`
	Count      int       `json:"count" yaml:"count"`
	Memories   []Memory  `json:"memories" yaml:"memories"`
	Scratchpad string    `json:"scratchpad,omitempty" yaml:"scratchpad,omitempty"`
}

// Memory is one exported memory. Empty optional fields are left out.
type Memory struct {
	ID              string     `json:"id" yaml:"id"`
	Type            string     `json:"type" yaml:"type"`
	Priority        string     `json:"priority" yaml:"priority"`
	Content         string     `json:"content" yaml:"content"`
	Subject         string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	Predicate       string     `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	ImportanceScore float64    `json:"importance_score" yaml:"importance_score"`
	Confidence      float64    `json:"confidence" yaml:"confidence"`
	AccessCount     int        `json:"access_count" yaml:"access_count"`
	Tags            []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Source          string     `json:"source,omitempty" yaml:"source,omitempty"`
	SourceEpisodeID string     `json:"source_episode_id,omitempty" yaml:"source_episode_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" yaml:"updated_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

const exportLongDesc string = `Export every live memory.

Writes the memories, most important first, and the scratchpad as JSON or
YAML to stdout or to the file given with --output.

Examples:
  mnemo export > memories.json
  mnemo export --format yaml --output memories.yaml`

const exportShortDesc string = "Export memories as JSON or YAML"

func NewExportCmd() *cobra.Command {
	cmder := &exportCommander{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: exportShortDesc,
		Long:  exportLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.format, "format", "f", formatJSON, "Output format (json or yaml)")
	cmd.Flags().StringVarP(&cmder.output, "output", "o", "", "Write to this file instead of stdout")
	engine.AddFlags(cmd)

	return cmd
}

func (c *exportCommander) run(cmd *cobra.Command) error {
	if c.format != formatJSON && c.format != formatYAML {
		return fmt.Errorf("unknown export format %q, use %s or %s", c.format, formatJSON, formatYAML)
	}

	e, err := engine.Open(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	doc := NewDocument(e.Manager.Memories(), time.Now().UTC())
	pad, err := e.Manager.Scratchpad(cmd.Context())
	if err != nil {
		return err
	}
	if pad != nil {
		doc.Scratchpad = pad.ToMarkdown()
	}

	out := cmd.OutOrStdout()
	if c.output != "" {
		f, err := os.OpenFile(c.output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return Encode(out, c.format, doc)
}

// NewDocument builds an export document from mems.
func NewDocument(mems []*memory.SemanticMemory, now time.Time) *Document {
	doc := &Document{ExportedAt: now, Count: len(mems), Memories: make([]Memory, 0, len(mems))}
	for _, m := range mems {
		doc.Memories = append(doc.Memories, Memory{
			ID:              m.ID,
			Type:            string(m.Type),
			Priority:        string(m.Priority),
			Content:         m.Content,
			Subject:         m.Subject,
			Predicate:       m.Predicate,
			ImportanceScore: m.ImportanceScore,
			Confidence:      m.Confidence,
			AccessCount:     m.AccessCount,
			Tags:            m.Tags,
			Source:          m.Source,
			SourceEpisodeID: m.SourceEpisodeID,
			CreatedAt:       m.CreatedAt,
			UpdatedAt:       m.UpdatedAt,
			ExpiresAt:       m.ExpiresAt,
		})
	}
	return doc
}

// Encode writes doc to w in the given format.
func Encode(w io.Writer, format string, doc *Document) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
}
