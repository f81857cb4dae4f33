package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kirides/daedalus-index/internal/config"
	"github.com/kirides/daedalus-index/internal/engine"
	"github.com/kirides/daedalus-index/internal/query"
	"github.com/kirides/daedalus-index/internal/renderers/summary"
)

const (
	defaultCompletionLimit = 100
	defaultContextLines    = 20
	suggestionCount        = 5
)

// Server wraps the MCP server and connects it to the index engine.
type Server struct {
	mcp   *mcp.Server
	eng   *engine.Engine
	ctl   *engine.Controller
	cfg   *config.Config
	query *query.Service
}

// New creates a new MCP server wired to the given engine. ctl may be nil,
// in which case index_status reports no controller state.
func New(eng *engine.Engine, ctl *engine.Controller, cfg *config.Config) (*Server, error) {
	s := &Server{
		eng:   eng,
		ctl:   ctl,
		cfg:   cfg,
		query: query.New(eng),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "daedalus-index",
		Version: "0.1.0",
	}, nil)

	s.registerResources()
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	log.Println("[server] starting MCP server on stdio transport")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) artifactResource(uri, name, description, mimeType, artifact string) {
	s.mcp.AddResource(&mcp.Resource{
		URI:         uri,
		Name:        name,
		Description: description,
		MIMEType:    mimeType,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		content, err := s.eng.GetArtifact(ctx, artifact)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", artifact, err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: req.Params.URI, Text: string(content), MIMEType: mimeType},
			},
		}, nil
	})
}

// registerResources adds MCP resources for index artifacts.
func (s *Server) registerResources() {
	s.artifactResource("daedalus://index/symbols", "Symbol Index",
		"All keywords, functions, constants and variables of the current index in JSONL format",
		"application/jsonl", engine.SymbolsArtifact)
	s.artifactResource("daedalus://index/summary", "Index Summary",
		"Compact markdown overview of the current index",
		"text/markdown", summary.ArtifactName)
	s.artifactResource("daedalus://index/diagnostics", "Index Diagnostics",
		"Missing files, malformed catalogs, include cycles and duplicate declarations of the last rebuild",
		"application/json", engine.DiagnosticsArtifact)
}

type rebuildArgs struct {
	Write bool `json:"write,omitempty" jsonschema:"Also write artifacts to the output directory"`
}

type statusArgs struct{}

type completeArgs struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"Case-insensitive name prefix. Empty returns everything."`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of items (default 100)"`
}

type signatureArgs struct {
	LinePrefix string `json:"line_prefix" jsonschema:"required,Text of the current line up to the cursor"`
}

// positionArgs identify a word either directly or by cursor position.
type positionArgs struct {
	Word      string `json:"word,omitempty" jsonschema:"Exact, case-sensitive function name"`
	Line      string `json:"line,omitempty" jsonschema:"Text of the line under the cursor, used when word is empty"`
	Character int    `json:"character,omitempty" jsonschema:"0-based cursor column in line"`
}

func (a positionArgs) word() string {
	if a.Word != "" {
		return a.Word
	}
	return query.WordAt(a.Line, a.Character)
}

type definitionArgs struct {
	Word         string `json:"word,omitempty" jsonschema:"Exact, case-sensitive function name"`
	Line         string `json:"line,omitempty" jsonschema:"Text of the line under the cursor, used when word is empty"`
	Character    int    `json:"character,omitempty" jsonschema:"0-based cursor column in line"`
	ContextLines int    `json:"context_lines,omitempty" jsonschema:"Number of source lines to show around the definition (default 20)"`
}

type findSymbolArgs struct {
	Name string `json:"name" jsonschema:"required,Function name, matched exactly and then case-insensitively"`
}

// registerTools adds MCP tools for rebuilding and querying the index.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rebuild_index",
		Description: "Rebuild the symbol index from the workspace manifest and publish it. Returns counts and diagnostics.",
	}, s.handleRebuild)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Show the current index generation, counts, manifest, diagnostics and rebuild state.",
	}, s.handleStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "complete",
		Description: "List completion candidates (keywords, functions, constants, variables) for a prefix.",
	}, s.handleComplete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "signature_help",
		Description: "Resolve the function call around the cursor and the active parameter index.",
	}, s.handleSignatureHelp)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hover",
		Description: "Show the signature of a function by exact name.",
	}, s.handleHover)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "definition",
		Description: "Resolve a function to its source file and line and show the surrounding code.",
	}, s.handleDefinition)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_symbol",
		Description: "Look up a function by name. Suggests close matches when nothing is found.",
	}, s.handleFindSymbol)
}

func (s *Server) handleRebuild(ctx context.Context, req *mcp.CallToolRequest, args rebuildArgs) (*mcp.CallToolResult, any, error) {
	snap, err := s.eng.Rebuild(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("rebuild failed: %v", err)), nil, nil
	}

	if args.Write {
		if err := s.eng.WriteArtifacts(ctx); err != nil {
			log.Printf("[server] warning: failed to write artifacts: %v", err)
		}
	}

	text := fmt.Sprintf(
		"Index rebuilt.\n\n"+
			"- Generation: %d\n"+
			"- Files: %d\n"+
			"- Functions: %d\n"+
			"- Keywords: %d, Constants: %d, Variables: %d\n"+
			"- Diagnostics: %d\n"+
			"- Duration: %s\n\n"+
			"Use the daedalus://index/summary resource for an overview.",
		snap.Meta.Generation,
		len(snap.Meta.Files),
		len(snap.Declarations()),
		len(snap.Keywords()), len(snap.Constants()), len(snap.Variables()),
		len(snap.Meta.Diagnostics),
		snap.Meta.Duration,
	)
	return textResult(text), nil, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest, args statusArgs) (*mcp.CallToolResult, any, error) {
	snap := s.eng.Snapshot()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Workspace: %s\n", snap.Meta.Workspace)
	fmt.Fprintf(&sb, "Generation: %d\n", snap.Meta.Generation)
	if snap.Meta.Fallback {
		sb.WriteString("Manifest: none (scanned all sources)\n")
	} else if snap.Meta.Manifest != "" {
		fmt.Fprintf(&sb, "Manifest: %s\n", snap.Meta.Manifest)
	}
	fmt.Fprintf(&sb, "Files: %d, Catalogs: %d\n", len(snap.Meta.Files), len(snap.Meta.Catalogs))
	fmt.Fprintf(&sb, "Functions: %d, Keywords: %d, Constants: %d, Variables: %d\n",
		len(snap.Declarations()), len(snap.Keywords()), len(snap.Constants()), len(snap.Variables()))
	fmt.Fprintf(&sb, "Diagnostics: %d\n", len(snap.Meta.Diagnostics))
	if snap.Meta.BuiltAt != "" {
		fmt.Fprintf(&sb, "Built: %s in %s\n", snap.Meta.BuiltAt, snap.Meta.Duration)
	}
	if s.ctl != nil {
		fmt.Fprintf(&sb, "Rebuild state: %s (builds %d, superseded %d)\n",
			s.ctl.State(), s.ctl.Builds(), s.ctl.Superseded())
	}
	return textResult(sb.String()), nil, nil
}

func (s *Server) handleComplete(ctx context.Context, req *mcp.CallToolRequest, args completeArgs) (*mcp.CallToolResult, any, error) {
	items := s.query.Completion(args.Prefix)
	total := len(items)

	limit := args.Limit
	if limit <= 0 {
		limit = defaultCompletionLimit
	}
	truncated := false
	if len(items) > limit {
		items = items[:limit]
		truncated = true
	}
	if items == nil {
		items = []query.CompletionItem{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal results: %v", err)), nil, nil
	}

	text := string(data)
	if truncated {
		text += fmt.Sprintf("\n\n... (showing %d of %d items, refine the prefix)", limit, total)
	}
	return textResult(text), nil, nil
}

func (s *Server) handleSignatureHelp(ctx context.Context, req *mcp.CallToolRequest, args signatureArgs) (*mcp.CallToolResult, any, error) {
	help, ok := s.query.SignatureHelp(args.LinePrefix)
	if !ok {
		return errorResult("No function call found before the cursor"), nil, nil
	}
	data, err := json.MarshalIndent(help, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err)), nil, nil
	}
	return textResult(string(data)), nil, nil
}

func (s *Server) handleHover(ctx context.Context, req *mcp.CallToolRequest, args positionArgs) (*mcp.CallToolResult, any, error) {
	word := args.word()
	if word == "" {
		return errorResult("word or line/character is required"), nil, nil
	}
	text, ok := s.query.Hover(word)
	if !ok {
		return errorResult(s.notFound(word)), nil, nil
	}
	return textResult(text), nil, nil
}

func (s *Server) handleDefinition(ctx context.Context, req *mcp.CallToolRequest, args definitionArgs) (*mcp.CallToolResult, any, error) {
	word := positionArgs{Word: args.Word, Line: args.Line, Character: args.Character}.word()
	if word == "" {
		return errorResult("word or line/character is required"), nil, nil
	}
	loc, ok := s.query.Definition(word)
	if !ok {
		if d, found := s.query.Lookup(word); found {
			return errorResult(fmt.Sprintf("%s is declared in %s without a source location", word, d.Source)), nil, nil
		}
		return errorResult(s.notFound(word)), nil, nil
	}

	contextLines := args.ContextLines
	if contextLines <= 0 {
		contextLines = defaultContextLines
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n", word)
	fmt.Fprintf(&sb, "File: %s  Line: %d  Column: %d\n\n", loc.Path, loc.Line, loc.Column)

	source, err := readSourceWindow(loc.Path, loc.Line+1, contextLines)
	if err != nil {
		fmt.Fprintf(&sb, "_Could not read source: %v_\n", err)
	} else {
		fmt.Fprintf(&sb, "```daedalus\n%s```\n", source)
	}
	return textResult(sb.String()), nil, nil
}

func (s *Server) handleFindSymbol(ctx context.Context, req *mcp.CallToolRequest, args findSymbolArgs) (*mcp.CallToolResult, any, error) {
	if args.Name == "" {
		return errorResult("name is required"), nil, nil
	}

	d, ok := s.query.Lookup(args.Name)
	if !ok {
		d, ok = s.eng.Snapshot().DeclarationFold(args.Name)
	}
	if !ok {
		return errorResult(s.notFound(args.Name)), nil, nil
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err)), nil, nil
	}
	return textResult(string(data)), nil, nil
}

// notFound builds a "no such function" message with close matches.
func (s *Server) notFound(name string) string {
	msg := fmt.Sprintf("No function named %q", name)
	if sugg := s.query.Suggest(name, suggestionCount); len(sugg) > 0 {
		msg += ". Did you mean: " + strings.Join(sugg, ", ") + "?"
	}
	return msg
}

// readSourceWindow reads lines from a file centered around the given 1-based line number.
func readSourceWindow(absFile string, centerLine, contextLines int) (string, error) {
	data, err := os.ReadFile(absFile)
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	startLine := centerLine - contextLines/2
	if startLine < 1 {
		startLine = 1
	}
	endLine := centerLine + contextLines/2
	if endLine > len(lines) {
		endLine = len(lines)
	}

	var sb strings.Builder
	for i := startLine; i <= endLine; i++ {
		fmt.Fprintf(&sb, "%4d│ %s\n", i, lines[i-1])
	}
	return sb.String(), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
