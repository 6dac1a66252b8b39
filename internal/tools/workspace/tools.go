package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mindrian/internal/tools"
)

// Prefix is prepended to every tool name exposed to the reasoning backend.
const Prefix = "mcp__mindrian__"

// Tool names as the backend sees them.
const (
	ListDocuments       = Prefix + "list_documents"
	SearchDocuments     = Prefix + "search_documents"
	GetWorkspaceSummary = Prefix + "get_workspace_summary"
	CreateDocument      = Prefix + "create_document"
	ReadDocument        = Prefix + "read_document"
	OpenDocument        = Prefix + "open_document"
	EditDocument        = Prefix + "edit_document"
	DeleteDocument      = Prefix + "delete_document"
)

// Confirmable lists the tools that change workspace state.
var Confirmable = []string{CreateDocument, EditDocument, DeleteDocument}

type searchArgs struct {
	Query string `json:"query" jsonschema:"description=Search query to match against document titles,required"`
}

type createArgs struct {
	Title string `json:"title" jsonschema:"description=The title for the new document,required"`
}

type documentArgs struct {
	DocumentID string `json:"document_id" jsonschema:"description=The ID of the document,required"`
}

type blockProps struct {
	Level         int    `json:"level,omitempty" jsonschema:"description=Heading level 1-6"`
	Checked       bool   `json:"checked,omitempty"`
	Language      string `json:"language,omitempty"`
	TextAlignment string `json:"textAlignment,omitempty" jsonschema:"enum=left|center|right"`
}

type block struct {
	Type    string     `json:"type" jsonschema:"enum=paragraph|heading|bulletListItem|numberedListItem|checkListItem|codeBlock|quote"`
	Props   blockProps `json:"props,omitempty"`
	Content string     `json:"content,omitempty"`
}

type operation struct {
	Type    string         `json:"type" jsonschema:"description=Operation type,required,enum=insert_block|delete_block|update_block|append_block|convert_block"`
	BlockID string         `json:"block_id,omitempty" jsonschema:"description=Block ID for delete_block and update_block and convert_block"`
	AfterID string         `json:"after_id,omitempty" jsonschema:"description=Block ID to insert after for insert_block"`
	ToType  string         `json:"to_type,omitempty" jsonschema:"description=Target block type for convert_block"`
	Block   *block         `json:"block,omitempty"`
	Props   map[string]any `json:"props,omitempty" jsonschema:"description=Props for update_block or convert_block"`
	Content string         `json:"content,omitempty" jsonschema:"description=New content for update_block"`
}

type editArgs struct {
	DocumentID string      `json:"document_id" jsonschema:"description=The ID of the document to edit,required"`
	Operations []operation `json:"operations" jsonschema:"description=List of operations to apply,required"`
}

const editDescription = `Edit a document with block operations. Confirmation is built-in, call directly.

Block types: paragraph, heading, bulletListItem, numberedListItem, checkListItem, codeBlock, quote

Block props by type:
- heading: level (1-6, default 1)
- checkListItem: checked (true/false, default false)
- codeBlock: language (string, default "text")
- all blocks: textAlignment ("left", "center", "right")

Operations:
- append_block: Add block at end of document
- insert_block: Add block after specific block_id (use after_id)
- update_block: Modify existing block content/props (use block_id)
- delete_block: Remove block (use block_id)
- convert_block: Change block type preserving content (use block_id, to_type, props)`

// DocumentTool forwards a single tool call to the workspace backend.
type DocumentTool struct {
	tools.BaseTool
	client   *Client
	endpoint string
	action   string
	fields   []string
}

// Execute implements tools.Tool. Backend failures are reported as error
// results so the reasoning backend can recover conversationally.
func (t *DocumentTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	payload := make(map[string]any, len(t.fields))
	for _, f := range t.fields {
		v, ok := args[f]
		if !ok {
			return tools.NewErrorResult(fmt.Sprintf("Error: missing required argument %q", f)), nil
		}
		payload[f] = v
	}

	cc, _ := tools.CallContextFrom(ctx)
	data, err := t.client.Call(ctx, t.endpoint, cc.UserID, cc.WorkspaceID, payload)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return tools.NewErrorResult(fmt.Sprintf("Failed to %s: %s", t.action, se.Body)), nil
		}
		return tools.NewErrorResult("Error: " + err.Error()), nil
	}
	return tools.NewSuccessResult(formatSuccess(data)), nil
}

func formatSuccess(data any) string {
	switch v := data.(type) {
	case map[string]any:
		out, err := json.MarshalIndent(v, "", "  ")
		if err == nil {
			return string(out)
		}
	case string:
		return v
	}
	out, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(out)
}

func newTool(c *Client, endpoint, description, action string, args any, fields ...string) *DocumentTool {
	return &DocumentTool{
		BaseTool: tools.BaseTool{
			ToolName:        Prefix + endpoint,
			ToolDescription: description,
			ToolParameters:  tools.BuildSchema(args),
		},
		client:   c,
		endpoint: endpoint,
		action:   action,
		fields:   fields,
	}
}

// Tools returns the workspace document tools bound to c.
func Tools(c *Client) []tools.Tool {
	return []tools.Tool{
		newTool(c, "list_documents", "List all documents in the user's workspace",
			"list documents", struct{}{}),
		newTool(c, "search_documents", "Search documents by title",
			"search documents", searchArgs{}, "query"),
		newTool(c, "get_workspace_summary", "Get a summary of the current workspace",
			"get workspace summary", struct{}{}),
		newTool(c, "create_document", "Create a new document. Confirmation is built-in, so call directly without asking.",
			"create document", createArgs{}, "title"),
		newTool(c, "read_document", "Read the content of a document",
			"read document", documentArgs{}, "document_id"),
		newTool(c, "open_document", "Open a document in the user's editor. Use this to show the user a relevant document.",
			"open document", documentArgs{}, "document_id"),
		newTool(c, "edit_document", editDescription,
			"edit document", editArgs{}, "document_id", "operations"),
		newTool(c, "delete_document", "Delete a document. Confirmation is built-in, so call directly without asking.",
			"delete document", documentArgs{}, "document_id"),
	}
}

// Register adds the workspace tools to r.
func Register(r *tools.Registry, c *Client) error {
	for _, t := range Tools(c) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
