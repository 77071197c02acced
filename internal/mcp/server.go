package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/formcheck/internal/classifier"
	"github.com/a3tai/formcheck/internal/config"
	"github.com/a3tai/formcheck/internal/descriptions"
	"github.com/a3tai/formcheck/internal/engine"
	"github.com/a3tai/formcheck/internal/report"
	"github.com/a3tai/formcheck/internal/source"
	"github.com/a3tai/formcheck/internal/template"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	engine    *engine.Engine
	loader    *source.Loader
	logger    *slog.Logger
	mcpServer *server.MCPServer

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, eng *engine.Engine, loader *source.Loader, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if loader == nil {
		return nil, errors.New("loader cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:    cfg,
		engine:    eng,
		loader:    loader,
		logger:    logger,
		mcpServer: mcpServer,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	classifyTool := mcp.NewTool(
		"form_classify",
		mcp.WithDescription(descriptions.GetToolDescription("form_classify")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the scanned form (PDF or image), relative to the document directory"),
		),
	)
	s.mcpServer.AddTool(classifyTool, s.handleClassify)

	validateTool := mcp.NewTool(
		"form_validate",
		mcp.WithDescription(descriptions.GetToolDescription("form_validate")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the scanned form (PDF or image), relative to the document directory"),
		),
		mcp.WithString("form_type",
			mcp.Description("Form type to validate against; classified automatically when empty"),
		),
	)
	s.mcpServer.AddTool(validateTool, s.handleValidate)

	templatesTool := mcp.NewTool(
		"form_templates",
		mcp.WithDescription(descriptions.GetToolDescription("form_templates")),
	)
	s.mcpServer.AddTool(templatesTool, s.handleTemplates)

	infoTool := mcp.NewTool(
		"form_server_info",
		mcp.WithDescription(descriptions.GetToolDescription("form_server_info")),
	)
	s.mcpServer.AddTool(infoTool, s.handleServerInfo)
}

// Handler functions
func (s *Server) handleClassify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	pages, err := s.loader.Load(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.engine.Classify(ctx, pages)
	s.logger.Info("form classified", "path", path, "form_type", result.FormType, "confidence", result.Confidence)

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatClassification(path, result) + "\nResult:\n" + string(body)), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	formType := ""
	if ft, ok := request.GetArguments()["form_type"].(string); ok {
		formType = strings.TrimSpace(ft)
	}

	pages, err := s.loader.Load(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var rep *report.FormReport
	if formType == "" {
		rep = s.engine.Process(ctx, pages)
	} else {
		rep = s.engine.Validate(ctx, template.FormType(formType), pages)
	}
	s.logger.Info("form validated", "path", path, "status", rep.Status, "form_type", rep.FormType)

	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatReport(path, rep) + "\nReport:\n" + string(body)), nil
}

func (s *Server) handleTemplates(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatTemplates(s.engine.Store())), nil
}

func (s *Server) handleServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.formatServerInfo()), nil
}

// Formatting functions
func formatClassification(path string, result classifier.Result) string {
	text := fmt.Sprintf("Classification for: %s\n", path)
	text += fmt.Sprintf("Form type: %s\n", result.FormType)
	if result.Template != "" {
		text += fmt.Sprintf("Template: %s\n", result.Template)
	}
	text += fmt.Sprintf("Confidence: %.2f\n", result.Confidence)

	if len(result.Alternatives) > 0 {
		text += "Alternatives:\n"
		for i, alt := range result.Alternatives {
			text += fmt.Sprintf("  %d. %s (%s) %.2f\n", i+1, alt.Template, alt.FormType, alt.Confidence)
		}
	}
	return text
}

func formatReport(path string, rep *report.FormReport) string {
	text := fmt.Sprintf("Validation for: %s\n", path)
	text += fmt.Sprintf("Status: %s\n", rep.Status)
	text += fmt.Sprintf("Form type: %s\n", rep.FormType)
	if rep.Template != "" {
		text += fmt.Sprintf("Template: %s\n", rep.Template)
	}
	if rep.Message != "" {
		text += fmt.Sprintf("Message: %s\n", rep.Message)
	}
	text += fmt.Sprintf("Pages: %d\n", rep.TotalPages)

	if len(rep.Sections) > 0 {
		text += fmt.Sprintf("Sections filled: %d of %d\n", rep.FilledCount(), len(rep.Sections))
		for _, name := range rep.SectionNames() {
			sr := rep.Sections[name]
			mark := "empty"
			if sr.Filled {
				mark = "filled"
			}
			line := fmt.Sprintf("  - %s [%s, page %d]: %s", name, sr.SectionType, sr.Page, mark)
			if sr.Error != "" {
				line += " (" + sr.Error + ")"
			}
			text += line + "\n"
		}
		text += fmt.Sprintf("SIP details filled: %t\n", rep.SIPDetailsFilled)
		text += fmt.Sprintf("OTM details filled: %t\n", rep.OTMDetailsFilled)
	}
	if rep.Schemes != nil {
		text += fmt.Sprintf("Schemes filled: %d of %d\n", rep.Schemes.Filled, rep.Schemes.Total)
	}
	if rep.AttachedSIP != nil {
		if rep.AttachedSIP.Found {
			text += fmt.Sprintf("Attached SIP form: page %d\n", rep.AttachedSIP.Page)
		} else {
			text += "Attached SIP form: none\n"
		}
	}
	return text
}

func formatTemplates(store *template.Store) string {
	if store.Len() == 0 {
		return "No templates loaded\n"
	}

	text := fmt.Sprintf("Templates (%d):\n", store.Len())
	for _, t := range store.All() {
		text += fmt.Sprintf("\n• %s\n", t.Name)
		text += fmt.Sprintf("  Form type: %s\n", t.FormType)
		text += fmt.Sprintf("  Pages: %v\n", t.Pages())
		for _, sec := range t.Sections {
			text += fmt.Sprintf("  - %s (%s, page %d)\n", sec.Name, sec.Type, sec.Page)
		}
	}
	return text
}

func (s *Server) formatServerInfo() string {
	cfg := s.engine.Config()
	health := s.engine.Stability().Health()

	text := fmt.Sprintf("%s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	text += fmt.Sprintf("Document directory: %s\n", s.config.DocumentDirectory)
	text += fmt.Sprintf("Template directory: %s\n", s.config.TemplateDirectory)
	text += fmt.Sprintf("Max file size: %d MB\n", s.config.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("Supported files: %s\n", strings.Join(source.Extensions(), ", "))
	text += fmt.Sprintf("Acceptance threshold: %.2f\n", cfg.AcceptThreshold)
	text += fmt.Sprintf("Workers: %d\n", cfg.Workers)

	text += fmt.Sprintf("\nTemplates loaded: %d\n", s.engine.Store().Len())
	for _, ft := range s.engine.Store().FormTypes() {
		text += fmt.Sprintf("  • %s\n", ft)
	}

	text += "\nHealth:\n"
	text += fmt.Sprintf("  Healthy: %t\n", health.Healthy)
	text += fmt.Sprintf("  Recovered panics: %d\n", health.PanicCount)
	text += fmt.Sprintf("  Operation timeout: %s\n", health.Timeout)
	text += fmt.Sprintf("  Peak heap: %d MB\n", health.Memory.MaxAlloc/(1024*1024))

	text += "\nAvailable tools:\n"
	for _, name := range descriptions.GetAllToolNames() {
		text += fmt.Sprintf("  • %s\n", name)
	}
	return text
}

// Run serves MCP over standard I/O until ctx is done or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsDebug() {
		s.logger.Debug("starting MCP server in stdio mode",
			"documents", s.config.DocumentDirectory,
			"templates", s.engine.Store().Len())
	}

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, s.stdin, s.stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
