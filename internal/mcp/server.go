package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/litterbox-sh/litterbox/internal/config"
	"github.com/litterbox-sh/litterbox/internal/logging"
	"github.com/litterbox-sh/litterbox/internal/sandbox"
)

const serverVersion = "0.3.0"

// toolHandler executes one tool call. It returns the content blocks of a
// successful call, or a JSON-RPC error.
type toolHandler func(ctx context.Context, args json.RawMessage) ([]contentBlock, *rpcError)

// tool pairs a description with its handler.
type tool struct {
	description toolDescription
	handler     toolHandler
}

// Server exposes the sandbox tool surface to agents over JSON-RPC 2.0 on
// newline-delimited stdio.
type Server struct {
	manager     *sandbox.Manager
	coordinator *Coordinator
	cfg         *config.Config

	tools       []tool
	toolsByName map[string]*tool
	initialized bool
}

// NewServer creates an MCP server over the sandbox manager. cfg supplies
// the image, setup command, and forwarded services used by the
// sandbox-create tool.
func NewServer(manager *sandbox.Manager, coordinator *Coordinator, cfg *config.Config) *Server {
	s := &Server{
		manager:     manager,
		coordinator: coordinator,
		cfg:         cfg,
	}
	s.registerTools()

	s.toolsByName = make(map[string]*tool, len(s.tools))
	for i := range s.tools {
		s.toolsByName[s.tools[i].description.Name] = &s.tools[i]
	}

	return s
}

// Serve starts the server reading from os.Stdin and writing to
// os.Stdout. This is the entry point for "litterbox stdio".
func (s *Server) Serve() error {
	return s.Run(os.Stdin, os.Stdout)
}

// Run processes JSON-RPC 2.0 requests from input and writes responses to
// output until input reaches EOF. Each request occupies a single line.
func (s *Server) Run(input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	// Tool calls can carry whole files; size the line buffer accordingly.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	encoder := json.NewEncoder(output)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			if writeErr := writeError(encoder, json.RawMessage("null"), codeParseError, "parse error: "+err.Error()); writeErr != nil {
				return writeErr
			}
			continue
		}

		if req.JSONRPC != "2.0" {
			if !req.isNotification() {
				if writeErr := writeError(encoder, req.ID, codeInvalidRequest, "unsupported JSON-RPC version"); writeErr != nil {
					return writeErr
				}
			}
			continue
		}

		// Notifications have no ID and receive no response.
		if req.isNotification() {
			continue
		}

		if err := s.dispatch(encoder, &req); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// dispatch routes a JSON-RPC request to the appropriate handler.
func (s *Server) dispatch(encoder *json.Encoder, req *request) error {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(encoder, req)
	case "ping":
		return writeResult(encoder, req.ID, map[string]any{})
	case "tools/list":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return s.handleToolsList(encoder, req)
	case "tools/call":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return s.handleToolsCall(encoder, req)
	default:
		return writeError(encoder, req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleInitialize(encoder *json.Encoder, req *request) error {
	if len(req.Params) == 0 {
		return writeError(encoder, req.ID, codeInvalidParams, "params required for initialize")
	}

	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
	}

	s.initialized = true
	logging.Debug("agent connected", "client", params.ClientInfo.Name)

	return writeResult(encoder, req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Tools: &toolCapability{},
		},
		ServerInfo: serverInfo{
			Name:    "litterbox",
			Version: serverVersion,
		},
	})
}

func (s *Server) handleToolsList(encoder *json.Encoder, req *request) error {
	descriptions := make([]toolDescription, 0, len(s.tools))
	for _, t := range s.tools {
		descriptions = append(descriptions, t.description)
	}
	return writeResult(encoder, req.ID, toolsListResult{Tools: descriptions})
}

func (s *Server) handleToolsCall(encoder *json.Encoder, req *request) error {
	if len(req.Params) == 0 {
		return writeError(encoder, req.ID, codeInvalidParams, "params required for tools/call")
	}

	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	t, ok := s.toolsByName[params.Name]
	if !ok {
		return writeError(encoder, req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}

	logging.Debug("tool call", "tool", params.Name)

	content, toolErr := t.handler(context.Background(), params.Arguments)
	if toolErr != nil {
		return writeError(encoder, req.ID, toolErr.Code, toolErr.Message)
	}

	if content == nil {
		content = []contentBlock{}
	}
	return writeResult(encoder, req.ID, toolsCallResult{Content: content})
}

func writeResult(encoder *json.Encoder, id json.RawMessage, result any) error {
	return encoder.Encode(response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(encoder *json.Encoder, id json.RawMessage, code int, message string) error {
	return encoder.Encode(response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}

func invalidParams(format string, args ...any) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func internalError(format string, args ...any) *rpcError {
	return &rpcError{Code: codeInternalError, Message: fmt.Sprintf(format, args...)}
}
