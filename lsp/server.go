// Package lsp serves a workspace index to editors over the Language
// Server Protocol: JSON-RPC 2.0 messages framed by Content-Length
// headers, normally on stdin and stdout.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/log"
	"github.com/ardnew/lgen/pkg"
	"github.com/ardnew/lgen/workspace"
)

// DefaultExpandLimit is the number of renderings returned by lgen/expand
// when the request does not say.
const DefaultExpandLimit = 10

var (
	ErrFraming = lang.NewError("invalid message framing")
	ErrWrite   = lang.NewError("failed to write message")
	// ErrExit is returned by [Server.Run] on an exit notification that
	// was not preceded by a shutdown request.
	ErrExit = lang.NewError("exit without shutdown")
)

// Server is a language server for LG files.
type Server struct {
	root   string
	watch  bool
	logger log.Logger

	conn        *conn
	index       *workspace.Index
	initialized bool
	shutdown    bool
}

// Option configures a [Server].
type Option func(*Server)

// WithRoot sets the workspace directory. It overrides the root sent by
// the client.
func WithRoot(dir string) Option {
	return func(s *Server) { s.root = dir }
}

// WithWatch makes the server follow file system changes under the root.
func WithWatch(watch bool) Option {
	return func(s *Server) { s.watch = watch }
}

// WithLogger sets the logger. It must not write to the server's output.
func WithLogger(logger log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New returns a server.
func New(opts ...Option) *Server {
	s := &Server{logger: log.Default()}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Serve runs the server on stdin and stdout.
func (s *Server) Serve(ctx context.Context) error {
	return s.Run(ctx, os.Stdin, os.Stdout)
}

// Run reads requests from input and writes responses and notifications
// to output until the client sends exit, input ends, or ctx is done.
func (s *Server) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.conn = newConn(input, output)

	defer func() {
		if s.index != nil {
			_ = s.index.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		body, err := s.conn.read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		var req request
		if err := json.Unmarshal(body, &req); err != nil {
			if err := s.conn.error(json.RawMessage("null"), codeParseError, "parse error: "+err.Error()); err != nil {
				return err
			}

			continue
		}

		if req.JSONRPC != "2.0" {
			if !req.isNotification() {
				if err := s.conn.error(req.ID, codeInvalidRequest, "unsupported JSON-RPC version"); err != nil {
					return err
				}
			}

			continue
		}

		if req.Method == "exit" {
			if !s.shutdown {
				return ErrExit
			}

			return nil
		}

		if req.isNotification() {
			s.notification(ctx, &req)

			continue
		}

		if err := s.dispatch(ctx, &req); err != nil {
			return err
		}
	}
}

// dispatch answers a request.
func (s *Server) dispatch(ctx context.Context, req *request) error {
	s.logger.Trace("request", slog.String("method", req.Method), slog.String("id", string(req.ID)))

	if req.Method == "initialize" {
		result, rerr := s.initialize(req.Params)

		return s.reply(req, result, rerr)
	}

	if !s.initialized {
		return s.conn.error(req.ID, codeNotInitialized, "server not initialized (call initialize first)")
	}

	if s.shutdown {
		return s.conn.error(req.ID, codeInvalidRequest, "server is shutting down")
	}

	var (
		result any
		rerr   *rpcError
	)

	switch req.Method {
	case "shutdown":
		s.shutdown = true

	case "textDocument/completion":
		result, rerr = s.withPosition(req.Params, s.completion)

	case "textDocument/hover":
		result, rerr = s.withPosition(req.Params, s.hover)

	case "textDocument/definition":
		result, rerr = s.withPosition(req.Params, s.definition)

	case "textDocument/signatureHelp":
		result, rerr = s.withPosition(req.Params, s.signatureHelp)

	case "textDocument/foldingRange":
		result, rerr = s.foldingRange(req.Params)

	case "workspace/executeCommand":
		result, rerr = s.executeCommand(req.Params)

	case "lgen/expand":
		result, rerr = s.expand(req.Params)

	default:
		rerr = &rpcError{Code: codeMethodNotFound, Message: "unknown method: " + req.Method}
	}

	return s.reply(req, result, rerr)
}

func (s *Server) reply(req *request, result any, rerr *rpcError) error {
	if rerr != nil {
		s.logger.Debug("request failed",
			slog.String("method", req.Method),
			slog.Int("code", rerr.Code),
			slog.String("message", rerr.Message))

		return s.conn.error(req.ID, rerr.Code, rerr.Message)
	}

	return s.conn.result(req.ID, result)
}

// notification handles a message that expects no response.
func (s *Server) notification(ctx context.Context, req *request) {
	s.logger.Trace("notification", slog.String("method", req.Method))

	if !s.initialized || s.shutdown {
		return
	}

	var err error

	switch req.Method {
	case "initialized":
		if s.watch {
			go func() {
				if err := s.index.Watch(ctx); err != nil {
					s.logger.Error("watch workspace", slog.Any("error", err))
				}
			}()
		}

	case "textDocument/didOpen":
		var p didOpenParams
		if err = decode(req.Params, &p); err == nil {
			err = s.withPath(p.TextDocument.URI, func(path string) { s.index.Open(path, p.TextDocument.Text) })
		}

	case "textDocument/didChange":
		var p didChangeParams
		if err = decode(req.Params, &p); err == nil && len(p.ContentChanges) > 0 {
			text := p.ContentChanges[len(p.ContentChanges)-1].Text
			err = s.withPath(p.TextDocument.URI, func(path string) { s.index.Change(path, text) })
		}

	case "textDocument/didSave":
		var p didSaveParams
		if err = decode(req.Params, &p); err == nil {
			err = s.withPath(p.TextDocument.URI, func(path string) {
				if p.Text != nil {
					s.index.Change(path, *p.Text)
				}

				s.index.Save(path)
			})
		}

	case "textDocument/didClose":
		var p didCloseParams
		if err = decode(req.Params, &p); err == nil {
			err = s.withPath(p.TextDocument.URI, s.index.CloseFile)
		}

	case "workspace/didChangeWatchedFiles":
		var p didChangeWatchedFilesParams
		if err = decode(req.Params, &p); err == nil {
			for _, c := range p.Changes {
				var apply func(string)

				switch c.Type {
				case fileCreated:
					apply = s.index.Create
				case fileChanged:
					apply = s.index.Save
				case fileDeleted:
					apply = s.index.Delete
				default:
					continue
				}

				err = errors.Join(err, s.withPath(c.URI, apply))
			}
		}
	}

	if err != nil {
		s.logger.Warn("notification failed",
			slog.String("method", req.Method),
			slog.Any("error", err))
	}
}

func (s *Server) initialize(params json.RawMessage) (any, *rpcError) {
	if s.initialized {
		return nil, &rpcError{Code: codeInvalidRequest, Message: "server already initialized"}
	}

	var p initializeParams
	if err := decode(params, &p); err != nil {
		return nil, invalidParams("initialize", err)
	}

	root := s.root
	if root == "" && p.RootURI != "" {
		path, err := workspace.Path(p.RootURI)
		if err != nil {
			return nil, invalidParams("initialize", err)
		}

		root = path
	}

	if root == "" {
		root = p.RootPath
	}

	if root == "" {
		root = "."
	}

	s.index = workspace.New(root,
		workspace.WithPublisher(s),
		workspace.WithLogger(s.logger))

	if err := s.index.Scan(context.Background()); err != nil {
		s.logger.Warn("scan workspace", slog.Any("error", err))
	}

	s.initialized = true

	s.logger.Info("language server initialized",
		slog.String("root", s.index.Root()),
		slog.Int("files", len(s.index.Paths())))

	return initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    1,
				Save:      saveOptions{IncludeText: true},
			},
			CompletionProvider:     completionOptions{TriggerCharacters: []string{"{", ".", "@", "-"}},
			HoverProvider:          true,
			DefinitionProvider:     true,
			SignatureHelpProvider:  signatureHelpOptions{TriggerCharacters: []string{"(", ","}},
			FoldingRangeProvider:   true,
			ExecuteCommandProvider: executeCommandOptions{Commands: []string{commandOnEnter}},
		},
		ServerInfo: serverInfo{Name: pkg.Name, Version: pkg.Version},
	}, nil
}

// Publish implements [workspace.Publisher] by sending
// textDocument/publishDiagnostics.
func (s *Server) Publish(path string, lines []string, diags lang.Diagnostics) {
	text := linesOf(lines)

	out := make([]diagnostic, len(diags))
	for i, d := range diags {
		out[i] = diagnostic{
			Range:    text.rangeToClient(d.Range),
			Severity: int(d.Severity),
			Code:     d.Code,
			Source:   pkg.Name,
			Message:  d.Message,
		}
	}

	err := s.conn.notify("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         workspace.URI(path),
		Diagnostics: out,
	})
	if err != nil {
		s.logger.Warn("publish diagnostics", slog.String("path", path), slog.Any("error", err))
	}
}

func (s *Server) withPath(uri string, fn func(path string)) error {
	path, err := workspace.Path(uri)
	if err != nil {
		return err
	}

	fn(path)

	return nil
}

func (s *Server) withPosition(params json.RawMessage, fn func(path string, pos lang.Position) any) (any, *rpcError) {
	var p textDocumentPositionParams
	if err := decode(params, &p); err != nil {
		return nil, invalidParams("position", err)
	}

	path, err := workspace.Path(p.TextDocument.URI)
	if err != nil {
		return nil, invalidParams("position", err)
	}

	return fn(path, s.linesOf(path).fromClient(p.Position)), nil
}

func (s *Server) completion(path string, pos lang.Position) any {
	items := s.index.Completion(path, pos)

	list := completionList{Items: make([]completionItem, len(items))}

	for i, it := range items {
		ci := completionItem{
			Label:    it.Label,
			Detail:   it.Detail,
			SortText: fmt.Sprintf("%04d", i),
		}

		switch it.Kind {
		case workspace.CompletionTemplate:
			ci.Kind = completionKindFunction
		case workspace.CompletionFunction:
			ci.Kind = completionKindMethod
		case workspace.CompletionModule:
			ci.Kind = completionKindModule
		case workspace.CompletionKeyword:
			ci.Kind = completionKindKeyword
		}

		if it.Doc != "" {
			ci.Documentation = &markupContent{Kind: "markdown", Value: it.Doc}
		}

		list.Items[i] = ci
	}

	return list
}

func (s *Server) hover(path string, pos lang.Position) any {
	h, ok := s.index.Hover(path, pos)
	if !ok {
		return nil
	}

	return hover{
		Contents: markupContent{Kind: "markdown", Value: h.Contents},
		Range:    s.linesOf(path).rangeToClient(h.Range),
	}
}

func (s *Server) definition(path string, pos lang.Position) any {
	loc, ok := s.index.Definition(path, pos)
	if !ok {
		return nil
	}

	return location{URI: workspace.URI(loc.Path), Range: s.linesOf(loc.Path).rangeToClient(loc.Range)}
}

func (s *Server) signatureHelp(path string, pos lang.Position) any {
	sig, ok := s.index.SignatureHelp(path, pos)
	if !ok {
		return nil
	}

	params := make([]parameterInformation, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = parameterInformation{Label: p}
	}

	return signatureHelp{
		Signatures: []signatureInformation{{
			Label:         sig.Label,
			Documentation: sig.Doc,
			Parameters:    params,
		}},
		ActiveParameter: sig.Active,
	}
}

func (s *Server) foldingRange(params json.RawMessage) (any, *rpcError) {
	var p foldingRangeParams
	if err := decode(params, &p); err != nil {
		return nil, invalidParams("foldingRange", err)
	}

	path, err := workspace.Path(p.TextDocument.URI)
	if err != nil {
		return nil, invalidParams("foldingRange", err)
	}

	ranges := s.index.FoldingRanges(path)

	out := make([]foldingRange, len(ranges))
	for i, r := range ranges {
		out[i] = foldingRange{StartLine: r.StartLine, EndLine: r.EndLine, Kind: "region"}
	}

	return out, nil
}

// executeCommand runs lgen.onEnter with the arguments [uri, position].
func (s *Server) executeCommand(params json.RawMessage) (any, *rpcError) {
	var p executeCommandParams
	if err := decode(params, &p); err != nil {
		return nil, invalidParams("executeCommand", err)
	}

	if p.Command != commandOnEnter {
		return nil, &rpcError{Code: codeInvalidParams, Message: "unknown command: " + p.Command}
	}

	if len(p.Arguments) != 2 {
		return nil, &rpcError{
			Code:    codeInvalidParams,
			Message: commandOnEnter + " expects 2 arguments, got " + strconv.Itoa(len(p.Arguments)),
		}
	}

	var (
		uri string
		pos lang.Position
	)

	if err := errors.Join(json.Unmarshal(p.Arguments[0], &uri), json.Unmarshal(p.Arguments[1], &pos)); err != nil {
		return nil, invalidParams(commandOnEnter, err)
	}

	path, err := workspace.Path(uri)
	if err != nil {
		return nil, invalidParams(commandOnEnter, err)
	}

	return s.index.OnEnter(path, s.linesOf(path).fromClient(pos)), nil
}

// expand returns the first renderings of a template of an open or
// indexed file.
func (s *Server) expand(params json.RawMessage) (any, *rpcError) {
	var p expandParams
	if err := decode(params, &p); err != nil {
		return nil, invalidParams("lgen/expand", err)
	}

	path, err := workspace.Path(p.TextDocument.URI)
	if err != nil {
		return nil, invalidParams("lgen/expand", err)
	}

	e, ok := s.index.Entry(path)
	if !ok {
		return nil, &rpcError{
			Code:    codeInvalidParams,
			Message: "document not indexed: " + filepath.Base(path),
		}
	}

	data, err := decodeData(p.Data)
	if err != nil {
		return nil, invalidParams("lgen/expand", err)
	}

	n := p.N
	if n <= 0 {
		n = DefaultExpandLimit
	}

	var opts []lang.EvalOption
	if p.Seed != nil {
		opts = append(opts, lang.WithSeed(*p.Seed))
	}

	result := expandResult{Renderings: []any{}}

	for v, err := range lang.Take(e.Templates.Expand(p.Template, data, opts...), n) {
		if err != nil {
			result.Errors = append(result.Errors, err.Error())

			continue
		}

		result.Renderings = append(result.Renderings, v)
	}

	return result, nil
}

// decodeData reads a scope given as an object or as a string holding
// JSON with comments.
func decodeData(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		raw = jsonc.ToJSON([]byte(text))
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, lang.ErrTypeMismatch.Wrap(err).With(slog.String("want", "object"))
	}

	return data, nil
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}

	return json.Unmarshal(params, v)
}

func invalidParams(method string, err error) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "invalid " + method + " params: " + err.Error()}
}
