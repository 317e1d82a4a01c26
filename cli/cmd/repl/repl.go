package repl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
	"github.com/zeebo/xxh3"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ardnew/lgen/lang"
	"github.com/ardnew/lgen/log"
)

// Config configures a REPL session.
type Config struct {
	// Load parses the sources. It runs at start, on :reload, after :edit
	// and whenever a loaded file changes on disk.
	Load func() (*lang.Templates, error)
	// Scope is the initial data scope. It is copied; :set and :unset
	// change the copy.
	Scope map[string]any
	// Options apply to every evaluation.
	Options []lang.EvalOption
	// HistoryPath is the history file. Empty keeps history in memory.
	HistoryPath string
	Logger      log.Logger
}

type (
	// tickMsg schedules a check of the loaded files.
	tickMsg struct{}

	// unchangedMsg ends a check that found nothing to reload.
	unchangedMsg struct{}

	// reloadMsg carries the collection reloaded after a file changed.
	reloadMsg struct {
		ts   *lang.Templates
		sums map[string]uint64
		err  error
	}

	// editMsg is sent when the edit loop ends with a reloaded collection.
	// declined is set when the user gave up fixing its errors.
	editMsg struct {
		ts       *lang.Templates
		declined bool
	}

	// editErrorMsg is sent when the edit loop fails to run.
	editErrorMsg struct{ err error }
)

const (
	prompt             = "➜ "
	reloadInterval     = 2 * time.Second
	defaultExpandLimit = 5
	defaultWidth       = 80
)

func helpMessage() string {
	return `
Commands:

  :help              Print this cruft
  :list              List templates
  :check             Print diagnostics of the sources
  :expand NAME [N]   Print up to N renderings of a template (default 5)
  :set [KEY=EXPR]    Bind KEY in the scope, or print the scope
  :unset KEY...      Remove keys from the scope
  :reload            Reload the sources
  :edit [NAME]       Edit a source (or the file defining NAME) in $EDITOR
  :clear             Clear screen
  :quit              Exit REPL

Usage:
  Type an expression to evaluate it; templates are callable functions
  Sources reload automatically when they change on disk
  Completions appear automatically as you type
  Press Tab / Shift-Tab to cycle through candidates
  Press Space to accept the current candidate
  Use Up/Down arrows for history navigation
  Press Ctrl+C on empty line or Ctrl+D to exit
`
}

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)
	inputStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	resultStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	selectedStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4"))
)

// formatCommand formats the echo line with prompt and input styled.
func formatCommand(input string) string {
	return promptStyle.Render(prompt) + inputStyle.Render(input)
}

func formatError(err error) string {
	return errorStyle.Render("error: " + err.Error())
}

// model is the Bubble Tea model for the REPL.
type model struct {
	ctxFunc      func() context.Context
	input        textinput.Model
	ts           *lang.Templates
	load         func() (*lang.Templates, error)
	scope        map[string]any
	opts         []lang.EvalOption
	logger       log.Logger
	history      *History
	historyIdx   int
	sums         map[string]uint64 // content hash of each loaded file
	checking     bool              // whether a file check is in flight
	matches      fuzzy.Matches     // current fuzzy match results
	wordStart    int               // byte offset of current word start
	wordEnd      int               // byte offset of current word end
	suggIdx      int               // selected candidate index
	tabActive    bool              // whether user is tab-cycling
	preTabText   string            // input text before tab-cycling began
	preTabCursor int               // cursor position before tab-cycling began
	width        int               // terminal width for ellipsization
	quitting     bool
}

// Run loads the sources and starts an interactive session over them.
func Run(ctx context.Context, cfg Config) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	if cfg.Load == nil {
		return ErrNoSource
	}

	ts, err := cfg.Load()
	if err != nil {
		return err
	}

	if ts.HasErrors() {
		cfg.Logger.WarnContext(ctx, "sources have errors, see :check",
			slog.Int("diagnostics", len(ts.Diagnostics())))
	}

	history := NewHistory(cfg.HistoryPath)
	if err := history.Load(); err != nil {
		cfg.Logger.WarnContext(ctx, "could not load history",
			slog.String("file", cfg.HistoryPath),
			slog.String("error", err.Error()))
	}

	cfg.Logger.TraceContext(ctx, "repl start",
		slog.Int("templates", len(ts.Names())),
		slog.Int("history", history.Len()))

	p := tea.NewProgram(newModel(ctx, cfg, ts, history), tea.WithContext(ctx))
	_, err = p.Run()

	return err
}

func newModel(
	ctx context.Context,
	cfg Config,
	ts *lang.Templates,
	history *History,
) model {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(prompt)
	ti.Focus()
	ti.CharLimit = 1024
	ti.Width = defaultWidth

	scope := maps.Clone(cfg.Scope)
	if scope == nil {
		scope = map[string]any{}
	}

	return model{
		ctxFunc:    func() context.Context { return ctx },
		input:      ti,
		ts:         ts,
		load:       cfg.Load,
		scope:      scope,
		opts:       cfg.Options,
		logger:     cfg.Logger,
		history:    history,
		historyIdx: history.Len(),
		sums:       fileSums(ts.Files()),
		suggIdx:    -1,
		width:      defaultWidth,
	}
}

// fileSums hashes the content of each file in paths. Unreadable files are
// left out.
func fileSums(paths []string) map[string]uint64 {
	sums := make(map[string]uint64, len(paths))

	for _, path := range paths {
		if buf, err := os.ReadFile(path); err == nil {
			sums[path] = xxh3.Hash(buf)
		}
	}

	return sums
}

func tick() tea.Cmd {
	return tea.Tick(reloadInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// checkSources reloads the collection when the content of a loaded file
// differs from what was last loaded.
func (m model) checkSources() tea.Cmd {
	paths, prev, load := m.ts.Files(), m.sums, m.load

	return func() tea.Msg {
		sums := fileSums(paths)
		if maps.Equal(sums, prev) {
			return unchangedMsg{}
		}

		ts, err := load()
		if err != nil {
			return reloadMsg{sums: sums, err: err}
		}

		return reloadMsg{ts: ts, sums: fileSums(ts.Files())}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - len(prompt) - 2

		return m, nil

	case tickMsg:
		if m.checking {
			return m, tick()
		}

		m.checking = true

		return m, m.checkSources()

	case unchangedMsg:
		m.checking = false

		return m, tick()

	case reloadMsg:
		m.checking = false
		// Remember the failed content so the same change is not retried.
		m.sums = msg.sums

		if msg.err != nil {
			return m, tea.Sequence(tea.Println(formatError(msg.err)), tick())
		}

		m.ts = msg.ts
		refreshMatches(&m, false)

		return m, tea.Sequence(tea.Println(hintStyle.Render(m.loadSummary("reloaded"))), tick())

	case editMsg:
		m.ts = msg.ts
		m.sums = fileSums(msg.ts.Files())
		refreshMatches(&m, false)

		summary := m.loadSummary("edited")
		if msg.declined {
			summary += ", see :check"
		}

		return m, tea.Println(resultStyle.Render(summary))

	case editErrorMsg:
		return m, tea.Println(formatError(msg.err))
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

// loadSummary describes the current collection after verb.
func (m model) loadSummary(verb string) string {
	summary := fmt.Sprintf("%s %d templates from %d files", verb, len(m.ts.Names()), len(m.ts.Files()))

	errs := 0

	for _, d := range m.ts.Diagnostics() {
		if d.Severity == lang.SeverityError {
			errs++
		}
	}

	if errs > 0 {
		summary += fmt.Sprintf(" (%d errors)", errs)
	}

	return summary
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.input.View())
	b.WriteString("\n")

	input := m.input.Value()
	call := detectFunctionCall(input, m.input.Position())

	var signature string
	if call.inCall {
		sig, params := getSignature(m.ts, call.name)
		signature = renderSignatureHint(sig, params, call.argIndex)
	}

	switch {
	case m.historyIdx < m.history.Len():
		hint := fmt.Sprintf("%s/%d",
			lipgloss.NewStyle().Bold(true).Render(strconv.Itoa(m.historyIdx+1)),
			m.history.Len())
		b.WriteString(hintStyle.Render(hint))

	case strings.TrimSpace(input) == "":
		b.WriteString(hintStyle.Render("Type an expression, or :help for commands"))

	case signature != "" && !m.tabActive:
		b.WriteString(signature)

	case len(m.matches) > 0:
		b.WriteString(renderCandidateBar(m.matches, m.suggIdx, m.tabActive, m.width, m.isFunction))
	}

	b.WriteString("\n")

	return b.String()
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	m.logger.TraceContext(m.ctxFunc(), "repl keypress",
		slog.String("key", msg.String()),
		slog.Int("type", int(msg.Type)))

	switch msg.Type {
	case tea.KeyCtrlC:
		if m.input.Value() == "" {
			m.quitting = true

			return m, tea.Quit
		}

		m.input.SetValue("")
		m.tabActive = false
		m.historyIdx = m.history.Len()
		refreshMatches(&m, false)

		return m, nil

	case tea.KeyCtrlD:
		if m.input.Value() == "" {
			m.quitting = true

			return m, tea.Quit
		}

		return m, nil

	case tea.KeyEnter:
		if !m.tabActive || len(m.matches) == 0 {
			return m.executeInput()
		}
		// Lock in the current tab candidate without executing.
		m.tabActive = false
		refreshMatches(&m, true)

		return m, nil

	case tea.KeyTab:
		return m.cycle(1), nil

	case tea.KeyShiftTab:
		return m.cycle(-1), nil

	case tea.KeyUp:
		return m.historyPrev(), nil

	case tea.KeyDown:
		return m.historyNext(), nil

	case tea.KeyEsc:
		if m.tabActive {
			m.tabActive = false
			m.input.SetValue(m.preTabText)
			m.input.SetCursor(m.preTabCursor)
			refreshMatches(&m, false)
		}

		return m, nil

	case tea.KeyRunes, tea.KeySpace:
		// Typing, including the space key, ends tab-cycling.
		m.tabActive = false

		var cmd tea.Cmd

		m.historyIdx = m.history.Len()
		m.input, cmd = m.input.Update(msg)
		refreshMatches(&m, true)

		return m, cmd
	}

	// Any other key (backspace, delete, arrows, etc.) edits without
	// auto-confirming a completion.
	var cmd tea.Cmd

	m.tabActive = false
	m.historyIdx = m.history.Len()
	m.input, cmd = m.input.Update(msg)
	refreshMatches(&m, false)

	return m, cmd
}

// cycle moves the tab selection by step, wrapping around. A single
// candidate is completed and confirmed at once.
func (m model) cycle(step int) model {
	if len(m.matches) == 0 {
		return m
	}

	if len(m.matches) == 1 {
		replaceCurrentWord(&m, m.matches[0].Str)
		m.tabActive = false
		m.suggIdx = -1
		m.matches = nil

		return m
	}

	switch {
	case m.tabActive:
		m.suggIdx = (m.suggIdx + step + len(m.matches)) % len(m.matches)
	case step > 0:
		m.tabActive = true
		m.preTabText = m.input.Value()
		m.preTabCursor = m.input.Position()
		m.suggIdx = 0
	default:
		m.tabActive = true
		m.preTabText = m.input.Value()
		m.preTabCursor = m.input.Position()
		m.suggIdx = len(m.matches) - 1
	}

	replaceCurrentWord(&m, m.matches[m.suggIdx].Str)

	return m
}

// replaceCurrentWord replaces the current word boundaries in the input with
// the given replacement text and repositions the cursor.
func replaceCurrentWord(m *model, replacement string) {
	input := m.input.Value()
	cursor := m.wordStart + len(replacement)

	m.input.SetValue(input[:m.wordStart] + replacement + input[m.wordEnd:])
	m.input.SetCursor(cursor)

	m.wordEnd = cursor
}

// refreshMatches recomputes fuzzy matches for the current input state.
// When autoConfirm is true it also confirms the completion when exactly
// one candidate remains and the typed word already equals it. Deletions
// and cursor moves pass false so that editing never completes by surprise.
func refreshMatches(m *model, autoConfirm bool) {
	m.matches, m.wordStart, m.wordEnd = m.computeMatches()

	if !m.tabActive {
		m.suggIdx = -1
	}

	if !autoConfirm || len(m.matches) != 1 {
		return
	}

	if m.input.Value()[m.wordStart:m.wordEnd] == m.matches[0].Str {
		m.matches = nil
	}
}

func (m model) executeInput() (model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	if input == "" {
		return m, nil
	}

	m.input.SetValue("")
	m.matches = nil

	if err := m.history.Write(input); err != nil {
		m.logger.DebugContext(m.ctxFunc(), "history write failed", slog.String("error", err.Error()))
	}

	m.historyIdx = m.history.Len()

	if line, ok := strings.CutPrefix(input, ":"); ok {
		return m.executeCommand(line)
	}

	echo := tea.Println(formatCommand(input))

	out, err := m.evaluate(input)
	if err != nil {
		return m, tea.Sequence(echo, tea.Println(formatError(err)))
	}

	return m, tea.Sequence(echo, tea.Println(resultStyle.Render(out)))
}

// evaluate evaluates an expression against the collection and scope.
func (m model) evaluate(input string) (string, error) {
	m.logger.TraceContext(m.ctxFunc(), "repl eval", slog.String("input", input))

	result, err := m.ts.EvaluateExpression(input, m.scope, m.opts...)
	if err != nil {
		return "", err
	}

	return lang.Format(result), nil
}

func (m model) executeCommand(line string) (model, tea.Cmd) {
	name, args, _ := strings.Cut(strings.TrimSpace(line), " ")
	args = strings.TrimSpace(args)

	echo := tea.Println(formatCommand(":" + line))

	m.logger.TraceContext(m.ctxFunc(), "repl command",
		slog.String("command", name),
		slog.String("args", args))

	switch name {
	case "q", "quit", "exit":
		m.quitting = true

		return m, tea.Sequence(echo, tea.Quit)

	case "c", "clear":
		return m, tea.ClearScreen

	case "e", "edit":
		cmd, err := m.editor(args)
		if err != nil {
			return m, tea.Sequence(echo, tea.Println(formatError(err)))
		}

		return m, tea.Sequence(echo, cmd)

	case "r", "reload":
		ts, err := m.load()
		if err != nil {
			return m, tea.Sequence(echo, tea.Println(formatError(err)))
		}

		m.ts = ts
		m.sums = fileSums(ts.Files())

		return m, tea.Sequence(echo, tea.Println(hintStyle.Render(m.loadSummary("reloaded"))))
	}

	out, err := m.run(name, args)
	if err != nil {
		return m, tea.Sequence(echo, tea.Println(formatError(err)))
	}

	return m, tea.Sequence(echo, tea.Println(out))
}

// run executes the commands that only produce output.
func (m model) run(name, args string) (string, error) {
	switch name {
	case "h", "help":
		return helpMessage(), nil

	case "l", "list":
		return m.list(), nil

	case "check":
		return m.check(), nil

	case "x", "expand":
		return m.expand(args)

	case "set":
		return m.set(args)

	case "unset":
		for _, key := range strings.Fields(args) {
			delete(m.scope, key)
		}

		return m.set("")
	}

	return "", ErrUnknownCommand.With(
		slog.String("command", name),
		slog.String("help", ":help"))
}

func (m model) list() string {
	var b strings.Builder

	for tmpl := range m.ts.All() {
		loc := fmt.Sprintf("%s:%d", filepath.Base(tmpl.Source), tmpl.Range.Start.Line+1)
		fmt.Fprintf(&b, "  %s %s\n", tmpl.Signature(), hintStyle.Render(loc))
	}

	if b.Len() == 0 {
		return hintStyle.Render("no templates")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m model) check() string {
	ds := m.ts.Diagnostics()
	if len(ds) == 0 {
		return hintStyle.Render("no problems")
	}

	lines := make([]string, len(ds))

	for i, d := range ds {
		style := hintStyle
		if d.Severity == lang.SeverityError {
			style = errorStyle
		}

		lines[i] = style.Render(d.String())
	}

	return strings.Join(lines, "\n")
}

func (m model) expand(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return "", ErrUsage.With(slog.String("usage", ":expand NAME [N]"))
	}

	limit := defaultExpandLimit

	if len(fields) == 2 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return "", ErrUsage.With(
				slog.String("usage", ":expand NAME [N]"),
				slog.String("count", fields[1]))
		}

		limit = n
	}

	var lines []string

	for v, err := range lang.Take(m.ts.Expand(fields[0], m.scope, m.opts...), limit) {
		if err != nil {
			return "", err
		}

		lines = append(lines, fmt.Sprintf("%3d. %s", len(lines)+1, lang.Format(v)))
	}

	return resultStyle.Render(strings.Join(lines, "\n")), nil
}

// set binds KEY=EXPR in the scope. Without arguments it prints the scope.
func (m model) set(args string) (string, error) {
	if args == "" {
		if len(m.scope) == 0 {
			return hintStyle.Render("scope is empty"), nil
		}

		var b strings.Builder

		for _, key := range slices.Sorted(maps.Keys(m.scope)) {
			fmt.Fprintf(&b, "  %s = %s\n", key, lang.Format(m.scope[key]))
		}

		return strings.TrimSuffix(b.String(), "\n"), nil
	}

	key, src, ok := strings.Cut(args, "=")
	key = strings.TrimSpace(key)

	if !ok || key == "" || strings.ContainsAny(key, " \t.") {
		return "", ErrUsage.With(slog.String("usage", ":set KEY=EXPR"))
	}

	v, err := m.ts.EvaluateExpression(strings.TrimSpace(src), m.scope, m.opts...)
	if err != nil {
		return "", err
	}

	m.scope[key] = v

	return resultStyle.Render(key + " = " + lang.Format(v)), nil
}

// editor returns the command that edits the file defining the template
// called name, or the first source file when name is empty.
func (m model) editor(name string) (tea.Cmd, error) {
	cmd := &editCommand{
		load:   m.load,
		ctx:    m.ctxFunc(),
		logger: m.logger,
	}

	if name != "" {
		tmpl, ok := m.ts.Get(name)
		if !ok {
			return nil, lang.ErrTemplateNotFound.With(slog.String("template", name))
		}

		cmd.path, cmd.line = tmpl.Source, tmpl.Range.Start.Line+1
	} else if files := m.ts.Files(); len(files) > 0 {
		cmd.path = files[0]
	}

	if _, err := os.Stat(cmd.path); cmd.path == "" || err != nil {
		return nil, ErrNoSource.With(slog.String("file", cmd.path))
	}

	return tea.Exec(cmd, func(err error) tea.Msg {
		switch {
		case errors.Is(err, ErrEditDeclined):
			return editMsg{ts: cmd.result, declined: true}
		case err != nil:
			return editErrorMsg{err: err}
		}

		return editMsg{ts: cmd.result}
	}), nil
}

func (m model) historyPrev() model {
	if m.historyIdx == 0 {
		return m
	}

	m.historyIdx--

	if entry, err := m.history.Entry(m.historyIdx); err == nil {
		m.input.SetValue(entry)
		m.input.SetCursor(len(entry))
		refreshMatches(&m, false)
	}

	return m
}

func (m model) historyNext() model {
	if m.historyIdx >= m.history.Len()-1 {
		m.historyIdx = m.history.Len()
		m.input.SetValue("")
		refreshMatches(&m, false)

		return m
	}

	m.historyIdx++

	if entry, err := m.history.Entry(m.historyIdx); err == nil {
		m.input.SetValue(entry)
		m.input.SetCursor(len(entry))
		refreshMatches(&m, false)
	}

	return m
}
