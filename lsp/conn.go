package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
)

// maxMessage bounds the size of one incoming message.
const maxMessage = 64 << 20

// conn reads and writes messages framed by a Content-Length header.
// Writes may come from several goroutines.
type conn struct {
	r *textproto.Reader

	mu sync.Mutex
	w  io.Writer
}

func newConn(r io.Reader, w io.Writer) *conn {
	return &conn{r: textproto.NewReader(bufio.NewReader(r)), w: w}
}

// read returns the body of the next message. It returns io.EOF when the
// input ends between messages.
func (c *conn) read() ([]byte, error) {
	header, err := c.r.ReadMIMEHeader()
	if err != nil {
		if err == io.EOF && len(header) == 0 {
			return nil, io.EOF
		}

		return nil, ErrFraming.Wrap(err)
	}

	value := strings.TrimSpace(header.Get("Content-Length"))
	if value == "" {
		return nil, ErrFraming.With(slog.String("reason", "missing Content-Length"))
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > maxMessage {
		return nil, ErrFraming.With(slog.String("Content-Length", value))
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.r.R, body); err != nil {
		return nil, ErrFraming.Wrap(err)
	}

	return body, nil
}

func (c *conn) write(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return ErrWrite.Wrap(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return ErrWrite.Wrap(err)
	}

	if _, err := c.w.Write(body); err != nil {
		return ErrWrite.Wrap(err)
	}

	return nil
}

func (c *conn) result(id json.RawMessage, result any) error {
	return c.write(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (c *conn) error(id json.RawMessage, code int, msg string) error {
	return c.write(errorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: msg},
	})
}

func (c *conn) notify(method string, params any) error {
	return c.write(notification{JSONRPC: "2.0", Method: method, Params: params})
}
