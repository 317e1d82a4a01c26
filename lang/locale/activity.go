package locale

import (
	"context"
	"log/slog"
	"maps"
	"strings"

	"github.com/ardnew/lgen/lang"
)

// cardTypes maps structure type names to bot attachment content types.
var cardTypes = map[string]string{
	"herocard":      "application/vnd.microsoft.card.hero",
	"thumbnailcard": "application/vnd.microsoft.card.thumbnail",
	"signincard":    "application/vnd.microsoft.card.signin",
	"oauthcard":     "application/vnd.microsoft.card.oauth",
	"audiocard":     "application/vnd.microsoft.card.audio",
	"videocard":     "application/vnd.microsoft.card.video",
	"animationcard": "application/vnd.microsoft.card.animation",
	"receiptcard":   "application/vnd.microsoft.card.receipt",
	"adaptivecard":  "application/vnd.microsoft.card.adaptive",
}

// GenerateActivity evaluates name for loc and shapes the result as a bot
// activity:
//
//   - text becomes a message whose text and speak are that text;
//   - an Activity structure is copied, defaulting type to "message" and
//     speak to text;
//   - a card structure becomes a message with one attachment;
//   - any other structure is returned as its properties.
//
// Failures are logged before they are returned.
func (m *Manager) GenerateActivity(ctx context.Context, name string, data any, loc string, opts ...lang.EvalOption) (map[string]any, error) {
	v, err := m.Generate(ctx, name, data, loc, opts...)
	if err != nil {
		m.logger.ErrorContext(ctx, "generate activity",
			slog.String("template", name),
			slog.String("locale", loc),
			slog.Any("error", err))

		return nil, err
	}

	return Activity(v), nil
}

// Activity shapes an evaluation result as a bot activity.
func Activity(v any) map[string]any {
	switch x := v.(type) {
	case nil:
		return message("")

	case string:
		return message(x)

	case map[string]any:
		typ, _ := x["lgType"].(string)

		if strings.EqualFold(typ, "Activity") {
			out := properties(x)

			if _, ok := out["type"]; !ok {
				out["type"] = "message"
			}

			if text, ok := out["text"]; ok {
				if _, ok := out["speak"]; !ok {
					out["speak"] = text
				}
			}

			return out
		}

		if ct, ok := cardTypes[strings.ToLower(typ)]; ok {
			return map[string]any{
				"type": "message",
				"attachments": []any{
					map[string]any{"contentType": ct, "content": properties(x)},
				},
			}
		}

		out := properties(x)
		if _, ok := out["type"]; !ok {
			out["type"] = "message"
		}

		return out
	}

	return message(lang.Format(v))
}

func message(text string) map[string]any {
	return map[string]any{"type": "message", "text": text, "speak": text}
}

// properties copies a structure without its lgType marker.
func properties(st map[string]any) map[string]any {
	out := maps.Clone(st)
	delete(out, "lgType")

	return out
}
