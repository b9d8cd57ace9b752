package fetch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"topiclens/internal/domain"
)

// maxRecordBytes caps one export line. Oversized lines are skipped, not
// fatal.
const maxRecordBytes = 1024 * 1024

// FileSource reads conversations from a JSON-lines export, one conversation
// per line. Used by the CLI entry point and as the fixture format in tests.
type FileSource struct {
	Path string
}

type rawMessage struct {
	Role      string    `json:"role"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type rawConversation struct {
	ID         string         `json:"id"`
	Messages   []rawMessage   `json:"messages"`
	Attributes map[string]any `json:"attributes"`
	Tags       any            `json:"tags"`
}

// Records returns the conversations whose first message falls inside
// [from, to). A zero from/to disables that bound. Unparseable and oversized
// lines are logged and skipped; one bad export line must not sink the pass.
func (f *FileSource) Records(ctx context.Context, from, to time.Time) ([]domain.Conversation, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer file.Close()

	var out []domain.Conversation
	reader := bufio.NewReaderSize(file, maxRecordBytes)
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			lineNo++
			log.Printf("fetch skip oversized record file=%s line=%d limit=%d", f.Path, lineNo, maxRecordBytes)
			for err == bufio.ErrBufferFull {
				_, err = reader.ReadSlice('\n')
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("read records file: %w", err)
			}
			continue
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read records file: %w", err)
		}
		if len(line) > 0 {
			lineNo++
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				var raw rawConversation
				if jerr := json.Unmarshal(trimmed, &raw); jerr != nil {
					log.Printf("fetch skip malformed record file=%s line=%d err=%v", f.Path, lineNo, jerr)
				} else if conv := normalizeConversation(raw, lineNo); inWindow(conv.StartedAt(), from, to) {
					out = append(out, conv)
				}
			}
		}
		if err == io.EOF {
			break
		}
	}
	log.Printf("fetch loaded records=%d file=%s", len(out), f.Path)
	return out, nil
}

func inWindow(started time.Time, from, to time.Time) bool {
	if !from.IsZero() && started.Before(from) {
		return false
	}
	if !to.IsZero() && !started.Before(to) {
		return false
	}
	return true
}

func normalizeConversation(raw rawConversation, lineNo int) domain.Conversation {
	id := raw.ID
	if id == "" {
		id = fmt.Sprintf("line-%d", lineNo)
	}
	conv := domain.Conversation{
		ID:         id,
		Attributes: NormalizeAttributes(raw.Attributes),
		Tags:       NormalizeTags(raw.Tags),
	}
	for _, m := range raw.Messages {
		conv.Messages = append(conv.Messages, domain.Message{
			Role:      normalizeRole(m.Role),
			Body:      m.Body,
			Timestamp: m.Timestamp,
		})
	}
	return conv
}

func normalizeRole(role string) domain.Role {
	switch domain.Role(role) {
	case domain.RoleCustomer, domain.RoleAgent, domain.RoleBot:
		return domain.Role(role)
	case "bot", "automation":
		return domain.RoleBot
	default:
		return domain.RoleCustomer
	}
}
