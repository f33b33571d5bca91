// Package moderation filters chat text against the blocked-word list
// and pushes accepted messages through the signature authority.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/protocol"
	"github.com/arcadelink/relay/internal/services/signing"
	"github.com/arcadelink/relay/internal/storage"
)

// MaxMessageLength is the chat length limit in code points.
const MaxMessageLength = 35

// Service holds the cached blocked-word set and builds signed chat
// frames. The cache is replaced wholesale on refresh so readers never
// observe a partially updated set.
type Service struct {
	storage storage.Storage
	signer  *signing.Service
	logger  *slog.Logger

	mu    sync.RWMutex
	words [][]rune // validated, folded via foldRune
}

// New creates a new moderation service with an empty word set.
// Call Refresh at startup and on every refresh broadcast.
func New(storage storage.Storage, signer *signing.Service, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		signer:  signer,
		logger:  logger.With(slog.String("component", "moderation")),
	}
}

// Refresh reloads the blocked-word list from storage, replacing the
// cached set wholesale. A missing list yields an empty set: nothing is
// blocked until moderation data exists.
func (s *Service) Refresh(ctx context.Context) error {
	raw, err := s.storage.GetBlockedWords(ctx)
	if err != nil {
		if errors.Is(err, model.ErrWordListNotFound) {
			s.replace(nil)
			return nil
		}
		return fmt.Errorf("loading blocked words: %w", err)
	}

	var words [][]rune
	for _, w := range raw {
		if !ValidWord(w) {
			s.logger.Warn("skipping invalid blocked-word entry", slog.Int("length", len(w)))
			continue
		}
		// Entries go through the same per-rune fold as scanned input so
		// the two sides always compare in the same form.
		entry := []rune(w)
		for i, r := range entry {
			entry[i] = foldRune(r)
		}
		words = append(words, entry)
	}
	s.replace(words)
	s.logger.Info("blocked-word cache refreshed", slog.Int("words", len(words)))
	return nil
}

func (s *Service) replace(words [][]rune) {
	s.mu.Lock()
	s.words = words
	s.mu.Unlock()
}

// ValidWord reports whether a word-list entry may be used for matching:
// 1-50 characters from [A-Za-z0-9 '-]. Anything else is skipped as a
// corrupted or adversarial entry.
func ValidWord(w string) bool {
	if len(w) < 1 || len(w) > 50 {
		return false
	}
	for _, r := range w {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == ' ' || r == '\'' || r == '-':
		default:
			return false
		}
	}
	return true
}

// Filter trims the text and masks blocked words. It rejects empty input
// and input longer than MaxMessageLength code points. Masking operates
// on code points and preserves the length of the input exactly: each
// matched code point becomes a single '*'.
//
// A blocked word only matches when both boundaries are clean: the code
// point before the span and the one after it must be absent or
// non-alphanumeric. "spam" masks inside "buy spam now" but leaves
// "spammer" untouched.
func (s *Service) Filter(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	runes := []rune(trimmed)
	if len(runes) == 0 || len(runes) > MaxMessageLength {
		return "", model.ErrMessageRejected
	}

	// Folded copy for matching; folding stays per-rune so positions keep
	// aligned with the original text.
	folded := make([]rune, len(runes))
	for i, r := range runes {
		folded[i] = foldRune(r)
	}

	s.mu.RLock()
	words := s.words
	s.mu.RUnlock()

	masked := runes
	for _, word := range words {
		for i := 0; i+len(word) <= len(folded); i++ {
			if !matchAt(folded, word, i) {
				continue
			}
			if i > 0 && isAlnum(folded[i-1]) {
				continue
			}
			if end := i + len(word); end < len(folded) && isAlnum(folded[end]) {
				continue
			}
			for j := i; j < i+len(word); j++ {
				masked[j] = '*'
				folded[j] = '*'
			}
		}
	}

	return string(masked), nil
}

func matchAt(text, word []rune, at int) bool {
	for j, r := range word {
		if text[at+j] != r {
			return false
		}
	}
	return true
}

// foldRune maps one code point to its comparison form: NFKC first, so
// compatibility variants (fullwidth letters, ligature-free forms)
// collapse onto their canonical character, then lower case. Expansions
// that would change the code-point count (rare ligatures) are left
// alone, keeping the fold strictly one rune to one rune.
func foldRune(r rune) rune {
	if n := []rune(norm.NFKC.String(string(r))); len(n) == 1 {
		r = n[0]
	}
	return unicode.ToLower(r)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// BuildChatFrame runs the full chat pipeline: filter, sign, frame.
// The returned frame is ready to relay. Rejection surfaces as
// ErrMessageRejected; a signing failure is returned for the caller to
// log and drop (chat is best-effort, never retried).
func (s *Service) BuildChatFrame(userID model.PlayerID, raw string, now time.Time) ([]byte, error) {
	text, err := s.Filter(raw)
	if err != nil {
		return nil, err
	}

	payload := protocol.ChatPayload{
		UserID:    string(userID),
		Message:   text,
		Timestamp: uint32(now.Unix()),
	}
	encoded := payload.Encode()

	sig, err := s.signer.Sign(encoded)
	if err != nil {
		return nil, fmt.Errorf("signing chat payload: %w", err)
	}

	msg := protocol.ChatMessage{Payload: payload, Signature: sig}
	return msg.Encode(), nil
}
