package ai

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
	unkToken = "[UNK]"

	maxWordChars = 100
)

// wordpiece is the BERT-family subword tokenizer MiniLM models expect:
// whitespace/punctuation pre-split, then greedy longest-match against the
// vocabulary with "##" continuation pieces.
type wordpiece struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
}

func loadWordpiece(vocabPath string) (*wordpiece, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var id int64
	for sc.Scan() {
		vocab[strings.TrimSpace(sc.Text())] = id
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	wp := &wordpiece{vocab: vocab}
	var ok bool
	if wp.cls, ok = vocab[clsToken]; !ok {
		return nil, fmt.Errorf("vocab missing %s", clsToken)
	}
	if wp.sep, ok = vocab[sepToken]; !ok {
		return nil, fmt.Errorf("vocab missing %s", sepToken)
	}
	if wp.unk, ok = vocab[unkToken]; !ok {
		return nil, fmt.Errorf("vocab missing %s", unkToken)
	}
	return wp, nil
}

// Encode converts text to [CLS] pieces... [SEP] ids, truncated to maxLen.
func (wp *wordpiece) Encode(text string, maxLen int) []int64 {
	ids := []int64{wp.cls}
	for _, word := range basicTokenize(text) {
		for _, id := range wp.wordIDs(word) {
			if len(ids) == maxLen-1 {
				break
			}
			ids = append(ids, id)
		}
		if len(ids) == maxLen-1 {
			break
		}
	}
	return append(ids, wp.sep)
}

func (wp *wordpiece) wordIDs(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int64{wp.unk}
	}
	var ids []int64
	start := 0
	for start < len(runes) {
		end := len(runes)
		var pieceID int64 = -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := wp.vocab[piece]; ok {
				pieceID = id
				break
			}
			end--
		}
		if pieceID < 0 {
			return []int64{wp.unk}
		}
		ids = append(ids, pieceID)
		start = end
	}
	return ids
}

// basicTokenize lowercases text and splits it into words and individual
// punctuation marks.
func basicTokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}
