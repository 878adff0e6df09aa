package thoughtsig

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Sniffer reassembles signature-bearing model parts from response chunks.
// One logical part may span several stream chunks: text arrives first, the
// signature later (possibly with only a text suffix, and without a role
// field). The sniffer accumulates per candidate index and publishes the
// (fingerprint, signature) pair to the store once the signature shows up.
//
// A sniffer belongs to exactly one stream and is discarded with it.
type Sniffer struct {
	store      *SignatureStore
	candidates map[int]*candidateState
}

type candidateState struct {
	text         strings.Builder
	functionCall []byte // raw JSON of the last-seen functionCall
}

// NewSniffer builds a sniffer publishing into store.
func NewSniffer(store *SignatureStore) *Sniffer {
	return &Sniffer{
		store:      store,
		candidates: make(map[int]*candidateState),
	}
}

// Inspect walks one response body or stream chunk. Accepts both the bare
// Gemini shape and the CLI envelope ({"response": ...}).
func (s *Sniffer) Inspect(body []byte) {
	payload := gjson.GetBytes(body, "response")
	if !payload.Exists() {
		payload = gjson.ParseBytes(body)
	}

	candidates := payload.Get("candidates")
	if !candidates.IsArray() {
		return
	}

	position := -1
	candidates.ForEach(func(_, candidate gjson.Result) bool {
		position++
		idx := position
		if index := candidate.Get("index"); index.Exists() {
			idx = int(index.Int())
		}
		s.inspectParts(idx, candidate.Get("content.parts"))
		return true
	})
}

func (s *Sniffer) inspectParts(idx int, parts gjson.Result) {
	if !parts.IsArray() {
		return
	}

	state := s.candidates[idx]
	if state == nil {
		state = &candidateState{}
		s.candidates[idx] = state
	}

	parts.ForEach(func(_, part gjson.Result) bool {
		signature := part.Get("thoughtSignature").String()

		if functionCall := part.Get("functionCall"); functionCall.Exists() {
			state.text.Reset()
			state.functionCall = []byte(functionCall.Raw)
			if signature != "" {
				s.publish(state, signature)
			}
			return true
		}

		if part.Get("thought").Bool() {
			state.functionCall = nil
			state.text.WriteString(part.Get("text").String())
			if signature != "" {
				s.publish(state, signature)
			}
			return true
		}

		// Signature-only continuation of a pending accumulation.
		if signature != "" && (state.functionCall != nil || state.text.Len() > 0) {
			s.publish(state, signature)
		}
		return true
	})
}

// publish fingerprints the accumulated input, stores the pair, and resets
// the accumulator for the next logical part.
func (s *Sniffer) publish(state *candidateState, signature string) {
	defer func() {
		state.text.Reset()
		state.functionCall = nil
	}()

	if state.functionCall != nil {
		if key, ok := FingerprintJSON(state.functionCall); ok {
			s.store.Put(key, signature)
		}
		return
	}
	if key, ok := FingerprintText(state.text.String()); ok {
		s.store.Put(key, signature)
	}
}
