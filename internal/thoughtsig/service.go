// Package thoughtsig learns Gemini thought signatures from responses and
// re-injects them into replayed model turns, so multi-turn tool-calling
// sessions survive the round trip through a stateless client.
package thoughtsig

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Service ties the store, engine, and sniffers together over raw JSON
// request and response bodies.
type Service struct {
	store  *SignatureStore
	engine *Engine
}

// NewService builds a service with the given cache bounds and policy.
func NewService(ttl time.Duration, capacity int, policy Policy) *Service {
	store := NewSignatureStore(ttl, capacity)
	return &Service{
		store:  store,
		engine: NewEngine(store, policy),
	}
}

// NewSniffer returns a fresh per-stream sniffer bound to the shared store.
func (s *Service) NewSniffer() *Sniffer {
	return NewSniffer(s.store)
}

type patchTarget struct {
	contentIdx int
	partIdx    int
	key        uint64
	hasKey     bool
	existing   string
}

// PatchRequest backfills thoughtSignature on every model-turn part that
// needs one. Parts carrying a functionCall key on the canonicalized call;
// thought parts key on their text. Existing signatures are trusted.
// Returns the patched body and fill stats.
func (s *Service) PatchRequest(model string, body []byte) ([]byte, FillStats) {
	targets := collectPatchTargets(body)
	decisions := make([]FillDecision, 0, len(targets))

	patched := body
	for _, target := range targets {
		decision := s.engine.FillOne(target.key, target.hasKey, target.existing, true)
		decisions = append(decisions, decision)

		signature := ""
		switch decision.Action {
		case ActionUseCached:
			signature = decision.Signature
		case ActionUseDummy:
			signature = s.engine.Dummy()
		case ActionKeep:
			continue
		}

		path := fmt.Sprintf("contents.%d.parts.%d.thoughtSignature", target.contentIdx, target.partIdx)
		if updated, err := sjson.SetBytes(patched, path, signature); err == nil {
			patched = updated
		} else {
			log.Warnf("thoughtsig: patch %s failed: %v", path, err)
		}

		log.WithFields(log.Fields{
			"model":       model,
			"content_idx": target.contentIdx,
			"part_idx":    target.partIdx,
			"action":      decision.Action,
		}).Debug("thought signature decision")
	}

	return patched, ClassifyFill(decisions)
}

// RecordResponse learns signatures from a complete (non-streaming) response.
func (s *Service) RecordResponse(body []byte) {
	sniffer := s.NewSniffer()
	sniffer.Inspect(body)
}

// RecordStreamChunk learns signatures from one stream chunk, accumulating
// split parts in the stream's sniffer.
func (s *Service) RecordStreamChunk(sniffer *Sniffer, chunk []byte) {
	sniffer.Inspect(chunk)
}

func collectPatchTargets(body []byte) []patchTarget {
	var targets []patchTarget

	contents := gjson.GetBytes(body, "contents")
	if !contents.IsArray() {
		return nil
	}

	contentIdx := -1
	contents.ForEach(func(_, content gjson.Result) bool {
		contentIdx++
		if content.Get("role").String() != "model" {
			return true
		}

		partIdx := -1
		content.Get("parts").ForEach(func(_, part gjson.Result) bool {
			partIdx++
			target := patchTarget{
				contentIdx: contentIdx,
				partIdx:    partIdx,
				existing:   part.Get("thoughtSignature").String(),
			}

			if functionCall := part.Get("functionCall"); functionCall.Exists() {
				target.key, target.hasKey = FingerprintJSON([]byte(functionCall.Raw))
			} else if part.Get("thought").Bool() {
				if text := part.Get("text"); text.Exists() {
					target.key, target.hasKey = FingerprintText(text.String())
				}
			} else {
				return true // part is not subject to patching
			}

			targets = append(targets, target)
			return true
		})
		return true
	})

	return targets
}
