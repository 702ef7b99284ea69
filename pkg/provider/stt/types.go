package stt

import "github.com/glyphoxa-sdk/runtime/pkg/types"

// Transcript, WordDetail, and KeywordBoost are aliases onto the shared
// cross-package types so that call sites inside this package (and the
// provider implementations under it) can write the shorter stt.X spelling
// interchangeably with types.X, which is what the SessionHandle interface
// in provider.go declares.
type Transcript = types.Transcript

type WordDetail = types.WordDetail

type KeywordBoost = types.KeywordBoost
